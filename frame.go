// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

// Frame is one encoded media frame. On the send side it is the unit handed
// to SendStream.WriteFrame; payloads larger than the stream's maximum packet
// size are fragmented across packets sharing the frame timestamp. On the
// receive side frames are reassembled from in-order packets and delivered
// through ReceiveStream.ReadFrame.
type Frame struct {
	// SSRC identifies the stream the frame belongs to. Filled in by the
	// engine; callers of WriteFrame may leave it zero.
	SSRC uint32

	// PayloadType of the packets carrying this frame.
	PayloadType uint8

	// Timestamp in clock-rate units, shared by all fragments.
	Timestamp uint32

	// Data is the encoded frame payload.
	Data []byte

	// Recovered is set on received frames when at least one of the packets
	// it was assembled from was restored by FEC or retransmission rather
	// than arriving on the first transmission.
	Recovered bool
}
