// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

// PacketTransport moves serialized packets between the engine and the
// network. The engine never opens sockets itself; datagram I/O is delegated
// to the implementation. Inbound traffic is pushed into the engine by
// calling ProcessRTP and ProcessRTCP from the transport's read loop.
//
// Implementations must be safe for concurrent use: the pacer goroutine, the
// report loop and NACK responders all write without external locking.
type PacketTransport interface {
	// WriteRTP sends one serialized RTP packet.
	WriteRTP(buf []byte) error

	// WriteRTCP sends one serialized RTCP compound packet.
	WriteRTCP(buf []byte) error
}
