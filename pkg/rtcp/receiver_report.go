// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

const (
	rrSSRCOffset   = 0
	rrReportOffset = 4
)

// A ReceiverReport (RR) packet provides reception quality feedback for an RTP stream.
type ReceiverReport struct {
	// The synchronization source identifier for the originator of this RR packet.
	SSRC uint32
	// Zero or more reception report blocks, one for each of the synchronization
	// sources from which this receiver has received RTP data packets since the
	// last report.
	Reports []ReceptionReport
	// ProfileExtensions contains additional, payload-specific information.
	ProfileExtensions []byte
}

// Marshal encodes the ReceiverReport in binary.
func (r ReceiverReport) Marshal() ([]byte, error) {
	rawPacket := make([]byte, r.marshalSize())
	packetBody := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(packetBody[rrSSRCOffset:], r.SSRC)

	offset := rrReportOffset
	for _, rp := range r.Reports {
		data, err := rp.Marshal()
		if err != nil {
			return nil, err
		}
		copy(packetBody[offset:], data)
		offset += receptionReportLength
	}

	copy(packetBody[offset:], r.ProfileExtensions)

	hData, err := r.header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

// Unmarshal decodes the ReceiverReport from binary.
func (r *ReceiverReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < (headerLength + ssrcLength) {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}

	var header Header
	if err := header.Unmarshal(rawPacket); err != nil {
		return err
	}
	if header.Type != TypeReceiverReport {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errWrongType)
	}

	packetBody := rawPacket[headerLength:]

	r.SSRC = binary.BigEndian.Uint32(packetBody)

	offset := rrReportOffset
	r.Reports = r.Reports[:0]
	for i := 0; i < int(header.Count); i++ {
		if offset+receptionReportLength > len(packetBody) {
			return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
		}

		var report ReceptionReport
		if err := report.Unmarshal(packetBody[offset:]); err != nil {
			return err
		}
		r.Reports = append(r.Reports, report)
		offset += receptionReportLength
	}

	if offset < len(packetBody) {
		r.ProfileExtensions = packetBody[offset:]
	}

	return nil
}

func (r ReceiverReport) marshalSize() int {
	return headerLength + ssrcLength + len(r.Reports)*receptionReportLength + len(r.ProfileExtensions)
}

func (r ReceiverReport) header() Header {
	return Header{
		Count:  uint8(len(r.Reports)), //nolint:gosec // bounded by countMax at marshal
		Type:   TypeReceiverReport,
		Length: uint16(r.marshalSize()/4 - 1), //nolint:gosec // bounded
	}
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r ReceiverReport) DestinationSSRC() []uint32 {
	out := make([]uint32, len(r.Reports))
	for i, v := range r.Reports {
		out[i] = v.SSRC
	}

	return out
}

func (r ReceiverReport) String() string {
	out := fmt.Sprintf("ReceiverReport from %x\n", r.SSRC)
	for _, i := range r.Reports {
		out += fmt.Sprintf("\tSSRC %x, lost %d/256, highest seq %d, jitter %d\n",
			i.SSRC, i.FractionLost, i.LastSequenceNumber, i.Jitter)
	}

	return out
}
