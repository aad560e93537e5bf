// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

const (
	srHeaderLength      = 24
	srSSRCOffset        = 0
	srNTPOffset         = 4
	srRTPOffset         = 12
	srPacketCountOffset = 16
	srOctetCountOffset  = 20
	srReportOffset      = 24
)

// A SenderReport (SR) packet provides reception quality feedback for an RTP
// stream, plus sender transmission statistics and the NTP/RTP timestamp pair
// receivers use to compute round-trip time.
type SenderReport struct {
	// The synchronization source identifier for the originator of this SR packet.
	SSRC uint32
	// The wallclock time when this report was sent so that it may be used in
	// combination with timestamps returned in reception reports from other
	// receivers to measure round-trip propagation to those receivers.
	NTPTime uint64
	// Corresponds to the same time as the NTP timestamp (above), but in
	// the same units and with the same random offset as the RTP
	// timestamps in data packets.
	RTPTime uint32
	// The total number of RTP data packets transmitted by the sender since
	// starting transmission up until the time this SR packet was generated.
	PacketCount uint32
	// The total number of payload octets (i.e., not including header or
	// padding) transmitted in RTP data packets by the sender.
	OctetCount uint32
	// Zero or more reception report blocks, one for each of the synchronization
	// sources from which this sender has received RTP data packets since the
	// last report.
	Reports []ReceptionReport
	// ProfileExtensions contains additional, payload-specific information that
	// needs to be reported regularly about the sender.
	ProfileExtensions []byte
}

// Marshal encodes the SenderReport in binary.
func (r SenderReport) Marshal() ([]byte, error) {
	rawPacket := make([]byte, r.marshalSize())
	packetBody := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(packetBody[srSSRCOffset:], r.SSRC)
	binary.BigEndian.PutUint64(packetBody[srNTPOffset:], r.NTPTime)
	binary.BigEndian.PutUint32(packetBody[srRTPOffset:], r.RTPTime)
	binary.BigEndian.PutUint32(packetBody[srPacketCountOffset:], r.PacketCount)
	binary.BigEndian.PutUint32(packetBody[srOctetCountOffset:], r.OctetCount)

	offset := srReportOffset
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

// Unmarshal decodes the SenderReport from binary.
func (r *SenderReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < (headerLength + srHeaderLength) {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}

	var header Header
	if err := header.Unmarshal(rawPacket); err != nil {
		return err
	}
	if header.Type != TypeSenderReport {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errWrongType)
	}

	packetBody := rawPacket[headerLength:]

	r.SSRC = binary.BigEndian.Uint32(packetBody[srSSRCOffset:])
	r.NTPTime = binary.BigEndian.Uint64(packetBody[srNTPOffset:])
	r.RTPTime = binary.BigEndian.Uint32(packetBody[srRTPOffset:])
	r.PacketCount = binary.BigEndian.Uint32(packetBody[srPacketCountOffset:])
	r.OctetCount = binary.BigEndian.Uint32(packetBody[srOctetCountOffset:])

	offset := srReportOffset
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

func (r SenderReport) marshalSize() int {
	repsLength := 0
	for range r.Reports {
		repsLength += receptionReportLength
	}

	return headerLength + srHeaderLength + repsLength + len(r.ProfileExtensions)
}

func (r SenderReport) header() Header {
	return Header{
		Count:  uint8(len(r.Reports)), //nolint:gosec // bounded by countMax at marshal
		Type:   TypeSenderReport,
		Length: uint16(r.marshalSize()/4 - 1), //nolint:gosec // bounded
	}
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r SenderReport) DestinationSSRC() []uint32 {
	out := make([]uint32, len(r.Reports)+1)
	for i, v := range r.Reports {
		out[i] = v.SSRC
	}
	out[len(r.Reports)] = r.SSRC

	return out
}

func (r SenderReport) String() string {
	out := fmt.Sprintf("SenderReport from %x\n", r.SSRC)
	out += fmt.Sprintf("\tNTPTime:\t%d\n", r.NTPTime)
	out += fmt.Sprintf("\tRTPTime:\t%d\n", r.RTPTime)
	out += fmt.Sprintf("\tPacketCount:\t%d\n", r.PacketCount)
	out += fmt.Sprintf("\tOctetCount:\t%d\n", r.OctetCount)

	return out
}
