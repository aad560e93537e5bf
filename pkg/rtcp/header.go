// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtcp implements encoding and decoding of RTCP packets as defined
// in RFC 3550 and its feedback extensions (RFC 4585, RFC 3611), including
// compound packet framing.
package rtcp

import (
	"encoding/binary"
	"fmt"
)

// PacketType specifies the type of an RTCP packet.
type PacketType uint8

// RTCP packet types registered with IANA, RFC 3550 and extensions.
const (
	TypeSenderReport              PacketType = 200 // RFC 3550
	TypeReceiverReport            PacketType = 201 // RFC 3550
	TypeSourceDescription         PacketType = 202 // RFC 3550
	TypeGoodbye                   PacketType = 203 // RFC 3550
	TypeApplicationDefined        PacketType = 204 // RFC 3550
	TypeTransportSpecificFeedback PacketType = 205 // RFC 4585
	TypePayloadSpecificFeedback   PacketType = 206 // RFC 4585
	TypeExtendedReport            PacketType = 207 // RFC 3611
)

// Feedback message type values used in the Count field of feedback packets.
const (
	FormatSLI  uint8 = 2
	FormatPLI  uint8 = 1
	FormatFIR  uint8 = 4
	FormatTLN  uint8 = 1
	FormatRRR  uint8 = 5
	FormatREMB uint8 = 15
)

func (p PacketType) String() string {
	switch p {
	case TypeSenderReport:
		return "SR"
	case TypeReceiverReport:
		return "RR"
	case TypeSourceDescription:
		return "SDES"
	case TypeGoodbye:
		return "BYE"
	case TypeApplicationDefined:
		return "APP"
	case TypeTransportSpecificFeedback:
		return "TSFB"
	case TypePayloadSpecificFeedback:
		return "PSFB"
	case TypeExtendedReport:
		return "XR"
	default:
		return fmt.Sprintf("unknown packet type (%d)", int(p))
	}
}

const (
	rtcpVersion = 2

	headerLength  = 4
	versionShift  = 6
	versionMask   = 0x3
	paddingShift  = 5
	paddingMask   = 0x1
	countMax      = (1 << 5) - 1
	countMask     = 0x1F
	lengthOffset  = 2
	ssrcLength    = 4
	sdesMaxOctets = (1 << 8) - 1
)

// A Header is the common RTCP packet header.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|    RC   |   PT=SR=200   |             length            |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type Header struct {
	Padding bool
	// Count is the number of reception reports, sources contained or FMT in
	// this packet (depending on the Type)
	Count uint8
	Type  PacketType
	// Length of this packet in 32-bit words minus one, including the header
	// and any padding
	Length uint16
}

// Marshal encodes the Header in binary.
func (h Header) Marshal() ([]byte, error) {
	rawPacket := make([]byte, headerLength)

	if h.Count > countMax {
		return nil, errTooManyReports
	}

	rawPacket[0] |= rtcpVersion << versionShift
	if h.Padding {
		rawPacket[0] |= 1 << paddingShift
	}
	rawPacket[0] |= h.Count
	rawPacket[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(rawPacket[lengthOffset:], h.Length)

	return rawPacket, nil
}

// Unmarshal decodes the Header from binary.
func (h *Header) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength {
		return fmt.Errorf("%w: %v: %d < %d", ErrInvalidRtcpPacket, errPacketTooShort, len(rawPacket), headerLength)
	}

	version := rawPacket[0] >> versionShift & versionMask
	if version != rtcpVersion {
		return fmt.Errorf("%w: %v: %d", ErrInvalidRtcpPacket, errBadVersion, version)
	}

	h.Padding = (rawPacket[0] >> paddingShift & paddingMask) > 0
	h.Count = rawPacket[0] & countMask
	h.Type = PacketType(rawPacket[1])
	h.Length = binary.BigEndian.Uint16(rawPacket[lengthOffset:])

	return nil
}
