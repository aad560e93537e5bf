// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// ReceiverEstimatedMaximumBitrate contains the receiver's estimated maximum
// bitrate as defined in draft-alvestrand-rmcat-remb.
type ReceiverEstimatedMaximumBitrate struct {
	// SSRC of sender
	SenderSSRC uint32
	// Estimated maximum bitrate in bits per second
	Bitrate float32
	// SSRC entries which this packet applies to
	SSRCs []uint32
}

var uniqueIdentifier = [4]byte{'R', 'E', 'M', 'B'} //nolint:gochecknoglobals

const rembBodyOffset = 16

// MarshalSize returns the size of the packet once marshaled.
func (p ReceiverEstimatedMaximumBitrate) MarshalSize() int {
	return headerLength + rembBodyOffset + len(p.SSRCs)*4
}

// Marshal encodes the ReceiverEstimatedMaximumBitrate in binary.
func (p ReceiverEstimatedMaximumBitrate) Marshal() ([]byte, error) {
	/*
	 *  0                   1                   2                   3
	 *  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |V=2|P| FMT=15  |   PT=206      |             length            |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |                  SSRC of packet sender                        |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |                  SSRC of media source (always 0)              |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |  Unique identifier 'R' 'E' 'M' 'B'                            |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |  Num SSRC     | BR Exp    |  BR Mantissa                      |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |   SSRC feedback                                               |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |  ...                                                          |
	 */
	rawPacket := make([]byte, p.MarshalSize())
	body := rawPacket[headerLength:]

	binary.BigEndian.PutUint32(body, p.SenderSSRC)
	// media SSRC is always 0 for REMB
	copy(body[8:12], uniqueIdentifier[:])
	body[12] = uint8(len(p.SSRCs)) //nolint:gosec // checked below

	if len(p.SSRCs) > math.MaxUint8 {
		return nil, errTooManyReports
	}

	exp, mantissa := bitrateToMantissaExp(p.Bitrate)
	body[13] = byte(exp<<2) | byte(mantissa>>16)
	body[14] = byte(mantissa >> 8)
	body[15] = byte(mantissa)

	offset := rembBodyOffset
	for _, ssrc := range p.SSRCs {
		binary.BigEndian.PutUint32(body[offset:], ssrc)
		offset += 4
	}

	hData, err := p.header().Marshal()
	if err != nil {
		return nil, err
	}
	copy(rawPacket, hData)

	return rawPacket, nil
}

func bitrateToMantissaExp(bitrate float32) (exp uint, mantissa uint) {
	const maxMantissa = 0x3FFFF // 18 bits

	if bitrate < 0 || math.IsInf(float64(bitrate), 1) {
		bitrate = 0
	}

	mantissa = uint(bitrate)
	for mantissa > maxMantissa {
		mantissa >>= 1
		exp++
	}
	if exp > 63 {
		exp = 63
		mantissa = maxMantissa
	}

	return exp, mantissa
}

// Unmarshal decodes the ReceiverEstimatedMaximumBitrate from binary.
func (p *ReceiverEstimatedMaximumBitrate) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+rembBodyOffset {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}

	var header Header
	if err := header.Unmarshal(rawPacket); err != nil {
		return err
	}

	if header.Type != TypePayloadSpecificFeedback || header.Count != FormatREMB {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errWrongType)
	}

	body := rawPacket[headerLength:]

	p.SenderSSRC = binary.BigEndian.Uint32(body)

	if !equalID(body[8:12]) {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errBadUniqueID)
	}

	ssrcsLen := int(body[12])
	if len(body) < rembBodyOffset+ssrcsLen*4 {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errSSRCCountMismatch)
	}

	exp := uint(body[13] >> 2)
	mantissa := uint(body[13]&0x3)<<16 | uint(body[14])<<8 | uint(body[15])

	if exp+uint(bits.Len(mantissa)) > 32 {
		// bitrate overflows a float32 exactly; clamp
		p.Bitrate = math.MaxFloat32
	} else {
		p.Bitrate = float32(mantissa) * float32(uint64(1)<<exp)
	}

	p.SSRCs = make([]uint32, ssrcsLen)
	for i := 0; i < ssrcsLen; i++ {
		p.SSRCs[i] = binary.BigEndian.Uint32(body[rembBodyOffset+4*i:])
	}

	return nil
}

func equalID(b []byte) bool {
	return b[0] == uniqueIdentifier[0] && b[1] == uniqueIdentifier[1] &&
		b[2] == uniqueIdentifier[2] && b[3] == uniqueIdentifier[3]
}

func (p ReceiverEstimatedMaximumBitrate) header() Header {
	return Header{
		Count:  FormatREMB,
		Type:   TypePayloadSpecificFeedback,
		Length: uint16(p.MarshalSize()/4 - 1), //nolint:gosec // bounded
	}
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p ReceiverEstimatedMaximumBitrate) DestinationSSRC() []uint32 {
	return p.SSRCs
}

func (p ReceiverEstimatedMaximumBitrate) String() string {
	return fmt.Sprintf("ReceiverEstimatedMaximumBitrate %x %.0f bps", p.SenderSSRC, p.Bitrate)
}
