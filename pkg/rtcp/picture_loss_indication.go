// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

const pliLength = 2

// The PictureLossIndication packet informs the encoder about the loss of an
// undefined amount of coded video data belonging to one or more pictures.
type PictureLossIndication struct {
	// SSRC of sender
	SenderSSRC uint32
	// SSRC where the loss was experienced
	MediaSSRC uint32
}

// Marshal encodes the PictureLossIndication in binary.
func (p PictureLossIndication) Marshal() ([]byte, error) {
	/*
	 * PLI does not require parameters.  Therefore, the length field MUST be
	 * 2, and there MUST NOT be any Feedback Control Information.
	 */
	rawPacket := make([]byte, 8)
	binary.BigEndian.PutUint32(rawPacket, p.SenderSSRC)
	binary.BigEndian.PutUint32(rawPacket[4:], p.MediaSSRC)

	hData, err := p.header().Marshal()
	if err != nil {
		return nil, err
	}

	return append(hData, rawPacket...), nil
}

// Unmarshal decodes the PictureLossIndication from binary.
func (p *PictureLossIndication) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < (headerLength + (ssrcLength * 2)) {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}

	var header Header
	if err := header.Unmarshal(rawPacket); err != nil {
		return err
	}

	if header.Type != TypePayloadSpecificFeedback || header.Count != FormatPLI {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errWrongType)
	}

	p.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])
	p.MediaSSRC = binary.BigEndian.Uint32(rawPacket[headerLength+ssrcLength:])

	return nil
}

func (p PictureLossIndication) header() Header {
	return Header{
		Count:  FormatPLI,
		Type:   TypePayloadSpecificFeedback,
		Length: pliLength,
	}
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (p PictureLossIndication) DestinationSSRC() []uint32 {
	return []uint32{p.MediaSSRC}
}

func (p PictureLossIndication) String() string {
	return fmt.Sprintf("PictureLossIndication %x %x", p.SenderSSRC, p.MediaSSRC)
}
