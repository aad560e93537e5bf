// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "fmt"

// RawPacket represents an unparsed RTCP packet. It's returned by Unmarshal
// when the packet type has no dedicated message type, keeping unknown
// sub-reports forward-compatible instead of fatal.
type RawPacket []byte

// Marshal encodes the packet in binary.
func (r RawPacket) Marshal() ([]byte, error) {
	return r, nil
}

// Unmarshal decodes the packet from binary.
func (r *RawPacket) Unmarshal(b []byte) error {
	if len(b) < headerLength {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}
	*r = b

	var header Header

	return header.Unmarshal(b)
}

// Header returns the Header associated with this packet.
func (r RawPacket) Header() Header {
	var header Header
	if err := header.Unmarshal(r); err != nil {
		return Header{}
	}

	return header
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (r RawPacket) DestinationSSRC() []uint32 {
	return []uint32{}
}

func (r RawPacket) String() string {
	return fmt.Sprintf("RawPacket: %v", []byte(r))
}
