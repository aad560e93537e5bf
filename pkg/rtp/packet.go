// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtp implements encoding and decoding of RTP packets as defined in
// RFC 3550, including one-byte and two-byte header extensions (RFC 8285).
package rtp

import (
	"encoding/binary"
	"fmt"
)

// Extension is a single RTP header extension entry.
type Extension struct {
	ID      uint8
	Payload []byte
}

// Header is the fixed RTP header plus CSRC list and header extensions.
type Header struct {
	Version          uint8
	Padding          bool
	Extension        bool
	Marker           bool
	PayloadType      uint8
	SequenceNumber   uint16
	Timestamp        uint32
	SSRC             uint32
	CSRC             []uint32
	ExtensionProfile uint16
	Extensions       []Extension
}

// Packet is a parsed RTP packet.
type Packet struct {
	Header
	Payload []byte
}

const (
	versionShift    = 6
	versionMask     = 0x3
	paddingShift    = 5
	paddingMask     = 0x1
	extensionShift  = 4
	extensionMask   = 0x1
	ccMask          = 0xF
	markerShift     = 7
	markerMask      = 0x1
	ptMask          = 0x7F
	seqNumOffset    = 2
	seqNumLength    = 2
	timestampOffset = 4
	timestampLength = 4
	ssrcOffset      = 8
	ssrcLength      = 4
	csrcOffset      = 12
	csrcLength      = 4

	extensionProfileOneByte = 0xBEDE
	extensionProfileTwoByte = 0x1000
)

// Unmarshal parses the passed byte slice and stores the result in the Header.
// It returns the number of bytes read n and any error.
func (h *Header) Unmarshal(buf []byte) (n int, err error) {
	if len(buf) < csrcOffset {
		return 0, fmt.Errorf("%w: %v: %d < %d", ErrMalformedPacket, errHeaderTooSmall, len(buf), csrcOffset)
	}

	/*
	 *  0                   1                   2                   3
	 *  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |V=2|P|X|  CC   |M|     PT      |       sequence number         |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |                           timestamp                           |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 * |           synchronization source (SSRC) identifier            |
	 * +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
	 * |            contributing source (CSRC) identifiers             |
	 * |                             ....                              |
	 * +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	 */

	h.Version = buf[0] >> versionShift & versionMask
	if h.Version != 2 {
		return 0, fmt.Errorf("%w: %v: %d", ErrMalformedPacket, errBadVersion, h.Version)
	}
	h.Padding = (buf[0] >> paddingShift & paddingMask) > 0
	h.Extension = (buf[0] >> extensionShift & extensionMask) > 0
	nCSRC := int(buf[0] & ccMask)

	n = csrcOffset + (nCSRC * csrcLength)
	if len(buf) < n {
		return n, fmt.Errorf("%w: %v: %d < %d", ErrMalformedPacket, errCSRCTooSmall, len(buf), n)
	}

	h.Marker = (buf[1] >> markerShift & markerMask) > 0
	h.PayloadType = buf[1] & ptMask

	h.SequenceNumber = binary.BigEndian.Uint16(buf[seqNumOffset : seqNumOffset+seqNumLength])
	h.Timestamp = binary.BigEndian.Uint32(buf[timestampOffset : timestampOffset+timestampLength])
	h.SSRC = binary.BigEndian.Uint32(buf[ssrcOffset : ssrcOffset+ssrcLength])

	if cap(h.CSRC) < nCSRC || h.CSRC == nil {
		h.CSRC = make([]uint32, nCSRC)
	}
	h.CSRC = h.CSRC[:nCSRC]
	for i := range h.CSRC {
		offset := csrcOffset + (i * csrcLength)
		h.CSRC[i] = binary.BigEndian.Uint32(buf[offset:])
	}

	h.Extensions = h.Extensions[:0]
	h.ExtensionProfile = 0
	if !h.Extension {
		return n, nil
	}

	if expected := n + 4; len(buf) < expected {
		return n, fmt.Errorf("%w: %v: %d < %d", ErrMalformedPacket, errHeaderTooSmall, len(buf), expected)
	}
	h.ExtensionProfile = binary.BigEndian.Uint16(buf[n:])
	n += 2
	extensionLength := int(binary.BigEndian.Uint16(buf[n:])) * 4
	n += 2
	extensionEnd := n + extensionLength
	if len(buf) < extensionEnd {
		return n, fmt.Errorf("%w: %v: %d < %d", ErrMalformedPacket, errExtensionTooSmall, len(buf), extensionEnd)
	}

	switch h.ExtensionProfile {
	case extensionProfileOneByte:
		for n < extensionEnd {
			if buf[n] == 0x00 { // padding
				n++
				continue
			}

			extid := buf[n] >> 4
			payloadLen := int(buf[n]&^0xF0 + 1)
			n++

			if extid == 0xF {
				break
			}
			if n+payloadLen > extensionEnd {
				return n, fmt.Errorf("%w: %v", ErrMalformedPacket, errExtensionTooSmall)
			}

			h.Extensions = append(h.Extensions, Extension{ID: extid, Payload: buf[n : n+payloadLen]})
			n += payloadLen
		}

	case extensionProfileTwoByte:
		for n < extensionEnd {
			if buf[n] == 0x00 { // padding
				n++
				continue
			}

			extid := buf[n]
			n++
			payloadLen := int(buf[n])
			n++

			if n+payloadLen > extensionEnd {
				return n, fmt.Errorf("%w: %v", ErrMalformedPacket, errExtensionTooSmall)
			}

			h.Extensions = append(h.Extensions, Extension{ID: extid, Payload: buf[n : n+payloadLen]})
			n += payloadLen
		}

	default: // RFC3550 extension
		h.Extensions = append(h.Extensions, Extension{ID: 0, Payload: buf[n:extensionEnd]})
	}

	return extensionEnd, nil
}

// Unmarshal parses the passed byte slice and stores the result in the Packet.
func (p *Packet) Unmarshal(buf []byte) error {
	n, err := p.Header.Unmarshal(buf)
	if err != nil {
		return err
	}

	end := len(buf)
	if p.Header.Padding {
		if end <= n {
			return fmt.Errorf("%w: %v", ErrMalformedPacket, errHeaderTooSmall)
		}
		paddingLength := int(buf[end-1])
		if paddingLength == 0 || n+paddingLength > end {
			return fmt.Errorf("%w: %v", ErrMalformedPacket, errHeaderTooSmall)
		}
		end -= paddingLength
	}

	p.Payload = buf[n:end]

	return nil
}

// Marshal serializes the header into bytes.
func (h Header) Marshal() (buf []byte, err error) {
	buf = make([]byte, h.MarshalSize())

	n, err := h.MarshalTo(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// MarshalTo serializes the header and writes to the buffer. Marshalling is
// deterministic: a decoded header re-encodes byte for byte except for fields
// the caller changed.
func (h Header) MarshalTo(buf []byte) (n int, err error) {
	size := h.MarshalSize()
	if size > len(buf) {
		return 0, errHeaderTooSmall
	}

	buf[0] = (h.Version << versionShift) | uint8(len(h.CSRC)) //nolint:gosec // CSRC count is bounded at 15
	if h.Padding {
		buf[0] |= 1 << paddingShift
	}
	if len(h.Extensions) > 0 {
		buf[0] |= 1 << extensionShift
	}

	buf[1] = h.PayloadType
	if h.Marker {
		buf[1] |= 1 << markerShift
	}

	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], h.SSRC)

	n = 12
	for _, csrc := range h.CSRC {
		binary.BigEndian.PutUint32(buf[n:], csrc)
		n += 4
	}

	if len(h.Extensions) > 0 {
		extHeaderPos := n
		binary.BigEndian.PutUint16(buf[n:], h.profile())
		n += 4
		startExtensionsPos := n

		switch h.profile() {
		case extensionProfileOneByte:
			for _, extension := range h.Extensions {
				buf[n] = extension.ID<<4 | (uint8(len(extension.Payload)) - 1) //nolint:gosec // length validated in SetExtension
				n++
				n += copy(buf[n:], extension.Payload)
			}
		case extensionProfileTwoByte:
			for _, extension := range h.Extensions {
				buf[n] = extension.ID
				n++
				buf[n] = uint8(len(extension.Payload)) //nolint:gosec // length validated in SetExtension
				n++
				n += copy(buf[n:], extension.Payload)
			}
		default:
			extlen := len(h.Extensions[0].Payload)
			if extlen%4 != 0 {
				// the payload must be in 32-bit words
				return 0, errExtensionPayloadTooLarge
			}
			n += copy(buf[n:], h.Extensions[0].Payload)
		}

		// calculate extension size and round to 4 bytes boundaries
		extSize := n - startExtensionsPos
		roundedExtSize := ((extSize + 3) / 4) * 4

		binary.BigEndian.PutUint16(buf[extHeaderPos+2:], uint16(roundedExtSize/4)) //nolint:gosec // bounded by MarshalSize

		// add padding to reach 4 bytes boundaries
		for i := 0; i < roundedExtSize-extSize; i++ {
			buf[n] = 0
			n++
		}
	}

	return n, nil
}

// MarshalSize returns the size of the header once marshaled.
func (h Header) MarshalSize() int {
	size := 12 + (len(h.CSRC) * csrcLength)

	if len(h.Extensions) > 0 {
		extSize := 4

		switch h.profile() {
		case extensionProfileOneByte:
			for _, extension := range h.Extensions {
				extSize += 1 + len(extension.Payload)
			}
		case extensionProfileTwoByte:
			for _, extension := range h.Extensions {
				extSize += 2 + len(extension.Payload)
			}
		default:
			extSize += len(h.Extensions[0].Payload)
		}

		// extensions are padded to 4 bytes
		size += ((extSize + 3) / 4) * 4
	}

	return size
}

func (h Header) profile() uint16 {
	if h.ExtensionProfile != 0 {
		return h.ExtensionProfile
	}

	return extensionProfileOneByte
}

// SetExtension sets an RTP header extension.
func (h *Header) SetExtension(id uint8, payload []byte) error {
	switch h.profile() {
	case extensionProfileOneByte:
		if id < 1 || id > 14 {
			return fmt.Errorf("%w actual(%d)", errInvalidExtensionID, id)
		}
		if len(payload) > 16 {
			return fmt.Errorf("%w actual(%d)", errExtensionPayloadTooLarge, len(payload))
		}
	case extensionProfileTwoByte:
		if id < 1 {
			return fmt.Errorf("%w actual(%d)", errInvalidExtensionID, id)
		}
		if len(payload) > 255 {
			return fmt.Errorf("%w actual(%d)", errExtensionPayloadTooLarge, len(payload))
		}
	default:
		return errUnsupportedExtensionProfile
	}

	h.Extension = true
	if h.ExtensionProfile == 0 {
		h.ExtensionProfile = extensionProfileOneByte
	}

	for i, extension := range h.Extensions {
		if extension.ID == id {
			h.Extensions[i].Payload = payload

			return nil
		}
	}
	h.Extensions = append(h.Extensions, Extension{ID: id, Payload: payload})

	return nil
}

// GetExtension returns an RTP header extension payload, or nil if not present.
func (h Header) GetExtension(id uint8) []byte {
	if !h.Extension {
		return nil
	}
	for _, extension := range h.Extensions {
		if extension.ID == id {
			return extension.Payload
		}
	}

	return nil
}

// DelExtension removes an RTP header extension.
func (h *Header) DelExtension(id uint8) error {
	if !h.Extension {
		return errHeaderExtensionsNotEnabled
	}
	for i, extension := range h.Extensions {
		if extension.ID == id {
			h.Extensions = append(h.Extensions[:i], h.Extensions[i+1:]...)
			if len(h.Extensions) == 0 {
				h.Extension = false
				h.ExtensionProfile = 0
			}

			return nil
		}
	}

	return errHeaderExtensionNotFound
}

// Marshal serializes the packet into bytes.
func (p Packet) Marshal() (buf []byte, err error) {
	buf = make([]byte, p.MarshalSize())

	n, err := p.MarshalTo(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// MarshalTo serializes the packet and writes to the buffer.
func (p Packet) MarshalTo(buf []byte) (n int, err error) {
	p.Header.Padding = false

	n, err = p.Header.MarshalTo(buf)
	if err != nil {
		return 0, err
	}

	if n+len(p.Payload) > len(buf) {
		return 0, errHeaderTooSmall
	}

	m := copy(buf[n:], p.Payload)

	return n + m, nil
}

// MarshalSize returns the size of the packet once marshaled.
func (p Packet) MarshalSize() int {
	return p.Header.MarshalSize() + len(p.Payload)
}

// Clone returns a deep copy of p.
func (p Packet) Clone() *Packet {
	clone := &Packet{}
	clone.Header = p.Header.Clone()
	if p.Payload != nil {
		clone.Payload = make([]byte, len(p.Payload))
		copy(clone.Payload, p.Payload)
	}

	return clone
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	clone := h
	if h.CSRC != nil {
		clone.CSRC = make([]uint32, len(h.CSRC))
		copy(clone.CSRC, h.CSRC)
	}
	if h.Extensions != nil {
		ext := make([]Extension, len(h.Extensions))
		for i, e := range h.Extensions {
			ext[i] = e
			if e.Payload != nil {
				ext[i].Payload = make([]byte, len(e.Payload))
				copy(ext[i].Payload, e.Payload)
			}
		}
		clone.Extensions = ext
	}

	return clone
}

// String helps with debugging by printing packet information in a readable way.
func (p Packet) String() string {
	out := "RTP PACKET:\n"

	out += fmt.Sprintf("\tVersion: %v\n", p.Version)
	out += fmt.Sprintf("\tMarker: %v\n", p.Marker)
	out += fmt.Sprintf("\tPayload Type: %d\n", p.PayloadType)
	out += fmt.Sprintf("\tSequence Number: %d\n", p.SequenceNumber)
	out += fmt.Sprintf("\tTimestamp: %d\n", p.Timestamp)
	out += fmt.Sprintf("\tSSRC: %d (%x)\n", p.SSRC, p.SSRC)
	out += fmt.Sprintf("\tPayload Length: %d\n", len(p.Payload))

	return out
}
