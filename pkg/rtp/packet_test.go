// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasic(t *testing.T) {
	rawPkt := []byte{
		0x90, 0xe0, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
		0x27, 0x82, 0x00, 0x01, 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x98, 0x36, 0xbe, 0x88, 0x9e,
	}
	parsedPacket := &Packet{
		Header: Header{
			Version:          2,
			Marker:           true,
			Extension:        true,
			ExtensionProfile: 1,
			Extensions: []Extension{{
				ID:      0,
				Payload: []byte{0xFF, 0xFF, 0xFF, 0xFF},
			}},
			PayloadType:    96,
			SequenceNumber: 27023,
			Timestamp:      3653407706,
			SSRC:           476325762,
			CSRC:           []uint32{},
		},
		Payload: rawPkt[20:],
	}

	pkt := &Packet{}
	assert.Error(t, pkt.Unmarshal([]byte{}), "Unmarshal did not error on zero length packet")

	require.NoError(t, pkt.Unmarshal(rawPkt))
	assert.Equal(t, parsedPacket, pkt)

	raw, err := pkt.Marshal()
	require.NoError(t, err)
	assert.Equal(t, rawPkt, raw, "Marshal of parsed packet does not round-trip")
}

func TestRoundtrip(t *testing.T) {
	original := &Packet{
		Header: Header{
			Version:        2,
			Marker:         true,
			PayloadType:    111,
			SequenceNumber: 1234,
			Timestamp:      5678,
			SSRC:           0xDEADBEEF,
			CSRC:           []uint32{},
		},
		Payload: []byte{0x01, 0x02, 0x03, 0x04, 0x05},
	}

	raw, err := original.Marshal()
	require.NoError(t, err)

	decoded := &Packet{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, original, decoded)
}

func TestUnmarshalTruncated(t *testing.T) {
	valid, err := (&Packet{
		Header: Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 500,
			Timestamp:      1000,
			SSRC:           1,
		},
		Payload: []byte{0xAA, 0xBB},
	}).Marshal()
	require.NoError(t, err)

	for i := 0; i < len(valid)-len([]byte{0xAA, 0xBB}); i++ {
		pkt := &Packet{}
		err := pkt.Unmarshal(valid[:i])
		assert.ErrorIs(t, err, ErrMalformedPacket, "truncated buffer of length %d must fail", i)
	}
}

func TestUnmarshalExtensionBounds(t *testing.T) {
	for name, raw := range map[string][]byte{
		"declared extension length exceeds buffer": {
			0x90, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
			0x27, 0x82, 0xBE, 0xDE, 0x00, 0x08, 0x10, 0xAA,
		},
		"one byte extension past declared end": {
			0x90, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
			0x27, 0x82, 0xBE, 0xDE, 0x00, 0x01, 0x13, 0xAA, 0xBB, 0xCC,
		},
		"csrc count exceeds buffer": {
			0x92, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
			0x27, 0x82, 0x00, 0x00, 0x00, 0x01,
		},
	} {
		raw := raw
		t.Run(name, func(t *testing.T) {
			pkt := &Packet{}
			assert.ErrorIs(t, pkt.Unmarshal(raw), ErrMalformedPacket)
		})
	}
}

func TestUnmarshalBadVersion(t *testing.T) {
	raw := []byte{
		0x40, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
		0x27, 0x82,
	}
	assert.ErrorIs(t, (&Packet{}).Unmarshal(raw), ErrMalformedPacket)
}

func TestExtension(t *testing.T) {
	pkt := &Packet{
		Header: Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 27023,
			Timestamp:      3653407706,
			SSRC:           476325762,
		},
		Payload: []byte{0x01},
	}

	assert.Error(t, pkt.SetExtension(0, []byte{0xAA}), "id 0 must be rejected for one-byte profile")
	assert.Error(t, pkt.SetExtension(15, []byte{0xAA}), "id 15 must be rejected for one-byte profile")

	require.NoError(t, pkt.SetExtension(1, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{0xAA, 0xBB}, pkt.GetExtension(1))

	raw, err := pkt.Marshal()
	require.NoError(t, err)

	decoded := &Packet{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, []byte{0xAA, 0xBB}, decoded.GetExtension(1))
	assert.Nil(t, decoded.GetExtension(2))

	require.NoError(t, pkt.DelExtension(1))
	assert.False(t, pkt.Extension)
	assert.True(t, errors.Is(pkt.DelExtension(1), errHeaderExtensionsNotEnabled))
}

func TestPaddingStripped(t *testing.T) {
	raw := []byte{
		0xa0, 0x60, 0x69, 0x8f, 0xd9, 0xc2, 0x93, 0xda, 0x1c, 0x64,
		0x27, 0x82, 0x01, 0x02, 0x00, 0x00, 0x00, 0x04,
	}

	pkt := &Packet{}
	require.NoError(t, pkt.Unmarshal(raw))
	assert.Equal(t, []byte{0x01, 0x02}, pkt.Payload)

	// padding length of zero is invalid
	bad := append([]byte{}, raw...)
	bad[len(bad)-1] = 0x00
	assert.ErrorIs(t, (&Packet{}).Unmarshal(bad), ErrMalformedPacket)
}

func TestClone(t *testing.T) {
	pkt := &Packet{
		Header: Header{
			Version:        2,
			SequenceNumber: 1,
			SSRC:           2,
			CSRC:           []uint32{3},
		},
		Payload: []byte{0x01, 0x02},
	}

	clone := pkt.Clone()
	assert.Equal(t, pkt, clone)

	clone.Payload[0] = 0xFF
	clone.CSRC[0] = 9
	assert.Equal(t, byte(0x01), pkt.Payload[0], "clone must not share payload memory")
	assert.Equal(t, uint32(3), pkt.CSRC[0], "clone must not share CSRC memory")
}

func TestSequencer(t *testing.T) {
	seq := NewFixedSequencer(65534)
	assert.Equal(t, uint16(65534), seq.NextSequenceNumber())
	assert.Equal(t, uint16(65535), seq.NextSequenceNumber())
	assert.Equal(t, uint16(0), seq.NextSequenceNumber())
	assert.Equal(t, uint64(1), seq.RollOverCount())
}
