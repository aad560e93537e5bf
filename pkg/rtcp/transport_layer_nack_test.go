// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNackPair(t *testing.T) {
	for _, test := range []struct {
		n    NackPair
		want []uint16
	}{
		{NackPair{42, 0}, []uint16{42}},
		{NackPair{42, 1}, []uint16{42, 43}},
		{NackPair{42, 0x8000}, []uint16{42, 58}},
		{NackPair{42, 0xFFFF}, []uint16{42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58}},
		{NackPair{65534, 1}, []uint16{65534, 65535}},
		{NackPair{65535, 1}, []uint16{65535, 0}},
	} {
		assert.Equal(t, test.want, test.n.PacketList())
	}
}

func TestNackPairsFromSequenceNumbers(t *testing.T) {
	for _, test := range []struct {
		seqs []uint16
		want []NackPair
	}{
		{[]uint16{}, []NackPair{}},
		{[]uint16{42}, []NackPair{{42, 0}}},
		{[]uint16{42, 43}, []NackPair{{42, 1}}},
		{[]uint16{42, 58}, []NackPair{{42, 0x8000}}},
		{[]uint16{42, 59}, []NackPair{{42, 0}, {59, 0}}},
		{[]uint16{102, 105}, []NackPair{{102, 1 << 2}}},
	} {
		assert.Equal(t, test.want, NackPairsFromSequenceNumbers(test.seqs))
	}
}

func TestTransportLayerNackRoundTrip(t *testing.T) {
	nack := &TransportLayerNack{
		SenderSSRC: 0x902f9e2e,
		MediaSSRC:  0x902f9e2e,
		Nacks:      []NackPair{{PacketID: 1, LostPackets: 0xAA}, {PacketID: 1034, LostPackets: 0x05}},
	}

	raw, err := nack.Marshal()
	require.NoError(t, err)

	decoded := &TransportLayerNack{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, nack, decoded)

	packets, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, nack, packets[0])
}

func TestTransportLayerNackShort(t *testing.T) {
	assert.ErrorIs(t, (&TransportLayerNack{}).Unmarshal([]byte{0x81, 0xcd, 0x00, 0x03}), ErrInvalidRtcpPacket)
}
