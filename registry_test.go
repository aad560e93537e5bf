// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAliasLookup(t *testing.T) {
	engine, err := New(&mockTransport{})
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	stream, err := engine.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      10,
		ClockRate: 90000,
		RTX:       &RTXParameters{SSRC: 11, PayloadType: 97},
		FEC:       &FECParameters{SSRC: 12, PayloadType: 117},
	})
	require.NoError(t, err)

	for _, ssrc := range []uint32{10, 11, 12} {
		got, ok := engine.registry.receiveStream(ssrc)
		require.True(t, ok, "ssrc %d", ssrc)
		assert.Same(t, stream, got)
	}

	_, ok := engine.registry.receiveStream(13)
	assert.False(t, ok)

	require.NoError(t, stream.Close())
	for _, ssrc := range []uint32{10, 11, 12} {
		_, ok := engine.registry.receiveStream(ssrc)
		assert.False(t, ok, "ssrc %d", ssrc)
	}
}

func TestRegistryRejectsDuplicateSSRC(t *testing.T) {
	engine, err := New(&mockTransport{})
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	_, err = engine.CreateSendStream(SendStreamConfig{SSRC: 5, ClockRate: 90000})
	require.NoError(t, err)
	_, err = engine.CreateSendStream(SendStreamConfig{SSRC: 5, ClockRate: 90000})
	require.ErrorIs(t, err, ErrStreamExists)

	_, err = engine.CreateReceiveStream(ReceiveStreamConfig{SSRC: 6, ClockRate: 90000})
	require.NoError(t, err)

	// an RTX alias may not collide with a registered media SSRC
	_, err = engine.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      7,
		ClockRate: 90000,
		RTX:       &RTXParameters{SSRC: 6, PayloadType: 97},
	})
	require.ErrorIs(t, err, ErrStreamExists)
}
