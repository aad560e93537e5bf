// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestREMBRoundTrip(t *testing.T) {
	remb := &ReceiverEstimatedMaximumBitrate{
		SenderSSRC: 1,
		Bitrate:    8927168,
		SSRCs:      []uint32{1215622422},
	}

	raw, err := remb.Marshal()
	require.NoError(t, err)

	decoded := &ReceiverEstimatedMaximumBitrate{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, remb.SenderSSRC, decoded.SenderSSRC)
	assert.Equal(t, remb.SSRCs, decoded.SSRCs)
	// mantissa truncation loses low bits, never gains rate
	assert.InEpsilon(t, remb.Bitrate, decoded.Bitrate, 0.001)
	assert.LessOrEqual(t, decoded.Bitrate, remb.Bitrate)
}

func TestREMBKnownVector(t *testing.T) {
	// Real packet sent by Chrome, estimate of 8.93Mb/s
	raw := []byte{
		143, 206, 0, 5, 0, 0, 0, 1, 0, 0, 0, 0, 82, 69, 77, 66, 1, 26, 32, 223, 72, 116, 237, 22,
	}

	decoded := &ReceiverEstimatedMaximumBitrate{}
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, float32(8927168), decoded.Bitrate)
	assert.Equal(t, []uint32{1215622422}, decoded.SSRCs)

	out, err := decoded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestREMBBadIdentifier(t *testing.T) {
	raw := []byte{
		143, 206, 0, 5, 0, 0, 0, 1, 0, 0, 0, 0, 82, 69, 77, 67, 1, 26, 32, 223, 72, 116, 237, 22,
	}
	assert.ErrorIs(t, (&ReceiverEstimatedMaximumBitrate{}).Unmarshal(raw), ErrInvalidRtcpPacket)
}

func TestREMBSSRCCountMismatch(t *testing.T) {
	raw := []byte{
		143, 206, 0, 4, 0, 0, 0, 1, 0, 0, 0, 0, 82, 69, 77, 66, 2, 26, 32, 223,
	}
	assert.ErrorIs(t, (&ReceiverEstimatedMaximumBitrate{}).Unmarshal(raw), ErrInvalidRtcpPacket)
}
