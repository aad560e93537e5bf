// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pacing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/rtpengine/pkg/rtp"
)

type mockPacer struct {
	lock sync.Mutex

	rate  int
	burst int

	allow        bool
	allowCalled  bool
	budget       float64
	budgetCalled bool
}

// AllowN implements pacer.
func (m *mockPacer) AllowN(time.Time, int) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.allowCalled = true

	return m.allow
}

// Budget implements pacer.
func (m *mockPacer) Budget(time.Time) float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.budgetCalled = true

	return m.budget
}

// SetRate implements pacer.
func (m *mockPacer) SetRate(rate int, burst int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.rate = rate
	m.burst = burst
}

func testPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: seq,
			SSRC:           5000,
		},
		Payload: make([]byte, 1188),
	}
}

func TestPacerSetRate(t *testing.T) {
	mp := &mockPacer{}
	pcr := NewPacer(
		func(*rtp.Packet) error { return nil },
		setPacerFactory(func(initialRate, burst int) pacer { return mp }),
		Interval(5*time.Millisecond),
	)
	defer func() {
		assert.NoError(t, pcr.Close())
	}()

	pcr.SetRate(1_000_000)
	mp.lock.Lock()
	defer mp.lock.Unlock()
	assert.Equal(t, 1_000_000, mp.rate)
	assert.Equal(t, 40_000, mp.burst)
}

func TestPacerForwardsInOrder(t *testing.T) {
	var mu sync.Mutex
	var written []uint16
	mp := &mockPacer{allow: true, budget: 8 * 1500}

	pcr := NewPacer(
		func(pkt *rtp.Packet) error {
			mu.Lock()
			defer mu.Unlock()
			written = append(written, pkt.SequenceNumber)

			return nil
		},
		setPacerFactory(func(initialRate, burst int) pacer { return mp }),
		Interval(time.Millisecond),
	)
	defer func() {
		assert.NoError(t, pcr.Close())
	}()

	for seq := uint16(0); seq < 5; seq++ {
		require.NoError(t, pcr.Enqueue(testPacket(seq)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(written) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint16{0, 1, 2, 3, 4}, written)
}

func TestPacerHoldsPacketsWithoutBudget(t *testing.T) {
	var mu sync.Mutex
	count := 0
	mp := &mockPacer{allow: false, budget: 0}

	pcr := NewPacer(
		func(*rtp.Packet) error {
			mu.Lock()
			defer mu.Unlock()
			count++

			return nil
		},
		setPacerFactory(func(initialRate, burst int) pacer { return mp }),
		Interval(time.Millisecond),
	)
	defer func() {
		assert.NoError(t, pcr.Close())
	}()

	require.NoError(t, pcr.Enqueue(testPacket(1)))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Zero(t, count, "packet written without pacing budget")
	mu.Unlock()

	mp.lock.Lock()
	assert.True(t, mp.budgetCalled)
	mp.lock.Unlock()

	// budget restored, the held packet goes out
	mp.lock.Lock()
	mp.allow = true
	mp.budget = 8 * 1500
	mp.lock.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return count == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPacerEnqueueAfterClose(t *testing.T) {
	pcr := NewPacer(func(*rtp.Packet) error { return nil })
	require.NoError(t, pcr.Close())
	assert.ErrorIs(t, pcr.Enqueue(testPacket(1)), ErrClosed)
}

func TestPacerQueueOverflow(t *testing.T) {
	mp := &mockPacer{allow: false, budget: 0}
	pcr := NewPacer(
		func(*rtp.Packet) error { return nil },
		setPacerFactory(func(initialRate, burst int) pacer { return mp }),
		QueueSize(1),
		Interval(time.Hour),
	)
	defer func() {
		assert.NoError(t, pcr.Close())
	}()

	// the loop may drain the first packet into its pending queue, so only
	// the third enqueue is guaranteed to overflow
	_ = pcr.Enqueue(testPacket(1))
	_ = pcr.Enqueue(testPacket(2))
	err := pcr.Enqueue(testPacket(3))
	if err == nil {
		err = pcr.Enqueue(testPacket(4))
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}
