// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindow(t *testing.T) {
	at := func(d time.Duration) time.Time { return time.Time{}.Add(d) }

	t.Run("empty", func(t *testing.T) {
		w := newRateWindow(time.Second)
		assert.Equal(t, 0, w.rate())
	})

	t.Run("single arrival has no span", func(t *testing.T) {
		w := newRateWindow(time.Second)
		w.add(at(time.Millisecond), 1200)
		assert.Equal(t, 0, w.rate())
	})

	t.Run("steady delivery", func(t *testing.T) {
		w := newRateWindow(time.Second)
		w.add(at(time.Second), 1200)
		w.add(at(1500*time.Millisecond), 1200)
		w.add(at(2*time.Second), 1200)
		// 3600 bytes over one second
		assert.Equal(t, 28800, w.rate())
	})

	t.Run("stale entries are pruned", func(t *testing.T) {
		w := newRateWindow(time.Second)
		w.add(at(500*time.Millisecond), 1200)
		w.add(at(time.Second), 1200)
		w.add(at(1500*time.Millisecond), 1200)
		w.add(at(2*time.Second), 1200)
		assert.Equal(t, 28800, w.rate())
	})

	t.Run("arrival order does not matter", func(t *testing.T) {
		w := newRateWindow(time.Second)
		w.add(at(2*time.Second), 1200)
		w.add(at(time.Second), 1200)
		w.add(at(1500*time.Millisecond), 1200)
		assert.Equal(t, 28800, w.rate())
	})
}
