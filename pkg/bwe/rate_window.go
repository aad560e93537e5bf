// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import "time"

type ackedBytes struct {
	arrival time.Time
	size    int
}

// rateWindow measures a throughput rate over a sliding window of timestamped
// packet sizes. Entries may arrive out of order; anything older than the
// window behind the latest entry is pruned on read.
type rateWindow struct {
	window time.Duration
	latest time.Time
	acked  []ackedBytes
}

func newRateWindow(window time.Duration) *rateWindow {
	return &rateWindow{window: window}
}

func (w *rateWindow) add(arrival time.Time, size int) {
	if arrival.After(w.latest) {
		w.latest = arrival
	}
	w.acked = append(w.acked, ackedBytes{arrival: arrival, size: size})
}

// rate returns the windowed rate in bits per second, or 0 until the window
// spans more than a single arrival time.
func (w *rateWindow) rate() int {
	cutoff := w.latest.Add(-w.window)
	kept := w.acked[:0]
	earliest := w.latest
	sum := 0
	for _, a := range w.acked {
		if a.arrival.Before(cutoff) {
			continue
		}
		kept = append(kept, a)
		if a.arrival.Before(earliest) {
			earliest = a.arrival
		}
		sum += a.size
	}
	w.acked = kept

	span := w.latest.Sub(earliest)
	if span == 0 {
		return 0
	}

	return int(8 * float64(sum) / span.Seconds())
}
