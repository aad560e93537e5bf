// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import "time"

type arrivalGroup []Acknowledgment

// burstAccumulator coalesces acknowledgments into arrival groups: packets
// that left the sender within one pacing burst, or that queued up behind
// such a burst on the path, are measured as one unit. Comparing group
// boundaries instead of individual packets keeps self-inflicted burst delay
// out of the trend estimate.
type burstAccumulator struct {
	pending      arrivalGroup
	burstSpacing time.Duration
	maxSpread    time.Duration
}

func newBurstAccumulator() *burstAccumulator {
	return &burstAccumulator{
		pending:      arrivalGroup{},
		burstSpacing: 5 * time.Millisecond,
		maxSpread:    100 * time.Millisecond,
	}
}

// add appends one acknowledgment and returns the completed group when ack
// opens a new one, nil otherwise.
func (b *burstAccumulator) add(ack Acknowledgment) arrivalGroup {
	if len(b.pending) == 0 {
		b.pending = arrivalGroup{ack}

		return nil
	}

	head := b.pending[0]
	tail := b.pending[len(b.pending)-1]

	departureDelta := ack.Departure.Sub(head.Departure)
	if departureDelta < b.burstSpacing {
		b.pending = append(b.pending, ack)

		return nil
	}

	// a shrinking propagation delta means the packet sat in the same queue
	// as the group it follows
	arrivalDelta := ack.Arrival.Sub(head.Arrival)
	if arrivalDelta-departureDelta < 0 &&
		ack.Arrival.Sub(tail.Arrival) <= b.burstSpacing &&
		arrivalDelta < b.maxSpread {
		b.pending = append(b.pending, ack)

		return nil
	}

	done := b.pending
	b.pending = arrivalGroup{ack}

	return done
}
