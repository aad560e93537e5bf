// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"math"
	"time"
)

type rateController struct {
	s    State
	rate int

	decreaseFactor  float64 // (beta)
	holdInterval    time.Duration
	feedbackTimeout time.Duration
	minRate         int
	maxRate         int
	lastUpdate      time.Time
	holdUntil       time.Time
	lastDecrease    *ewma
}

func newRateController(initialRate int) *rateController {
	return &rateController{
		s:              StateIncrease,
		rate:           initialRate,
		decreaseFactor: 0.85,
		lastUpdate:     time.Time{},
		lastDecrease:   &ewma{},
	}
}

func (c *rateController) update(ts time.Time, u usage, deliveredRate int, rtt time.Duration) int {
	// Feedback starvation is not evidence of free capacity. If the gap since
	// the last update exceeds the timeout, hold the previous estimate for this
	// round and require a fresh qualification before increasing again.
	if c.feedbackTimeout > 0 && !c.lastUpdate.IsZero() && ts.Sub(c.lastUpdate) > c.feedbackTimeout {
		c.s = StateHold
	} else {
		nextState := c.s.transition(u)
		if nextState == StateIncrease && ts.Before(c.holdUntil) {
			nextState = StateHold
		}
		c.s = nextState
	}

	if c.s == StateIncrease {
		var target float64
		if c.canIncreaseMultiplicatively(float64(deliveredRate)) {
			window := ts.Sub(c.lastUpdate)
			target = c.multiplicativeIncrease(float64(c.rate), window)
		} else {
			bitsPerFrame := float64(c.rate) / 30.0
			packetsPerFrame := math.Ceil(bitsPerFrame / (1200 * 8))
			expectedPacketSizeBits := bitsPerFrame / packetsPerFrame
			target = c.additiveIncrease(float64(c.rate), int(expectedPacketSizeBits), rtt)
		}
		c.rate = int(max(min(target, 1.5*float64(deliveredRate)), float64(c.rate)))
	}

	if c.s == StateDecrease {
		base := deliveredRate
		if base <= 0 {
			// no delivery measurement yet, back off from the current target
			base = c.rate
		}
		c.rate = min(c.rate, int(c.decreaseFactor*float64(base)))
		c.lastDecrease.observe(float64(c.rate))
		if c.holdInterval > 0 {
			c.holdUntil = ts.Add(c.holdInterval)
		}
	}

	c.rate = c.clamp(c.rate)
	c.lastUpdate = ts

	return c.rate
}

func (c *rateController) clamp(rate int) int {
	if c.maxRate > 0 {
		rate = min(rate, c.maxRate)
	}

	return max(rate, c.minRate)
}

func (c *rateController) canIncreaseMultiplicatively(deliveredRate float64) bool {
	if c.lastDecrease.mean == 0 {
		return true
	}
	stdDev := math.Sqrt(c.lastDecrease.variance)
	lower := c.lastDecrease.mean - 3*stdDev
	upper := c.lastDecrease.mean + 3*stdDev

	return deliveredRate < lower || deliveredRate > upper
}

func (c *rateController) multiplicativeIncrease(rate float64, window time.Duration) float64 {
	exponent := min(window.Seconds(), 1.0)
	eta := math.Pow(1.08, exponent)

	return eta * rate
}

func (c *rateController) additiveIncrease(rate float64, expectedPacketSizeBits int, window time.Duration) float64 {
	alpha := 0.5 * min(window.Seconds(), 1.0)

	return rate + max(1000, alpha*float64(expectedPacketSizeBits))
}
