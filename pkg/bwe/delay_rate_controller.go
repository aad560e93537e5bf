// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"time"

	"github.com/pion/logging"
)

// DelayRateController derives a target bitrate from packet delay variation.
// Per-packet feedback is grouped into bursts, the inter-group delay trend is
// estimated with a Kalman filter and classified by an adaptive-threshold
// overuse detector driving the rate controller state machine.
type DelayRateController struct {
	log         logging.LeveledLogger
	bursts      *burstAccumulator
	last        arrivalGroup
	trend       *trendEstimator
	od          *overuseDetector
	rc          *rateController
	latestUsage usage
	samples     int
	lastJitter  time.Duration
	haveJitter  bool
}

// NewDelayRateController returns a DelayRateController starting at
// initialRate.
func NewDelayRateController(initialRate int) *DelayRateController {
	return &DelayRateController{
		log:         logging.NewDefaultLoggerFactory().NewLogger("bwe_delay_rate_controller"),
		bursts:      newBurstAccumulator(),
		last:        []Acknowledgment{},
		trend:       newTrendEstimator(),
		od:          newOveruseDetector(true),
		rc:          newRateController(initialRate),
		latestUsage: 0,
		samples:     0,
	}
}

// OnPacketAcked feeds one acknowledged packet into the delay estimator.
func (c *DelayRateController) OnPacketAcked(ack Acknowledgment) {
	next := c.bursts.add(ack)
	if len(next) == 0 {
		return
	}
	if len(c.last) == 0 {
		c.last = next

		return
	}

	prevSize := groupSize(c.last)
	nextSize := groupSize(next)
	sizeDelta := nextSize - prevSize

	interArrivalTime := next[len(next)-1].Arrival.Sub(c.last[len(c.last)-1].Arrival)
	interDepartureTime := next[len(next)-1].Departure.Sub(c.last[len(c.last)-1].Departure)
	interGroupDelay := interArrivalTime - interDepartureTime
	estimate := c.trend.update(float64(interGroupDelay.Milliseconds()), float64(sizeDelta))
	c.samples++
	c.latestUsage = c.od.update(ack.Arrival, estimate, c.samples)
	c.last = next
	c.log.Tracef(
		"seq=%v, size=%v, interArrivalTime=%v, interDepartureTime=%v, interGroupDelay=%v, estimate=%v, threshold=%v, usage=%v, state=%v",
		next[0].SeqNr,
		nextSize,
		interArrivalTime.Microseconds(),
		interDepartureTime.Microseconds(),
		interGroupDelay.Microseconds(),
		estimate,
		c.od.threshold,
		c.latestUsage,
		c.rc.s,
	)
}

// OnJitterSample feeds an interarrival jitter measurement reported by the
// remote receiver, as carried in receiver report blocks. The change between
// consecutive samples stands in for the inter-group delay when no per-packet
// feedback is available.
func (c *DelayRateController) OnJitterSample(ts time.Time, jitter time.Duration) {
	if !c.haveJitter {
		c.lastJitter = jitter
		c.haveJitter = true

		return
	}
	delta := jitter - c.lastJitter
	c.lastJitter = jitter

	estimate := c.trend.update(float64(delta.Milliseconds()), 0)
	c.samples++
	c.latestUsage = c.od.update(ts, estimate, c.samples)
}

// Update runs the rate controller on the most recent usage classification
// and returns the delay-based target bitrate.
func (c *DelayRateController) Update(ts time.Time, lastDeliveryRate int, rtt time.Duration) int {
	return c.rc.update(ts, c.latestUsage, lastDeliveryRate, rtt)
}

// State returns the rate controller state.
func (c *DelayRateController) State() State {
	return c.rc.s
}

func groupSize(group arrivalGroup) int {
	sum := 0
	for _, ack := range group {
		sum += int(ack.Size)
	}

	return sum
}
