// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"sync"
	"time"

	"github.com/pion/logging"
)

// Option configures a SendSideController.
type Option func(*SendSideController)

// WithDecreaseFactor sets the multiplicative decrease factor applied on
// overuse (default 0.85).
func WithDecreaseFactor(beta float64) Option {
	return func(c *SendSideController) {
		c.drc.rc.decreaseFactor = beta
	}
}

// WithHoldInterval sets how long the controller stays in hold after a
// decrease before it may increase again.
func WithHoldInterval(d time.Duration) Option {
	return func(c *SendSideController) {
		c.drc.rc.holdInterval = d
	}
}

// WithFeedbackTimeout sets the silence interval after which the controller
// stops increasing and holds its last estimate until feedback resumes.
func WithFeedbackTimeout(d time.Duration) Option {
	return func(c *SendSideController) {
		c.drc.rc.feedbackTimeout = d
	}
}

// WithLoggerFactory overrides the controller's logger.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(c *SendSideController) {
		c.log = f.NewLogger("bwe_send_side_controller")
	}
}

// SendSideController combines the delay- and loss-based estimators into one
// target bitrate for the send path. The target never leaves
// [minRate, maxRate] and never exceeds a receiver-announced maximum
// (REMB cap). Safe for concurrent use.
type SendSideController struct {
	mu        sync.Mutex
	log       logging.LeveledLogger
	delivered *rateWindow
	sent      *rateWindow
	lbc       *LossRateController
	drc       *DelayRateController
	rate      int

	minRate int
	maxRate int
	rembCap int
}

// NewSendSideController returns a controller starting at initialRate,
// clamped to [minRate, maxRate].
func NewSendSideController(initialRate, minRate, maxRate int, opts ...Option) *SendSideController {
	ctrl := &SendSideController{
		log:       logging.NewDefaultLoggerFactory().NewLogger("bwe_send_side_controller"),
		delivered: newRateWindow(time.Second),
		sent:      newRateWindow(time.Second),
		lbc:       NewLossRateController(initialRate, minRate, maxRate),
		drc:       NewDelayRateController(initialRate),
		rate:      initialRate,
		minRate:   minRate,
		maxRate:   maxRate,
	}
	ctrl.drc.rc.minRate = minRate
	ctrl.drc.rc.maxRate = maxRate
	for _, opt := range opts {
		opt(ctrl)
	}

	return ctrl
}

// OnPacketSent records an outgoing media packet so the controller can
// estimate its own send rate. rateWindow keys on timestamps only, so it
// serves for the send direction as well.
func (c *SendSideController) OnPacketSent(ts time.Time, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent.add(ts, size)
}

// OnAcks processes a batch of per-packet delivery feedback and returns the
// updated target bitrate.
func (c *SendSideController) OnAcks(arrival time.Time, rtt time.Duration, acks []Acknowledgment) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(acks) == 0 {
		return c.rate
	}

	for _, ack := range acks {
		if ack.Arrived {
			c.lbc.OnPacketAcked()
			if !ack.Arrival.IsZero() {
				c.delivered.add(ack.Arrival, int(ack.Size))
				c.drc.OnPacketAcked(ack)
			}
		} else {
			c.lbc.OnPacketLost()
		}
	}

	delivered := c.delivered.rate()
	lossTarget := c.lbc.Update(delivered)
	delayTarget := c.drc.Update(arrival, delivered, rtt)
	c.rate = c.combine(lossTarget, delayTarget)
	c.log.Tracef("rtt=%v, delivered=%v, lossTarget=%v, delayTarget=%v, target=%v",
		rtt.Nanoseconds(), delivered, lossTarget, delayTarget, c.rate)

	return c.rate
}

// OnReceiverReport processes the loss and jitter fields of a receiver report
// block and returns the updated target bitrate. Without per-packet feedback
// the delivery rate is approximated from the controller's own send rate and
// the reported loss.
func (c *SendSideController) OnReceiverReport(now time.Time, fractionLost uint8, jitter time.Duration, rtt time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	delivered := c.delivered.rate()
	if delivered == 0 {
		sent := c.sent.rate()
		delivered = int(float64(sent) * (1 - float64(fractionLost)/256.0))
	}

	c.drc.OnJitterSample(now, jitter)
	lossTarget := c.lbc.UpdateFractionLost(fractionLost, delivered)
	delayTarget := c.drc.Update(now, delivered, rtt)
	c.rate = c.combine(lossTarget, delayTarget)
	c.log.Tracef("fractionLost=%v, jitter=%v, rtt=%v, lossTarget=%v, delayTarget=%v, target=%v",
		fractionLost, jitter, rtt, lossTarget, delayTarget, c.rate)

	return c.rate
}

// OnREMB applies a receiver estimated maximum bitrate report. The cap bounds
// the target regardless of the local estimate until a higher REMB arrives.
func (c *SendSideController) OnREMB(bitrate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rembCap = bitrate
	c.rate = c.combine(c.rate, c.rate)
}

// TargetBitrate returns the current target bitrate in bits per second.
func (c *SendSideController) TargetBitrate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rate
}

// State returns the current rate controller state.
func (c *SendSideController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.drc.State()
}

func (c *SendSideController) combine(lossTarget, delayTarget int) int {
	rate := min(lossTarget, delayTarget)
	if c.rembCap > 0 {
		rate = min(rate, c.rembCap)
	}
	if c.maxRate > 0 {
		rate = min(rate, c.maxRate)
	}

	return max(rate, c.minRate)
}
