// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

const (
	lowLossThreshold  = 0.02
	highLossThreshold = 0.1
)

// LossRateController adjusts a target bitrate from observed packet loss. It
// increases slowly while loss stays below the low threshold and backs off in
// proportion to the loss rate once it crosses the high threshold.
type LossRateController struct {
	bitrate  int
	min, max float64

	packetsSinceLastUpdate int
	lostSinceLastUpdate    int
}

// NewLossRateController returns a LossRateController starting at initialRate,
// never leaving [minRate, maxRate].
func NewLossRateController(initialRate, minRate, maxRate int) *LossRateController {
	return &LossRateController{
		bitrate:                initialRate,
		min:                    float64(minRate),
		max:                    float64(maxRate),
		packetsSinceLastUpdate: 0,
		lostSinceLastUpdate:    0,
	}
}

// OnPacketAcked records one delivered packet for the next update.
func (l *LossRateController) OnPacketAcked() {
	l.packetsSinceLastUpdate++
}

// OnPacketLost records one lost packet for the next update.
func (l *LossRateController) OnPacketLost() {
	l.packetsSinceLastUpdate++
	l.lostSinceLastUpdate++
}

// Update consumes the packets recorded since the last call and returns the
// new target bitrate.
func (l *LossRateController) Update(lastDeliveryRate int) int {
	lossRate := float64(l.lostSinceLastUpdate) / float64(l.packetsSinceLastUpdate)

	l.packetsSinceLastUpdate = 0
	l.lostSinceLastUpdate = 0

	return l.applyLossRate(lossRate, lastDeliveryRate)
}

// UpdateFractionLost applies a fraction-lost value as carried in receiver
// report blocks (loss in 1/256 units) and returns the new target bitrate.
func (l *LossRateController) UpdateFractionLost(fractionLost uint8, lastDeliveryRate int) int {
	return l.applyLossRate(float64(fractionLost)/256.0, lastDeliveryRate)
}

func (l *LossRateController) applyLossRate(lossRate float64, lastDeliveryRate int) int {
	var target float64
	if lossRate > highLossThreshold {
		target = float64(l.bitrate) * (1 - 0.5*lossRate)
		target = max(target, l.min)
	} else if lossRate < lowLossThreshold {
		target = float64(l.bitrate) * 1.05
		target = max(min(target, 1.5*float64(lastDeliveryRate)), float64(l.bitrate))
		target = min(target, l.max)
	}
	if target != 0 {
		l.bitrate = int(target)
	}

	return l.bitrate
}
