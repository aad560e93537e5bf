// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"math"
	"time"
)

const (
	thresholdGainUp   = 0.01
	thresholdGainDown = 0.00018
	maxTrendSamples   = 60
)

// overuseDetector classifies the filtered delay trend into link usage. A
// positive trend must persist past overuseHold before it counts as overuse.
// In adaptive mode the threshold drifts toward the observed trend magnitude,
// rising quickly and decaying slowly, clamped to [6, 600].
type overuseDetector struct {
	adaptive     bool
	threshold    float64
	overuseHold  time.Duration
	overuseStart time.Time
	lastAdapt    time.Time
	current      usage
}

func newOveruseDetector(adaptive bool) *overuseDetector {
	return &overuseDetector{
		adaptive:    adaptive,
		threshold:   12.5,
		overuseHold: 10 * time.Millisecond,
	}
}

// update classifies one trend sample. The trend is scaled by the number of
// samples seen so far so the detector reacts faster once the estimate has
// warmed up.
func (d *overuseDetector) update(ts time.Time, trend float64, samples int) usage {
	if samples < 2 {
		return usageNormal
	}
	scaled := float64(min(samples, maxTrendSamples)) * trend

	switch {
	case scaled > d.threshold:
		if d.overuseStart.IsZero() {
			d.overuseStart = ts
		} else if ts.Sub(d.overuseStart) > d.overuseHold {
			d.overuseStart = time.Time{}
			d.current = usageOver
		}
	case scaled < -d.threshold:
		d.overuseStart = time.Time{}
		d.current = usageUnder
	default:
		d.overuseStart = time.Time{}
		d.current = usageNormal
	}

	if d.adaptive {
		d.adapt(ts, scaled)
	}

	return d.current
}

func (d *overuseDetector) adapt(ts time.Time, scaled float64) {
	if d.lastAdapt.IsZero() {
		d.lastAdapt = ts
	}
	if math.Abs(scaled) > d.threshold+15 {
		// an extreme outlier must not drag the threshold with it
		d.lastAdapt = ts

		return
	}

	gain := thresholdGainUp
	if math.Abs(scaled) < d.threshold {
		gain = thresholdGainDown
	}
	elapsed := min(ts.Sub(d.lastAdapt), 100*time.Millisecond)
	d.threshold += gain * (math.Abs(scaled) - d.threshold) * float64(elapsed.Milliseconds())
	d.threshold = max(min(d.threshold, 600.0), 6.0)
	d.lastAdapt = ts
}
