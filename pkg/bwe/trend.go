// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import "math"

// trendEstimator filters noisy inter-group delay measurements into a
// queuing delay trend. It runs a two-state Kalman filter over the pair
// (slope, offset), where slope captures the size dependency of the delay
// and offset is the returned trend. Residuals outside three standard
// deviations of the measurement noise are clipped before they update the
// noise estimate, so a single delay spike cannot blow up the filter.
type trendEstimator struct {
	slope  float64
	offset float64

	// error covariance and per-update process noise
	e00, e01, e10, e11 float64
	qSlope, qOffset    float64

	noiseMean, noiseVar float64
}

func newTrendEstimator() *trendEstimator {
	return &trendEstimator{
		slope:    8.0 / 512.0,
		e00:      100.0,
		e11:      0.1,
		qSlope:   1e-13,
		qOffset:  1e-3,
		noiseVar: 50.0,
	}
}

// update takes one inter-group delay delta in milliseconds and the
// corresponding group size delta in bytes and returns the new trend.
func (t *trendEstimator) update(delayDelta, sizeDelta float64) float64 {
	t.e00 += t.qSlope
	t.e11 += t.qOffset

	predicted := t.slope*sizeDelta + t.offset
	residual := delayDelta - predicted

	eh0 := t.e00*sizeDelta + t.e01
	eh1 := t.e10*sizeDelta + t.e11

	bound := 3.0 * math.Sqrt(t.noiseVar)
	t.trackNoise(math.Max(-bound, math.Min(bound, residual)), delayDelta)

	gainDenom := t.noiseVar + sizeDelta*eh0 + eh1
	k0 := eh0 / gainDenom
	k1 := eh1 / gainDenom

	// covariance update E = (I - K h) E with h = (sizeDelta, 1)
	ikh00 := 1.0 - k0*sizeDelta
	ikh01 := -k0
	ikh10 := -k1 * sizeDelta
	ikh11 := 1.0 - k1

	e00, e01 := t.e00, t.e01
	t.e00 = e00*ikh00 + t.e10*ikh01
	t.e01 = e01*ikh00 + t.e11*ikh01
	t.e10 = e00*ikh10 + t.e10*ikh11
	t.e11 = e01*ikh10 + t.e11*ikh11

	t.slope += k0 * residual
	t.offset += k1 * residual

	return t.offset
}

func (t *trendEstimator) trackNoise(residual, delayDelta float64) {
	const alpha = 0.002
	// the discount assumes 30 measurement groups per second
	beta := math.Pow(1-alpha, delayDelta*30.0/1000.0)
	t.noiseMean = beta*t.noiseMean + (1-beta)*residual
	t.noiseVar = beta*t.noiseVar + (1-beta)*(t.noiseMean-residual)*(t.noiseMean-residual)
	t.noiseVar = math.Max(t.noiseVar, 1)
}
