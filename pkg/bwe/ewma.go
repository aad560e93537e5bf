// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

// ewma is an exponentially weighted moving average with a running variance
// estimate. The first sample initializes the mean directly.
type ewma struct {
	set      bool
	weight   float64
	mean     float64
	variance float64
}

func (a *ewma) observe(sample float64) {
	if !a.set {
		a.mean = sample
		a.set = true

		return
	}
	delta := sample - a.mean
	a.mean = a.weight*sample + (1-a.weight)*a.mean
	a.variance = (1-a.weight)*a.variance + a.weight*(1-a.weight)*delta*delta
}
