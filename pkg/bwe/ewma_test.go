// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Expected values computed with pandas:
// pd.DataFrame(samples).ewm(alpha=0.9, adjust=False).mean() and
// .var(bias=True).
func TestEWMA(t *testing.T) {
	cases := []struct {
		name    string
		samples []float64
		means   []float64
		vars    []float64
	}{
		{
			name:    "empty",
			samples: []float64{},
			means:   []float64{},
			vars:    []float64{},
		},
		{
			name:    "ramp",
			samples: []float64{1, 2, 3, 4},
			means:   []float64{1.000, 1.900, 2.890, 3.889},
			vars:    []float64{0.000000, 0.090000, 0.117900, 0.122679},
		},
		{
			name:    "noisy",
			samples: []float64{8, 8, 5, 1, 3, 1, 8, 2, 8, 9},
			means: []float64{
				8.000000, 8.000000, 5.300000, 1.430000, 2.843000,
				1.184300, 7.318430, 2.531843, 7.453184, 8.845318,
			},
			vars: []float64{
				0.000000, 0.000000, 0.810000, 1.745100, 0.396351,
				0.345334, 4.215372, 2.967250, 2.987792, 0.514117,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := ewma{weight: 0.9}
			means := []float64{}
			vars := []float64{}
			for _, s := range tc.samples {
				a.observe(s)
				means = append(means, a.mean)
				vars = append(vars, a.variance)
			}
			assert.InDeltaSlice(t, tc.means, means, 0.001)
			assert.InDeltaSlice(t, tc.vars, vars, 0.001)
		})
	}
}
