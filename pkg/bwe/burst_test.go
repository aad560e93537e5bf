// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstAccumulator(t *testing.T) {
	at := func(departure, arrival time.Duration) Acknowledgment {
		return Acknowledgment{
			Departure: time.Time{}.Add(departure),
			Arrival:   time.Time{}.Add(arrival),
		}
	}
	// far enough out to flush whatever group is pending
	flush := at(time.Second, time.Second)

	cases := []struct {
		name string
		acks []Acknowledgment
		exp  []arrivalGroup
	}{
		{
			name: "empty",
			acks: []Acknowledgment{},
			exp:  []arrivalGroup{},
		},
		{
			name: "single packet forms a group",
			acks: []Acknowledgment{at(0, time.Millisecond), flush},
			exp:  []arrivalGroup{{at(0, time.Millisecond)}},
		},
		{
			name: "packets within burst spacing share a group",
			acks: []Acknowledgment{
				at(0, 15*time.Millisecond),
				at(3*time.Millisecond, 20*time.Millisecond),
				flush,
			},
			exp: []arrivalGroup{{
				at(0, 15*time.Millisecond),
				at(3*time.Millisecond, 20*time.Millisecond),
			}},
		},
		{
			name: "departure spacing opens a new group",
			acks: []Acknowledgment{
				at(0, 15*time.Millisecond),
				at(3*time.Millisecond, 20*time.Millisecond),
				at(9*time.Millisecond, 24*time.Millisecond),
				flush,
			},
			exp: []arrivalGroup{
				{
					at(0, 15*time.Millisecond),
					at(3*time.Millisecond, 20*time.Millisecond),
				},
				{at(9*time.Millisecond, 24*time.Millisecond)},
			},
		},
		{
			name: "packet queued behind the group joins it",
			acks: []Acknowledgment{
				at(0, 15*time.Millisecond),
				at(3*time.Millisecond, 20*time.Millisecond),
				at(9*time.Millisecond, 21*time.Millisecond),
				flush,
			},
			exp: []arrivalGroup{{
				at(0, 15*time.Millisecond),
				at(3*time.Millisecond, 20*time.Millisecond),
				at(9*time.Millisecond, 21*time.Millisecond),
			}},
		},
		{
			name: "growing propagation delta splits groups",
			acks: []Acknowledgment{
				at(0, 15*time.Millisecond),
				at(6*time.Millisecond, 34*time.Millisecond),
				at(8*time.Millisecond, 30*time.Millisecond),
				flush,
			},
			exp: []arrivalGroup{
				{at(0, 15*time.Millisecond)},
				{
					at(6*time.Millisecond, 34*time.Millisecond),
					at(8*time.Millisecond, 30*time.Millisecond),
				},
			},
		},
		{
			name: "two bursts become two groups",
			acks: []Acknowledgment{
				at(0, 4*time.Millisecond),
				at(3*time.Millisecond, 4*time.Millisecond),
				at(6*time.Millisecond, 10*time.Millisecond),
				at(9*time.Millisecond, 10*time.Millisecond),
				flush,
			},
			exp: []arrivalGroup{
				{
					at(0, 4*time.Millisecond),
					at(3*time.Millisecond, 4*time.Millisecond),
				},
				{
					at(6*time.Millisecond, 10*time.Millisecond),
					at(9*time.Millisecond, 10*time.Millisecond),
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bursts := newBurstAccumulator()
			got := []arrivalGroup{}
			for _, ack := range tc.acks {
				if group := bursts.add(ack); group != nil {
					got = append(got, group)
				}
			}
			assert.Equal(t, tc.exp, got)
		})
	}
}
