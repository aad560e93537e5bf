// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import "fmt"

// State is the rate controller state. The controller increases its target
// while the network shows no sign of congestion, decreases it on overuse and
// holds after a decrease until the estimate stabilizes.
type State int

const (
	// StateIncrease raises the target bitrate while usage is normal.
	StateIncrease State = iota
	// StateDecrease backs off multiplicatively while overuse persists.
	StateDecrease
	// StateHold keeps the target unchanged after a decrease.
	StateHold
)

func (s State) transition(u usage) State {
	switch s {
	case StateHold:
		switch u {
		case usageOver:
			return StateDecrease
		case usageNormal:
			return StateIncrease
		case usageUnder:
			return StateHold
		}

	case StateIncrease:
		switch u {
		case usageOver:
			return StateDecrease
		case usageNormal:
			return StateIncrease
		case usageUnder:
			return StateHold
		}

	case StateDecrease:
		switch u {
		case usageOver:
			return StateDecrease
		case usageNormal:
			return StateHold
		case usageUnder:
			return StateHold
		}
	}

	return s
}

func (s State) String() string {
	switch s {
	case StateIncrease:
		return "increase"
	case StateDecrease:
		return "decrease"
	case StateHold:
		return "hold"
	default:
		return fmt.Sprintf("invalid state: %d", int(s))
	}
}
