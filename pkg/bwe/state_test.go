// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	t.Run("hold", func(t *testing.T) {
		assert.Equal(t, StateDecrease, StateHold.transition(usageOver))
		assert.Equal(t, StateIncrease, StateHold.transition(usageNormal))
		assert.Equal(t, StateHold, StateHold.transition(usageUnder))
	})

	t.Run("increase", func(t *testing.T) {
		assert.Equal(t, StateDecrease, StateIncrease.transition(usageOver))
		assert.Equal(t, StateIncrease, StateIncrease.transition(usageNormal))
		assert.Equal(t, StateHold, StateIncrease.transition(usageUnder))
	})

	t.Run("decrease", func(t *testing.T) {
		assert.Equal(t, StateDecrease, StateDecrease.transition(usageOver))
		assert.Equal(t, StateHold, StateDecrease.transition(usageNormal))
		assert.Equal(t, StateHold, StateDecrease.transition(usageUnder))
	})
}
