// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package sequencenumber provides a sequence number unwrapper that converts
// wrapping 16-bit RTP sequence numbers into a monotonic int64 space.
package sequencenumber

const (
	breakpoint               = 0x8000
	maxSequenceNumberPlusOne = int64(1 << 16)
)

// isNewer reports whether value is newer than previous, accounting for
// wraparound. On the exact tie (distance of 2^15) the larger value wins.
func isNewer(value, previous uint16) bool {
	if value-previous == breakpoint {
		return value > previous
	}

	return value != previous && (value-previous) < breakpoint
}

// Unwrapper converts a stream of wrapping uint16 sequence numbers into int64
// values without gaps at the wrap boundary. The zero value is ready to use.
type Unwrapper struct {
	init          bool
	lastUnwrapped int64
}

// Unwrap unwraps the next sequence number.
func (u *Unwrapper) Unwrap(value uint16) int64 {
	if !u.init {
		u.init = true
		u.lastUnwrapped = int64(value)

		return u.lastUnwrapped
	}

	last := uint16(u.lastUnwrapped) //nolint:gosec // low 16 bits wanted
	delta := int64(value - last)
	if value != last && !isNewer(value, last) {
		delta -= maxSequenceNumberPlusOne
	}

	u.lastUnwrapped += delta

	return u.lastUnwrapped
}
