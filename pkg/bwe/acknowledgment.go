// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import (
	"fmt"
	"time"
)

// Acknowledgment is per-packet delivery feedback: when the packet left the
// sender, whether it arrived, and when. SeqNr is an unwrapped sequence
// number so feedback spanning a 16-bit rollover stays ordered.
type Acknowledgment struct {
	SeqNr     int64
	Size      uint16
	Departure time.Time
	Arrived   bool
	Arrival   time.Time
}

func (a Acknowledgment) String() string {
	return fmt.Sprintf("seq=%v, departure=%v, arrival=%v", a.SeqNr, a.Departure, a.Arrival)
}
