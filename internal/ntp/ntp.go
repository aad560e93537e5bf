// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package ntp converts between time.Time and the 64-bit/32-bit NTP timestamp
// formats used by RTCP sender reports and extended reports.
package ntp

import "time"

var ntpEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals

const nanoPerSec = uint64(time.Second)

// ToNTP converts a time.Time to a 64-bit fixed point NTP timestamp: the
// higher 32 bits are seconds since the NTP epoch, the lower 32 bits the
// fractional second.
func ToNTP(t time.Time) uint64 {
	nsec := uint64(t.Sub(ntpEpoch).Nanoseconds()) //nolint:gosec // post-1900 times only
	sec := nsec / nanoPerSec
	nsec = (nsec - sec*nanoPerSec) << 32
	frac := nsec / nanoPerSec
	if nsec%nanoPerSec >= nanoPerSec/2 {
		frac++
	}

	return sec<<32 | frac
}

// ToNTP32 converts a time.Time to the middle 32 bits of its NTP timestamp,
// the compact form carried in RR LSR and XR RRTR fields.
func ToNTP32(t time.Time) uint32 {
	return uint32(ToNTP(t) >> 16) //nolint:gosec // intentional truncation
}

// ToTime converts a 64-bit NTP timestamp to a time.Time.
func ToTime(t uint64) time.Time {
	sec := t >> 32
	frac := t & 0xFFFFFFFF
	nsec := frac * nanoPerSec >> 32

	return ntpEpoch.Add(time.Duration(sec)*time.Second + time.Duration(nsec)) //nolint:gosec // bounded
}

// ToTime32 converts a truncated 32-bit NTP timestamp to a time.Time, picking
// the 16-bit seconds wrap closest to near.
func ToTime32(t uint32, near time.Time) time.Time {
	nearNTP := ToNTP(near)
	sec := nearNTP >> 32
	sec = sec&0xFFFFFFFFFFFF0000 | uint64(t>>16)

	frac := uint64(t&0xFFFF) << 16

	ref := ToTime(sec<<32 | frac)
	if d := ref.Sub(near); d > 32768*time.Second {
		ref = ref.Add(-65536 * time.Second)
	} else if d < -32768*time.Second {
		ref = ref.Add(65536 * time.Second)
	}

	return ref
}
