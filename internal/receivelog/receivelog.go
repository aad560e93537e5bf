// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package receivelog tracks which sequence numbers of a stream arrived
// inside a sliding window, so missing packets can be requested.
package receivelog

import (
	"errors"
	"fmt"
	"sync"
)

const uint16SizeHalf = 1 << 15

// ErrInvalidSize is returned by New when size is not a power of two between
// 64 and 32768.
var ErrInvalidSize = errors.New("invalid receive log size")

// ReceiveLog is a bitmap over a window of sequence numbers. Safe for
// concurrent use.
type ReceiveLog struct {
	packets         []uint64
	size            uint16
	end             uint16
	started         bool
	lastConsecutive uint16
	m               sync.RWMutex
}

// New creates a ReceiveLog covering the last size sequence numbers.
func New(size uint16) (*ReceiveLog, error) {
	allowedSizes := make([]uint16, 0)
	correctSize := false
	for i := 6; i < 16; i++ {
		if size == 1<<i {
			correctSize = true

			break
		}
		allowedSizes = append(allowedSizes, 1<<i)
	}

	if !correctSize {
		return nil, fmt.Errorf("%w: %d is not a valid size, allowed sizes: %v", ErrInvalidSize, size, allowedSizes)
	}

	return &ReceiveLog{
		packets: make([]uint64, size/64),
		size:    size,
	}, nil
}

// Add records the arrival of seq.
func (s *ReceiveLog) Add(seq uint16) {
	s.m.Lock()
	defer s.m.Unlock()

	if !s.started {
		s.setReceived(seq)
		s.end = seq
		s.started = true
		s.lastConsecutive = seq

		return
	}

	diff := seq - s.end
	switch {
	case diff == 0:
		return
	case diff < uint16SizeHalf:
		// this packet is newer than the previous one
		s.setReceived(seq)
		diff--
		for i := uint16(1); i <= diff; i++ {
			// clear the slots between the previous end and the new one
			s.delReceived(s.end + i)
		}
		s.end = seq

		if s.lastConsecutive+1 == seq {
			s.lastConsecutive = seq
		} else if seq-s.lastConsecutive > s.size {
			s.lastConsecutive = seq - s.size
			s.fixLastConsecutive()
		}
	case s.lastConsecutive+1 == seq:
		// late arrival filled the gap right after lastConsecutive
		s.setReceived(seq)
		s.lastConsecutive = seq
		s.fixLastConsecutive()
	default:
		// late arrival inside the window
		s.setReceived(seq)
	}
}

// Get reports whether seq was received and still lies inside the window.
func (s *ReceiveLog) Get(seq uint16) bool {
	s.m.RLock()
	defer s.m.RUnlock()

	diff := s.end - seq
	if diff >= uint16SizeHalf {
		return false
	}
	if diff >= s.size {
		return false
	}

	return s.getReceived(seq)
}

// MissingSeqNumbers returns the sequence numbers of all packets missing
// between the last consecutively received one and end-skipLastN. The result
// is written into buf to avoid allocation; it is only valid until the next
// call.
func (s *ReceiveLog) MissingSeqNumbers(skipLastN uint16, buf []uint16) []uint16 {
	s.m.RLock()
	defer s.m.RUnlock()

	until := s.end - skipLastN
	if until-s.lastConsecutive >= uint16SizeHalf {
		// until is older than lastConsecutive, nothing can be missing
		return nil
	}

	buf = buf[:0]
	for i := s.lastConsecutive + 1; i != until+1; i++ {
		if !s.getReceived(i) {
			buf = append(buf, i)
		}
	}

	return buf
}

// LastConsecutive returns the newest sequence number up to which all
// packets arrived.
func (s *ReceiveLog) LastConsecutive() uint16 {
	s.m.RLock()
	defer s.m.RUnlock()

	return s.lastConsecutive
}

// End returns the newest sequence number seen so far.
func (s *ReceiveLog) End() uint16 {
	s.m.RLock()
	defer s.m.RUnlock()

	return s.end
}

// Size returns the window size.
func (s *ReceiveLog) Size() uint16 {
	return s.size
}

func (s *ReceiveLog) setReceived(seq uint16) {
	pos := seq % s.size
	s.packets[pos/64] |= 1 << (pos % 64)
}

func (s *ReceiveLog) delReceived(seq uint16) {
	pos := seq % s.size
	s.packets[pos/64] &^= 1 << (pos % 64)
}

func (s *ReceiveLog) getReceived(seq uint16) bool {
	pos := seq % s.size

	return (s.packets[pos/64] & (1 << (pos % 64))) != 0
}

func (s *ReceiveLog) fixLastConsecutive() {
	i := s.lastConsecutive + 1
	for ; i != s.end+1 && s.getReceived(i); i++ { //nolint:revive
	}
	s.lastConsecutive = i - 1
}
