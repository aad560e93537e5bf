// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtx implements a retransmission store: a bounded window of
// recently sent RTP packets that can be replayed in response to NACK
// feedback, either verbatim or re-wrapped as RTX packets.
package rtx

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtpengine/pkg/rtp"
)

// ErrInvalidSize is returned when a send buffer is created with a size that
// is not a power of two.
var ErrInvalidSize = errors.New("invalid buffer size")

const uint16SizeHalf = 1 << 15

type sendEntry struct {
	packet      *rtp.Packet
	sendTime    time.Time
	resendCount int
}

// SendBuffer is a ring of recently sent packets keyed by sequence number. At
// most one entry exists per sequence number; older entries are evicted as the
// window advances.
type SendBuffer struct {
	packets   []*sendEntry
	size      uint16
	lastAdded uint16
	started   bool
	maxAge    time.Duration

	m sync.RWMutex
}

// SendBufferOption can be used to configure SendBuffer.
type SendBufferOption func(*SendBuffer)

// WithMaxAge discards entries older than maxAge on lookup, bounding the
// window by time in addition to count.
func WithMaxAge(maxAge time.Duration) SendBufferOption {
	return func(s *SendBuffer) {
		s.maxAge = maxAge
	}
}

// NewSendBuffer constructs a SendBuffer holding up to size packets. size must
// be a power of two.
func NewSendBuffer(size uint16, opts ...SendBufferOption) (*SendBuffer, error) {
	allowedSizes := make([]uint16, 0)
	correctSize := false
	for i := 0; i < 16; i++ {
		if size == 1<<i {
			correctSize = true

			break
		}
		allowedSizes = append(allowedSizes, 1<<i)
	}

	if !correctSize {
		return nil, fmt.Errorf("%w: %d is not a valid size, allowed sizes: %v", ErrInvalidSize, size, allowedSizes)
	}

	buffer := &SendBuffer{
		packets: make([]*sendEntry, size),
		size:    size,
	}
	for _, opt := range opts {
		opt(buffer)
	}

	return buffer, nil
}

// Add records a sent packet. The packet is cloned so callers may reuse the
// underlying memory.
func (s *SendBuffer) Add(packet *rtp.Packet, now time.Time) {
	s.m.Lock()
	defer s.m.Unlock()

	seq := packet.SequenceNumber
	entry := &sendEntry{packet: packet.Clone(), sendTime: now}

	if !s.started {
		s.packets[seq%s.size] = entry
		s.lastAdded = seq
		s.started = true

		return
	}

	diff := seq - s.lastAdded
	if diff == 0 {
		return
	} else if diff < uint16SizeHalf {
		for i := s.lastAdded + 1; i != seq; i++ {
			s.packets[i%s.size] = nil
		}
	}

	s.packets[seq%s.size] = entry
	s.lastAdded = seq
}

// Get returns the stored packet for seq, or nil if it was evicted, aged out
// or never recorded. A miss is not an error: the NACK may be late, duplicated
// or refer to a packet outside the window.
func (s *SendBuffer) Get(seq uint16, now time.Time) *rtp.Packet {
	s.m.RLock()
	defer s.m.RUnlock()

	entry := s.lookup(seq)
	if entry == nil {
		return nil
	}
	if s.maxAge > 0 && now.Sub(entry.sendTime) > s.maxAge {
		return nil
	}

	return entry.packet
}

// markResent bumps the resend counter for seq and reports whether the packet
// may be resent again given the limit.
func (s *SendBuffer) markResent(seq uint16, maxResends int) bool {
	s.m.Lock()
	defer s.m.Unlock()

	entry := s.lookup(seq)
	if entry == nil {
		return false
	}
	if maxResends > 0 && entry.resendCount >= maxResends {
		return false
	}
	entry.resendCount++

	return true
}

func (s *SendBuffer) lookup(seq uint16) *sendEntry {
	diff := s.lastAdded - seq
	if diff >= uint16SizeHalf {
		return nil
	}
	if diff >= s.size {
		return nil
	}

	entry := s.packets[seq%s.size]
	if entry == nil || entry.packet.SequenceNumber != seq {
		return nil
	}

	return entry
}
