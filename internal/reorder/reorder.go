// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package reorder restores sequence order of received packets. Packets are
// held back until their predecessors arrive, bounded by a maximum buffer
// size and a maximum waiting time after which missing packets are given up
// and reported as gaps.
package reorder

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/pion/rtpengine/pkg/rtp"
)

const uint16SizeHalf = 1 << 15

type entry struct {
	packet  *rtp.Packet
	arrival time.Time
}

// Option overrides Buffer defaults.
type Option func(*Buffer)

// WithMaxSize bounds how many packets may wait for their predecessors. When
// it is exceeded the oldest gap is given up.
func WithMaxSize(n int) Option {
	return func(b *Buffer) {
		b.maxSize = n
	}
}

// WithMaxWait bounds how long a packet may wait for its predecessors.
func WithMaxWait(d time.Duration) Option {
	return func(b *Buffer) {
		b.maxWait = d
	}
}

func withNow(now func() time.Time) Option {
	return func(b *Buffer) {
		b.now = now
	}
}

// Buffer reorders packets of one SSRC into strict sequence order. Safe for
// concurrent use.
type Buffer struct {
	m       sync.Mutex
	pending deque.Deque[entry]
	next    uint16
	started bool
	maxSize int
	maxWait time.Duration
	now     func() time.Time

	dropped uint64
}

// New creates a Buffer.
func New(opts ...Option) *Buffer {
	buf := &Buffer{
		maxSize: 128,
		maxWait: 500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(buf)
	}

	return buf
}

// Push adds one received packet. It returns the packets that are now
// deliverable in strict sequence order and the sequence numbers of any
// packets that were given up to make progress.
func (b *Buffer) Push(packet *rtp.Packet) (ready []*rtp.Packet, gaps []uint16) {
	b.m.Lock()
	defer b.m.Unlock()

	seq := packet.SequenceNumber
	if !b.started {
		b.next = seq
		b.started = true
	}

	if b.started && seq != b.next && b.next-seq < uint16SizeHalf {
		// older than the next expected packet: duplicate or beyond max wait
		b.dropped++

		return nil, nil
	}

	b.insert(entry{packet: packet, arrival: b.now()})

	ready, gaps = b.drain(ready, gaps)

	return ready, gaps
}

// Expired gives up on packets whose successors waited longer than the
// maximum and returns everything that became deliverable. Call it
// periodically so stalled gaps resolve without new arrivals.
func (b *Buffer) Expired() (ready []*rtp.Packet, gaps []uint16) {
	b.m.Lock()
	defer b.m.Unlock()

	return b.drain(nil, nil)
}

// Len returns the number of packets waiting for their predecessors.
func (b *Buffer) Len() int {
	b.m.Lock()
	defer b.m.Unlock()

	return b.pending.Len()
}

// Dropped returns how many packets arrived too late and were discarded.
func (b *Buffer) Dropped() uint64 {
	b.m.Lock()
	defer b.m.Unlock()

	return b.dropped
}

// insert places e into pending, keeping sequence order. Duplicates are
// discarded.
func (b *Buffer) insert(e entry) {
	seq := e.packet.SequenceNumber

	idx := b.pending.Len()
	for i := b.pending.Len() - 1; i >= 0; i-- {
		cur := b.pending.At(i).packet.SequenceNumber
		if cur == seq {
			b.dropped++

			return
		}
		if seq-cur < uint16SizeHalf {
			break
		}
		idx = i
	}
	b.pending.Insert(idx, e)
}

func (b *Buffer) drain(ready []*rtp.Packet, gaps []uint16) ([]*rtp.Packet, []uint16) {
	now := b.now()
	for b.pending.Len() > 0 {
		front := b.pending.Front()
		seq := front.packet.SequenceNumber

		if seq == b.next {
			ready = append(ready, b.pending.PopFront().packet)
			b.next++

			continue
		}

		// the head is blocked on missing packets; give them up when the
		// buffer overflows or the wait is over
		if b.pending.Len() > b.maxSize || now.Sub(front.arrival) > b.maxWait {
			for ; b.next != seq; b.next++ {
				gaps = append(gaps, b.next)
			}

			continue
		}

		break
	}

	return ready, gaps
}
