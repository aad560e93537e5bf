// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package pacing smooths outgoing packet bursts to a target bitrate using a
// token bucket filter drained at a fixed interval.
package pacing

import (
	"errors"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/pion/logging"

	"github.com/pion/rtpengine/pkg/rtp"
)

var (
	// ErrClosed is returned by Enqueue after the pacer was closed.
	ErrClosed = errors.New("pacer closed")
	// ErrQueueFull is returned by Enqueue when the pacer cannot keep up and
	// its queue overflows.
	ErrQueueFull = errors.New("pacer queue overflow")
)

type pacerFactory func(initialRate, burst int) pacer

type pacer interface {
	SetRate(rate, burst int)
	Budget(time.Time) float64
	AllowN(time.Time, int) bool
}

// Option is a configuration option for a Pacer.
type Option func(*Pacer)

// InitialRate sets the pacing rate in bits per second used before the first
// SetRate call.
func InitialRate(rate int) Option {
	return func(p *Pacer) {
		p.initialRate = rate
	}
}

// Interval sets how often the pacer drains its queue.
func Interval(interval time.Duration) Option {
	return func(p *Pacer) {
		p.interval = interval
	}
}

// QueueSize bounds how many packets may wait for budget before Enqueue
// starts failing with ErrQueueFull.
func QueueSize(n int) Option {
	return func(p *Pacer) {
		p.queueSize = n
	}
}

// WithLoggerFactory sets a logger factory for the pacer.
func WithLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(p *Pacer) {
		p.log = loggerFactory.NewLogger("pacer")
	}
}

func setPacerFactory(f pacerFactory) Option {
	return func(p *Pacer) {
		p.pacerFactory = f
	}
}

// Pacer queues outgoing RTP packets and forwards them to a write function at
// a rate bounded by the configured target bitrate. Packets are forwarded in
// Enqueue order. Safe for concurrent use.
type Pacer struct {
	log logging.LeveledLogger

	// config
	initialRate  int
	interval     time.Duration
	queueSize    int
	pacerFactory pacerFactory
	write        func(*rtp.Packet) error

	// limiter and queue
	limit pacer
	queue chan *rtp.Packet

	// shutdown
	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewPacer creates a Pacer forwarding packets to write and starts its drain
// loop.
func NewPacer(write func(*rtp.Packet) error, opts ...Option) *Pacer {
	pcr := &Pacer{
		initialRate: 1_000_000,
		interval:    5 * time.Millisecond,
		queueSize:   1 << 14,
		pacerFactory: func(initialRate, burst int) pacer {
			return newBucketLimiter(initialRate, burst)
		},
		write:  write,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pcr)
	}
	if pcr.log == nil {
		pcr.log = logging.NewDefaultLoggerFactory().NewLogger("pacer")
	}
	pcr.limit = pcr.pacerFactory(pcr.initialRate, burst(pcr.initialRate, pcr.interval))
	pcr.queue = make(chan *rtp.Packet, pcr.queueSize)

	pcr.wg.Add(1)
	go func() {
		defer pcr.wg.Done()
		pcr.loop()
	}()

	return pcr
}

// burst calculates the minimal burst size required to reach the given rate
// and pacing interval.
func burst(rate int, interval time.Duration) int {
	if interval == 0 {
		interval = time.Millisecond
	}
	f := float64(time.Second.Milliseconds() / interval.Milliseconds())

	return 8 * int(float64(rate)/f)
}

// SetRate updates the pacing rate in bits per second.
func (p *Pacer) SetRate(rate int) {
	p.limit.SetRate(rate, burst(rate, p.interval))
}

// Enqueue hands one packet to the pacer. The packet is not copied; the
// caller must not modify it afterwards.
func (p *Pacer) Enqueue(packet *rtp.Packet) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- packet:
		return nil
	case <-p.closed:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Close stops the drain loop. Packets still queued are dropped.
func (p *Pacer) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()

	return nil
}

func (p *Pacer) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var pending deque.Deque[*rtp.Packet]
	for {
		// stop accepting new packets while the pending queue is full so
		// Enqueue sees backpressure instead of unbounded growth
		in := p.queue
		if pending.Len() >= p.queueSize {
			in = nil
		}
		select {
		case now := <-ticker.C:
			for pending.Len() > 0 {
				bits := 8 * pending.Front().MarshalSize()
				if p.limit.Budget(now) <= float64(bits) {
					break
				}
				p.limit.AllowN(now, bits)
				next := pending.PopFront()
				if err := p.write(next); err != nil {
					p.log.Warnf("failed to write paced packet: %v", err)
				}
			}
		case pkt := <-in:
			pending.PushBack(pkt)
		case <-p.closed:
			return
		}
	}
}
