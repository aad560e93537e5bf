// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtpengine implements a real-time media transport engine: RTP
// packetization with pacing, NACK-driven retransmission, XOR forward error
// correction and a delay+loss based congestion controller fed by RTCP
// feedback. Socket I/O is delegated to a PacketTransport; codec payload
// semantics stay outside the engine.
package rtpengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/tevino/abool"

	"github.com/pion/rtpengine/pkg/bwe"
	"github.com/pion/rtpengine/pkg/pacing"
	"github.com/pion/rtpengine/pkg/rtcp"
	"github.com/pion/rtpengine/pkg/rtp"
)

const (
	defaultReportInterval = time.Second
	defaultInitialBitrate = 1_000_000
	defaultMinBitrate     = 100_000
	defaultMaxBitrate     = 50_000_000
)

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithLoggerFactory sets the logger factory used by the engine and every
// component it creates.
func WithLoggerFactory(factory logging.LoggerFactory) EngineOption {
	return func(e *Engine) error {
		e.loggerFactory = factory

		return nil
	}
}

// WithReportInterval sets the SR/RR cadence. Defaults to one second.
func WithReportInterval(interval time.Duration) EngineOption {
	return func(e *Engine) error {
		e.reportInterval = interval

		return nil
	}
}

// WithReducedSizeFeedback enables RFC 5506 reduced-size feedback: NACK and
// PLI packets are sent on their own instead of trailing a receiver report.
func WithReducedSizeFeedback() EngineOption {
	return func(e *Engine) error {
		e.reducedSize = true

		return nil
	}
}

// WithBandwidthLimits sets the congestion controller's initial estimate and
// its clamp range in bits per second.
func WithBandwidthLimits(initial, minBitrate, maxBitrate int) EngineOption {
	return func(e *Engine) error {
		e.initialBitrate = initial
		e.minBitrate = minBitrate
		e.maxBitrate = maxBitrate

		return nil
	}
}

// WithOnUnknownSSRC registers a callback invoked when an inbound packet
// references no registered stream, typically to trigger registration of a
// new receive stream. The packet itself is dropped either way.
func WithOnUnknownSSRC(fn func(ssrc uint32)) EngineOption {
	return func(e *Engine) error {
		e.onUnknownSSRC = fn

		return nil
	}
}

// withNow overrides the clock, for tests.
func withNow(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.now = now

		return nil
	}
}

// Engine ties the pipelines together: it owns the stream registry, the
// congestion controller, the pacer and the RTCP report loop. One Engine
// serves one transport path.
type Engine struct {
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	transport PacketTransport
	registry  *registry

	controller *bwe.SendSideController
	pacer      *pacing.Pacer

	initialBitrate int
	minBitrate     int
	maxBitrate     int

	reportInterval time.Duration
	reducedSize    bool
	onUnknownSSRC  func(uint32)

	now func() time.Time

	mu          sync.Mutex
	remoteRRTRs map[uint32]remoteRRTR

	closed   *abool.AtomicBool
	teardown chan struct{}
	torndown chan struct{}
}

// New creates an Engine bound to the given transport and starts its report
// loop.
func New(transport PacketTransport, opts ...EngineOption) (*Engine, error) {
	if transport == nil {
		return nil, errNoTransport
	}

	engine := &Engine{
		loggerFactory:  logging.NewDefaultLoggerFactory(),
		transport:      transport,
		registry:       newRegistry(),
		initialBitrate: defaultInitialBitrate,
		minBitrate:     defaultMinBitrate,
		maxBitrate:     defaultMaxBitrate,
		reportInterval: defaultReportInterval,
		now:            time.Now,
		remoteRRTRs:    map[uint32]remoteRRTR{},
		closed:         abool.New(),
		teardown:       make(chan struct{}),
		torndown:       make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(engine); err != nil {
			return nil, err
		}
	}

	engine.log = engine.loggerFactory.NewLogger("rtp_engine")
	engine.controller = bwe.NewSendSideController(
		engine.initialBitrate, engine.minBitrate, engine.maxBitrate,
		bwe.WithLoggerFactory(engine.loggerFactory),
	)
	engine.pacer = pacing.NewPacer(engine.writePacket, pacing.WithLoggerFactory(engine.loggerFactory))
	engine.pacer.SetRate(engine.initialBitrate)

	go engine.loop()

	return engine, nil
}

// CreateSendStream registers an outbound stream.
func (e *Engine) CreateSendStream(config SendStreamConfig) (*SendStream, error) {
	if e.closed.IsSet() {
		return nil, ErrEngineClosed
	}

	stream, err := newSendStream(e, config)
	if err != nil {
		return nil, err
	}
	if err := e.registry.addSendStream(stream); err != nil {
		return nil, err
	}

	return stream, nil
}

// CreateReceiveStream registers an inbound stream, including its RTX and
// FEC SSRCs.
func (e *Engine) CreateReceiveStream(config ReceiveStreamConfig) (*ReceiveStream, error) {
	if e.closed.IsSet() {
		return nil, ErrEngineClosed
	}

	stream, err := newReceiveStream(e, config)
	if err != nil {
		return nil, err
	}
	if err := e.registry.addReceiveStream(stream); err != nil {
		return nil, err
	}

	return stream, nil
}

// ProcessRTP feeds one raw inbound RTP packet into the engine, called from
// the transport's read loop. Malformed packets and packets for unknown
// SSRCs are dropped and reported through the returned error; neither is
// fatal.
func (e *Engine) ProcessRTP(buf []byte) error {
	if e.closed.IsSet() {
		return ErrEngineClosed
	}

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(buf); err != nil {
		e.log.Infof("dropping malformed rtp packet: %v", err)

		return err
	}

	stream, ok := e.registry.receiveStream(packet.SSRC)
	if !ok {
		e.registry.recordUnknownSSRC()
		if e.onUnknownSSRC != nil {
			e.onUnknownSSRC(packet.SSRC)
		}

		return fmt.Errorf("%w: %d", ErrUnknownSSRC, packet.SSRC)
	}

	stream.processRTP(packet, e.now())

	return nil
}

// TargetBitrate returns the congestion controller's current estimate in
// bits per second.
func (e *Engine) TargetBitrate() int {
	return e.controller.TargetBitrate()
}

// Stats returns the snapshot for one SSRC, in either direction.
func (e *Engine) Stats(ssrc uint32) (StreamStats, bool) {
	if stream, ok := e.registry.sendStream(ssrc); ok {
		stats := stream.Stats()
		stats.TargetBitrate = e.controller.TargetBitrate()

		return StreamStats{Send: &stats}, true
	}
	if stream, ok := e.registry.receiveStream(ssrc); ok {
		stats := stream.Stats()

		return StreamStats{Receive: &stats}, true
	}

	return StreamStats{}, false
}

// UnknownSSRCCount reports how many inbound packets were dropped for lack
// of a registered stream.
func (e *Engine) UnknownSSRCCount() uint64 {
	return e.registry.unknownCount()
}

// Close stops the report loop, closes all streams and shuts down the
// pacer. Packets already queued in the pacer are dropped.
func (e *Engine) Close() error {
	if !e.closed.SetToIf(false, true) {
		return nil
	}

	close(e.teardown)
	<-e.torndown

	e.registry.eachSendStream(func(stream *SendStream) {
		if err := stream.Close(); err != nil {
			e.log.Warnf("close send stream %d: %v", stream.ssrc, err)
		}
	})
	e.registry.eachReceiveStream(func(stream *ReceiveStream) {
		if err := stream.Close(); err != nil {
			e.log.Warnf("close receive stream %d: %v", stream.ssrc, err)
		}
	})

	return e.pacer.Close()
}

// loop drives the periodic report round and reorder-buffer expiry.
func (e *Engine) loop() {
	defer close(e.torndown)

	ticker := time.NewTicker(e.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := e.now()
			e.registry.eachReceiveStream(func(stream *ReceiveStream) {
				stream.expire(now)
			})
			reports := e.buildReports(now)
			if len(reports) == 0 {
				continue
			}
			buf, err := rtcp.Marshal(reports)
			if err != nil {
				e.log.Errorf("marshal report round: %v", err)

				continue
			}
			if err := e.transport.WriteRTCP(buf); err != nil {
				e.log.Warnf("send report round: %v", err)
			}
		case <-e.teardown:
			return
		}
	}
}

// pace hands one packet to the pacer queue.
func (e *Engine) pace(packet *rtp.Packet) error {
	return e.pacer.Enqueue(packet)
}

// writePacket is the pacer's drain target.
func (e *Engine) writePacket(packet *rtp.Packet) error {
	buf, err := packet.Marshal()
	if err != nil {
		return err
	}
	if err := e.transport.WriteRTP(buf); err != nil {
		if stream, ok := e.registry.sendStream(packet.SSRC); ok {
			stream.recordSendError(err)
		}

		return err
	}

	return nil
}

func (e *Engine) onPacketSent(now time.Time, size int) {
	e.controller.OnPacketSent(now, size)
}

func (e *Engine) onReceiverReport(now time.Time, fractionLost uint8, jitter, rtt time.Duration) {
	target := e.controller.OnReceiverReport(now, fractionLost, jitter, rtt)
	e.pacer.SetRate(target)
}

func (e *Engine) onREMB(bitrate int) {
	e.controller.OnREMB(bitrate)
	e.pacer.SetRate(e.controller.TargetBitrate())
}

func (e *Engine) removeSendStream(ssrc uint32) {
	e.registry.removeSendStream(ssrc)
}

func (e *Engine) removeReceiveStream(ssrc uint32) {
	e.registry.removeReceiveStream(ssrc)
}
