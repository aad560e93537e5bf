// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"errors"
	"sync"
	"time"

	"github.com/tevino/abool"
	"golang.org/x/time/rate"

	"github.com/pion/rtpengine/internal/ntp"
	"github.com/pion/rtpengine/internal/receivelog"
	"github.com/pion/rtpengine/internal/reorder"
	"github.com/pion/rtpengine/internal/sequencenumber"
	"github.com/pion/rtpengine/pkg/fec"
	"github.com/pion/rtpengine/pkg/rtcp"
	"github.com/pion/rtpengine/pkg/rtp"
	"github.com/pion/rtpengine/pkg/rtx"
)

const (
	defaultReceiveLogSize = 512
	defaultNACKsPerSec    = 20
	defaultNackSkipLastN  = 3
	defaultPLIThreshold   = 16
	defaultPLIInterval    = time.Second
	defaultFrameQueueSize = 64
	maxRecoveredMarks     = 1024
	rrtrHistory           = 5
)

// packet provenance inside the receive pipeline
type packetSource int

const (
	sourcePrimary packetSource = iota
	sourceRTX
	sourceFEC
)

// ReceiveStreamConfig describes an inbound stream.
type ReceiveStreamConfig struct {
	SSRC        uint32
	PayloadType uint8
	ClockRate   uint32

	// RTX identifies the retransmission stream to unwrap into this one.
	RTX *RTXParameters

	// FEC identifies the parity stream protecting this one.
	FEC *FECParameters

	// ReceiveLogSize is the missing-sequence-number window, a power of two
	// in [64, 32768]. Defaults to 512.
	ReceiveLogSize uint16

	// ReorderBufferSize bounds how many packets may be held back waiting
	// for a gap before delivery is forced.
	ReorderBufferSize int

	// MaxReorderWait bounds how long a packet may be held back. Gaps older
	// than this are reported and given up, not retried.
	MaxReorderWait time.Duration

	// NACKsPerSecond rate-limits outgoing NACK feedback. Defaults to 20.
	NACKsPerSecond float64

	// NackSkipLastN excludes the newest sequence numbers from NACK
	// generation, leaving reordered packets and FEC recovery a chance to
	// fill the gap first. Defaults to 3.
	NackSkipLastN uint16

	// PLIThreshold is the number of simultaneously missing sequence
	// numbers that escalates to a PLI. Defaults to 16.
	PLIThreshold int

	// PLIInterval is the minimum spacing between PLIs. Defaults to 1s.
	PLIInterval time.Duration

	// FrameQueueSize bounds the assembled-frame queue. When the consumer
	// falls behind, new frames are dropped and counted. Defaults to 64.
	FrameQueueSize int
}

// ReceiveStream is the receiver pipeline for one SSRC: loss bookkeeping,
// RTX unwrap, FEC recovery, reordering and frame reassembly. Packets are
// pushed in by the engine; assembled frames are consumed via ReadFrame.
type ReceiveStream struct {
	engine *Engine

	ssrc        uint32
	payloadType uint8
	clockRate   float64

	rtxParams *RTXParameters
	fecParams *FECParameters

	nackSkipLastN uint16
	pliThreshold  int

	nackLimiter *rate.Limiter
	pliLimiter  *rate.Limiter

	active *abool.AtomicBool
	frames chan Frame

	m         sync.Mutex
	closed    bool
	log       *receivelog.ReceiveLog
	reorder   *reorder.Buffer
	fdec      *fec.Decoder
	unwrapper sequencenumber.Unwrapper

	// recovered marks sequence numbers restored by FEC or RTX that are
	// still waiting in the reorder buffer, so the assembled frame can be
	// flagged.
	recovered map[uint16]bool

	seqInitialized   bool
	firstSeq         int64
	highestSeq       int64
	packetsReceived  uint64
	bytesReceived    uint64
	rtxReceived      uint64
	fecRecovered     uint64
	nacksSent        uint64
	plisSent         uint64
	gapsGivenUp      uint64
	framesDropped    uint64
	arrivalValid     bool
	arrivalBase      time.Time
	lastTransit      int
	jitter           float64
	expectedPrior    int64
	receivedPrior    int64
	lastSRNTP        uint64
	lastSRArrival    time.Time
	sentRRTRs        []uint64
	rtt              time.Duration
	missingScratch   []uint16
	frag             frameAssembly
}

type frameAssembly struct {
	valid     bool
	timestamp uint32
	parts     [][]byte
	size      int
	recovered bool
}

func newReceiveStream(engine *Engine, config ReceiveStreamConfig) (*ReceiveStream, error) {
	if config.ClockRate == 0 {
		return nil, errInvalidClockRate
	}

	logSize := config.ReceiveLogSize
	if logSize == 0 {
		logSize = defaultReceiveLogSize
	}
	receiveLog, err := receivelog.New(logSize)
	if err != nil {
		return nil, err
	}

	reorderOpts := []reorder.Option{}
	if config.ReorderBufferSize > 0 {
		reorderOpts = append(reorderOpts, reorder.WithMaxSize(config.ReorderBufferSize))
	}
	if config.MaxReorderWait > 0 {
		reorderOpts = append(reorderOpts, reorder.WithMaxWait(config.MaxReorderWait))
	}

	nacksPerSec := config.NACKsPerSecond
	if nacksPerSec == 0 {
		nacksPerSec = defaultNACKsPerSec
	}
	skipLastN := config.NackSkipLastN
	if skipLastN == 0 {
		skipLastN = defaultNackSkipLastN
	}
	pliThreshold := config.PLIThreshold
	if pliThreshold == 0 {
		pliThreshold = defaultPLIThreshold
	}
	pliInterval := config.PLIInterval
	if pliInterval == 0 {
		pliInterval = defaultPLIInterval
	}
	queueSize := config.FrameQueueSize
	if queueSize == 0 {
		queueSize = defaultFrameQueueSize
	}

	stream := &ReceiveStream{
		engine:        engine,
		ssrc:          config.SSRC,
		payloadType:   config.PayloadType,
		clockRate:     float64(config.ClockRate),
		rtxParams:     config.RTX,
		fecParams:     config.FEC,
		nackSkipLastN: skipLastN,
		pliThreshold:  pliThreshold,
		nackLimiter:   rate.NewLimiter(rate.Limit(nacksPerSec), 1),
		pliLimiter:    rate.NewLimiter(rate.Every(pliInterval), 1),
		active:        abool.NewBool(true),
		frames:        make(chan Frame, queueSize),
		log:           receiveLog,
		reorder:       reorder.New(reorderOpts...),
		recovered:     map[uint16]bool{},
	}
	if config.FEC != nil {
		stream.fdec = fec.NewDecoder()
	}

	return stream, nil
}

// SSRC returns the stream identity.
func (s *ReceiveStream) SSRC() uint32 {
	return s.ssrc
}

// ReadFrame blocks until the next assembled frame is available or the
// stream is closed.
func (s *ReceiveStream) ReadFrame() (Frame, error) {
	frame, ok := <-s.frames
	if !ok {
		return Frame{}, ErrStreamClosed
	}

	return frame, nil
}

// Frames exposes the assembled-frame queue for select-based consumers. The
// channel is closed when the stream closes.
func (s *ReceiveStream) Frames() <-chan Frame {
	return s.frames
}

// RequestKeyFrame sends a PLI on behalf of the frame consumer, subject to
// the PLI rate limit.
func (s *ReceiveStream) RequestKeyFrame() error {
	if s.active.IsNotSet() {
		return ErrStreamClosed
	}

	now := s.engine.now()
	s.m.Lock()
	feedback := s.appendPLILocked(nil, now)
	s.m.Unlock()

	return s.engine.sendFeedback(feedback, s.ssrc)
}

// Stats returns a point-in-time snapshot.
func (s *ReceiveStream) Stats() ReceiveStreamStats {
	s.m.Lock()
	defer s.m.Unlock()

	stats := ReceiveStreamStats{
		PacketsReceived:         s.packetsReceived,
		BytesReceived:           s.bytesReceived,
		Jitter:                  s.jitter,
		FECRecovered:            s.fecRecovered,
		RetransmissionsReceived: s.rtxReceived,
		NACKsSent:               s.nacksSent,
		PLIsSent:                s.plisSent,
		GapsGivenUp:             s.gapsGivenUp,
		LatePacketsDropped:      s.reorder.Dropped(),
		FramesDropped:           s.framesDropped,
		RTT:                     s.rtt,
	}
	if s.fdec != nil {
		stats.FECUnrecoverable = s.fdec.UnrecoverableGroups()
	}
	if s.seqInitialized {
		expected := s.highestSeq - s.firstSeq + 1
		stats.PacketsLost = max(expected-int64(s.packetsReceived), 0) //nolint:gosec // bounded
	}

	return stats
}

// Close marks the stream inactive, removes it from the engine and closes
// the frame queue. Safe to call concurrently with packet processing.
func (s *ReceiveStream) Close() error {
	if !s.active.SetToIf(true, false) {
		return nil
	}
	s.engine.removeReceiveStream(s.ssrc)

	s.m.Lock()
	s.closed = true
	close(s.frames)
	s.m.Unlock()

	return nil
}

// matches reports whether an inbound SSRC belongs to this stream's media,
// RTX or FEC flows.
func (s *ReceiveStream) matches(ssrc uint32) bool {
	if ssrc == s.ssrc {
		return true
	}
	if s.rtxParams != nil && ssrc == s.rtxParams.SSRC {
		return true
	}
	if s.fecParams != nil && ssrc == s.fecParams.SSRC {
		return true
	}

	return false
}

// processRTP runs the receive pipeline for one parsed packet. It is called
// from the transport read path; the critical section is bounded container
// work, no I/O. Feedback is sent after the lock is released.
func (s *ReceiveStream) processRTP(packet *rtp.Packet, now time.Time) {
	if s.active.IsNotSet() {
		return
	}

	s.m.Lock()
	if s.closed {
		s.m.Unlock()

		return
	}

	switch {
	case s.rtxParams != nil && packet.SSRC == s.rtxParams.SSRC:
		if media, ok := rtx.UnwrapRTX(packet, s.ssrc, s.payloadType); ok {
			s.rtxReceived++
			s.handleMediaLocked(media, now, sourceRTX)
		}
	case s.fecParams != nil && packet.SSRC == s.fecParams.SSRC:
		s.handleParityLocked(packet, now)
	default:
		s.handleMediaLocked(packet, now, sourcePrimary)
	}

	feedback := s.collectFeedbackLocked(now)
	s.m.Unlock()

	if len(feedback) > 0 {
		if err := s.engine.sendFeedback(feedback, s.ssrc); err != nil {
			s.engine.log.Warnf("send feedback for ssrc %d: %v", s.ssrc, err)
		}
	}
}

func (s *ReceiveStream) handleParityLocked(packet *rtp.Packet, now time.Time) {
	restored, err := s.fdec.AddParity(packet, s.ssrc)
	switch {
	case errors.Is(err, fec.ErrTooManyLosses):
		// Too many losses in the group; the NACK/PLI path takes over.
		// Packets recovered from other groups are still delivered below.
		s.engine.log.Infof("fec group unrecoverable for ssrc %d", s.ssrc)
	case err != nil:
		s.engine.log.Infof("drop malformed parity packet for ssrc %d: %v", s.ssrc, err)

		return
	}
	for _, media := range restored {
		s.fecRecovered++
		s.handleMediaLocked(media, now, sourceFEC)
	}
}

func (s *ReceiveStream) handleMediaLocked(packet *rtp.Packet, now time.Time, source packetSource) {
	seq := packet.SequenceNumber
	unwrapped := s.unwrapper.Unwrap(seq)
	if !s.seqInitialized {
		s.firstSeq = unwrapped
		s.highestSeq = unwrapped
		s.seqInitialized = true
	} else if unwrapped > s.highestSeq {
		s.highestSeq = unwrapped
	}

	s.packetsReceived++
	s.bytesReceived += uint64(packet.MarshalSize())

	// RFC 3550 interarrival jitter, first-transmission packets only: the
	// arrival time of a recovered packet says nothing about the path.
	// Arrival is measured in clock units on an absolute clock anchored at
	// the first packet, so a constant frame interval yields zero jitter.
	if source == sourcePrimary {
		if !s.arrivalValid {
			s.arrivalValid = true
			s.arrivalBase = now
			s.lastTransit = -int(packet.Timestamp)
		} else {
			arrival := int(now.Sub(s.arrivalBase).Seconds() * s.clockRate)
			transit := arrival - int(packet.Timestamp)
			d := transit - s.lastTransit
			s.lastTransit = transit
			if d < 0 {
				d = -d
			}
			s.jitter += (1.0 / 16.0) * (float64(d) - s.jitter)
		}
	}

	s.log.Add(seq)

	if source != sourcePrimary {
		if len(s.recovered) >= maxRecoveredMarks {
			s.recovered = map[uint16]bool{}
		}
		s.recovered[seq] = true
	}

	if s.fdec != nil && source != sourceFEC {
		for _, restored := range s.fdec.AddMedia(packet) {
			s.fecRecovered++
			s.handleMediaLocked(restored, now, sourceFEC)
		}
	}

	ready, gaps := s.reorder.Push(packet)
	s.absorbLocked(ready, gaps)
}

// absorbLocked feeds reorder-buffer output into frame assembly.
func (s *ReceiveStream) absorbLocked(ready []*rtp.Packet, gaps []uint16) {
	for _, seq := range gaps {
		s.gapsGivenUp++
		delete(s.recovered, seq)
		// Mark the abandoned slot as settled in the receive log so the
		// NACK generator stops re-requesting a packet nobody waits for.
		s.log.Add(seq)
	}
	if len(gaps) > 0 && s.frag.valid {
		// A gap inside the current frame makes it unassemblable.
		s.frag = frameAssembly{}
		s.framesDropped++
	}

	for _, packet := range ready {
		seq := packet.SequenceNumber
		wasRecovered := s.recovered[seq]
		delete(s.recovered, seq)

		if s.frag.valid && s.frag.timestamp != packet.Timestamp {
			// Frame boundary without a marker: the tail was lost and
			// given up.
			s.frag = frameAssembly{}
			s.framesDropped++
		}
		if !s.frag.valid {
			s.frag = frameAssembly{valid: true, timestamp: packet.Timestamp}
		}
		s.frag.parts = append(s.frag.parts, packet.Payload)
		s.frag.size += len(packet.Payload)
		s.frag.recovered = s.frag.recovered || wasRecovered

		if packet.Marker {
			s.deliverLocked(Frame{
				SSRC:        s.ssrc,
				PayloadType: s.payloadType,
				Timestamp:   s.frag.timestamp,
				Data:        s.frag.assemble(),
				Recovered:   s.frag.recovered,
			})
			s.frag = frameAssembly{}
		}
	}
}

func (a *frameAssembly) assemble() []byte {
	data := make([]byte, 0, a.size)
	for _, part := range a.parts {
		data = append(data, part...)
	}

	return data
}

func (s *ReceiveStream) deliverLocked(frame Frame) {
	if s.closed {
		return
	}
	select {
	case s.frames <- frame:
	default:
		s.framesDropped++
	}
}

// collectFeedbackLocked decides whether the current loss state warrants a
// NACK or a PLI. Both are rate limited; the newest nackSkipLastN sequence
// numbers are excluded so reordering and FEC recovery get a chance first.
func (s *ReceiveStream) collectFeedbackLocked(now time.Time) []rtcp.Packet {
	missing := s.log.MissingSeqNumbers(s.nackSkipLastN, s.missingScratch[:0])
	s.missingScratch = missing[:0]
	if len(missing) == 0 {
		return nil
	}

	var feedback []rtcp.Packet
	if s.nackLimiter.AllowN(now, 1) {
		s.nacksSent++
		feedback = append(feedback, &rtcp.TransportLayerNack{
			SenderSSRC: s.ssrc,
			MediaSSRC:  s.ssrc,
			Nacks:      rtcp.NackPairsFromSequenceNumbers(missing),
		})
	}
	if len(missing) >= s.pliThreshold {
		feedback = s.appendPLILocked(feedback, now)
	}

	return feedback
}

func (s *ReceiveStream) appendPLILocked(feedback []rtcp.Packet, now time.Time) []rtcp.Packet {
	if !s.pliLimiter.AllowN(now, 1) {
		return feedback
	}
	s.plisSent++

	return append(feedback, &rtcp.PictureLossIndication{
		SenderSSRC: s.ssrc,
		MediaSSRC:  s.ssrc,
	})
}

// expire releases packets held past the reorder max-wait. Driven by the
// engine's report ticker.
func (s *ReceiveStream) expire(now time.Time) {
	s.m.Lock()
	ready, gaps := s.reorder.Expired()
	s.absorbLocked(ready, gaps)
	feedback := s.collectFeedbackLocked(now)
	s.m.Unlock()

	if len(feedback) > 0 {
		if err := s.engine.sendFeedback(feedback, s.ssrc); err != nil {
			s.engine.log.Warnf("send feedback for ssrc %d: %v", s.ssrc, err)
		}
	}
}

func (s *ReceiveStream) handleSenderReport(report *rtcp.SenderReport, now time.Time) {
	s.m.Lock()
	s.lastSRNTP = report.NTPTime
	s.lastSRArrival = now
	s.m.Unlock()
}

// handleDLRR closes the XR round trip: the remote echoes the reference
// time of one of our RRTRs plus its processing delay.
func (s *ReceiveStream) handleDLRR(report rtcp.DLRRReport, now time.Time) {
	s.m.Lock()
	defer s.m.Unlock()

	for i := len(s.sentRRTRs) - 1; i >= 0; i-- {
		if uint32((s.sentRRTRs[i]&0x0000FFFFFFFF0000)>>16) == report.LastRR { //nolint:gosec // masked to 32 bits
			delay := time.Duration(float64(report.DLRR) / 65536.0 * float64(time.Second))
			rtt := now.Add(-delay).Sub(ntp.ToTime(s.sentRRTRs[i]))
			if rtt > 0 {
				s.rtt = rtt
			}

			return
		}
	}
}

// buildReceptionReport produces the periodic RR block for this stream, plus
// an RRTR reference time block for XR round-trip measurement.
func (s *ReceiveStream) buildReceptionReport(now time.Time) (rtcp.ReceptionReport, *rtcp.ReceiverReferenceTimeReportBlock) {
	s.m.Lock()
	defer s.m.Unlock()

	report := s.buildReceptionReportLocked(now)

	rrtrNTP := ntp.ToNTP(now)
	s.sentRRTRs = append(s.sentRRTRs, rrtrNTP)
	if len(s.sentRRTRs) > rrtrHistory {
		s.sentRRTRs = s.sentRRTRs[len(s.sentRRTRs)-rrtrHistory:]
	}

	return report, &rtcp.ReceiverReferenceTimeReportBlock{NTPTimestamp: rrtrNTP}
}

// receiverReport wraps the current reception state in a standalone RR, used
// to lead a compound feedback packet.
func (s *ReceiveStream) receiverReport(now time.Time) *rtcp.ReceiverReport {
	s.m.Lock()
	defer s.m.Unlock()

	return &rtcp.ReceiverReport{
		SSRC:    s.ssrc,
		Reports: []rtcp.ReceptionReport{s.buildReceptionReportLocked(now)},
	}
}

func (s *ReceiveStream) buildReceptionReportLocked(now time.Time) rtcp.ReceptionReport {
	report := rtcp.ReceptionReport{
		SSRC:   s.ssrc,
		Jitter: uint32(s.jitter), //nolint:gosec // jitter is non-negative
	}

	if s.seqInitialized {
		received := int64(s.packetsReceived) //nolint:gosec // bounded
		expected := s.highestSeq - s.firstSeq + 1
		report.TotalLost = uint32(max(expected-received, 0)) //nolint:gosec // clamped
		report.LastSequenceNumber = uint32(s.highestSeq)     //nolint:gosec // extended seq wraps by design

		expectedInterval := expected - s.expectedPrior
		receivedInterval := received - s.receivedPrior
		s.expectedPrior = expected
		s.receivedPrior = received
		if lostInterval := expectedInterval - receivedInterval; expectedInterval > 0 && lostInterval > 0 {
			report.FractionLost = uint8(min((lostInterval<<8)/expectedInterval, 255)) //nolint:gosec // clamped
		}
	}

	if s.lastSRNTP != 0 {
		report.LastSenderReport = uint32((s.lastSRNTP & 0x0000FFFFFFFF0000) >> 16) //nolint:gosec // masked to 32 bits
		report.Delay = uint32(now.Sub(s.lastSRArrival).Seconds() * 65536)          //nolint:gosec // bounded by report interval
	}

	return report
}
