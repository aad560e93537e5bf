// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/tevino/abool"

	"github.com/pion/rtpengine/internal/ntp"
	"github.com/pion/rtpengine/pkg/fec"
	"github.com/pion/rtpengine/pkg/rtcp"
	"github.com/pion/rtpengine/pkg/rtp"
	"github.com/pion/rtpengine/pkg/rtx"
)

const (
	rtpHeaderLength       = 12
	defaultMaxPacketSize  = 1200
	defaultSendBufferSize = 1024
	senderReportHistory   = 5
)

// RTXParameters configures a retransmission stream tied to a media stream.
// Replayed packets use the distinct SSRC and payload type with their own
// sequence space.
type RTXParameters struct {
	SSRC        uint32
	PayloadType uint8
}

// FECParameters configures the parity stream protecting a media stream.
type FECParameters struct {
	SSRC        uint32
	PayloadType uint8

	// GroupSize is the number of media packets protected by one parity
	// packet, in [2, fec.MaxGroupSize]. Zero selects the encoder default.
	GroupSize int
}

// SendStreamConfig describes an outbound stream.
type SendStreamConfig struct {
	SSRC        uint32
	PayloadType uint8
	ClockRate   uint32

	// MaxPacketSize bounds the size of marshaled packets; frames larger
	// than the payload capacity are fragmented. Defaults to 1200.
	MaxPacketSize int

	// RTX enables re-wrapped retransmissions. When nil, NACKed packets are
	// replayed verbatim under the media SSRC.
	RTX *RTXParameters

	// FEC enables parity generation. When nil no parity is sent.
	FEC *FECParameters

	// SendBufferSize is the retransmission store capacity in packets; must
	// be a power of two. Defaults to 1024.
	SendBufferSize uint16

	// MaxResends caps how often a single sequence number is replayed.
	// Zero means unlimited.
	MaxResends int

	// Sequencer overrides the sequence number source. Defaults to a
	// randomly seeded sequencer.
	Sequencer rtp.Sequencer

	// OnKeyFrameRequest is invoked when the remote receiver sends a PLI.
	OnKeyFrameRequest func()
}

// SendStream is the sender pipeline for one SSRC: fragmentation, FEC
// protection, retransmission recording and paced handoff to the transport.
// Methods are safe for concurrent use.
type SendStream struct {
	engine *Engine

	ssrc          uint32
	payloadType   uint8
	clockRate     float64
	maxPacketSize int

	sequencer rtp.Sequencer
	buffer    *rtx.SendBuffer
	responder *rtx.Responder
	fenc      *fec.Encoder

	onKeyFrameRequest func()

	active *abool.AtomicBool

	m            sync.Mutex
	packetsSent  uint64
	bytesSent    uint64
	fecSent      uint64
	resent       uint64
	nacksRecv    uint64
	plisRecv     uint64
	sendErrors   uint64
	octetCount   uint32
	lastRTPTime  uint32
	lastSendTime time.Time

	// sentSRs holds the NTP timestamps of the most recent sender reports,
	// matched against the LSR field of incoming receiver reports.
	sentSRs []uint64

	remoteFractionLost float64
	remoteLost         uint32
	remoteJitter       time.Duration
	rtt                time.Duration
}

func newSendStream(engine *Engine, config SendStreamConfig) (*SendStream, error) {
	if config.ClockRate == 0 {
		return nil, errInvalidClockRate
	}
	maxPacketSize := config.MaxPacketSize
	if maxPacketSize == 0 {
		maxPacketSize = defaultMaxPacketSize
	}
	if maxPacketSize <= rtpHeaderLength {
		return nil, fmt.Errorf("%w: %d", errInvalidPacketSize, maxPacketSize)
	}

	bufferSize := config.SendBufferSize
	if bufferSize == 0 {
		bufferSize = defaultSendBufferSize
	}
	buffer, err := rtx.NewSendBuffer(bufferSize)
	if err != nil {
		return nil, err
	}

	responderOpts := []rtx.ResponderOption{
		rtx.WithResponderLoggerFactory(engine.loggerFactory),
	}
	if config.RTX != nil {
		responderOpts = append(responderOpts, rtx.WithRTX(config.RTX.SSRC, config.RTX.PayloadType))
	}
	if config.MaxResends > 0 {
		responderOpts = append(responderOpts, rtx.WithMaxResends(config.MaxResends))
	}

	sequencer := config.Sequencer
	if sequencer == nil {
		sequencer = rtp.NewRandomSequencer()
	}

	stream := &SendStream{
		engine:            engine,
		ssrc:              config.SSRC,
		payloadType:       config.PayloadType,
		clockRate:         float64(config.ClockRate),
		maxPacketSize:     maxPacketSize,
		sequencer:         sequencer,
		buffer:            buffer,
		responder:         rtx.NewResponder(buffer, responderOpts...),
		onKeyFrameRequest: config.OnKeyFrameRequest,
		active:            abool.NewBool(true),
	}

	if config.FEC != nil {
		if config.FEC.GroupSize < 0 || config.FEC.GroupSize > fec.MaxGroupSize || config.FEC.GroupSize == 1 {
			return nil, fmt.Errorf("%w: %d", errInvalidFECGroupSize, config.FEC.GroupSize)
		}
		fecOpts := []fec.EncoderOption{}
		if config.FEC.GroupSize > 0 {
			fecOpts = append(fecOpts, fec.WithGroupSize(config.FEC.GroupSize))
		}
		stream.fenc = fec.NewEncoder(config.FEC.SSRC, config.FEC.PayloadType, fecOpts...)
	}

	return stream, nil
}

// SSRC returns the stream identity.
func (s *SendStream) SSRC() uint32 {
	return s.ssrc
}

// WriteFrame packetizes one encoded frame and hands the packets to the
// pacer. Payloads exceeding the packet payload capacity are fragmented
// across packets sharing the frame timestamp, with the marker bit set only
// on the last fragment. Every media packet is recorded in the
// retransmission store before it is sent, so a transport failure does not
// prevent a later NACK from replaying it.
func (s *SendStream) WriteFrame(frame Frame) error {
	if s.active.IsNotSet() {
		return ErrStreamClosed
	}

	now := s.engine.now()
	maxPayload := s.maxPacketSize - rtpHeaderLength
	data := frame.Data

	for offset := 0; offset == 0 || offset < len(data); {
		end := min(offset+maxPayload, len(data))
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(data),
				PayloadType:    s.payloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      frame.Timestamp,
				SSRC:           s.ssrc,
			},
			Payload: data[offset:end],
		}
		offset = end

		if err := s.writeMedia(packet, now); err != nil {
			return err
		}
		if offset >= len(data) {
			break
		}
	}

	return nil
}

func (s *SendStream) writeMedia(packet *rtp.Packet, now time.Time) error {
	s.buffer.Add(packet, now)

	var parity *rtp.Packet
	if s.fenc != nil {
		parity = s.fenc.AddPacket(packet)
	}

	size := packet.MarshalSize()
	s.m.Lock()
	s.packetsSent++
	s.bytesSent += uint64(size)
	s.octetCount += uint32(len(packet.Payload)) //nolint:gosec // payload below packet size
	s.lastRTPTime = packet.Timestamp
	s.lastSendTime = now
	s.m.Unlock()

	s.engine.onPacketSent(now, size)
	if err := s.engine.pace(packet); err != nil {
		return err
	}

	if parity != nil {
		s.m.Lock()
		s.fecSent++
		s.m.Unlock()
		s.engine.onPacketSent(now, parity.MarshalSize())

		return s.engine.pace(parity)
	}

	return nil
}

// FlushFEC closes the current parity group early, emitting a parity packet
// covering the packets sent since the last group boundary.
func (s *SendStream) FlushFEC() error {
	if s.fenc == nil {
		return nil
	}
	if s.active.IsNotSet() {
		return ErrStreamClosed
	}
	parity := s.fenc.Flush()
	if parity == nil {
		return nil
	}

	s.m.Lock()
	s.fecSent++
	s.m.Unlock()
	s.engine.onPacketSent(s.engine.now(), parity.MarshalSize())

	return s.engine.pace(parity)
}

// Stats returns a point-in-time snapshot.
func (s *SendStream) Stats() SendStreamStats {
	s.m.Lock()
	defer s.m.Unlock()

	return SendStreamStats{
		PacketsSent:         s.packetsSent,
		BytesSent:           s.bytesSent,
		RetransmissionsSent: s.resent,
		FECPacketsSent:      s.fecSent,
		NACKsReceived:       s.nacksRecv,
		PLIsReceived:        s.plisRecv,
		RemoteFractionLost:  s.remoteFractionLost,
		RemotePacketsLost:   s.remoteLost,
		RemoteJitter:        s.remoteJitter,
		RTT:                 s.rtt,
		TransportErrors:     s.sendErrors,
	}
}

// Close marks the stream inactive and removes it from the engine. New
// writes are rejected immediately; packets already handed to the pacer
// drain normally.
func (s *SendStream) Close() error {
	if !s.active.SetToIf(true, false) {
		return nil
	}
	s.engine.removeSendStream(s.ssrc)

	return nil
}

// handleNack replays the requested sequence numbers directly through the
// transport, bypassing the pacer. Missing or evicted sequence numbers are
// skipped silently.
func (s *SendStream) handleNack(nack *rtcp.TransportLayerNack, now time.Time) {
	if s.active.IsNotSet() {
		return
	}

	s.m.Lock()
	s.nacksRecv++
	s.m.Unlock()

	for _, packet := range s.responder.HandleNack(nack, now) {
		buf, err := packet.Marshal()
		if err != nil {
			s.engine.log.Errorf("marshal retransmission for ssrc %d: %v", s.ssrc, err)

			continue
		}
		if err := s.engine.transport.WriteRTP(buf); err != nil {
			s.recordSendError(err)
			s.engine.log.Warnf("retransmission for ssrc %d failed: %v", s.ssrc, err)

			continue
		}
		s.m.Lock()
		s.resent++
		s.m.Unlock()
	}
}

func (s *SendStream) handlePLI() {
	s.m.Lock()
	s.plisRecv++
	s.m.Unlock()

	if s.onKeyFrameRequest != nil {
		s.onKeyFrameRequest()
	}
}

// handleReceptionReport digests one reception report block addressed to this
// stream: remote loss and jitter, and the LSR/DLSR round-trip time when the
// report references one of our recent sender reports.
func (s *SendStream) handleReceptionReport(report rtcp.ReceptionReport, now time.Time) {
	s.m.Lock()
	s.remoteFractionLost = float64(report.FractionLost) / 256.0
	s.remoteLost = report.TotalLost
	s.remoteJitter = time.Duration(float64(report.Jitter) / s.clockRate * float64(time.Second))

	if report.LastSenderReport != 0 {
		for i := len(s.sentSRs) - 1; i >= 0; i-- {
			if uint32((s.sentSRs[i]&0x0000FFFFFFFF0000)>>16) == report.LastSenderReport { //nolint:gosec // masked to 32 bits
				dlsr := time.Duration(float64(report.Delay) / 65536.0 * float64(time.Second))
				rtt := now.Add(-dlsr).Sub(ntp.ToTime(s.sentSRs[i]))
				if rtt > 0 {
					s.rtt = rtt
				}

				break
			}
		}
	}
	fractionLost := report.FractionLost
	jitter := s.remoteJitter
	rtt := s.rtt
	s.m.Unlock()

	s.engine.onReceiverReport(now, fractionLost, jitter, rtt)
}

// buildSenderReport produces the periodic SR for this stream and records
// its NTP timestamp for later RTT matching.
func (s *SendStream) buildSenderReport(now time.Time) *rtcp.SenderReport {
	s.m.Lock()
	defer s.m.Unlock()

	ntpTime := ntp.ToNTP(now)
	rtpTime := s.lastRTPTime
	if !s.lastSendTime.IsZero() {
		rtpTime += uint32(now.Sub(s.lastSendTime).Seconds() * s.clockRate) //nolint:gosec // wraps by design
	}

	s.sentSRs = append(s.sentSRs, ntpTime)
	if len(s.sentSRs) > senderReportHistory {
		s.sentSRs = s.sentSRs[len(s.sentSRs)-senderReportHistory:]
	}

	return &rtcp.SenderReport{
		SSRC:        s.ssrc,
		NTPTime:     ntpTime,
		RTPTime:     rtpTime,
		PacketCount: uint32(s.packetsSent), //nolint:gosec // wraps by design
		OctetCount:  s.octetCount,
	}
}

func (s *SendStream) recordSendError(error) {
	s.m.Lock()
	s.sendErrors++
	s.m.Unlock()
}
