// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/rtpengine/pkg/rtcp"
	"github.com/pion/rtpengine/pkg/rtp"
)

type mockTransport struct {
	mu      sync.Mutex
	rtpOut  [][]byte
	rtcpOut [][]byte
}

func (t *mockTransport) WriteRTP(buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rtpOut = append(t.rtpOut, append([]byte{}, buf...))

	return nil
}

func (t *mockTransport) WriteRTCP(buf []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rtcpOut = append(t.rtcpOut, append([]byte{}, buf...))

	return nil
}

func (t *mockTransport) rtpCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.rtpOut)
}

func (t *mockTransport) rtcpPackets(t2 *testing.T) [][]rtcp.Packet {
	t2.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	var compounds [][]rtcp.Packet
	for _, buf := range t.rtcpOut {
		packets, err := rtcp.Unmarshal(buf)
		require.NoError(t2, err)
		compounds = append(compounds, packets)
	}

	return compounds
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Now()}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func drainFrames(stream *ReceiveStream) []Frame {
	var frames []Frame
	for {
		select {
		case frame := <-stream.Frames():
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func nacksIn(compounds [][]rtcp.Packet) []*rtcp.TransportLayerNack {
	var nacks []*rtcp.TransportLayerNack
	for _, compound := range compounds {
		for _, packet := range compound {
			if nack, ok := packet.(*rtcp.TransportLayerNack); ok {
				nacks = append(nacks, nack)
			}
		}
	}

	return nacks
}

func plisIn(compounds [][]rtcp.Packet) []*rtcp.PictureLossIndication {
	var plis []*rtcp.PictureLossIndication
	for _, compound := range compounds {
		for _, packet := range compound {
			if pli, ok := packet.(*rtcp.PictureLossIndication); ok {
				plis = append(plis, pli)
			}
		}
	}

	return plis
}

func TestNackReplayFillsGaps(t *testing.T) {
	senderTransport := &mockTransport{}
	sender, err := New(senderTransport)
	require.NoError(t, err)
	defer func() { require.NoError(t, sender.Close()) }()

	sendStream, err := sender.CreateSendStream(SendStreamConfig{
		SSRC:      1,
		ClockRate: 90000,
		Sequencer: rtp.NewFixedSequencer(100),
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, sendStream.WriteFrame(Frame{
			Timestamp: uint32(i * 3000), //nolint:gosec // bounded
			Data:      []byte{0, 1, 2, 3},
		}))
	}
	require.Eventually(t, func() bool { return senderTransport.rtpCount() == 10 }, time.Second, 5*time.Millisecond)

	clock := newMockClock()
	receiverTransport := &mockTransport{}
	receiver, err := New(receiverTransport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, receiver.Close()) }()

	recvStream, err := receiver.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      1,
		ClockRate: 90000,
	})
	require.NoError(t, err)

	// deliver everything except seq 102 and 105
	senderTransport.mu.Lock()
	sent := append([][]byte{}, senderTransport.rtpOut...)
	senderTransport.mu.Unlock()
	for _, buf := range sent {
		packet := &rtp.Packet{}
		require.NoError(t, packet.Unmarshal(buf))
		if packet.SequenceNumber == 102 || packet.SequenceNumber == 105 {
			continue
		}
		clock.Advance(100 * time.Millisecond)
		require.NoError(t, receiver.ProcessRTP(buf))
	}

	nacks := nacksIn(receiverTransport.rtcpPackets(t))
	require.NotEmpty(t, nacks)
	requested := map[uint16]bool{}
	for _, nack := range nacks {
		assert.Equal(t, uint32(1), nack.MediaSSRC)
		for _, pair := range nack.Nacks {
			for _, seq := range pair.PacketList() {
				requested[seq] = true
			}
		}
	}
	assert.True(t, requested[102])
	assert.True(t, requested[105])

	// hand the feedback to the sender; replays bypass the pacer
	before := senderTransport.rtpCount()
	receiverTransport.mu.Lock()
	feedback := append([][]byte{}, receiverTransport.rtcpOut...)
	receiverTransport.mu.Unlock()
	for _, buf := range feedback {
		require.NoError(t, sender.ProcessRTCP(buf))
	}
	require.Greater(t, senderTransport.rtpCount(), before)

	senderTransport.mu.Lock()
	replays := append([][]byte{}, senderTransport.rtpOut[before:]...)
	senderTransport.mu.Unlock()
	for _, buf := range replays {
		clock.Advance(time.Millisecond)
		require.NoError(t, receiver.ProcessRTP(buf))
	}

	frames := drainFrames(recvStream)
	require.Len(t, frames, 10)
	for i, frame := range frames {
		assert.Equal(t, uint32(i*3000), frame.Timestamp) //nolint:gosec // bounded
	}

	stats := recvStream.Stats()
	assert.Zero(t, stats.PacketsLost)

	recvStream.m.Lock()
	missing := recvStream.log.MissingSeqNumbers(0, nil)
	recvStream.m.Unlock()
	assert.Empty(t, missing)

	senderStats := sendStream.Stats()
	assert.GreaterOrEqual(t, senderStats.RetransmissionsSent, uint64(2))
	assert.GreaterOrEqual(t, senderStats.NACKsReceived, uint64(1))
}

func TestFECRecoversWithoutNack(t *testing.T) {
	senderTransport := &mockTransport{}
	sender, err := New(senderTransport)
	require.NoError(t, err)
	defer func() { require.NoError(t, sender.Close()) }()

	sendStream, err := sender.CreateSendStream(SendStreamConfig{
		SSRC:      1,
		ClockRate: 90000,
		Sequencer: rtp.NewFixedSequencer(200),
		FEC:       &FECParameters{SSRC: 2, PayloadType: 117, GroupSize: 5},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, sendStream.WriteFrame(Frame{
			Timestamp: uint32(i * 3000), //nolint:gosec // bounded
			Data:      []byte{byte(i), 1, 2},
		}))
	}
	// five media packets plus one parity packet
	require.Eventually(t, func() bool { return senderTransport.rtpCount() == 6 }, time.Second, 5*time.Millisecond)

	receiverTransport := &mockTransport{}
	receiver, err := New(receiverTransport)
	require.NoError(t, err)
	defer func() { require.NoError(t, receiver.Close()) }()

	recvStream, err := receiver.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      1,
		ClockRate: 90000,
		FEC:       &FECParameters{SSRC: 2, PayloadType: 117},
	})
	require.NoError(t, err)

	senderTransport.mu.Lock()
	sent := append([][]byte{}, senderTransport.rtpOut...)
	senderTransport.mu.Unlock()
	for _, buf := range sent {
		packet := &rtp.Packet{}
		require.NoError(t, packet.Unmarshal(buf))
		if packet.SSRC == 1 && packet.SequenceNumber == 202 {
			continue
		}
		require.NoError(t, receiver.ProcessRTP(buf))
	}

	assert.Empty(t, nacksIn(receiverTransport.rtcpPackets(t)))

	frames := drainFrames(recvStream)
	require.Len(t, frames, 5)
	for i, frame := range frames {
		assert.Equal(t, uint32(i*3000), frame.Timestamp) //nolint:gosec // bounded
		assert.Equal(t, i == 2, frame.Recovered, "frame %d", i)
	}

	stats := recvStream.Stats()
	assert.Equal(t, uint64(1), stats.FECRecovered)
	assert.Zero(t, stats.PacketsLost)
	assert.Zero(t, stats.NACKsSent)
}

func TestUnknownSSRCDroppedAndReported(t *testing.T) {
	var reported []uint32
	transport := &mockTransport{}
	engine, err := New(transport, WithOnUnknownSSRC(func(ssrc uint32) {
		reported = append(reported, ssrc)
	}))
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	packet := &rtp.Packet{Header: rtp.Header{Version: 2, SSRC: 0xDEAD, SequenceNumber: 7}}
	buf, err := packet.Marshal()
	require.NoError(t, err)

	err = engine.ProcessRTP(buf)
	require.ErrorIs(t, err, ErrUnknownSSRC)
	assert.Equal(t, []uint32{0xDEAD}, reported)
	assert.Equal(t, uint64(1), engine.UnknownSSRCCount())
}

func TestMalformedPacketsDropped(t *testing.T) {
	engine, err := New(&mockTransport{})
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	require.ErrorIs(t, engine.ProcessRTP([]byte{1, 2, 3}), rtp.ErrMalformedPacket)
	require.Error(t, engine.ProcessRTCP([]byte{1, 2, 3}))
}

func TestPLIEscalationOnLargeGap(t *testing.T) {
	clock := newMockClock()
	transport := &mockTransport{}
	engine, err := New(transport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	recvStream, err := engine.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      9,
		ClockRate: 90000,
	})
	require.NoError(t, err)

	writePacket := func(seq uint16) {
		packet := &rtp.Packet{Header: rtp.Header{Version: 2, SSRC: 9, SequenceNumber: seq, Marker: true}}
		buf, err := packet.Marshal()
		require.NoError(t, err)
		require.NoError(t, engine.ProcessRTP(buf))
	}

	writePacket(1)
	clock.Advance(100 * time.Millisecond)
	writePacket(40)

	compounds := transport.rtcpPackets(t)
	require.NotEmpty(t, nacksIn(compounds))
	require.NotEmpty(t, plisIn(compounds))

	stats := recvStream.Stats()
	assert.Equal(t, uint64(1), stats.PLIsSent)
	assert.Equal(t, uint64(1), stats.NACKsSent)
}

func TestKeyFrameRequestSendsPLI(t *testing.T) {
	transport := &mockTransport{}
	engine, err := New(transport)
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	recvStream, err := engine.CreateReceiveStream(ReceiveStreamConfig{SSRC: 9, ClockRate: 90000})
	require.NoError(t, err)

	require.NoError(t, recvStream.RequestKeyFrame())
	require.NotEmpty(t, plisIn(transport.rtcpPackets(t)))
}

func TestReportRoundTripMeasuresRTT(t *testing.T) {
	clock := newMockClock()

	senderTransport := &mockTransport{}
	sender, err := New(senderTransport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, sender.Close()) }()

	sendStream, err := sender.CreateSendStream(SendStreamConfig{SSRC: 7, ClockRate: 90000})
	require.NoError(t, err)

	receiverTransport := &mockTransport{}
	receiver, err := New(receiverTransport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, receiver.Close()) }()

	recvStream, err := receiver.CreateReceiveStream(ReceiveStreamConfig{SSRC: 7, ClockRate: 90000})
	require.NoError(t, err)

	require.NoError(t, sendStream.WriteFrame(Frame{Timestamp: 1234, Data: []byte{1, 2, 3}}))
	require.Eventually(t, func() bool { return senderTransport.rtpCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, receiver.ProcessRTP(senderTransport.rtpOut[0]))

	// sender report round
	srBuf, err := rtcp.Marshal(sender.buildReports(clock.Now()))
	require.NoError(t, err)
	require.NoError(t, receiver.ProcessRTCP(srBuf))

	// the receiver answers 30ms later with an RR carrying LSR/DLSR
	clock.Advance(30 * time.Millisecond)
	rrBuf, err := rtcp.Marshal(receiver.buildReports(clock.Now()))
	require.NoError(t, err)

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, sender.ProcessRTCP(rrBuf))

	rtt := sendStream.Stats().RTT
	assert.InDelta(t, float64(10*time.Millisecond), float64(rtt), float64(time.Millisecond))

	// the sender's next round answers the receiver's RRTR with a DLRR
	clock.Advance(5 * time.Millisecond)
	dlrrBuf, err := rtcp.Marshal(sender.buildReports(clock.Now()))
	require.NoError(t, err)

	clock.Advance(5 * time.Millisecond)
	require.NoError(t, receiver.ProcessRTCP(dlrrBuf))

	recvRTT := recvStream.Stats().RTT
	assert.InDelta(t, float64(15*time.Millisecond), float64(recvRTT), float64(time.Millisecond))
}

func TestSteadyArrivalYieldsZeroJitter(t *testing.T) {
	clock := newMockClock()
	transport := &mockTransport{}
	engine, err := New(transport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	recvStream, err := engine.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:      5,
		ClockRate: 90000,
	})
	require.NoError(t, err)

	// one packet every 30ms, timestamps advancing in lockstep: the network
	// adds no delay variation, so the jitter estimate must stay near zero
	for i := 0; i < 100; i++ {
		if i > 0 {
			clock.Advance(30 * time.Millisecond)
		}
		packet := &rtp.Packet{Header: rtp.Header{
			Version:        2,
			SSRC:           5,
			SequenceNumber: uint16(100 + i), //nolint:gosec // bounded
			Timestamp:      uint32(i) * 2700,
			Marker:         true,
		}}
		buf, err := packet.Marshal()
		require.NoError(t, err)
		require.NoError(t, engine.ProcessRTP(buf))
	}

	assert.Less(t, recvStream.Stats().Jitter, 1.0)
}

func TestAbandonedGapIsNotRequestedAgain(t *testing.T) {
	clock := newMockClock()
	transport := &mockTransport{}
	engine, err := New(transport, withNow(clock.Now))
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close()) }()

	recvStream, err := engine.CreateReceiveStream(ReceiveStreamConfig{
		SSRC:           9,
		ClockRate:      90000,
		NackSkipLastN:  1,
		MaxReorderWait: time.Nanosecond,
	})
	require.NoError(t, err)

	writePacket := func(seq uint16) {
		packet := &rtp.Packet{Header: rtp.Header{Version: 2, SSRC: 9, SequenceNumber: seq, Marker: true}}
		buf, err := packet.Marshal()
		require.NoError(t, err)
		require.NoError(t, engine.ProcessRTP(buf))
	}

	writePacket(1)
	writePacket(3)

	// let the wait elapse so the gap at seq 2 is given up for good
	time.Sleep(2 * time.Millisecond)
	recvStream.expire(clock.Now())
	require.Equal(t, uint64(1), recvStream.Stats().GapsGivenUp)

	transport.mu.Lock()
	transport.rtcpOut = nil
	transport.mu.Unlock()

	// with the NACK limiter refilled, further traffic must not re-request
	// the abandoned sequence number
	clock.Advance(time.Second)
	writePacket(4)

	assert.Empty(t, nacksIn(transport.rtcpPackets(t)))

	recvStream.m.Lock()
	missing := recvStream.log.MissingSeqNumbers(0, nil)
	recvStream.m.Unlock()
	assert.Empty(t, missing)
}

func TestEngineCloseRejectsNewWork(t *testing.T) {
	engine, err := New(&mockTransport{})
	require.NoError(t, err)

	sendStream, err := engine.CreateSendStream(SendStreamConfig{SSRC: 3, ClockRate: 90000})
	require.NoError(t, err)

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	require.ErrorIs(t, sendStream.WriteFrame(Frame{Data: []byte{1}}), ErrStreamClosed)
	require.ErrorIs(t, engine.ProcessRTP([]byte{0x80}), ErrEngineClosed)
	_, err = engine.CreateSendStream(SendStreamConfig{SSRC: 4, ClockRate: 90000})
	require.ErrorIs(t, err, ErrEngineClosed)
}
