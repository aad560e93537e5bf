// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtx

import (
	"encoding/binary"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtpengine/pkg/rtcp"
	"github.com/pion/rtpengine/pkg/rtp"
)

// Responder replays packets from a SendBuffer in response to NACK feedback.
// In RTX mode replayed packets are re-wrapped under a distinct SSRC, payload
// type and sequence space, with the original sequence number embedded in the
// first two payload bytes. Keeping the RTX sequence space independent lets a
// receiver separate first-transmission loss from retransmission traffic.
type Responder struct {
	buffer     *SendBuffer
	maxResends int
	log        logging.LeveledLogger

	rtxSSRC        uint32
	rtxPayloadType uint8
	rtxSequencer   rtp.Sequencer
}

// ResponderOption can be used to configure Responder.
type ResponderOption func(*Responder)

// WithRTX re-wraps replayed packets under ssrc and payloadType instead of
// resending them verbatim.
func WithRTX(ssrc uint32, payloadType uint8) ResponderOption {
	return func(r *Responder) {
		r.rtxSSRC = ssrc
		r.rtxPayloadType = payloadType
		r.rtxSequencer = rtp.NewRandomSequencer()
	}
}

// WithMaxResends caps how many times a single packet may be replayed.
func WithMaxResends(n int) ResponderOption {
	return func(r *Responder) {
		r.maxResends = n
	}
}

// WithResponderLoggerFactory sets the logger factory used by the Responder.
func WithResponderLoggerFactory(f logging.LoggerFactory) ResponderOption {
	return func(r *Responder) {
		r.log = f.NewLogger("rtx_responder")
	}
}

// NewResponder constructs a Responder replaying from buffer.
func NewResponder(buffer *SendBuffer, opts ...ResponderOption) *Responder {
	responder := &Responder{
		buffer: buffer,
		log:    logging.NewDefaultLoggerFactory().NewLogger("rtx_responder"),
	}
	for _, opt := range opts {
		opt(responder)
	}

	return responder
}

// RTXEnabled reports whether replayed packets are re-wrapped as RTX.
func (r *Responder) RTXEnabled() bool {
	return r.rtxSequencer != nil
}

// HandleNack resolves each requested sequence number against the send buffer
// and returns the packets to put back on the wire. Sequence numbers that are
// not in the buffer are skipped silently.
func (r *Responder) HandleNack(nack *rtcp.TransportLayerNack, now time.Time) []*rtp.Packet {
	var resend []*rtp.Packet

	for i := range nack.Nacks {
		nack.Nacks[i].Range(func(seq uint16) bool {
			packet := r.buffer.Get(seq, now)
			if packet == nil {
				return true
			}
			if !r.buffer.markResent(seq, r.maxResends) {
				r.log.Debugf("skipping resend of %d, resend limit reached", seq)

				return true
			}

			if r.RTXEnabled() {
				packet = r.wrapRTX(packet)
			}
			resend = append(resend, packet)

			return true
		})
	}

	return resend
}

// wrapRTX builds an RTX packet (RFC 4588) carrying packet as its payload.
func (r *Responder) wrapRTX(packet *rtp.Packet) *rtp.Packet {
	wrapped := packet.Clone()
	wrapped.SSRC = r.rtxSSRC
	wrapped.PayloadType = r.rtxPayloadType
	wrapped.SequenceNumber = r.rtxSequencer.NextSequenceNumber()

	payload := make([]byte, 2+len(packet.Payload))
	binary.BigEndian.PutUint16(payload, packet.SequenceNumber)
	copy(payload[2:], packet.Payload)
	wrapped.Payload = payload

	return wrapped
}

// UnwrapRTX recovers the original packet from an RTX packet, restoring the
// media SSRC, payload type and embedded original sequence number.
func UnwrapRTX(packet *rtp.Packet, mediaSSRC uint32, mediaPayloadType uint8) (*rtp.Packet, bool) {
	if len(packet.Payload) < 2 {
		return nil, false
	}

	unwrapped := packet.Clone()
	unwrapped.SSRC = mediaSSRC
	unwrapped.PayloadType = mediaPayloadType
	unwrapped.SequenceNumber = binary.BigEndian.Uint16(packet.Payload)
	unwrapped.Payload = unwrapped.Payload[2:]

	return unwrapped, true
}
