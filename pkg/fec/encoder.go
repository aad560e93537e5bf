// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package fec implements XOR-based forward error correction for RTP
// streams: one parity packet protects a group of media packets and allows a
// receiver to reconstruct a single lost member without retransmission.
package fec

import (
	"encoding/binary"

	"github.com/pion/rtpengine/pkg/rtp"
)

// MaxGroupSize is the largest number of media packets one parity packet can
// protect, bounded by the 16-bit coverage mask.
const MaxGroupSize = 16

// Parity payload layout, preceding the XOR-ed payload recovery bytes:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|        sequence base          |         coverage mask         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|       length recovery         |  PT+M recov.  |               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+               +               +
//	|                      timestamp recovery                       |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
const parityHeaderLength = 11

const (
	seqBaseOffset      = 0
	maskOffset         = 2
	lengthRecOffset    = 4
	ptRecOffset        = 6
	timestampRecOffset = 7
)

// Encoder builds parity packets over groups of outgoing media packets. It is
// not safe for concurrent use; the sending pipeline drives it from a single
// goroutine.
type Encoder struct {
	ssrc        uint32
	payloadType uint8
	groupSize   int
	sequencer   rtp.Sequencer

	group []*rtp.Packet
}

// EncoderOption can be used to configure Encoder.
type EncoderOption func(*Encoder)

// WithGroupSize sets how many media packets are covered by one parity
// packet. The size is clamped to [1, MaxGroupSize].
func WithGroupSize(n int) EncoderOption {
	return func(e *Encoder) {
		if n < 1 {
			n = 1
		}
		if n > MaxGroupSize {
			n = MaxGroupSize
		}
		e.groupSize = n
	}
}

// NewEncoder constructs an Encoder emitting parity packets under ssrc and
// payloadType.
func NewEncoder(ssrc uint32, payloadType uint8, opts ...EncoderOption) *Encoder {
	encoder := &Encoder{
		ssrc:        ssrc,
		payloadType: payloadType,
		groupSize:   10,
		sequencer:   rtp.NewRandomSequencer(),
	}
	for _, opt := range opts {
		opt(encoder)
	}

	return encoder
}

// AddPacket registers an outgoing media packet. It returns a parity packet
// once the current group is complete, nil otherwise.
func (e *Encoder) AddPacket(packet *rtp.Packet) *rtp.Packet {
	e.group = append(e.group, packet.Clone())
	if len(e.group) < e.groupSize {
		return nil
	}

	return e.Flush()
}

// Flush closes the current group early and returns its parity packet, or nil
// if the group is empty.
func (e *Encoder) Flush() *rtp.Packet {
	if len(e.group) == 0 {
		return nil
	}

	parity := e.encodeParity(e.group)
	e.group = e.group[:0]

	return parity
}

func (e *Encoder) encodeParity(group []*rtp.Packet) *rtp.Packet {
	longest := 0
	for _, packet := range group {
		if len(packet.Payload) > longest {
			longest = len(packet.Payload)
		}
	}

	payload := make([]byte, parityHeaderLength+longest)
	binary.BigEndian.PutUint16(payload[seqBaseOffset:], group[0].SequenceNumber)

	var mask uint16
	var lengthRec uint16
	var ptRec uint8
	var timestampRec uint32

	for _, packet := range group {
		bit := packet.SequenceNumber - group[0].SequenceNumber
		mask |= 1 << bit

		lengthRec ^= uint16(len(packet.Payload)) //nolint:gosec // payloads are MTU-bounded
		ptRec ^= recoveryByte(packet)
		timestampRec ^= packet.Timestamp
		// mismatched lengths are zero-padded to the longest member for the
		// XOR only; the padding is not part of any real packet
		for i, b := range packet.Payload {
			payload[parityHeaderLength+i] ^= b
		}
	}

	binary.BigEndian.PutUint16(payload[maskOffset:], mask)
	binary.BigEndian.PutUint16(payload[lengthRecOffset:], lengthRec)
	payload[ptRecOffset] = ptRec
	binary.BigEndian.PutUint32(payload[timestampRecOffset:], timestampRec)

	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    e.payloadType,
			SequenceNumber: e.sequencer.NextSequenceNumber(),
			Timestamp:      group[len(group)-1].Timestamp,
			SSRC:           e.ssrc,
		},
		Payload: payload,
	}
}

// recoveryByte folds the marker bit and payload type into one byte for the
// XOR, mirroring how the real header carries them.
func recoveryByte(packet *rtp.Packet) uint8 {
	b := packet.PayloadType
	if packet.Marker {
		b |= 0x80
	}

	return b
}
