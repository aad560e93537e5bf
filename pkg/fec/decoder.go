// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package fec

import (
	"encoding/binary"
	"errors"

	"github.com/pion/rtpengine/pkg/rtp"
)

// ErrTooManyLosses is returned when a parity group has lost two or more
// members and cannot be recovered. The caller should fall back to NACK/PLI.
var ErrTooManyLosses = errors.New("fec group unrecoverable")

var errShortParity = errors.New("parity payload too short")

const mediaWindowSize = 1 << 10

type parityGroup struct {
	seqBase      uint16
	mask         uint16
	lengthRec    uint16
	ptRec        uint8
	timestampRec uint32
	payload      []byte
	mediaSSRC    uint32
}

func (g *parityGroup) coveredSeqs() []uint16 {
	seqs := make([]uint16, 0, MaxGroupSize)
	for i := uint16(0); i < MaxGroupSize; i++ {
		if g.mask&(1<<i) != 0 {
			seqs = append(seqs, g.seqBase+i)
		}
	}

	return seqs
}

// Decoder tracks received media packets and pending parity packets for one
// SSRC and reconstructs singly-lost group members. It is not safe for
// concurrent use; the receiving pipeline drives it from a single goroutine.
type Decoder struct {
	media   map[uint16]*rtp.Packet
	groups  map[uint16]*parityGroup
	highest uint16
	started bool

	unrecoverable uint64
}

// NewDecoder constructs a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		media:  make(map[uint16]*rtp.Packet),
		groups: make(map[uint16]*parityGroup),
	}
}

// AddMedia registers a received (or previously recovered) media packet and
// returns any packets that became recoverable because of it. Groups that
// can never recover are dropped silently and counted; the receiver's NACK
// path covers them.
func (d *Decoder) AddMedia(packet *rtp.Packet) []*rtp.Packet {
	d.store(packet)
	recovered, _ := d.attemptAll()

	return recovered
}

// AddParity registers a received parity packet and returns any packet it
// recovers immediately. A malformed parity payload yields errShortParity and
// the packet is dropped. When the pass declares a group unrecoverable, the
// recovered packets from other groups are returned alongside
// ErrTooManyLosses.
func (d *Decoder) AddParity(packet *rtp.Packet, mediaSSRC uint32) ([]*rtp.Packet, error) {
	if len(packet.Payload) < parityHeaderLength {
		return nil, errShortParity
	}

	group := &parityGroup{
		seqBase:      binary.BigEndian.Uint16(packet.Payload[seqBaseOffset:]),
		mask:         binary.BigEndian.Uint16(packet.Payload[maskOffset:]),
		lengthRec:    binary.BigEndian.Uint16(packet.Payload[lengthRecOffset:]),
		ptRec:        packet.Payload[ptRecOffset],
		timestampRec: binary.BigEndian.Uint32(packet.Payload[timestampRecOffset:]),
		payload:      append([]byte(nil), packet.Payload[parityHeaderLength:]...),
		mediaSSRC:    mediaSSRC,
	}
	d.groups[group.seqBase] = group

	recovered, dead := d.attemptAll()
	if dead {
		return recovered, ErrTooManyLosses
	}

	return recovered, nil
}

// UnrecoverableGroups returns how many parity groups were discarded because
// two or more members were lost.
func (d *Decoder) UnrecoverableGroups() uint64 {
	return d.unrecoverable
}

func (d *Decoder) store(packet *rtp.Packet) {
	seq := packet.SequenceNumber
	d.media[seq] = packet.Clone()

	if !d.started || isNewer(seq, d.highest) {
		d.highest = seq
		d.started = true
	}

	// bound the window
	for s := range d.media {
		if d.highest-s >= mediaWindowSize {
			delete(d.media, s)
		}
	}
}

func (d *Decoder) attemptAll() ([]*rtp.Packet, bool) {
	var recovered []*rtp.Packet
	anyDead := false

	for base, group := range d.groups {
		packet, done, dead := d.attempt(group)
		if packet != nil {
			d.media[packet.SequenceNumber] = packet.Clone()
			recovered = append(recovered, packet)
		}
		if dead {
			anyDead = true
		}
		if done {
			delete(d.groups, base)
		}
	}

	return recovered, anyDead
}

// attempt tries to resolve one parity group. It returns the recovered packet
// (if any), whether the group is finished, and whether it was declared
// unrecoverable.
func (d *Decoder) attempt(group *parityGroup) (packet *rtp.Packet, done, dead bool) {
	var missing []uint16
	for _, seq := range group.coveredSeqs() {
		if _, ok := d.media[seq]; !ok {
			missing = append(missing, seq)
		}
	}

	switch len(missing) {
	case 0:
		// everything arrived, parity unneeded
		return nil, true, false

	case 1:
		packet = d.reconstruct(group, missing[0])

		return packet, true, packet == nil

	default:
		// only declare the group dead once the stream has moved past it,
		// since the missing members may simply not have arrived yet
		lastCovered := group.seqBase + MaxGroupSize
		if d.started && isNewer(d.highest, lastCovered) {
			d.unrecoverable++

			return nil, true, true
		}

		return nil, false, false
	}
}

func (d *Decoder) reconstruct(group *parityGroup, seq uint16) *rtp.Packet {
	length := group.lengthRec
	ptByte := group.ptRec
	timestamp := group.timestampRec
	payload := append([]byte(nil), group.payload...)

	for _, s := range group.coveredSeqs() {
		if s == seq {
			continue
		}
		member := d.media[s]
		length ^= uint16(len(member.Payload)) //nolint:gosec // MTU-bounded
		ptByte ^= recoveryByte(member)
		timestamp ^= member.Timestamp
		for i, b := range member.Payload {
			payload[i] ^= b
		}
	}

	if int(length) > len(payload) {
		// inconsistent parity, drop the group instead of emitting garbage
		d.unrecoverable++

		return nil
	}

	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         ptByte&0x80 != 0,
			PayloadType:    ptByte & 0x7F,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           group.mediaSSRC,
		},
		Payload: payload[:length],
	}
}

func isNewer(value, previous uint16) bool {
	return value != previous && value-previous < 1<<15
}
