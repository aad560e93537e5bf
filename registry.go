// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"fmt"
	"sync"
)

// registry maps SSRCs to streams for one engine. Receive streams are also
// findable through their RTX and FEC SSRCs. Lookups happen on the transport
// read path, so the lock is read-mostly.
type registry struct {
	mu             sync.RWMutex
	sendStreams    map[uint32]*SendStream
	receiveStreams map[uint32]*ReceiveStream

	// receiveAliases maps RTX and FEC SSRCs to their media stream.
	receiveAliases map[uint32]*ReceiveStream

	unknownSSRCs uint64
}

func newRegistry() *registry {
	return &registry{
		sendStreams:    map[uint32]*SendStream{},
		receiveStreams: map[uint32]*ReceiveStream{},
		receiveAliases: map[uint32]*ReceiveStream{},
	}
}

func (r *registry) addSendStream(stream *SendStream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sendStreams[stream.ssrc]; ok {
		return fmt.Errorf("%w: ssrc %d", ErrStreamExists, stream.ssrc)
	}
	r.sendStreams[stream.ssrc] = stream

	return nil
}

func (r *registry) addReceiveStream(stream *ReceiveStream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// media and alias SSRCs share one inbound namespace
	taken := func(ssrc uint32) bool {
		_, media := r.receiveStreams[ssrc]
		_, alias := r.receiveAliases[ssrc]

		return media || alias
	}
	if taken(stream.ssrc) {
		return fmt.Errorf("%w: ssrc %d", ErrStreamExists, stream.ssrc)
	}
	if stream.rtxParams != nil && taken(stream.rtxParams.SSRC) {
		return fmt.Errorf("%w: rtx ssrc %d", ErrStreamExists, stream.rtxParams.SSRC)
	}
	if stream.fecParams != nil && taken(stream.fecParams.SSRC) {
		return fmt.Errorf("%w: fec ssrc %d", ErrStreamExists, stream.fecParams.SSRC)
	}

	r.receiveStreams[stream.ssrc] = stream
	if stream.rtxParams != nil {
		r.receiveAliases[stream.rtxParams.SSRC] = stream
	}
	if stream.fecParams != nil {
		r.receiveAliases[stream.fecParams.SSRC] = stream
	}

	return nil
}

func (r *registry) sendStream(ssrc uint32) (*SendStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, ok := r.sendStreams[ssrc]

	return stream, ok
}

func (r *registry) receiveStream(ssrc uint32) (*ReceiveStream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stream, ok := r.receiveStreams[ssrc]; ok {
		return stream, true
	}
	stream, ok := r.receiveAliases[ssrc]

	return stream, ok
}

func (r *registry) removeSendStream(ssrc uint32) {
	r.mu.Lock()
	delete(r.sendStreams, ssrc)
	r.mu.Unlock()
}

func (r *registry) removeReceiveStream(ssrc uint32) {
	r.mu.Lock()
	if stream, ok := r.receiveStreams[ssrc]; ok {
		delete(r.receiveStreams, ssrc)
		if stream.rtxParams != nil {
			delete(r.receiveAliases, stream.rtxParams.SSRC)
		}
		if stream.fecParams != nil {
			delete(r.receiveAliases, stream.fecParams.SSRC)
		}
	}
	r.mu.Unlock()
}

func (r *registry) recordUnknownSSRC() {
	r.mu.Lock()
	r.unknownSSRCs++
	r.mu.Unlock()
}

// unknownCount reports how many inbound packets were dropped because no
// stream matched their SSRC.
func (r *registry) unknownCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.unknownSSRCs
}

func (r *registry) eachSendStream(fn func(*SendStream)) {
	r.mu.RLock()
	streams := make([]*SendStream, 0, len(r.sendStreams))
	for _, stream := range r.sendStreams {
		streams = append(streams, stream)
	}
	r.mu.RUnlock()

	for _, stream := range streams {
		fn(stream)
	}
}

func (r *registry) eachReceiveStream(fn func(*ReceiveStream)) {
	r.mu.RLock()
	streams := make([]*ReceiveStream, 0, len(r.receiveStreams))
	for _, stream := range r.receiveStreams {
		streams = append(streams, stream)
	}
	r.mu.RUnlock()

	for _, stream := range streams {
		fn(stream)
	}
}
