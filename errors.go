// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import "errors"

var (
	// ErrUnknownSSRC is returned when an inbound packet references a stream
	// that was never registered. The packet is dropped and counted; callers
	// may treat the error as a hint to register a new stream.
	ErrUnknownSSRC = errors.New("unknown ssrc")

	// ErrStreamClosed is returned when writing to a stream after Close.
	ErrStreamClosed = errors.New("stream is closed")

	// ErrStreamExists is returned when registering an SSRC twice.
	ErrStreamExists = errors.New("stream already registered")

	// ErrEngineClosed is returned for operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	errInvalidClockRate    = errors.New("clock rate must be positive")
	errInvalidPacketSize   = errors.New("max packet size too small for header")
	errNoTransport         = errors.New("transport must not be nil")
	errInvalidFECGroupSize = errors.New("fec group size out of range")
)
