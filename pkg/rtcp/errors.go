// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import "errors"

// ErrInvalidRtcpPacket is wrapped by every error caused by inconsistent
// outer framing (version, length fields) of a compound RTCP packet.
var ErrInvalidRtcpPacket = errors.New("invalid RTCP packet")

var (
	errPacketTooShort    = errors.New("packet too short")
	errBadVersion        = errors.New("invalid version")
	errBadLength         = errors.New("length field does not match buffer")
	errWrongType         = errors.New("wrong packet type")
	errTooManyReports    = errors.New("too many reception reports")
	errInvalidTotalLost  = errors.New("total lost out of range")
	errBadUniqueID       = errors.New("REMB unique identifier mismatch")
	errSSRCCountMismatch = errors.New("REMB ssrc count does not match header")
	errBadBlockLength    = errors.New("XR block length inconsistent")
)
