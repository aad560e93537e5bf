// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtp

import "errors"

// ErrMalformedPacket is wrapped by every decode-time framing violation. A
// packet failing with it must be dropped, not treated as fatal.
var ErrMalformedPacket = errors.New("malformed RTP packet")

var (
	errHeaderTooSmall              = errors.New("RTP header size insufficient")
	errExtensionTooSmall           = errors.New("extension block size insufficient for extension length")
	errCSRCTooSmall                = errors.New("buffer too small for declared CSRC count")
	errBadVersion                  = errors.New("unsupported RTP version")
	errHeaderExtensionsNotEnabled  = errors.New("header extensions are not enabled")
	errHeaderExtensionNotFound     = errors.New("extension not found")
	errInvalidExtensionID          = errors.New("header extension id out of range for profile")
	errExtensionPayloadTooLarge    = errors.New("extension payload too large for profile")
	errUnsupportedExtensionProfile = errors.New("arbitrary extensions need a one-byte or two-byte profile")
)
