// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package bwe implements delay- and loss-based bandwidth estimation for
// congestion-controlled RTP sending.
package bwe
