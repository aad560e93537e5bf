// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import "time"

// SendStreamStats is a point-in-time snapshot of an outbound stream.
type SendStreamStats struct {
	// PacketsSent and BytesSent count first transmissions only.
	PacketsSent uint64
	BytesSent   uint64

	// RetransmissionsSent counts packets replayed in response to NACKs.
	RetransmissionsSent uint64

	// FECPacketsSent counts generated parity packets.
	FECPacketsSent uint64

	NACKsReceived uint64
	PLIsReceived  uint64

	// Remote reception quality from the most recent receiver report.
	RemoteFractionLost float64
	RemotePacketsLost  uint32
	RemoteJitter       time.Duration

	// RTT measured from receiver report LSR/DLSR or XR DLRR.
	RTT time.Duration

	// TargetBitrate is the congestion controller's current estimate in
	// bits per second. Filled in by Engine.Stats.
	TargetBitrate int

	// TransportErrors counts failed sends. Failed packets stay recorded in
	// the retransmission store so a later NACK can still replay them.
	TransportErrors uint64
}

// ReceiveStreamStats is a point-in-time snapshot of an inbound stream.
type ReceiveStreamStats struct {
	PacketsReceived uint64
	BytesReceived   uint64

	// PacketsLost is expected minus received, derived from the extended
	// highest sequence number. Recovered packets count as received.
	PacketsLost int64

	// Jitter is the RFC 3550 interarrival jitter estimate in clock-rate
	// units.
	Jitter float64

	// FECRecovered counts packets reconstructed from parity.
	FECRecovered uint64

	// FECUnrecoverable counts parity groups with too many losses.
	FECUnrecoverable uint64

	// RetransmissionsReceived counts packets that arrived via the RTX
	// stream.
	RetransmissionsReceived uint64

	NACKsSent uint64
	PLIsSent  uint64

	// GapsGivenUp counts sequence numbers abandoned by the reorder buffer
	// after its max-wait timeout or on overflow.
	GapsGivenUp uint64

	// LatePacketsDropped counts packets that arrived after their gap was
	// given up.
	LatePacketsDropped uint64

	// FramesDropped counts assembled frames discarded because the consumer
	// did not keep up with the frame queue.
	FramesDropped uint64

	// RTT measured via XR RRTR/DLRR, zero until a DLRR answers one of our
	// reference time reports.
	RTT time.Duration
}

// StreamStats combines the two directions for Engine.Stats. Exactly one of
// the directions is meaningful for a given SSRC.
type StreamStats struct {
	Send    *SendStreamStats
	Receive *ReceiveStreamStats
}
