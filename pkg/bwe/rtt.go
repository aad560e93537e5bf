// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package bwe

import "time"

// MeasureRTT derives a round trip time from a feedback report round:
// the time between sending the latest acknowledged packet and receiving the
// report, minus how long the feedback sat at the remote before the report
// went out.
func MeasureRTT(reportSent, reportReceived, latestAckedSent, latestAckedArrival time.Time) time.Duration {
	pendingTime := reportSent.Sub(latestAckedArrival)

	return reportReceived.Sub(latestAckedSent) - pendingTime
}
