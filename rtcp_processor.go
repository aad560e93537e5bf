// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpengine

import (
	"time"

	"github.com/pion/rtpengine/pkg/rtcp"
)

// remoteRRTR remembers a receiver reference time report so the next
// outbound report round can answer it with a DLRR block.
type remoteRRTR struct {
	ntp32   uint32
	arrival time.Time
}

// ProcessRTCP parses one inbound compound packet and routes its parts in
// arrival order. Unknown packet types and reports for unregistered SSRCs
// are skipped. Malformed input is dropped and returned as an error; it is
// never fatal to the engine.
func (e *Engine) ProcessRTCP(buf []byte) error {
	if e.closed.IsSet() {
		return ErrEngineClosed
	}

	packets, err := rtcp.Unmarshal(buf)
	if err != nil {
		e.log.Infof("dropping malformed rtcp packet: %v", err)

		return err
	}

	now := e.now()
	for _, packet := range packets {
		e.routeRTCP(packet, now)
	}

	return nil
}

func (e *Engine) routeRTCP(packet rtcp.Packet, now time.Time) {
	switch pkt := packet.(type) {
	case *rtcp.SenderReport:
		if stream, ok := e.registry.receiveStream(pkt.SSRC); ok {
			stream.handleSenderReport(pkt, now)
		}
		e.handleReceptionReports(pkt.Reports, now)

	case *rtcp.ReceiverReport:
		e.handleReceptionReports(pkt.Reports, now)

	case *rtcp.TransportLayerNack:
		if stream, ok := e.registry.sendStream(pkt.MediaSSRC); ok {
			stream.handleNack(pkt, now)
		}

	case *rtcp.PictureLossIndication:
		if stream, ok := e.registry.sendStream(pkt.MediaSSRC); ok {
			stream.handlePLI()
		}

	case *rtcp.ReceiverEstimatedMaximumBitrate:
		e.onREMB(int(pkt.Bitrate))

	case *rtcp.ExtendedReport:
		e.handleExtendedReport(pkt, now)

	default:
		// Unknown RTCP types are legal in a compound packet; skip.
	}
}

func (e *Engine) handleReceptionReports(reports []rtcp.ReceptionReport, now time.Time) {
	for _, report := range reports {
		if stream, ok := e.registry.sendStream(report.SSRC); ok {
			stream.handleReceptionReport(report, now)
		}
	}
}

func (e *Engine) handleExtendedReport(report *rtcp.ExtendedReport, now time.Time) {
	for _, block := range report.Reports {
		switch blk := block.(type) {
		case *rtcp.ReceiverReferenceTimeReportBlock:
			e.mu.Lock()
			e.remoteRRTRs[report.SenderSSRC] = remoteRRTR{
				ntp32:   uint32((blk.NTPTimestamp & 0x0000FFFFFFFF0000) >> 16), //nolint:gosec // masked to 32 bits
				arrival: now,
			}
			e.mu.Unlock()
		case *rtcp.DLRRReportBlock:
			for _, sub := range blk.Reports {
				if stream, ok := e.registry.receiveStream(sub.SSRC); ok {
					stream.handleDLRR(sub, now)
				}
			}
		}
	}
}

// buildReports assembles the periodic outbound report round: one SR per
// send stream, one RR per receive stream with an RRTR reference time block,
// and DLRR answers to any reference times the remote sent us.
func (e *Engine) buildReports(now time.Time) []rtcp.Packet {
	var reports []rtcp.Packet

	e.registry.eachSendStream(func(stream *SendStream) {
		reports = append(reports, stream.buildSenderReport(now))
	})

	type streamRRTR struct {
		ssrc  uint32
		block *rtcp.ReceiverReferenceTimeReportBlock
	}
	var rrtrs []streamRRTR
	e.registry.eachReceiveStream(func(stream *ReceiveStream) {
		block, rrtr := stream.buildReceptionReport(now)
		reports = append(reports, &rtcp.ReceiverReport{
			SSRC:    stream.ssrc,
			Reports: []rtcp.ReceptionReport{block},
		})
		rrtrs = append(rrtrs, streamRRTR{ssrc: stream.ssrc, block: rrtr})
	})

	dlrrs := e.collectDLRRs(now)
	for i, rrtr := range rrtrs {
		xr := &rtcp.ExtendedReport{
			SenderSSRC: rrtr.ssrc,
			Reports:    []rtcp.ReportBlock{rrtr.block},
		}
		// attach the DLRR answers to the first XR of the round
		if i == 0 && len(dlrrs) > 0 {
			xr.Reports = append(xr.Reports, &rtcp.DLRRReportBlock{Reports: dlrrs})
		}
		reports = append(reports, xr)
	}
	if len(rrtrs) == 0 && len(dlrrs) > 0 {
		reports = append(reports, &rtcp.ExtendedReport{
			Reports: []rtcp.ReportBlock{&rtcp.DLRRReportBlock{Reports: dlrrs}},
		})
	}

	return reports
}

// collectDLRRs answers every remembered remote RRTR, consuming them.
func (e *Engine) collectDLRRs(now time.Time) []rtcp.DLRRReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.remoteRRTRs) == 0 {
		return nil
	}

	dlrrs := make([]rtcp.DLRRReport, 0, len(e.remoteRRTRs))
	for ssrc, rrtr := range e.remoteRRTRs {
		dlrrs = append(dlrrs, rtcp.DLRRReport{
			SSRC:   ssrc,
			LastRR: rrtr.ntp32,
			DLRR:   uint32(now.Sub(rrtr.arrival).Seconds() * 65536), //nolint:gosec // bounded by report interval
		})
		delete(e.remoteRRTRs, ssrc)
	}

	return dlrrs
}

// sendFeedback transmits receiver feedback. In compound mode the feedback
// is preceded by a receiver report for the stream; in reduced-size mode
// (RFC 5506) it is sent on its own.
func (e *Engine) sendFeedback(feedback []rtcp.Packet, ssrc uint32) error {
	if len(feedback) == 0 {
		return nil
	}

	if !e.reducedSize {
		if stream, ok := e.registry.receiveStream(ssrc); ok {
			feedback = append([]rtcp.Packet{stream.receiverReport(e.now())}, feedback...)
		}
	}

	buf, err := rtcp.Marshal(feedback)
	if err != nil {
		return err
	}

	return e.transport.WriteRTCP(buf)
}
