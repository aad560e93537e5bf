// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtcp

import (
	"encoding/binary"
	"fmt"
)

// BlockTypeType specifies the type of an XR report block.
type BlockTypeType uint8

// Extended report block types from RFC 3611.
const (
	ReceiverReferenceTimeReportBlockType BlockTypeType = 4 // RFC 3611, section 4.4
	DLRRReportBlockType                  BlockTypeType = 5 // RFC 3611, section 4.5
)

// XRHeader defines the common fields that must appear at the start of each
// report block.
type XRHeader struct {
	BlockType    BlockTypeType
	TypeSpecific uint8
	BlockLength  uint16
}

const xrHeaderLength = 4

// ReportBlock represents a single report within an ExtendedReport packet.
type ReportBlock interface {
	DestinationSSRC() []uint32
	setupBlockHeader()
}

// ReceiverReferenceTimeReportBlock encodes a Receiver Reference Time report
// block, letting non-senders participate in round-trip measurement.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     BT=4      |   reserved    |       block length = 2        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|              NTP timestamp, most significant word             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|             NTP timestamp, least significant word             |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type ReceiverReferenceTimeReportBlock struct {
	XRHeader
	NTPTimestamp uint64
}

func (b *ReceiverReferenceTimeReportBlock) setupBlockHeader() {
	b.XRHeader.BlockType = ReceiverReferenceTimeReportBlockType
	b.XRHeader.TypeSpecific = 0
	b.XRHeader.BlockLength = 2
}

// DestinationSSRC returns an array of SSRC values that this report block refers to.
func (b *ReceiverReferenceTimeReportBlock) DestinationSSRC() []uint32 {
	return []uint32{}
}

// DLRRReport encodes a single DLRR sub-block: the last RRTR received from
// SSRC and the delay since, in 1/65536 seconds units.
type DLRRReport struct {
	SSRC   uint32
	LastRR uint32
	DLRR   uint32
}

// DLRRReportBlock encodes a DLRR Report Block, the sender-side half of RTT
// measurement via XR.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|     BT=5      |   reserved    |         block length          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                 SSRC_1 (SSRC of first receiver)               |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         last RR (LRR)                         |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                   delay since last RR (DLRR)                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type DLRRReportBlock struct {
	XRHeader
	Reports []DLRRReport
}

func (b *DLRRReportBlock) setupBlockHeader() {
	b.XRHeader.BlockType = DLRRReportBlockType
	b.XRHeader.TypeSpecific = 0
	b.XRHeader.BlockLength = uint16(len(b.Reports) * 3) //nolint:gosec // bounded
}

// DestinationSSRC returns an array of SSRC values that this report block refers to.
func (b *DLRRReportBlock) DestinationSSRC() []uint32 {
	ssrc := make([]uint32, len(b.Reports))
	for i, r := range b.Reports {
		ssrc[i] = r.SSRC
	}

	return ssrc
}

// UnknownReportBlock preserves report blocks this implementation does not
// understand.
type UnknownReportBlock struct {
	XRHeader
	Bytes []byte
}

func (b *UnknownReportBlock) setupBlockHeader() {
	b.XRHeader.BlockLength = uint16(len(b.Bytes) / 4) //nolint:gosec // bounded
}

// DestinationSSRC returns an array of SSRC values that this report block refers to.
func (b *UnknownReportBlock) DestinationSSRC() []uint32 {
	return []uint32{}
}

// The ExtendedReport packet is an Implementation of RTCP Extended Reports
// defined in RFC 3611. It is used to convey detailed information about an RTP
// stream. This implementation understands the RRTR and DLRR block types used
// for round-trip time measurement; other blocks are kept as
// UnknownReportBlock.
type ExtendedReport struct {
	SenderSSRC uint32
	Reports    []ReportBlock
}

// Marshal encodes the ExtendedReport in binary.
func (x ExtendedReport) Marshal() ([]byte, error) {
	for _, p := range x.Reports {
		p.setupBlockHeader()
	}

	body := make([]byte, ssrcLength, 64)
	binary.BigEndian.PutUint32(body, x.SenderSSRC)

	for _, p := range x.Reports {
		data, err := marshalBlock(p)
		if err != nil {
			return nil, err
		}
		body = append(body, data...)
	}

	header := Header{
		Count:  0,
		Type:   TypeExtendedReport,
		Length: uint16((headerLength+len(body))/4 - 1), //nolint:gosec // bounded
	}
	hData, err := header.Marshal()
	if err != nil {
		return nil, err
	}

	return append(hData, body...), nil
}

func marshalBlock(b ReportBlock) ([]byte, error) {
	switch block := b.(type) {
	case *ReceiverReferenceTimeReportBlock:
		data := make([]byte, xrHeaderLength+8)
		data[0] = byte(block.BlockType)
		binary.BigEndian.PutUint16(data[2:], block.BlockLength)
		binary.BigEndian.PutUint64(data[xrHeaderLength:], block.NTPTimestamp)

		return data, nil

	case *DLRRReportBlock:
		data := make([]byte, xrHeaderLength+len(block.Reports)*12)
		data[0] = byte(block.BlockType)
		binary.BigEndian.PutUint16(data[2:], block.BlockLength)
		offset := xrHeaderLength
		for _, rp := range block.Reports {
			binary.BigEndian.PutUint32(data[offset:], rp.SSRC)
			binary.BigEndian.PutUint32(data[offset+4:], rp.LastRR)
			binary.BigEndian.PutUint32(data[offset+8:], rp.DLRR)
			offset += 12
		}

		return data, nil

	case *UnknownReportBlock:
		data := make([]byte, xrHeaderLength+len(block.Bytes))
		data[0] = byte(block.BlockType)
		data[1] = block.TypeSpecific
		binary.BigEndian.PutUint16(data[2:], block.BlockLength)
		copy(data[xrHeaderLength:], block.Bytes)

		return data, nil

	default:
		return nil, fmt.Errorf("%w: %T", errWrongType, b)
	}
}

// Unmarshal decodes the ExtendedReport from binary.
func (x *ExtendedReport) Unmarshal(rawPacket []byte) error {
	if len(rawPacket) < headerLength+ssrcLength {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
	}

	var header Header
	if err := header.Unmarshal(rawPacket); err != nil {
		return err
	}
	if header.Type != TypeExtendedReport {
		return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errWrongType)
	}

	x.SenderSSRC = binary.BigEndian.Uint32(rawPacket[headerLength:])

	offset := headerLength + ssrcLength
	x.Reports = x.Reports[:0]
	for offset < len(rawPacket) {
		if offset+xrHeaderLength > len(rawPacket) {
			return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errPacketTooShort)
		}

		blockType := BlockTypeType(rawPacket[offset])
		typeSpecific := rawPacket[offset+1]
		blockLength := binary.BigEndian.Uint16(rawPacket[offset+2:])
		blockEnd := offset + xrHeaderLength + int(blockLength)*4
		if blockEnd > len(rawPacket) {
			return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errBadBlockLength)
		}
		blockBody := rawPacket[offset+xrHeaderLength : blockEnd]

		switch blockType {
		case ReceiverReferenceTimeReportBlockType:
			if blockLength != 2 {
				return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errBadBlockLength)
			}
			block := &ReceiverReferenceTimeReportBlock{
				NTPTimestamp: binary.BigEndian.Uint64(blockBody),
			}
			block.XRHeader = XRHeader{BlockType: blockType, TypeSpecific: typeSpecific, BlockLength: blockLength}
			x.Reports = append(x.Reports, block)

		case DLRRReportBlockType:
			if blockLength%3 != 0 {
				return fmt.Errorf("%w: %v", ErrInvalidRtcpPacket, errBadBlockLength)
			}
			block := &DLRRReportBlock{}
			block.XRHeader = XRHeader{BlockType: blockType, TypeSpecific: typeSpecific, BlockLength: blockLength}
			for i := 0; i < len(blockBody); i += 12 {
				block.Reports = append(block.Reports, DLRRReport{
					SSRC:   binary.BigEndian.Uint32(blockBody[i:]),
					LastRR: binary.BigEndian.Uint32(blockBody[i+4:]),
					DLRR:   binary.BigEndian.Uint32(blockBody[i+8:]),
				})
			}
			x.Reports = append(x.Reports, block)

		default:
			block := &UnknownReportBlock{
				Bytes: blockBody,
			}
			block.XRHeader = XRHeader{BlockType: blockType, TypeSpecific: typeSpecific, BlockLength: blockLength}
			x.Reports = append(x.Reports, block)
		}

		offset = blockEnd
	}

	return nil
}

// DestinationSSRC returns an array of SSRC values that this packet refers to.
func (x ExtendedReport) DestinationSSRC() []uint32 {
	var ssrc []uint32
	for _, p := range x.Reports {
		ssrc = append(ssrc, p.DestinationSSRC()...)
	}

	return ssrc
}

func (x ExtendedReport) String() string {
	return fmt.Sprintf("ExtendedReport from %x: %v", x.SenderSSRC, x.Reports)
}
