/*
NAME
  messages.go

DESCRIPTION
  messages.go parses and encodes the subset of IEEE 1588v2 (PTPv2)
  messages an AES67 slave-only client needs: Announce, Sync, Follow_Up,
  Delay_Req and Delay_Resp (spec.md §4.1).

  Ported from _examples/original_source/BassAES67/bass-ptp/src/messages.rs,
  the ground truth this spec was distilled from: same header layout (34
  bytes common header, two-step flag at bit 0x0200 of the flags field),
  same 80-bit PTP timestamp (48-bit seconds + 32-bit nanoseconds), same
  EUI-64 clock identity.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ptp implements a slave-only IEEE 1588v2 (PTPv2) client used to
// discipline clock.Clock against a network grandmaster (spec.md §4.1).
package ptp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// MessageType identifies a PTP message's kind, taken from the low nibble
// of the header's first byte.
type MessageType uint8

const (
	Sync               MessageType = 0x0
	DelayReq           MessageType = 0x1
	PDelayReq          MessageType = 0x2
	PDelayResp         MessageType = 0x3
	FollowUp           MessageType = 0x8
	DelayResp          MessageType = 0x9
	PDelayRespFollowUp MessageType = 0xA
	Announce           MessageType = 0xB
	Signaling          MessageType = 0xC
	Management         MessageType = 0xD
	Unknown            MessageType = 0xFF
)

func messageTypeFromByte(b byte) MessageType {
	switch b & 0x0F {
	case 0x0:
		return Sync
	case 0x1:
		return DelayReq
	case 0x2:
		return PDelayReq
	case 0x3:
		return PDelayResp
	case 0x8:
		return FollowUp
	case 0x9:
		return DelayResp
	case 0xA:
		return PDelayRespFollowUp
	case 0xB:
		return Announce
	case 0xC:
		return Signaling
	case 0xD:
		return Management
	default:
		return Unknown
	}
}

// ClockIdentity is the EUI-64 identity of a PTP clock.
type ClockIdentity [8]byte

// HexString renders a ClockIdentity as the conventional lowercase hex
// string (e.g. "2ccf67fffe55b29a"), used in the PTP_STATS display string.
func (c ClockIdentity) HexString() string {
	return hex.EncodeToString(c[:])
}

// PortIdentity is a clock identity plus the port number on that clock.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

func parsePortIdentity(b []byte) (PortIdentity, error) {
	if len(b) < 10 {
		return PortIdentity{}, fmt.Errorf("ptp: short port identity (%d bytes)", len(b))
	}
	var id PortIdentity
	copy(id.ClockIdentity[:], b[0:8])
	id.PortNumber = binary.BigEndian.Uint16(b[8:10])
	return id, nil
}

// Timestamp is the 80-bit PTP timestamp: 48-bit seconds plus 32-bit
// nanoseconds.
type Timestamp struct {
	Seconds     uint64 // low 48 bits significant.
	Nanoseconds uint32
}

func parseTimestamp(b []byte) (Timestamp, error) {
	if len(b) < 10 {
		return Timestamp{}, fmt.Errorf("ptp: short timestamp (%d bytes)", len(b))
	}
	seconds := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	ns := binary.BigEndian.Uint32(b[6:10])
	return Timestamp{Seconds: seconds, Nanoseconds: ns}, nil
}

// ToNS converts the timestamp to a signed nanosecond count, the master's
// notion of "now" at the instant the message left the wire.
func (t Timestamp) ToNS() int64 {
	return int64(t.Seconds)*1_000_000_000 + int64(t.Nanoseconds)
}

// HeaderSize is the length, in bytes, of the common PTP header.
const HeaderSize = 34

// Header is the common 34-byte PTP message header.
type Header struct {
	MessageType         MessageType
	Version             uint8
	MessageLength       uint16
	DomainNumber        uint8
	Flags               uint16
	CorrectionField     int64
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  int8
}

// twoStepFlag marks that a Sync's precise origin timestamp arrives in a
// following Follow_Up rather than inline (one-step mode).
const twoStepFlag = 0x0200

// IsTwoStep reports whether this message's companion data arrives via a
// separate Follow_Up message.
func (h Header) IsTwoStep() bool {
	return h.Flags&twoStepFlag != 0
}

func parseHeader(d []byte) (Header, error) {
	if len(d) < HeaderSize {
		return Header{}, fmt.Errorf("ptp: short header (%d bytes)", len(d))
	}
	srcPort, err := parsePortIdentity(d[20:30])
	if err != nil {
		return Header{}, err
	}
	var correction int64
	for i := 0; i < 8; i++ {
		correction = correction<<8 | int64(d[8+i])
	}
	return Header{
		MessageType:        messageTypeFromByte(d[0]),
		Version:            d[1] & 0x0F,
		MessageLength:      binary.BigEndian.Uint16(d[2:4]),
		DomainNumber:       d[4],
		Flags:              binary.BigEndian.Uint16(d[6:8]),
		CorrectionField:    correction,
		SourcePortIdentity: srcPort,
		SequenceID:         binary.BigEndian.Uint16(d[30:32]),
		ControlField:       d[32],
		LogMessageInterval: int8(d[33]),
	}, nil
}

// ClockQuality describes a grandmaster's clock class, accuracy and
// variance, as advertised in Announce messages.
type ClockQuality struct {
	ClockClass              uint8
	ClockAccuracy           uint8
	OffsetScaledLogVariance uint16
}

func parseClockQuality(b []byte) (ClockQuality, error) {
	if len(b) < 4 {
		return ClockQuality{}, fmt.Errorf("ptp: short clock quality (%d bytes)", len(b))
	}
	return ClockQuality{
		ClockClass:              b[0],
		ClockAccuracy:           b[1],
		OffsetScaledLogVariance: binary.BigEndian.Uint16(b[2:4]),
	}, nil
}

// AnnounceMessage advertises a candidate grandmaster clock.
type AnnounceMessage struct {
	Header                   Header
	OriginTimestamp          Timestamp
	CurrentUTCOffset         int16
	GrandmasterPriority1     uint8
	GrandmasterClockQuality  ClockQuality
	GrandmasterPriority2     uint8
	GrandmasterIdentity      ClockIdentity
	StepsRemoved             uint16
	TimeSource               uint8
}

// ParseAnnounce parses an Announce message from a full PTP datagram.
func ParseAnnounce(d []byte) (AnnounceMessage, error) {
	h, err := parseHeader(d)
	if err != nil {
		return AnnounceMessage{}, err
	}
	if h.MessageType != Announce {
		return AnnounceMessage{}, fmt.Errorf("ptp: not an Announce message")
	}
	body := d[HeaderSize:]
	if len(body) < 30 {
		return AnnounceMessage{}, fmt.Errorf("ptp: short Announce body (%d bytes)", len(body))
	}
	origin, err := parseTimestamp(body[0:10])
	if err != nil {
		return AnnounceMessage{}, err
	}
	quality, err := parseClockQuality(body[14:18])
	if err != nil {
		return AnnounceMessage{}, err
	}
	var gmID ClockIdentity
	copy(gmID[:], body[19:27])

	return AnnounceMessage{
		Header:                  h,
		OriginTimestamp:         origin,
		CurrentUTCOffset:        int16(binary.BigEndian.Uint16(body[10:12])),
		GrandmasterPriority1:    body[13],
		GrandmasterClockQuality: quality,
		GrandmasterPriority2:    body[18],
		GrandmasterIdentity:     gmID,
		StepsRemoved:            binary.BigEndian.Uint16(body[27:29]),
		TimeSource:              body[29],
	}, nil
}

// SyncMessage carries the approximate time the master sent it.
type SyncMessage struct {
	Header          Header
	OriginTimestamp Timestamp
}

// ParseSync parses a Sync message from a full PTP datagram.
func ParseSync(d []byte) (SyncMessage, error) {
	h, err := parseHeader(d)
	if err != nil {
		return SyncMessage{}, err
	}
	if h.MessageType != Sync {
		return SyncMessage{}, fmt.Errorf("ptp: not a Sync message")
	}
	body := d[HeaderSize:]
	if len(body) < 10 {
		return SyncMessage{}, fmt.Errorf("ptp: short Sync body (%d bytes)", len(body))
	}
	origin, err := parseTimestamp(body[0:10])
	if err != nil {
		return SyncMessage{}, err
	}
	return SyncMessage{Header: h, OriginTimestamp: origin}, nil
}

// FollowUpMessage carries the precise send time of a preceding two-step
// Sync.
type FollowUpMessage struct {
	Header                 Header
	PreciseOriginTimestamp Timestamp
}

// ParseFollowUp parses a Follow_Up message from a full PTP datagram.
func ParseFollowUp(d []byte) (FollowUpMessage, error) {
	h, err := parseHeader(d)
	if err != nil {
		return FollowUpMessage{}, err
	}
	if h.MessageType != FollowUp {
		return FollowUpMessage{}, fmt.Errorf("ptp: not a Follow_Up message")
	}
	body := d[HeaderSize:]
	if len(body) < 10 {
		return FollowUpMessage{}, fmt.Errorf("ptp: short Follow_Up body (%d bytes)", len(body))
	}
	precise, err := parseTimestamp(body[0:10])
	if err != nil {
		return FollowUpMessage{}, err
	}
	return FollowUpMessage{Header: h, PreciseOriginTimestamp: precise}, nil
}

// DelayRespMessage answers a slave's Delay_Req with the master's receive
// timestamp.
type DelayRespMessage struct {
	Header                  Header
	ReceiveTimestamp        Timestamp
	RequestingPortIdentity  PortIdentity
}

// ParseDelayResp parses a Delay_Resp message from a full PTP datagram.
func ParseDelayResp(d []byte) (DelayRespMessage, error) {
	h, err := parseHeader(d)
	if err != nil {
		return DelayRespMessage{}, err
	}
	if h.MessageType != DelayResp {
		return DelayRespMessage{}, fmt.Errorf("ptp: not a Delay_Resp message")
	}
	body := d[HeaderSize:]
	if len(body) < 20 {
		return DelayRespMessage{}, fmt.Errorf("ptp: short Delay_Resp body (%d bytes)", len(body))
	}
	recv, err := parseTimestamp(body[0:10])
	if err != nil {
		return DelayRespMessage{}, err
	}
	reqPort, err := parsePortIdentity(body[10:20])
	if err != nil {
		return DelayRespMessage{}, err
	}
	return DelayRespMessage{Header: h, ReceiveTimestamp: recv, RequestingPortIdentity: reqPort}, nil
}

// EncodeDelayReq builds the wire bytes of a one-step Delay_Req message, the
// only message type this client ever transmits.
func EncodeDelayReq(local PortIdentity, sequence uint16, domain uint8) []byte {
	buf := make([]byte, HeaderSize+10)
	buf[0] = byte(DelayReq)
	buf[1] = 2 // version
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[4] = domain
	// flags, correction field, reserved bytes 16-19 all zero.
	copy(buf[20:28], local.ClockIdentity[:])
	binary.BigEndian.PutUint16(buf[28:30], local.PortNumber)
	binary.BigEndian.PutUint16(buf[30:32], sequence)
	buf[32] = 1 // control field: Delay_Req.
	buf[33] = 0x7F
	// origin timestamp left zero: we only care about our own send time,
	// recorded locally, not what we claim on the wire.
	return buf
}
