/*
NAME
  messages_test.go

DESCRIPTION
  messages_test.go checks header/Announce/Sync/Follow_Up/Delay_Resp
  parsing and the Delay_Req encoder round trip.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ptp

import (
	"encoding/binary"
	"testing"
)

func buildHeader(msgType MessageType, domain uint8, seq uint16, flags uint16) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(msgType)
	buf[1] = 2
	binary.BigEndian.PutUint16(buf[2:4], uint16(HeaderSize))
	buf[4] = domain
	binary.BigEndian.PutUint16(buf[6:8], flags)
	// correction field bytes 8-15 left zero.
	// source port identity bytes 20-30: arbitrary clock identity.
	for i := 0; i < 8; i++ {
		buf[20+i] = byte(0xA0 + i)
	}
	binary.BigEndian.PutUint16(buf[28:30], 1)
	binary.BigEndian.PutUint16(buf[30:32], seq)
	buf[32] = 0
	buf[33] = 0x7F
	return buf
}

func TestParseSync(t *testing.T) {
	buf := buildHeader(Sync, 0, 42, 0x0200)
	body := make([]byte, 10)
	body[5] = 1 // seconds low byte = 1.
	buf = append(buf, body...)

	s, err := ParseSync(buf)
	if err != nil {
		t.Fatalf("ParseSync: %v", err)
	}
	if s.Header.SequenceID != 42 {
		t.Errorf("sequence = %d, want 42", s.Header.SequenceID)
	}
	if !s.Header.IsTwoStep() {
		t.Errorf("expected two-step flag set")
	}
	if s.OriginTimestamp.Seconds != 1 {
		t.Errorf("seconds = %d, want 1", s.OriginTimestamp.Seconds)
	}
}

func TestParseAnnounce(t *testing.T) {
	buf := buildHeader(Announce, 0, 7, 0)
	body := make([]byte, 30)
	body[13] = 128                 // priority1.
	body[14] = 6                   // clock class.
	body[18] = 128                 // priority2.
	for i := 0; i < 8; i++ {
		body[19+i] = byte(0xB0 + i) // grandmaster identity.
	}
	binary.BigEndian.PutUint16(body[27:29], 2) // steps removed.
	buf = append(buf, body...)

	a, err := ParseAnnounce(buf)
	if err != nil {
		t.Fatalf("ParseAnnounce: %v", err)
	}
	if a.GrandmasterClockQuality.ClockClass != 6 {
		t.Errorf("clock class = %d, want 6", a.GrandmasterClockQuality.ClockClass)
	}
	if a.StepsRemoved != 2 {
		t.Errorf("steps removed = %d, want 2", a.StepsRemoved)
	}
	want := "b0b1b2b3b4b5b6b7"
	if got := a.GrandmasterIdentity.HexString(); got != want {
		t.Errorf("grandmaster identity = %q, want %q", got, want)
	}
}

func TestParseShortHeader(t *testing.T) {
	if _, err := parseHeader(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestEncodeDelayReqRoundTrip(t *testing.T) {
	local := PortIdentity{PortNumber: 1}
	local.ClockIdentity[0] = 0xAB

	buf := EncodeDelayReq(local, 9, 3)
	h, err := parseHeader(buf)
	if err != nil {
		t.Fatalf("parseHeader: %v", err)
	}
	if h.MessageType != DelayReq {
		t.Errorf("message type = %v, want DelayReq", h.MessageType)
	}
	if h.SequenceID != 9 {
		t.Errorf("sequence = %d, want 9", h.SequenceID)
	}
	if h.DomainNumber != 3 {
		t.Errorf("domain = %d, want 3", h.DomainNumber)
	}
	if h.SourcePortIdentity != local {
		t.Errorf("source port identity = %+v, want %+v", h.SourcePortIdentity, local)
	}
}
