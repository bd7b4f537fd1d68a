/*
NAME
  packet_test.go

DESCRIPTION
  packet_test.go tests encoding/decoding of AES67 RTP packets.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBytesAndParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "basic",
			pkt: Packet{
				Marker:      false,
				PayloadType: 96,
				Sequence:    42,
				Timestamp:   48000,
				SSRC:        0xdeadbeef,
				Payload:     []byte{1, 2, 3, 4, 5, 6},
			},
		},
		{
			name: "marker set, empty payload",
			pkt: Packet{
				Marker:      true,
				PayloadType: 97,
				Sequence:    0xffff,
				Timestamp:   0xfffffffe,
				SSRC:        1,
				Payload:     nil,
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := c.pkt.Bytes(nil)
			if len(buf) != HeaderSize+len(c.pkt.Payload) {
				t.Fatalf("unexpected encoded length: got %d want %d", len(buf), HeaderSize+len(c.pkt.Payload))
			}

			got, err := Parse(buf)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			// Normalize nil vs empty payload for comparison.
			if len(got.Payload) == 0 {
				got.Payload = nil
			}
			if diff := cmp.Diff(c.pkt, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseShort(t *testing.T) {
	_, err := Parse(make([]byte, HeaderSize-1))
	if err != ErrShort {
		t.Errorf("expected ErrShort, got %v", err)
	}
}

func TestParseBadVersion(t *testing.T) {
	buf := (&Packet{PayloadType: 96}).Bytes(nil)
	buf[0] = 0x00 // version 0
	_, err := Parse(buf)
	if err != ErrVersion {
		t.Errorf("expected ErrVersion, got %v", err)
	}
}

func TestSeqDiff(t *testing.T) {
	tests := []struct {
		a, b uint16
		want int16
	}{
		{a: 10, b: 11, want: 1},
		{a: 0xffff, b: 0, want: 1},
		{a: 5, b: 3, want: -2},
	}
	for _, tt := range tests {
		if got := SeqDiff(tt.a, tt.b); got != tt.want {
			t.Errorf("SeqDiff(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestReuseBuffer(t *testing.T) {
	p := Packet{PayloadType: 96, Payload: []byte{1, 2, 3}}
	buf := make([]byte, 0, 64)
	out := p.Bytes(buf)
	if cap(out) != cap(buf) {
		t.Errorf("expected Bytes to reuse provided buffer capacity")
	}
}
