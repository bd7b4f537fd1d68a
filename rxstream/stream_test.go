/*
NAME
  stream_test.go

DESCRIPTION
  stream_test.go exercises packet classification and the pull path
  directly (no sockets): SSRC latch, format auto-detection, gap silence
  concealment and BUFFER_LEVEL reporting.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rxstream

import (
	"testing"

	"github.com/aes67node/endpoint/pcmfmt"
	"github.com/aes67node/endpoint/rtp"
)

func newTestStream() *Stream {
	return New(nil, nil, "239.1.1.1", 5004, "", 96, 48000, 2, 4)
}

func l16Payload(samples, channels int, fill byte) []byte {
	buf := make([]byte, samples*channels*2)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func TestHandlePacketLatchesSSRCOnFirstPacket(t *testing.T) {
	s := newTestStream()
	pkt := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 1, Timestamp: 1000, Payload: l16Payload(48, 2, 1)}
	s.handlePacket(pkt.Bytes(nil))

	if !s.ssrcLatched || s.ssrc != 111 {
		t.Fatalf("SSRC not latched: latched=%v ssrc=%d", s.ssrcLatched, s.ssrc)
	}
	if s.formatResolved {
		t.Fatalf("format should not resolve from a single packet")
	}
}

func TestHandlePacketResolvesFormatOnSecondPacket(t *testing.T) {
	s := newTestStream()
	pkt1 := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 1, Timestamp: 0, Payload: l16Payload(48, 2, 1)}
	pkt2 := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 2, Timestamp: 48, Payload: l16Payload(48, 2, 2)}
	s.handlePacket(pkt1.Bytes(nil))
	s.handlePacket(pkt2.Bytes(nil))

	if !s.formatResolved {
		t.Fatalf("format not resolved after second packet")
	}
	if s.format != pcmfmt.L16 {
		t.Errorf("format = %v, want L16", s.format)
	}
	if s.packetTimeUS != 1000 {
		t.Errorf("packet time = %d, want 1000us for 48 samples @ 48kHz", s.packetTimeUS)
	}
	if s.jb.Len() != 2 {
		t.Errorf("expected both packets buffered, got %d", s.jb.Len())
	}
}

func TestDifferentSSRCDroppedAsLate(t *testing.T) {
	s := newTestStream()
	pkt1 := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 1, Timestamp: 0, Payload: l16Payload(48, 2, 1)}
	pkt2 := rtp.Packet{PayloadType: 96, SSRC: 222, Sequence: 1, Timestamp: 48, Payload: l16Payload(48, 2, 1)}
	s.handlePacket(pkt1.Bytes(nil))
	s.handlePacket(pkt2.Bytes(nil))

	if got := s.jb.Stats().PacketsLate; got != 1 {
		t.Errorf("PacketsLate = %d, want 1", got)
	}
}

func TestStreamProcFillsSilenceOnGap(t *testing.T) {
	s := newTestStream()
	pkt1 := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 1, Timestamp: 0, Payload: l16Payload(48, 2, 0xAA)}
	pkt2 := rtp.Packet{PayloadType: 96, SSRC: 111, Sequence: 2, Timestamp: 48, Payload: l16Payload(48, 2, 0xBB)}
	s.handlePacket(pkt1.Bytes(nil))
	s.handlePacket(pkt2.Bytes(nil))

	frameSize := pcmfmt.FrameSize(pcmfmt.L16, 2)
	blockLen := frameSize * s.samplesPerPkt

	dst := make([]byte, blockLen*2)
	n, end := s.StreamProc(dst)
	if n != len(dst) || end {
		t.Fatalf("StreamProc(n=%d, end=%v), want n=%d end=false", n, end, len(dst))
	}
	if dst[0] != 0xAA {
		t.Errorf("first block byte = %#x, want 0xAA", dst[0])
	}

	// Nothing more buffered: the next block must be silence, not garbage.
	dst2 := make([]byte, blockLen)
	s.StreamProc(dst2)
	for i, b := range dst2 {
		if b != 0 {
			t.Fatalf("expected silence at byte %d, got %#x", i, b)
		}
	}
	if s.jb.Stats().Underruns == 0 {
		t.Errorf("expected an underrun to be counted for the silence-filled gap")
	}
}

func TestGetLengthOnlySupportsByteMode(t *testing.T) {
	s := newTestStream()
	if _, err := s.GetLength("TIME"); err == nil {
		t.Errorf("expected error for unsupported mode")
	}
	if _, err := s.GetLength("BYTE"); err != nil {
		t.Errorf("BYTE mode should be supported, got %v", err)
	}
}

func TestCanSetPositionAlwaysFalse(t *testing.T) {
	s := newTestStream()
	ok, err := s.CanSetPosition(0, "BYTE")
	if ok || err == nil {
		t.Errorf("CanSetPosition = (%v, %v), want (false, non-nil)", ok, err)
	}
}

func TestSetSyncRejectsUnknownType(t *testing.T) {
	s := newTestStream()
	if h := s.SetSync(SyncType(99), nil, nil); h != -1 {
		t.Errorf("SetSync for unknown type = %d, want -1", h)
	}
	if h := s.SetSync(SyncUnderrun, func(interface{}) {}, nil); h == -1 {
		t.Errorf("SetSync for UNDERRUN should succeed")
	}
}
