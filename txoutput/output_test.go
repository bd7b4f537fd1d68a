/*
NAME
  output_test.go

DESCRIPTION
  output_test.go exercises validation, held-last concealment and packet
  construction directly, without opening real sockets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package txoutput

import (
	"testing"

	"github.com/aes67node/endpoint/pcmfmt"
)

// fakeChannel is a hostio.Channel stub that returns a fixed-size chunk per
// Read call, optionally shorter than requested to exercise concealment.
type fakeChannel struct {
	fill      byte
	shortBy   int
	readCalls int
}

func (f *fakeChannel) Name() string     { return "fake" }
func (f *fakeChannel) Start() error     { return nil }
func (f *fakeChannel) Stop() error      { return nil }
func (f *fakeChannel) IsRunning() bool  { return true }
func (f *fakeChannel) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakeChannel) Read(p []byte) (int, error) {
	f.readCalls++
	n := len(p) - f.shortBy
	for i := 0; i < n; i++ {
		p[i] = f.fill
	}
	return n, nil
}

func testConfig() Config {
	return Config{
		GroupAddr:    "239.1.1.1",
		Port:         5004,
		PT:           96,
		Channels:     2,
		Rate:         48000,
		PacketTimeUS: 1000,
		Format:       pcmfmt.L16,
	}
}

func TestNewRejectsBadPacketTime(t *testing.T) {
	cfg := testConfig()
	cfg.PacketTimeUS = 777
	if _, err := New(nil, nil, &fakeChannel{}, cfg); err == nil {
		t.Fatalf("expected ErrIllegalParam for packet time 777us")
	}
}

func TestNewComputesSamplesPerPacket(t *testing.T) {
	o, err := New(nil, nil, &fakeChannel{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if o.samplesPerPkt != 48 {
		t.Errorf("samplesPerPkt = %d, want 48 for 48kHz @ 1ms", o.samplesPerPkt)
	}
}

func TestConcealShortPadsWithLastFrame(t *testing.T) {
	o, err := New(nil, nil, &fakeChannel{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frameSize := o.frameSize
	copy(o.lastFrame, []byte{0xAA, 0xAA, 0xAA, 0xAA})

	buf := make([]byte, frameSize*4)
	for i := range buf {
		buf[i] = 0x11
	}
	// Simulate a short read: only the first 2 frames are "real". The last
	// of them (0x11) replaces the older lastFrame (0xAA) and is held.
	o.concealShort(buf, frameSize*2)

	for i := frameSize * 2; i < len(buf); i++ {
		if buf[i] != 0x11 {
			t.Fatalf("byte %d = %#x, want held-last 0x11", i, buf[i])
		}
	}
	if o.stats.Underruns != 1 {
		t.Errorf("Underruns = %d, want 1", o.stats.Underruns)
	}
}

func TestConcealShortUpdatesLastFrameOnFullRead(t *testing.T) {
	o, err := New(nil, nil, &fakeChannel{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frameSize := o.frameSize
	buf := make([]byte, frameSize*4)
	for i := range buf {
		buf[i] = 0xBB
	}
	o.concealShort(buf, len(buf))

	for i, b := range o.lastFrame {
		if b != 0xBB {
			t.Errorf("lastFrame[%d] = %#x, want 0xBB", i, b)
		}
	}
	if o.stats.Underruns != 0 {
		t.Errorf("Underruns = %d, want 0 on a full read", o.stats.Underruns)
	}
}

func TestStatsStartAtZero(t *testing.T) {
	o, err := New(nil, nil, &fakeChannel{}, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := o.Stats()
	if s.PacketsSent != 0 || s.Underruns != 0 || s.Skips != 0 {
		t.Errorf("Stats() = %+v, want all zero", s)
	}
}
