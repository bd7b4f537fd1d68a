/*
NAME
  adapter_test.go

DESCRIPTION
  adapter_test.go exercises the config dispatch table, error-code
  recording for unknown handles, and capability reporting.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package plugin

import (
	"testing"

	"github.com/aes67node/endpoint/clock"
	"github.com/aes67node/endpoint/config"
	"github.com/aes67node/endpoint/pcmfmt"
	"github.com/aes67node/endpoint/rxstream"
	"github.com/aes67node/endpoint/txoutput"
)

// rxstreamForTest returns an unstarted RX stream, just enough to give
// refreshLive a real Stats() to read: its jitter buffer's target
// occupancy is seeded from jitterMS even before a packet time is known.
func rxstreamForTest() *rxstream.Stream {
	return rxstream.New(nil, nil, "239.1.1.1", 5004, "", 96, 48000, 2, 10)
}

func testOutputConfig() txoutput.Config {
	return txoutput.Config{
		GroupAddr:    "239.1.1.1",
		Port:         5004,
		PT:           96,
		Channels:     2,
		Rate:         48000,
		PacketTimeUS: 1000,
		Format:       pcmfmt.L16,
	}
}

func newTestAdapter(t *testing.T) *Adapter {
	reg := config.New()
	clk := clock.New(nil)
	a := New(nil, reg, clk)
	t.Cleanup(a.Close)
	return a
}

func TestConfigGetKnownKeys(t *testing.T) {
	a := newTestAdapter(t)
	v, ok := a.ConfigGet("PT")
	if !ok {
		t.Fatalf("PT should be a recognized key")
	}
	if v.(uint32) != 96 {
		t.Errorf("PT default = %v, want 96", v)
	}
}

func TestConfigGetUnknownKey(t *testing.T) {
	a := newTestAdapter(t)
	if _, ok := a.ConfigGet("NOT_A_KEY"); ok {
		t.Errorf("unknown key should not be recognized")
	}
}

func TestConfigSetRejectsWrongType(t *testing.T) {
	a := newTestAdapter(t)
	err := a.ConfigSet("PT", "not-a-uint32")
	if err == nil {
		t.Fatalf("expected ILLPARAM for wrong-typed value")
	}
	if ae, ok := err.(*AdapterError); !ok || ae.Code != ErrIllParam {
		t.Errorf("error = %v, want ErrIllParam", err)
	}
}

func TestConfigSetRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.ConfigSet("JITTER", uint32(20)); err != nil {
		t.Fatalf("ConfigSet: %v", err)
	}
	v, _ := a.ConfigGet("JITTER")
	if v.(uint32) != 20 {
		t.Errorf("JITTER after set = %v, want 20", v)
	}
}

func TestConfigSetRejectsReadOnlyKey(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.ConfigSet("PACKETS_RECEIVED", uint64(5)); err == nil {
		t.Errorf("expected ILLPARAM when writing a read-only diagnostic key")
	}
}

func TestUnknownHandleOperationsRecordError(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.GetLength(999, "BYTE"); err == nil {
		t.Fatalf("expected error for unknown handle")
	}
	if got := a.ErrorFor(999); got != ErrIllParam {
		t.Errorf("ErrorFor(999) = %v, want ErrIllParam", got)
	}
}

func TestRefreshLivePublishesClockState(t *testing.T) {
	a := newTestAdapter(t)
	a.refreshLive()
	v, ok := a.ConfigGet("PTP_STATE")
	if !ok {
		t.Fatalf("PTP_STATE should be a recognized key")
	}
	if v.(string) != clock.StateDisabled.String() {
		t.Errorf("PTP_STATE = %v, want %v before the clock is started", v, clock.StateDisabled.String())
	}
}

func TestRefreshLivePublishesStreamStats(t *testing.T) {
	a := newTestAdapter(t)
	s := rxstreamForTest()
	h := a.allocHandle()
	a.mu.Lock()
	a.streams[h] = s
	a.mu.Unlock()

	a.refreshLive()

	got, _ := a.ConfigGet("TARGET_PACKETS")
	if got.(uint32) == 0 {
		t.Errorf("TARGET_PACKETS = 0, want the jitter buffer's real target occupancy")
	}
}

func TestDescribeReportsCoreCapabilities(t *testing.T) {
	c := Describe()
	if !c.RXGetLength || !c.RXCanSetPosition || !c.RXSetSync || !c.TXGetPPM {
		t.Errorf("Describe() = %+v, want all core operations true", c)
	}
	if c.RXGetTags || c.RXGetFilePosition {
		t.Errorf("Describe() = %+v, want reserved extension hooks false", c)
	}
}

func TestGetPPMFailsWithoutClockLock(t *testing.T) {
	a := newTestAdapter(t)
	h, err := a.CreateOutput(nopChannel{}, testOutputConfig())
	if err != nil {
		t.Fatalf("CreateOutput: %v", err)
	}
	if _, err := a.GetPPM(h); err == nil {
		t.Errorf("expected NO_CLOCK before the clock is started")
	}
}

type nopChannel struct{}

func (nopChannel) Name() string                 { return "nop" }
func (nopChannel) Start() error                 { return nil }
func (nopChannel) Stop() error                  { return nil }
func (nopChannel) IsRunning() bool              { return true }
func (nopChannel) Read(p []byte) (int, error)   { return len(p), nil }
func (nopChannel) Write(p []byte) (int, error)  { return len(p), nil }
