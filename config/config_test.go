/*
NAME
  config_test.go

DESCRIPTION
  config_test.go checks default seeding, YAML round trip, and
  missing-file fallback.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	got := Default()
	want := Static{
		PT:                   96,
		Interface:            "0.0.0.0",
		Jitter:               10,
		PTPDomain:            0,
		PTPEnabled:           true,
		ClockMode:            ClockModePTP,
		ClockFallbackTimeout: 5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Default() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), r.Static()); diff != "" {
		t.Errorf("Static() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r := New()
	r.SetStatic(Static{
		PT:                   97,
		Interface:            "192.168.1.10",
		Jitter:               20,
		PTPDomain:            1,
		PTPEnabled:           false,
		ClockMode:            ClockModeSystem,
		ClockFallbackTimeout: 0,
	})

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(r.Static(), loaded.Static()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveReadWrite(t *testing.T) {
	r := New()
	r.SetLive(Live{PTPStats: "Slave to: PTP/x", BufferLevel: 100, PacketsReceived: 42})

	got := r.Live()
	if got.BufferLevel != 100 || got.PacketsReceived != 42 {
		t.Errorf("Live() = %+v, unexpected values", got)
	}
}
