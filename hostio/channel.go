/*
NAME
  channel.go

DESCRIPTION
  channel.go defines Channel, the interface TX uses to pull live PCM for
  packetization and RX uses to push decoded PCM to a local sink. This is
  the standalone harness's analogue of the host audio engine the Plugin
  Adapter bridges to in production (spec.md §4.4): cmd/aes67node wires a
  Channel directly instead of a host add-on callback, for manual and
  loopback testing.

  Adapted from the teacher's device.AVDevice (device/device.go):
  Name/Start/Stop/IsRunning kept verbatim in spirit, io.Reader widened to
  a two-way Read/Write since a Channel here can be either a capture
  source (TX input) or a playout sink (RX output), and Set(config.Config)
  dropped since this module's config.Registry isn't a per-device knob
  set, it's the process-wide registry from spec.md §3.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package hostio provides the live-audio side of the standalone harness:
// an ALSA capture/playout Channel and a synthetic sine-wave Channel used
// for loopback conformance testing (spec.md §8).
package hostio

import "errors"

// ErrNotRunning is returned by Read/Write when the Channel has not been
// started.
var ErrNotRunning = errors.New("hostio: channel not running")

// Channel is a configurable PCM audio source or sink that can be started
// and stopped.
type Channel interface {
	// Name identifies the channel for logging.
	Name() string

	// Start begins capture or playout.
	Start() error

	// Stop halts capture or playout and releases any device resources.
	Stop() error

	// IsRunning reports whether Start has been called without a
	// matching Stop.
	IsRunning() bool

	// Read fills p with the next captured PCM frames (TX input role).
	Read(p []byte) (int, error)

	// Write delivers p as PCM frames to be played out (RX output role).
	Write(p []byte) (int, error)
}
