/*
NAME
  stats.go

DESCRIPTION
  stats.go tracks per-client PTP diagnostics and renders them as the
  PTP_STATS config string (spec.md §3, "Supplemented Features" in
  SPEC_FULL.md).

  Grounded on _examples/original_source/BassAES67/bass-ptp/src/stats.rs's
  PtpStats/format_display: the same state labels, the same "Slave to:
  PTP/<id>:<port>, δ <us>µs, Delay: <us>µs, Freq: <sign><ppm>ppm
  [LOCKED|UNLOCKED]" wording.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ptp

import "fmt"

// State is the client's acquisition state, mirrored by clock.State but
// kept independent so the ptp package has no dependency on clock.
type State uint8

const (
	StateDisabled State = iota
	StateListening
	StateUncalibrated
	StateSlave
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateListening:
		return "LISTENING"
	case StateUncalibrated:
		return "UNCALIBRATED"
	case StateSlave:
		return "SLAVE"
	default:
		return "UNKNOWN"
	}
}

// Stats is a snapshot of the client's diagnostics, safe to copy.
type Stats struct {
	State            State
	GrandmasterID    ClockIdentity
	GrandmasterPort  uint16
	OffsetNS         int64
	FrequencyPPM     float64
	MeanPathDelayNS  int64
	SyncCount        uint64
	AnnounceCount    uint64
	FollowUpCount    uint64
	DelayRespCount   uint64
	Locked           bool
	Domain           uint8
	ClockClass       uint8
}

// FormatDisplay renders the stats the way spec.md's PTP_STATS config key
// reports them, matching the original implementation's wording so
// existing log scrapers and docs stay meaningful.
func (s Stats) FormatDisplay() string {
	switch s.State {
	case StateDisabled:
		return "PTP: Disabled"
	case StateListening:
		return "PTP: Listening for grandmaster..."
	case StateUncalibrated:
		return fmt.Sprintf("PTP: Uncalibrated - GM: %s:%d", s.GrandmasterID.HexString(), s.GrandmasterPort)
	case StateSlave:
		lock := " [UNLOCKED]"
		if s.Locked {
			lock = " [LOCKED]"
		}
		return fmt.Sprintf("Slave to: PTP/%s:%d, δ %.1fµs, Delay: %.1fµs, Freq: %+.2fppm%s",
			s.GrandmasterID.HexString(), s.GrandmasterPort,
			float64(s.OffsetNS)/1000.0,
			float64(s.MeanPathDelayNS)/1000.0,
			s.FrequencyPPM,
			lock)
	default:
		return "PTP: Unknown"
	}
}
