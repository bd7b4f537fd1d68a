/*
NAME
  buffer.go

DESCRIPTION
  buffer.go implements the RX pipeline's jitter buffer: an ordered ring of
  (rtp_ts, pcm_bytes) entries keyed by RTP timestamp modulo 2^32 (spec.md
  §3 "Jitter Buffer"). It absorbs network delay variation and hands the
  playout cursor (spec.md §4.2) a contiguous, gap-concealed PCM stream.

  Grounded on _examples/original_source/BassAES67/bass-aes67/src/input/jitter.rs
  for the statistics model (packets_dropped_late/duplicate/reordered,
  underruns, overruns) and on the teacher's own locking discipline (each
  stateful buffer guarded by its own mutex, held only for O(1) operations,
  as in protocol/rtcp.Client).

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package jitter provides the RTP-timestamp-ordered playout buffer used by
// the RX pipeline to absorb network jitter and deliver PCM at a fixed
// pull rate.
package jitter

import (
	"sync"

	"github.com/aes67node/endpoint/rtp"
)

// entry is one buffered packet's payload, keyed by its RTP timestamp.
type entry struct {
	ts      uint32
	pcm     []byte
	samples int // sample frames represented by pcm (derived from len(pcm)).
}

// Stats are atomically-readable counters describing buffer health. They
// mirror spec.md's config registry read-only keys plus the original's
// finer-grained breakdown (see SPEC_FULL.md "Supplemented Features").
type Stats struct {
	PacketsReceived   uint64
	PacketsLate       uint64 // dropped: arrived after the playout cursor passed them.
	PacketsDuplicate  uint64
	PacketsReordered  uint64
	Underruns         uint64 // buffer ran dry / silence inserted for a gap.
	Overruns          uint64 // buffer exceeded max occupancy, oldest dropped.
}

// Buffer is the jitter buffer for one RX stream. It is safe for concurrent
// use by one receive goroutine (Push) and one pull goroutine (Read); both
// paths take the same mutex, held only across O(1) insert/drain steps.
type Buffer struct {
	mu sync.Mutex

	entries []entry // ordered by (ts - anchor) signed-32 distance.

	targetPackets int // ceil(JITTER_ms / packet_time_ms).
	maxPackets    int // 4x target, hard cap (spec.md §3).

	haveAnchor bool
	anchorTS   uint32 // first entry's ts, used for ordering comparisons.

	stats Stats
}

// New creates a jitter buffer targeting targetPackets occupancy, with a
// hard cap of 4x that (spec.md §3 invariant).
func New(targetPackets int) *Buffer {
	if targetPackets < 1 {
		targetPackets = 1
	}
	return &Buffer{
		targetPackets: targetPackets,
		maxPackets:    targetPackets * 4,
	}
}

// SetTarget updates the target/max occupancy, e.g. when JITTER_ms or the
// detected packet time changes.
func (b *Buffer) SetTarget(targetPackets int) {
	if targetPackets < 1 {
		targetPackets = 1
	}
	b.mu.Lock()
	b.targetPackets = targetPackets
	b.maxPackets = targetPackets * 4
	b.mu.Unlock()
}

// Push inserts a received packet's payload into the buffer, maintaining
// strict ordering by (rtp_ts - anchor) signed distance (spec.md §3). pcm is
// retained; callers must not modify it afterward.
func (b *Buffer) Push(ts uint32, pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.PacketsReceived++

	if !b.haveAnchor {
		b.anchorTS = ts
		b.haveAnchor = true
	}

	e := entry{ts: ts, pcm: pcm}

	// Binary search for insertion point ordered by distance from anchor.
	dist := func(t uint32) int32 { return rtp.TSDiff(b.anchorTS, t) }
	d := dist(ts)
	lo, hi := 0, len(b.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if dist(b.entries[mid].ts) < d {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo < len(b.entries) && b.entries[lo].ts == ts {
		b.stats.PacketsDuplicate++
		return
	}
	if lo < len(b.entries) {
		b.stats.PacketsReordered++
	}

	b.entries = append(b.entries, entry{})
	copy(b.entries[lo+1:], b.entries[lo:])
	b.entries[lo] = e

	for len(b.entries) > b.maxPackets {
		b.entries = b.entries[1:]
		b.stats.Overruns++
	}
}

// DropLate records a packet rejected by the caller because it arrived after
// the playout cursor already passed its timestamp (spec.md §4.2 step 3).
func (b *Buffer) DropLate() {
	b.mu.Lock()
	b.stats.PacketsLate++
	b.mu.Unlock()
}

// Front returns the earliest-ordered entry without removing it, and
// whether the buffer is non-empty.
func (b *Buffer) Front() (ts uint32, pcm []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return 0, nil, false
	}
	return b.entries[0].ts, b.entries[0].pcm, true
}

// PopFront removes and returns the earliest-ordered entry.
func (b *Buffer) PopFront() (ts uint32, pcm []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return 0, nil, false
	}
	e := b.entries[0]
	b.entries = b.entries[1:]
	return e.ts, e.pcm, true
}

// Len returns the current number of buffered packets.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// RecordUnderrun increments the underrun counter; called by the pull path
// when it must conceal a gap with silence.
func (b *Buffer) RecordUnderrun() {
	b.mu.Lock()
	b.stats.Underruns++
	b.mu.Unlock()
}

// Stats returns a copy of the current statistics.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Level returns 100 * current_packets / target_packets, clamped to 200, as
// specified for the BUFFER_LEVEL config key (spec.md §4.2).
func (b *Buffer) Level() uint32 {
	b.mu.Lock()
	n := len(b.entries)
	target := b.targetPackets
	b.mu.Unlock()
	if target <= 0 {
		return 0
	}
	lvl := 100 * n / target
	if lvl > 200 {
		lvl = 200
	}
	return uint32(lvl)
}

// TargetPackets returns the current target occupancy in packets.
func (b *Buffer) TargetPackets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.targetPackets
}

// Reset clears all buffered entries and the anchor, e.g. on stream restart.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.entries = nil
	b.haveAnchor = false
	b.mu.Unlock()
}
