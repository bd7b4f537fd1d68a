/*
NAME
  seqlock.go

DESCRIPTION
  seqlock.go implements a sequence lock (one write at a time, any number
  of readers) used to
  publish the clock's disciplining parameters (offset, frequency, state)
  without ever blocking a reader on the hot path (spec.md §4.1: "must be
  lock-free on the hot path (double-buffered parameters or a seqlock)").

  This is plain standard-library synchronization: no package in the
  reference corpus implements a seqlock (the teacher's hot paths are all
  I/O bound, not lock-free-read bound), so there is nothing to ground this
  on beyond sync/atomic itself — recorded in DESIGN.md as a justified
  standard-library use.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package clock

import "sync/atomic"

// params is the disciplining state published by the clock's writer side
// (servo update or mode switch) and consumed by NowNS/PPMx1000/State on the
// hot path.
type params struct {
	offsetNs   int64
	freqPPB    int32
	lastSyncNs uint64
	state      State
}

// seqlock guards a params value with a sequence counter: writers increment
// the counter before and after mutation (making it odd mid-write), readers
// retry if they observe an odd or changing counter. Readers never block.
type seqlock struct {
	seq atomic.Uint64
	val params
}

// store publishes a new params value. It may be called from several
// goroutines (the clock source and the fallback watchdog): a writer claims
// the lock by moving the counter from even to odd with a compare-and-swap,
// so concurrent writers are serialized.
func (s *seqlock) store(p params) {
	for {
		seq := s.seq.Load()
		if seq&1 == 0 && s.seq.CompareAndSwap(seq, seq+1) { // now odd: write in progress.
			s.val = p
			s.seq.Store(seq + 2) // now even: write complete.
			return
		}
	}
}

// load returns a consistent snapshot of the params, retrying if a
// concurrent write was observed mid-read.
func (s *seqlock) load() params {
	for {
		seq1 := s.seq.Load()
		if seq1&1 != 0 {
			continue // writer in progress.
		}
		p := s.val
		seq2 := s.seq.Load()
		if seq1 == seq2 {
			return p
		}
	}
}
