/*
NAME
  servo.go

DESCRIPTION
  servo.go implements the clock discipline servo: a windowed linear-
  regression drift-rate estimator that turns a stream of offset
  measurements into a frequency correction (ppb) and a lock/unlock state.
  Lock is decided on the filtered drift rate alone (below 50 ppm for 3
  consecutive samples); the size of the offset itself is not part of the
  lock test.

  Ported from _examples/original_source/BassAES67/bass-ptp/src/servo.rs,
  which is the ground truth this spec was distilled from: a 32-sample
  ring buffer, 8-sample minimum before regression kicks in, drift rate
  low-pass filtered at alpha=0.1, clamped to +/-500,000 ppb, with 3
  consecutive good samples required to lock and 5 consecutive bad samples
  required to unlock (hysteresis, mirrored from the Rust original rather
  than invented).

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

import "time"

const (
	servoHistorySize    = 32
	servoMinSamples     = 8
	servoAlpha          = 0.1
	servoLockPPB        = 50_000.0 // 50ppm drift threshold for lock.
	servoClampPPB       = 500_000.0
	servoLockCount      = 3
	servoUnlockCount    = 5
)

// historySample is one (time, offset) pair used for the windowed
// regression.
type historySample struct {
	tNs   int64
	offNs int64
}

// servo estimates clock drift rate from a sliding window of offset
// measurements via linear regression, low-pass filters the estimate, and
// reports a lock state once the filtered drift is small and stable.
type servo struct {
	start time.Time

	history    [servoHistorySize]historySample
	pos, count int

	filteredDriftPPB float64
	freqPPBValue     float64

	samplesInLock   int
	samplesOutLock  int
	isLocked        bool
}

func newServo() *servo {
	return &servo{start: time.Now()}
}

// update records a new offset measurement and recomputes the frequency
// correction and lock state.
func (s *servo) update(offsetNs int64) {
	now := time.Since(s.start).Nanoseconds()

	s.history[s.pos] = historySample{tNs: now, offNs: offsetNs}
	s.pos = (s.pos + 1) % servoHistorySize
	if s.count < servoHistorySize {
		s.count++
	}

	if s.count >= servoMinSamples {
		drift := s.regressionDriftPPB()
		s.filteredDriftPPB = servoAlpha*drift + (1-servoAlpha)*s.filteredDriftPPB
		s.freqPPBValue = -s.filteredDriftPPB
	}

	if s.freqPPBValue > servoClampPPB {
		s.freqPPBValue = servoClampPPB
	} else if s.freqPPBValue < -servoClampPPB {
		s.freqPPBValue = -servoClampPPB
	}

	absDrift := s.filteredDriftPPB
	if absDrift < 0 {
		absDrift = -absDrift
	}
	if absDrift < servoLockPPB {
		s.samplesInLock++
		s.samplesOutLock = 0
		if s.samplesInLock >= servoLockCount {
			s.isLocked = true
		}
	} else {
		s.samplesInLock = 0
		s.samplesOutLock++
		if s.samplesOutLock >= servoUnlockCount {
			s.isLocked = false
		}
	}
}

// regressionDriftPPB computes d(offset)/dt over the buffered history, in
// ns/s (numerically equal to ppb).
func (s *servo) regressionDriftPPB() float64 {
	n := s.count
	if n < 2 {
		return 0
	}

	var sumT, sumO, sumTT, sumTO float64
	for i := 0; i < n; i++ {
		h := s.history[i]
		t := float64(h.tNs)
		o := float64(h.offNs)
		sumT += t
		sumO += o
		sumTT += t * t
		sumTO += t * o
	}
	fn := float64(n)
	denom := fn*sumTT - sumT*sumT
	if denom == 0 {
		return 0
	}
	// Slope of offset (ns) vs time (ns) is dimensionless; multiply by 1e9
	// to express as ns drift per second of elapsed time, i.e. ppb.
	slope := (fn*sumTO - sumT*sumO) / denom
	return slope * 1e9
}

// freqPPB returns the current frequency correction estimate, in parts per
// billion.
func (s *servo) freqPPB() int32 {
	return int32(s.freqPPBValue)
}

// locked reports whether the servo considers itself in stable lock.
func (s *servo) locked() bool {
	return s.isLocked
}
