/*
NAME
  servo_test.go

DESCRIPTION
  servo_test.go checks the drift-rate regression and lock/unlock
  hysteresis against synthetic offset sequences.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package clock

import "testing"

func TestServoLocksOnStableOffset(t *testing.T) {
	s := newServo()
	for i := 0; i < servoHistorySize; i++ {
		s.update(0)
	}
	if !s.locked() {
		t.Errorf("expected lock on a constant-zero offset sequence")
	}
	if s.freqPPB() != 0 {
		t.Errorf("freqPPB = %d, want 0 for a flat offset sequence", s.freqPPB())
	}
}

func TestServoUnlocksOnLargeDrift(t *testing.T) {
	s := newServo()
	for i := 0; i < servoHistorySize; i++ {
		s.update(0)
	}
	if !s.locked() {
		t.Fatalf("expected initial lock")
	}

	// Inject a large, growing offset: drift rate should exceed the lock
	// threshold and, after enough bad samples, unlock.
	for i := 0; i < servoUnlockCount+2; i++ {
		s.update(int64(i+1) * 10_000_000)
	}
	if s.locked() {
		t.Errorf("expected unlock after sustained large drift")
	}
}

func TestServoClampsFrequency(t *testing.T) {
	s := newServo()
	for i := 0; i < servoHistorySize; i++ {
		s.update(int64(i) * 1_000_000_000) // absurd 1s/sample drift.
	}
	f := s.freqPPB()
	if f > servoClampPPB || f < -servoClampPPB {
		t.Errorf("freqPPB = %d, exceeds clamp +/-%.0f", f, servoClampPPB)
	}
}
