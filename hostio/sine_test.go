/*
NAME
  sine_test.go

DESCRIPTION
  sine_test.go checks SineChannel's Read produces frame-aligned output
  and refuses reads before Start.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package hostio

import (
	"testing"

	"github.com/aes67node/endpoint/pcmfmt"
)

func TestSineChannelRequiresStart(t *testing.T) {
	c := NewSineChannel(pcmfmt.L16, 48000, 1, 1000, 0.5)
	if _, err := c.Read(make([]byte, 96)); err != ErrNotRunning {
		t.Errorf("Read before Start = %v, want ErrNotRunning", err)
	}
}

func TestSineChannelReadIsFrameAligned(t *testing.T) {
	c := NewSineChannel(pcmfmt.L16, 48000, 2, 1000, 0.5)
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	frameSize := pcmfmt.FrameSize(pcmfmt.L16, 2)
	buf := make([]byte, frameSize*10+1) // deliberately not frame-aligned.
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n%frameSize != 0 {
		t.Errorf("Read n=%d not a multiple of frame size %d", n, frameSize)
	}
	if n != frameSize*10 {
		t.Errorf("Read n=%d, want %d (trailing partial frame dropped)", n, frameSize*10)
	}
}
