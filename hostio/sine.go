/*
NAME
  sine.go

DESCRIPTION
  sine.go is a synthetic Channel that generates a continuous sine tone on
  Read and discards whatever it is given on Write, used to drive the
  round-trip conformance scenario in spec.md §8 ("reproduce the sine
  within 1 LSB") without requiring real audio hardware.

  Grounded on pcmfmt.SineGenerator (pcmfmt/tone.go), itself wiring
  github.com/mjibson/go-dsp and gonum.org/v1/gonum the way the teacher's
  codec/pcm package wires them for its own filter tests.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package hostio

import (
	"sync"

	"github.com/aes67node/endpoint/pcmfmt"
)

// SineChannel is a Channel whose Read produces a continuous sine tone
// and whose Write discards its input (a capture-only source).
type SineChannel struct {
	gen pcmfmt.SineGenerator

	mu      sync.Mutex
	running bool
}

// NewSineChannel returns a SineChannel generating a tone at freqHz, in
// the given format/rate/channel count, at the given amplitude (0..1).
func NewSineChannel(format pcmfmt.Format, sampleRate, channels int, freqHz, amplitude float64) *SineChannel {
	return &SineChannel{gen: pcmfmt.SineGenerator{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		FreqHz:     freqHz,
		Amplitude:  amplitude,
	}}
}

// Name identifies the channel for logging.
func (s *SineChannel) Name() string { return "sine" }

// Start marks the channel running; the generator itself is stateless
// apart from its phase accumulator.
func (s *SineChannel) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop marks the channel stopped.
func (s *SineChannel) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether Start has been called without a matching
// Stop.
func (s *SineChannel) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Read fills p with the next contiguous span of the sine tone.
func (s *SineChannel) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0, ErrNotRunning
	}
	frameSize := pcmfmt.FrameSize(s.gen.Format, s.gen.Channels)
	frames := len(p) / frameSize
	s.gen.Generate(p[:frames*frameSize], frames)
	return frames * frameSize, nil
}

// Write discards its input: SineChannel is a capture-only source used to
// feed TX in loopback tests, never a playout sink.
func (s *SineChannel) Write(p []byte) (int, error) {
	return len(p), nil
}
