/*
NAME
  tone_test.go

DESCRIPTION
  tone_test.go exercises the sine generator and its frequency-domain
  verifier against each other (spec.md §8 scenario 1: "reproduce the sine
  within 1 LSB"), giving github.com/mjibson/go-dsp's fft and
  gonum.org/v1/gonum's floats a real call path instead of an unused import.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pcmfmt

import (
	"math"
	"testing"
)

func TestSineGeneratorQuantizationWithinOneLSB(t *testing.T) {
	const rate = 48000
	const freq = 1000.0
	const amplitude = 0.9
	const frames = 2048

	gen := SineGenerator{Format: L16, SampleRate: rate, Channels: 1, FreqHz: freq, Amplitude: amplitude}
	buf := make([]byte, frames*FrameSize(L16, 1))
	gen.Generate(buf, frames)
	quantized := ToFloatChannel(L16, buf, 1, 0)

	exact := make([]float64, frames)
	step := 2 * math.Pi * freq / float64(rate)
	phase := 0.0
	for i := range exact {
		exact[i] = amplitude * math.Sin(phase)
		phase += step
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}

	if got, lsb := MaxAbsError(quantized, exact), LSB(L16); got > lsb {
		t.Errorf("quantization error = %v, want <= 1 LSB (%v)", got, lsb)
	}
}

func TestDominantFrequencyMatchesGeneratedTone(t *testing.T) {
	const rate = 48000
	const freq = 2000.0
	const frames = 4096

	gen := SineGenerator{Format: L16, SampleRate: rate, Channels: 1, FreqHz: freq, Amplitude: 0.7}
	buf := make([]byte, frames*FrameSize(L16, 1))
	gen.Generate(buf, frames)
	samples := ToFloatChannel(L16, buf, 1, 0)

	got := DominantFrequency(samples, rate)
	resolution := float64(rate) / float64(frames)
	if diff := math.Abs(got - freq); diff > resolution {
		t.Errorf("DominantFrequency = %v, want %v ± %v (FFT bin resolution)", got, freq, resolution)
	}
}

func TestMaxAbsErrorZeroForIdenticalSequences(t *testing.T) {
	a := []float64{0.1, -0.2, 0.3, -0.4}
	if got := MaxAbsError(a, append([]float64(nil), a...)); got != 0 {
		t.Errorf("MaxAbsError of identical sequences = %v, want 0", got)
	}
}
