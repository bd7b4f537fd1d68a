/*
NAME
  tone.go

DESCRIPTION
  tone.go provides a test-tone generator and a frequency-domain verifier
  used by the RX/TX loopback conformance tests (spec.md §8 scenario 1:
  "feed a 440 Hz sine to TX ... reproduce the sine within 1 LSB"). The
  verifier reuses the FFT/window library the teacher already depends on
  for PCM analysis (codec/pcm/filters.go) rather than hand-rolling a DFT.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pcmfmt

import (
	"encoding/binary"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// SineGenerator produces a continuous single-tone sine wave, encoded into
// host-order PCM sample bytes of a chosen format. It is stateful so that
// successive calls to Generate produce a phase-continuous waveform, as
// required to feed a TX pipeline across many packet-sized pulls.
type SineGenerator struct {
	Format     Format
	SampleRate int
	Channels   int
	FreqHz     float64
	Amplitude  float64 // 0..1, fraction of full scale.

	phase float64
}

// Generate writes n sample frames (n * Channels samples) of the sine wave
// into dst, which must be at least n*FrameSize(Format,Channels) bytes.
// The same value is written to every channel.
func (g *SineGenerator) Generate(dst []byte, frames int) {
	step := 2 * math.Pi * g.FreqHz / float64(g.SampleRate)
	fs := g.Format.BytesPerSample()
	for i := 0; i < frames; i++ {
		v := g.Amplitude * math.Sin(g.phase)
		g.phase += step
		if g.phase > 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
		sample := floatToSample(g.Format, v)
		for ch := 0; ch < g.Channels; ch++ {
			off := (i*g.Channels + ch) * fs
			writeSample(g.Format, dst[off:off+fs], sample)
		}
	}
}

// floatToSample quantizes a float in [-1, 1] to the integer representation
// of the given format, returned sign-extended in an int64.
func floatToSample(f Format, v float64) int64 {
	var max int64
	switch f {
	case L16:
		max = 1<<15 - 1
	case L24:
		max = 1<<23 - 1
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int64(math.Round(v * float64(max)))
}

// writeSample writes a host-order (little-endian) sample of the given
// format into dst.
func writeSample(f Format, dst []byte, v int64) {
	switch f {
	case L16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case L24:
		u := uint32(v) & 0x00ffffff
		dst[0] = byte(u)
		dst[1] = byte(u >> 8)
		dst[2] = byte(u >> 16)
	}
}

// readSample reads a host-order sample of the given format from src,
// returned as a float in [-1, 1].
func readSample(f Format, src []byte) float64 {
	switch f {
	case L16:
		v := int16(binary.LittleEndian.Uint16(src))
		return float64(v) / float64(1<<15-1)
	case L24:
		u := uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
		if u&0x00800000 != 0 {
			u |= 0xff000000
		}
		return float64(int32(u)) / float64(1<<23-1)
	default:
		return 0
	}
}

// ToFloatChannel extracts a single channel from interleaved PCM bytes as a
// slice of floats in [-1, 1].
func ToFloatChannel(f Format, data []byte, channels, channel int) []float64 {
	fs := f.BytesPerSample()
	frame := fs * channels
	n := len(data) / frame
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		off := i*frame + channel*fs
		out[i] = readSample(f, data[off:off+fs])
	}
	return out
}

// DominantFrequency returns the frequency (Hz) of the largest magnitude bin
// in the FFT of samples, sampled at sampleRate. Used by conformance tests to
// verify a received tone matches the transmitted one.
func DominantFrequency(samples []float64, sampleRate int) float64 {
	complexIn := make([]complex128, len(samples))
	for i, s := range samples {
		complexIn[i] = complex(s, 0)
	}
	spectrum := fft.FFT(complexIn)

	best := 0
	bestMag := -1.0
	// Only the first half of the spectrum is meaningful for real input.
	for i := 1; i < len(spectrum)/2; i++ {
		mag := math.Hypot(real(spectrum[i]), imag(spectrum[i]))
		if mag > bestMag {
			bestMag = mag
			best = i
		}
	}
	return float64(best) * float64(sampleRate) / float64(len(samples))
}

// MaxAbsError returns the maximum absolute per-sample difference between
// two equal-length, LSB-normalized sample sequences. Used to assert
// "reproduces within 1 LSB" per spec.md §8 scenario 1.
func MaxAbsError(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		diffs[i] = math.Abs(a[i] - b[i])
	}
	return floats.Max(diffs)
}

// LSB returns the magnitude, in normalized [-1,1] float units, of one least
// significant bit for the given format.
func LSB(f Format) float64 {
	switch f {
	case L16:
		return 1.0 / float64(1<<15-1)
	case L24:
		return 1.0 / float64(1<<23-1)
	default:
		return 0
	}
}
