/*
NAME
  pcmfmt.go

DESCRIPTION
  pcmfmt.go provides conversion helpers for the linear PCM sample formats
  carried on an AES67 wire: L16 (16-bit) and L24 (24-bit, packed). AES67
  payloads are big-endian; host buffers are assumed native (host) byte
  order, matching the byte-swap step of the RX/TX pipelines.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pcmfmt provides sample-format helpers for L16/L24 linear PCM audio
// as used on the AES67 wire.
package pcmfmt

import (
	"encoding/binary"
	"fmt"
)

// Format identifies a supported linear PCM sample format.
type Format uint8

// Supported wire formats. AES67 carries only linear PCM; compressed codecs
// are out of scope (see spec.md Non-goals).
const (
	L16 Format = iota // 16-bit big-endian PCM.
	L24               // 24-bit big-endian PCM, packed (3 bytes per sample).
)

// BytesPerSample returns the number of bytes occupied by a single sample
// of the given format.
func (f Format) BytesPerSample() int {
	switch f {
	case L16:
		return 2
	case L24:
		return 3
	default:
		panic(fmt.Sprintf("pcmfmt: unknown format %d", f))
	}
}

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case L16:
		return "L16"
	case L24:
		return "L24"
	default:
		return "unknown"
	}
}

// DetectFormat infers the wire format from a payload length, channel count
// and samples-per-packet, as the RX pipeline does on its first accepted
// packet. It returns an error if the payload does not evenly divide into
// either a 2-byte or 3-byte sample format.
func DetectFormat(payloadLen, channels, samplesPerPacket int) (Format, error) {
	if channels <= 0 || samplesPerPacket <= 0 {
		return 0, fmt.Errorf("pcmfmt: invalid channels (%d) or samples-per-packet (%d)", channels, samplesPerPacket)
	}
	frame := channels * samplesPerPacket
	if frame == 0 {
		return 0, fmt.Errorf("pcmfmt: zero-size frame")
	}
	switch payloadLen {
	case frame * 2:
		return L16, nil
	case frame * 3:
		return L24, nil
	default:
		return 0, fmt.Errorf("pcmfmt: payload length %d does not match L16 (%d) or L24 (%d) for %d channels x %d samples",
			payloadLen, frame*2, frame*3, channels, samplesPerPacket)
	}
}

// SwapToHost converts a big-endian wire payload into host-order sample
// bytes, in place. dst and src may be the same slice.
func SwapToHost(f Format, dst, src []byte) {
	n := f.BytesPerSample()
	for i := 0; i+n <= len(src); i += n {
		swapSample(f, dst[i:i+n], src[i:i+n])
	}
}

// SwapToWire converts host-order sample bytes into big-endian wire payload,
// in place. dst and src may be the same slice.
func SwapToWire(f Format, dst, src []byte) {
	// The byte swap for big-endian wire <-> little-endian host is its own
	// inverse for L16 (2-byte reverse) and L24 (3-byte reverse).
	SwapToHost(f, dst, src)
}

func swapSample(f Format, dst, src []byte) {
	switch f {
	case L16:
		v := binary.BigEndian.Uint16(src)
		binary.LittleEndian.PutUint16(dst, v)
	case L24:
		// Reverse the 3 bytes: big-endian wire -> little-endian host.
		b0, b1, b2 := src[0], src[1], src[2]
		dst[0], dst[1], dst[2] = b2, b1, b0
	default:
		panic(fmt.Sprintf("pcmfmt: unknown format %d", f))
	}
}

// Silence writes n bytes of digital silence (zero) into dst, which must
// have length >= n.
func Silence(dst []byte, n int) {
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
}

// FrameSize returns the number of bytes in one sample frame (one sample on
// every channel) for the given format and channel count.
func FrameSize(f Format, channels int) int {
	return f.BytesPerSample() * channels
}
