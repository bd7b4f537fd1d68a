/*
NAME
  packet.go

DESCRIPTION
  packet.go provides a data structure encapsulating the properties of an
  AES67 RTP packet (RFC 3550 fixed 12-byte header, no extension, no CSRCs —
  see spec.md §6) and functions for encoding/decoding it to/from wire bytes.

  Adapted from the teacher's protocol/rtp package: AES67 fixes extension
  and CSRC count at zero, so those fields are dropped here in favour of a
  header shape specific to this profile.

AUTHOR
  AES67 endpoint contributors; original RTP encode/decode approach by
  Saxon A. Nelson-Milton <saxon@ausocean.org>.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package rtp provides the AES67 RTP packet format: a fixed 12-byte header
// (RFC 3550) with no extension and no CSRCs, carrying L16/L24 linear PCM
// payload.
package rtp

import (
	"encoding/binary"
	"errors"
)

// Version is the only RTP version this profile accepts.
const Version = 2

// HeaderSize is the fixed size, in bytes, of an AES67 RTP header.
const HeaderSize = 12

var (
	// ErrShort indicates the input is too short to contain a valid header.
	ErrShort = errors.New("rtp: packet shorter than header")
	// ErrVersion indicates an unsupported RTP version field.
	ErrVersion = errors.New("rtp: unsupported version")
)

// Packet holds the fields of one AES67 RTP packet (RFC 3550, CC=0, X=0).
type Packet struct {
	Padding     bool   // Padding flag.
	Marker      bool   // Marker bit; unused on AES67 but preserved on the wire.
	PayloadType uint8  // RTP payload type (spec.md PT config key).
	Sequence    uint16 // RTP sequence number.
	Timestamp   uint32 // RTP timestamp, in samples at the stream's rate.
	SSRC        uint32 // Synchronization source identifier.
	Payload     []byte // Linear PCM payload, big-endian on the wire.
}

// Bytes encodes p into buf, growing or replacing it if too small, and
// returns the slice actually written. buf may be nil.
func (p *Packet) Bytes(buf []byte) []byte {
	n := HeaderSize + len(p.Payload)
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	buf[0] = Version<<6 | boolBit(p.Padding)<<5 // X=0, CC=0
	buf[1] = boolBit(p.Marker)<<7 | p.PayloadType&0x7f
	binary.BigEndian.PutUint16(buf[2:4], p.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Parse decodes an AES67 RTP packet from d. The returned Packet's Payload
// aliases d; callers that retain the packet past the lifetime of d's
// underlying buffer must copy it.
func Parse(d []byte) (Packet, error) {
	if len(d) < HeaderSize {
		return Packet{}, ErrShort
	}
	if version(d) != Version {
		return Packet{}, ErrVersion
	}
	var p Packet
	p.Padding = d[0]&0x20 != 0
	p.Marker = d[1]&0x80 != 0
	p.PayloadType = d[1] & 0x7f
	p.Sequence = binary.BigEndian.Uint16(d[2:4])
	p.Timestamp = binary.BigEndian.Uint32(d[4:8])
	p.SSRC = binary.BigEndian.Uint32(d[8:12])
	payload := d[HeaderSize:]
	if p.Padding && len(payload) > 0 {
		padLen := int(payload[len(payload)-1])
		if padLen > 0 && padLen <= len(payload) {
			payload = payload[:len(payload)-padLen]
		}
	}
	p.Payload = payload
	return p, nil
}

func version(d []byte) uint8 {
	return d[0] >> 6
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// SeqDiff returns b-a interpreted as a signed 16-bit difference, i.e. the
// number of sequence steps from a to b accounting for wraparound. Used by
// the RX pipeline to classify in-order/gap/reorder/late packets
// (spec.md §4.2 step 3).
func SeqDiff(a, b uint16) int16 {
	return int16(b - a)
}

// TSDiff returns b-a interpreted as a signed 32-bit difference, i.e. the
// number of timestamp ticks from a to b accounting for wraparound. Used by
// the jitter buffer ordering invariant (spec.md §3).
func TSDiff(a, b uint32) int32 {
	return int32(b - a)
}
