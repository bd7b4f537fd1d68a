/*
NAME
  alsa.go

DESCRIPTION
  alsa.go is a Channel backed by a real ALSA capture or playout device,
  for running the TX/RX pipelines against live hardware instead of the
  synthetic sine source.

  Adapted from the teacher's device/alsa/alsa.go: the same
  OpenCards/card.Devices/Negotiate* sequence to pick a device and agree
  on rate/channels/format, trimmed of the ring-buffer, chunking-goroutine
  and codec-conversion machinery that device/alsa/alsa.go needs for its
  push-style ingest pipeline — this Channel hands PCM straight to/from
  the ALSA device on each Read/Write call, since the RX/TX pipelines
  already pace themselves against clock.Clock.

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
	"errors"
	"fmt"
	"sync"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/utils/logging"
)

// ALSA is a Channel backed by a real ALSA PCM device, operating either as
// a capture source (record=true) or a playout sink (record=false).
type ALSA struct {
	l       logging.Logger
	title   string // device title to match; "" picks the first suitable device.
	record  bool
	rate    uint
	channels uint
	bitDepth uint

	mu      sync.Mutex
	dev     *yalsa.Device
	running bool
}

// NewALSA returns an ALSA channel for the given title ("" for the first
// matching device), sample rate, channel count and bit depth (16 or 32).
func NewALSA(l logging.Logger, title string, record bool, rate, channels, bitDepth uint) *ALSA {
	return &ALSA{l: l, title: title, record: record, rate: rate, channels: channels, bitDepth: bitDepth}
}

// Name identifies the channel for logging.
func (a *ALSA) Name() string {
	if a.record {
		return "ALSA-capture"
	}
	return "ALSA-playout"
}

// Start opens and negotiates the underlying ALSA device.
func (a *ALSA) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	cards, err := yalsa.OpenCards()
	if err != nil {
		return fmt.Errorf("hostio: could not open sound cards: %w", err)
	}
	defer yalsa.CloseCards(cards)

	var found *yalsa.Device
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, d := range devices {
			if d.Type != yalsa.PCM {
				continue
			}
			if a.record && !d.Record {
				continue
			}
			if !a.record && !d.Play {
				continue
			}
			if a.title == "" || d.Title == a.title {
				found = d
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		return errors.New("hostio: no matching ALSA device found")
	}

	if err := found.Open(); err != nil {
		return fmt.Errorf("hostio: could not open device: %w", err)
	}

	if _, err := found.NegotiateChannels(int(a.channels)); err != nil {
		found.Close()
		return fmt.Errorf("hostio: could not negotiate channels: %w", err)
	}
	if _, err := found.NegotiateRate(int(a.rate)); err != nil {
		found.Close()
		return fmt.Errorf("hostio: could not negotiate rate: %w", err)
	}
	var format yalsa.FormatType
	switch a.bitDepth {
	case 16:
		format = yalsa.S16_LE
	case 32:
		format = yalsa.S32_LE
	default:
		found.Close()
		return fmt.Errorf("hostio: unsupported bit depth %d", a.bitDepth)
	}
	if _, err := found.NegotiateFormat(format); err != nil {
		found.Close()
		return fmt.Errorf("hostio: could not negotiate format: %w", err)
	}
	if err := found.Prepare(); err != nil {
		found.Close()
		return fmt.Errorf("hostio: could not prepare device: %w", err)
	}

	a.dev = found
	a.running = true
	if a.l != nil {
		a.l.Log(logging.Info, "hostio: alsa device ready", "title", found.Title, "record", a.record)
	}
	return nil
}

// Stop closes the underlying ALSA device.
func (a *ALSA) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	if a.dev != nil {
		a.dev.Close()
		a.dev = nil
	}
	return nil
}

// IsRunning reports whether the device is open.
func (a *ALSA) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Read captures len(p) bytes of PCM from the device.
func (a *ALSA) Read(p []byte) (int, error) {
	a.mu.Lock()
	dev, running := a.dev, a.running
	a.mu.Unlock()
	if !running {
		return 0, ErrNotRunning
	}
	if err := dev.Read(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Write plays out len(p) bytes of PCM through the device.
func (a *ALSA) Write(p []byte) (int, error) {
	a.mu.Lock()
	dev, running := a.dev, a.running
	a.mu.Unlock()
	if !running {
		return 0, ErrNotRunning
	}
	if err := dev.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
