/*
NAME
  loopback_test.go

DESCRIPTION
  loopback_test.go drives a txoutput.Output's send socket into an
  rxstream.Stream's receive socket over real loopback multicast, feeding
  a 440 Hz sine to TX and checking the received tone's dominant frequency
  and peak amplitude. It does not compare received samples one by one
  against the transmitted ones.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"math"
	"testing"
	"time"

	"github.com/aes67node/endpoint/hostio"
	"github.com/aes67node/endpoint/pcmfmt"
	"github.com/aes67node/endpoint/rxstream"
	"github.com/aes67node/endpoint/txoutput"
)

func TestTXRXLoopback(t *testing.T) {
	const (
		group     = "239.7.13.5"
		port      = 46172
		rate      = 48000
		channels  = 1
		toneHz    = 440.0
		amplitude = 0.8
	)

	source := hostio.NewSineChannel(pcmfmt.L16, rate, channels, toneHz, amplitude)
	if err := source.Start(); err != nil {
		t.Fatalf("source.Start: %v", err)
	}

	out, err := txoutput.New(nil, nil, source, txoutput.Config{
		GroupAddr:    group,
		Port:         port,
		PT:           96,
		Channels:     channels,
		Rate:         rate,
		PacketTimeUS: 1000,
		Format:       pcmfmt.L16,
	})
	if err != nil {
		t.Fatalf("txoutput.New: %v", err)
	}
	if err := out.Start(); err != nil {
		t.Fatalf("out.Start: %v", err)
	}
	defer out.Stop()

	rx := rxstream.New(nil, nil, group, port, "", 96, rate, channels, 10)
	if err := rx.Start(); err != nil {
		t.Fatalf("rx.Start: %v", err)
	}
	defer rx.Stop()

	// Let TX get a head start so RX's jitter buffer has real packets
	// queued before the first pull.
	time.Sleep(20 * time.Millisecond)

	// StreamProc never blocks: it fills silence for whatever the jitter
	// buffer hasn't received yet (rxstream's pull contract, spec.md §4.2),
	// so pulling faster than real time just drains straight into silence.
	// Pace pulls to the packet cadence TX was configured with, matching
	// the "host pulls at packet_time_us cadence" assumption documented on
	// rxstream's block-counter playout cursor.
	const packetTimeUS = 1000
	samplesPerPkt := rate * packetTimeUS / 1_000_000
	frameSize := pcmfmt.FrameSize(pcmfmt.L16, channels)
	blockBytes := samplesPerPkt * frameSize

	const wantBlocks = 150 // ~150ms of real-time audio.
	dst := make([]byte, wantBlocks*blockBytes)
	for i := 0; i < wantBlocks; i++ {
		time.Sleep(packetTimeUS * time.Microsecond)
		rx.StreamProc(dst[i*blockBytes : (i+1)*blockBytes])
	}

	samples := pcmfmt.ToFloatChannel(pcmfmt.L16, dst, channels, 0)

	// Drop the leading blocks pulled before steady state to avoid the
	// startup transient skewing the frequency-domain analysis.
	const skipBlocks = 20
	analyzed := samples[skipBlocks*samplesPerPkt:]

	if got := pcmfmt.DominantFrequency(analyzed, rate); math.Abs(got-toneHz) > float64(rate)/float64(len(analyzed)) {
		t.Errorf("received dominant frequency = %.1f Hz, want %.1f Hz", got, toneHz)
	}

	zeros := make([]float64, len(analyzed))
	if peak := pcmfmt.MaxAbsError(analyzed, zeros); peak < amplitude-0.1 {
		t.Errorf("received tone peak amplitude = %.3f, want close to %.2f (full-scale round trip)", peak, amplitude)
	}

	txStats := out.Stats()
	rxStats := rx.Stats()
	if txStats.PacketsSent == 0 {
		t.Error("TX sent no packets")
	}
	if rxStats.Jitter.PacketsReceived == 0 {
		t.Error("RX received no packets")
	}
}
