/*
NAME
  aes67node

DESCRIPTION
  aes67node is a standalone harness for the RX/TX pipelines, clock and
  config registry: it loads a YAML config, starts the clock, and creates
  one RX stream and/or one TX output against a hostio.Channel (ALSA or a
  synthetic sine tone), for manual testing and the round-trip loopback
  scenario in spec.md §8.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// aes67node runs the AES67 endpoint RX/TX pipelines as a standalone
// process, for manual testing against real or synthetic audio sources.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/aes67node/endpoint/clock"
	"github.com/aes67node/endpoint/config"
	"github.com/aes67node/endpoint/hostio"
	"github.com/aes67node/endpoint/pcmfmt"
	"github.com/aes67node/endpoint/plugin"
	"github.com/aes67node/endpoint/txoutput"
)

const (
	logPath      = "/var/log/aes67node/aes67node.log"
	logMaxSizeMB = 100
	logMaxBackup = 5
	logMaxAgeDay = 28
)

func main() {
	var (
		cfgPath  = flag.String("config", "/etc/aes67node.yaml", "path to YAML config file")
		rxMode   = flag.Bool("rx", false, "create an RX stream")
		txMode   = flag.Bool("tx", false, "create a TX output")
		group    = flag.String("group", "239.1.1.1", "multicast group address")
		port     = flag.Int("port", 5004, "multicast port")
		rate     = flag.Int("rate", 48000, "sample rate")
		channels = flag.Int("channels", 2, "channel count")
		toneHz   = flag.Float64("tone", 1000, "TX sine tone frequency in Hz")
		alsaCap  = flag.Bool("alsa-capture", false, "capture TX source PCM from a real ALSA device instead of a synthetic tone")
		alsaPlay = flag.Bool("alsa-playout", false, "play received RX PCM out through a real ALSA device")
		alsaDev  = flag.String("alsa-device", "", "ALSA device title to match (\"\" picks the first suitable one)")
		verbose  = flag.Bool("v", false, "log to stderr instead of the log file")
	)
	flag.Parse()

	l := newLogger(*verbose)

	reg, err := config.Load(*cfgPath)
	if err != nil {
		l.Log(logging.Fatal, "aes67node: could not load config", "error", err)
		os.Exit(1)
	}

	clk := clock.New(l)
	adapter := plugin.New(l, reg, clk)
	if err := adapter.Init(plugin.ABIVersion); err != nil {
		l.Log(logging.Fatal, "aes67node: clock init failed", "error", err)
		os.Exit(1)
	}

	s := reg.Static()

	if *rxMode {
		h, err := adapter.CreateStream(*group, *port, s.Interface, uint8(s.PT), *rate, *channels)
		if err != nil {
			l.Log(logging.Fatal, "aes67node: could not create RX stream", "error", err)
			os.Exit(1)
		}
		l.Log(logging.Info, "aes67node: RX stream created", "handle", h, "group", *group, "port", *port)

		if *alsaPlay {
			sink := hostio.NewALSA(l, *alsaDev, false, uint(*rate), uint(*channels), 16)
			if err := sink.Start(); err != nil {
				l.Log(logging.Fatal, "aes67node: could not start ALSA playout", "error", err)
				os.Exit(1)
			}
			go rxPlayoutLoop(l, adapter, h, sink, *rate, *channels)
		}
	}

	if *txMode {
		var source hostio.Channel
		if *alsaCap {
			source = hostio.NewALSA(l, *alsaDev, true, uint(*rate), uint(*channels), 16)
		} else {
			source = hostio.NewSineChannel(pcmfmt.L16, *rate, *channels, *toneHz, 0.5)
		}
		if err := source.Start(); err != nil {
			l.Log(logging.Fatal, "aes67node: could not start TX source", "error", err)
			os.Exit(1)
		}

		h, err := adapter.CreateOutput(source, txoutput.Config{
			GroupAddr:    *group,
			Port:         *port,
			Iface:        s.Interface,
			PT:           uint8(s.PT),
			Channels:     *channels,
			Rate:         *rate,
			PacketTimeUS: 1000,
			Format:       pcmfmt.L16,
		})
		if err != nil {
			l.Log(logging.Fatal, "aes67node: could not create TX output", "error", err)
			os.Exit(1)
		}
		if err := adapter.StartOutput(h); err != nil {
			l.Log(logging.Fatal, "aes67node: could not start TX output", "error", err)
			os.Exit(1)
		}
		l.Log(logging.Info, "aes67node: TX output started", "handle", h, "group", *group, "port", *port)
	}

	waitForSignal(l)
	adapter.Close()
}

// rxPlayoutLoop pulls decoded PCM from an RX stream via the same
// StreamProc contract a host add-on uses, and writes it to sink, giving
// the standalone harness a real ALSA playout path. blockMS matches the
// pull cadence to roughly one AES67 packet time so the RX pipeline's
// playout cursor (see rxstream's block-counter cursor) advances at the
// rate the host is expected to pull at.
func rxPlayoutLoop(l logging.Logger, adapter *plugin.Adapter, h plugin.Handle, sink hostio.Channel, rate, channels int) {
	const blockMS = 1
	frames := rate * blockMS / 1000
	buf := make([]byte, frames*channels*2) // sized for L16; StreamProc packs whatever it has into the buffer regardless.
	for {
		n, end := adapter.StreamProc(h, buf)
		if end {
			return
		}
		if n == 0 {
			continue
		}
		if _, err := sink.Write(buf[:n]); err != nil {
			l.Log(logging.Error, "aes67node: alsa playout write failed", "error", err)
			return
		}
	}
}

// newLogger returns a structured logger writing to stderr when verbose,
// otherwise to a rotated log file, matching the teacher's cmd/speaker
// logging setup (lumberjack + ausocean/utils/logging).
func newLogger(verbose bool) logging.Logger {
	if verbose {
		return logging.New(logging.Debug, os.Stderr, true)
	}
	return logging.New(logging.Info, &lumberjack.Logger{
		Filename: logPath,
		MaxSize:  logMaxSizeMB,
		MaxAge:   logMaxAgeDay,
		MaxBackups: logMaxBackup,
	}, true)
}

// waitForSignal blocks until SIGINT/SIGTERM, logging a heartbeat every
// 30 seconds so the process visibly keeps running under `&` or systemd.
func waitForSignal(l logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-sigCh:
			l.Log(logging.Info, "aes67node: shutting down")
			return
		case <-t.C:
			l.Log(logging.Debug, "aes67node: running")
		}
	}
}
