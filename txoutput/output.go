/*
NAME
  output.go

DESCRIPTION
  output.go implements one TX output (spec.md §4.3): it pulls PCM from a
  host channel, packetizes it into AES67 RTP, and sends it paced by the
  shared clock's deadline-accumulator scheme so long-term drift is zero.

  Grounded on the teacher's protocol/rtp.Client for the send-goroutine and
  socket-ownership pattern (one goroutine owns the UDP conn, a stop
  channel plus Close() unblocks it), and on
  _examples/original_source/BassAES67/bass-aes67/src/output/output.rs for
  the deadline-pacing and held-last concealment this package's Go
  analogue follows.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package txoutput implements the TX pipeline: pulling PCM from a host
// channel, packetizing it into AES67 RTP, and sending it paced by the
// shared clock (spec.md §4.3).
package txoutput

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/aes67node/endpoint/clock"
	"github.com/aes67node/endpoint/hostio"
	"github.com/aes67node/endpoint/pcmfmt"
	"github.com/aes67node/endpoint/rtp"
)

// packetTimeCandidatesUS are the AES67 packet times this pipeline accepts
// (spec.md §6).
var packetTimeCandidatesUS = map[uint32]bool{125: true, 250: true, 333: true, 1000: true, 5000: true}

// ErrIllegalParam is returned by New when the configuration does not meet
// spec.md §4.3's validity constraints.
type ErrIllegalParam struct{ reason string }

func (e *ErrIllegalParam) Error() string { return "txoutput: illegal parameter: " + e.reason }

// staleDeadlineFactor is how many packet times the send deadline may lag
// now() before pacing is resynchronized and a SKIP is counted
// (spec.md §4.3 "Pacing").
const staleDeadlineFactor = 10

// State is an output's lifecycle state (spec.md §4.4: CREATED -> RUNNING
// -> STOPPED -> FREED).
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateStopped
	StateFreed
)

// Config describes one TX output's wire parameters (spec.md §4.3/§6).
type Config struct {
	GroupAddr    string
	Port         int
	Iface        string
	PT           uint8
	Channels     int
	Rate         int
	PacketTimeUS uint32
	Format       pcmfmt.Format
}

// Stats reports a TX output's running counters (spec.md §4.3).
type Stats struct {
	PacketsSent   uint64
	Underruns     uint64
	Skips         uint64
	BytesSent     uint64
}

// Output is one TX pipeline instance: host channel -> packetizer -> paced
// UDP send.
type Output struct {
	l    logging.Logger
	clk  *clock.Clock
	cfg  Config
	host hostio.Channel

	samplesPerPkt int
	frameSize     int // bytes per sample frame (channels * bytesPerSample).

	mu    sync.Mutex
	state State
	conn  *net.UDPConn
	stop  chan struct{}
	wg    sync.WaitGroup

	seq       uint16
	timestamp uint32
	ssrc      uint32

	lastFrame []byte // last good sample frame, for held-last concealment.

	stats Stats
}

// New validates cfg and returns a CREATED Output. The UDP socket is not
// bound until Start.
func New(l logging.Logger, clk *clock.Clock, host hostio.Channel, cfg Config) (*Output, error) {
	if !packetTimeCandidatesUS[cfg.PacketTimeUS] {
		return nil, &ErrIllegalParam{reason: fmt.Sprintf("packet time %dus not one of 125/250/333/1000/5000", cfg.PacketTimeUS)}
	}
	if cfg.Rate <= 0 || cfg.Channels <= 0 {
		return nil, &ErrIllegalParam{reason: "rate and channels must be positive"}
	}
	samplesPerPkt := cfg.Rate * int(cfg.PacketTimeUS) / 1_000_000
	if samplesPerPkt <= 0 {
		return nil, &ErrIllegalParam{reason: "rate/packet-time combination yields zero samples per packet"}
	}

	ssrc, err := randomSSRC()
	if err != nil {
		return nil, fmt.Errorf("txoutput: could not allocate SSRC: %w", err)
	}

	frameSize := pcmfmt.FrameSize(cfg.Format, cfg.Channels)
	return &Output{
		l:             l,
		clk:           clk,
		cfg:           cfg,
		host:          host,
		samplesPerPkt: samplesPerPkt,
		frameSize:     frameSize,
		state:         StateCreated,
		ssrc:          ssrc,
		lastFrame:     make([]byte, frameSize),
	}, nil
}

func randomSSRC() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Start binds the TX socket (TTL 15, DSCP EF per spec.md §6) and begins
// the paced send loop.
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return nil
	}
	if o.state != StateCreated && o.state != StateStopped {
		return fmt.Errorf("txoutput: cannot start output in state %d", o.state)
	}

	conn, err := rtp.DialMulticast(o.cfg.GroupAddr, o.cfg.Port, o.cfg.Iface)
	if err != nil {
		return err
	}
	o.conn = conn
	o.stop = make(chan struct{})
	o.state = StateRunning

	o.wg.Add(1)
	go o.sendLoop(o.conn, o.stop)

	if o.l != nil {
		o.l.Log(logging.Info, "txoutput: started", "group", o.cfg.GroupAddr, "port", o.cfg.Port, "ssrc", o.ssrc)
	}
	return nil
}

// Stop halts the send loop and closes the socket. The output may be
// Start-ed again.
func (o *Output) Stop() error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	close(o.stop)
	conn := o.conn
	o.state = StateStopped
	o.mu.Unlock()

	o.wg.Wait()
	if conn != nil {
		conn.Close()
	}
	return nil
}

// Free releases the output permanently; it must not be Start-ed again.
func (o *Output) Free() error {
	if err := o.Stop(); err != nil {
		return err
	}
	o.mu.Lock()
	o.state = StateFreed
	o.mu.Unlock()
	return nil
}

// IsRunning reports whether the send loop is active.
func (o *Output) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateRunning
}

// Stats returns a snapshot of the output's running counters.
func (o *Output) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// now returns the disciplined clock's nanosecond time, falling back to
// wall time if no clock was supplied (e.g. in isolated tests).
func (o *Output) now() uint64 {
	if o.clk != nil {
		return o.clk.NowNS()
	}
	return uint64(time.Now().UnixNano())
}

// sendLoop paces packet emission via an accumulating deadline
// (spec.md §4.3 "Pacing"): deadline += packet_time_us*1000 each iteration,
// never deadline = now + packet_time_us, so no long-term drift accrues.
func (o *Output) sendLoop(conn *net.UDPConn, stop <-chan struct{}) {
	defer o.wg.Done()

	periodNS := uint64(o.cfg.PacketTimeUS) * 1000
	deadline := o.now()

	wirePayload := make([]byte, o.samplesPerPkt*o.frameSize)
	hostBuf := make([]byte, o.samplesPerPkt*o.frameSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		now := o.now()
		if deadline > now {
			sleepUntil(stop, time.Duration(deadline-now))
		}

		select {
		case <-stop:
			return
		default:
		}

		if o.resyncIfStale(&deadline, periodNS) {
			o.mu.Lock()
			o.stats.Skips++
			o.mu.Unlock()
		}

		o.sendOnePacket(conn, hostBuf, wirePayload)
		deadline += periodNS
	}
}

// resyncIfStale resynchronizes deadline to now()+period if it has lagged
// by more than staleDeadlineFactor packet times, reporting whether a skip
// occurred.
func (o *Output) resyncIfStale(deadline *uint64, periodNS uint64) bool {
	now := o.now()
	if now <= *deadline || now-*deadline <= staleDeadlineFactor*periodNS {
		return false
	}
	*deadline = now + periodNS
	if o.l != nil {
		o.l.Log(logging.Warning, "txoutput: pacing stalled, resynchronizing deadline")
	}
	return true
}

// sendOnePacket pulls one packet's worth of PCM from the host channel
// (padding with held-last concealment on a short read), builds the RTP
// header, converts to wire byte order and sends.
func (o *Output) sendOnePacket(conn *net.UDPConn, hostBuf, wirePayload []byte) {
	n, err := o.host.Read(hostBuf)
	if err != nil && o.l != nil {
		o.l.Log(logging.Debug, "txoutput: host read error", "error", err)
	}
	o.concealShort(hostBuf, n)

	pcmfmt.SwapToWire(o.cfg.Format, wirePayload, hostBuf)

	o.mu.Lock()
	o.seq++
	pkt := rtp.Packet{
		PayloadType: o.cfg.PT,
		Sequence:    o.seq,
		Timestamp:   o.timestamp,
		SSRC:        o.ssrc,
		Payload:     wirePayload,
	}
	o.timestamp += uint32(o.samplesPerPkt)
	o.mu.Unlock()

	buf := pkt.Bytes(nil)
	if _, err := conn.Write(buf); err != nil {
		if o.l != nil {
			o.l.Log(logging.Error, "txoutput: send failed", "error", err)
		}
		return
	}

	o.mu.Lock()
	o.stats.PacketsSent++
	o.stats.BytesSent += uint64(len(buf))
	o.mu.Unlock()
}

// concealShort fills hostBuf[n:] with the last good sample frame repeated
// (held-last concealment, spec.md §4.3) when the host channel returned
// fewer bytes than a full packet, and updates lastFrame when a full
// packet was read.
func (o *Output) concealShort(hostBuf []byte, n int) {
	want := len(hostBuf)
	if n >= want {
		copy(o.lastFrame, hostBuf[want-o.frameSize:want])
		return
	}

	o.mu.Lock()
	o.stats.Underruns++
	o.mu.Unlock()

	// Copy any complete trailing frame the short read did provide.
	if n >= o.frameSize {
		complete := n - (n % o.frameSize)
		copy(o.lastFrame, hostBuf[complete-o.frameSize:complete])
	}
	for i := n - (n % o.frameSize); i < want; i += o.frameSize {
		copy(hostBuf[i:i+o.frameSize], o.lastFrame)
	}
}

// sleepUntil sleeps for d or until stop closes, whichever comes first.
func sleepUntil(stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}
