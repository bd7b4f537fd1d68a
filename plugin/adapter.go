/*
NAME
  adapter.go

DESCRIPTION
  adapter.go is the thin bridge described in spec.md §4.4: it owns the
  process-wide registry of the single clock and N RX streams/TX outputs
  (spec.md §2 "Shared state"), dispatches the config-plugin callback over
  the option table in §3, and dispatches stream-create/output-create
  requests into the rxstream/txoutput packages. Every public operation
  records a per-handle ErrorCode before returning its sentinel value
  (false/null/0/-1), the same contract the BASS addon ABI uses for
  BASS_ErrorGetCode (_examples/original_source/BassAES67/bass_aes67.h).

  Grounded on revid.Revid's top-level Start/Stop/NewConfig lifecycle
  (revid/revid.go) for the single registry-of-subsystems shape, and on
  device.AVDevice for the Name/Start/Stop contract each managed stream or
  output already satisfies.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package plugin

import (
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/aes67node/endpoint/clock"
	"github.com/aes67node/endpoint/config"
	"github.com/aes67node/endpoint/hostio"
	"github.com/aes67node/endpoint/rxstream"
	"github.com/aes67node/endpoint/txoutput"
)

// Adapter is the process-wide registry and host-facing bridge (spec.md
// §4.4, §2 "Shared state"). The zero value is not usable; construct with
// New.
type Adapter struct {
	l    logging.Logger
	reg  *config.Registry
	clk  *clock.Clock
	errs *errorStore

	mu      sync.Mutex
	nextH   Handle
	streams map[Handle]*rxstream.Stream
	outputs map[Handle]*txoutput.Output

	liveStop chan struct{}
	liveWG   sync.WaitGroup
}

// livePublishInterval is how often the adapter recomputes the read-only
// diagnostic keys ConfigGet serves (spec.md §3) from the clock and the
// running streams it holds.
const livePublishInterval = 200 * time.Millisecond

// New returns an Adapter wired to the given config registry and shared
// clock. New does not start the clock; Init starts it according to the
// registry's Static configuration. New also starts a background loop that
// publishes Live diagnostics into reg; call Close to stop it.
func New(l logging.Logger, reg *config.Registry, clk *clock.Clock) *Adapter {
	a := &Adapter{
		l:        l,
		reg:      reg,
		clk:      clk,
		errs:     newErrorStore(),
		streams:  make(map[Handle]*rxstream.Stream),
		outputs:  make(map[Handle]*txoutput.Output),
		liveStop: make(chan struct{}),
	}
	a.liveWG.Add(1)
	go a.publishLiveLoop()
	return a
}

// Close stops the live-stats publisher goroutine. It does not stop any
// streams or outputs the adapter still holds; callers should FreeStream/
// FreeOutput those first.
func (a *Adapter) Close() {
	close(a.liveStop)
	a.liveWG.Wait()
}

// publishLiveLoop periodically calls refreshLive until Close is called,
// following the same ticker-plus-stop-channel shape as
// clock.Clock.watchFallback.
func (a *Adapter) publishLiveLoop() {
	defer a.liveWG.Done()
	t := time.NewTicker(livePublishInterval)
	defer t.Stop()
	for {
		select {
		case <-a.liveStop:
			return
		case <-t.C:
			a.refreshLive()
		}
	}
}

// refreshLive recomputes and publishes the registry's Live snapshot
// (spec.md §3) from the shared clock and the most recently created RX
// stream. config.Live has no per-handle addressing, so with more than one
// concurrent RX stream only the newest one's buffer/packet keys are
// reported; this matches the single config registry the host add-on ABI
// reads (spec.md §4.4), which was never designed to be per-stream.
func (a *Adapter) refreshLive() {
	live := config.Live{
		PTPState:        a.clk.State().String(),
		PTPOffsetNS:     a.clk.OffsetNS(),
		PTPFreqPPMx1000: a.clk.PPMx1000(),
	}

	if stats, ok := a.clk.PTPStats(); ok {
		live.PTPStats = stats.FormatDisplay()
		live.PTPLocked = stats.Locked
	} else {
		live.PTPLocked = a.clk.State() == clock.StateSlave
	}

	if s, ok := a.primaryStream(); ok {
		st := s.Stats()
		live.BufferLevel = st.BufferLevel
		live.BufferPackets = uint32(st.CurrentPackets)
		live.TargetPackets = uint32(st.TargetPackets)
		live.JitterUnderruns = st.Jitter.Underruns
		live.PacketsReceived = st.Jitter.PacketsReceived
		live.PacketsLate = st.Jitter.PacketsLate
		live.PacketTimeUS = st.PacketTimeUS
	}

	a.reg.SetLive(live)
}

// primaryStream returns the most recently created RX stream (highest
// Handle), used by refreshLive to populate the single-stream diagnostic
// keys.
func (a *Adapter) primaryStream() (*rxstream.Stream, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var best Handle
	var s *rxstream.Stream
	for h, st := range a.streams {
		if s == nil || h > best {
			best, s = h, st
		}
	}
	return s, s != nil
}

// Init starts the clock per the registry's static configuration and
// checks the host ABI generation (spec.md §4.4, §9). hostABIVersion is
// the generation the host reports at load; Init fails with ErrVersion if
// it is older than ABIVersion.
func (a *Adapter) Init(hostABIVersion int) error {
	if hostABIVersion < ABIVersion {
		return &AdapterError{Code: ErrVersion}
	}

	s := a.reg.Static()
	if !s.PTPEnabled && s.ClockMode == config.ClockModePTP {
		return nil
	}

	mode := clockModeFrom(s.ClockMode)
	fallback := time.Duration(s.ClockFallbackTimeout) * time.Second
	return a.clk.Start(mode, uint8(s.PTPDomain), s.Interface, fallback)
}

func clockModeFrom(m config.ClockMode) clock.Mode {
	switch m {
	case config.ClockModeLivewire:
		return clock.ModeLivewire
	case config.ClockModeSystem:
		return clock.ModeSystem
	default:
		return clock.ModePTP
	}
}

// AdapterError is returned by Adapter operations that fail outright
// (construction-time failures); operations modelled on the host's
// sentinel-return contract instead report failure via ErrorFor(handle).
type AdapterError struct {
	Code ErrorCode
}

func (e *AdapterError) Error() string { return "plugin: " + e.Code.String() }

// ErrorFor returns the last error code recorded for handle, the Go
// analogue of the host's thread-local BASS_ErrorGetCode.
func (a *Adapter) ErrorFor(h Handle) ErrorCode {
	return a.errs.get(h)
}

func (a *Adapter) allocHandle() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextH++
	return a.nextH
}

// CreateStream implements the stream-create callback (spec.md §4.4):
// invoked when the host opens a resource whose URL/type indicates AES67.
// groupAddr/port/iface/pt/rate/channels describe the multicast source the
// URL (or user-file descriptor) carried.
func (a *Adapter) CreateStream(groupAddr string, port int, iface string, pt uint8, rate, channels int) (Handle, error) {
	s := a.reg.Static()
	stream := rxstream.New(a.l, a.clk, groupAddr, port, iface, pt, rate, channels, s.Jitter)
	if err := stream.Start(); err != nil {
		h := a.allocHandle()
		a.errs.set(h, ErrInit)
		return 0, &AdapterError{Code: ErrInit}
	}

	h := a.allocHandle()
	a.mu.Lock()
	a.streams[h] = stream
	a.mu.Unlock()
	return h, nil
}

// FreeStream stops and removes an RX stream (spec.md §4.4 RX lifecycle:
// ... -> STOPPED on free).
func (a *Adapter) FreeStream(h Handle) error {
	a.mu.Lock()
	s, ok := a.streams[h]
	delete(a.streams, h)
	a.mu.Unlock()
	if !ok {
		a.errs.set(h, ErrIllParam)
		return &AdapterError{Code: ErrIllParam}
	}
	a.errs.clear(h)
	return s.Stop()
}

// StreamProc dispatches the host pull callback to the named stream's pull
// contract (spec.md §4.2).
func (a *Adapter) StreamProc(h Handle, dst []byte) (n int, end bool) {
	s, ok := a.stream(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return 0, true
	}
	return s.StreamProc(dst)
}

// GetLength dispatches get_length (spec.md §4.2): only BYTE mode is
// recognized; every other mode reports NOTAVAIL, matching the RX
// Capabilities.RXGetLength slot.
func (a *Adapter) GetLength(h Handle, mode string) (uint64, error) {
	s, ok := a.stream(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return 0, &AdapterError{Code: ErrIllParam}
	}
	n, err := s.GetLength(mode)
	if err != nil {
		a.errs.set(h, ErrNotAvail)
		return 0, &AdapterError{Code: ErrNotAvail}
	}
	return n, nil
}

// CanSetPosition dispatches can_set_position (spec.md §4.2): always
// false/NOTAVAIL for a live stream.
func (a *Adapter) CanSetPosition(h Handle, pos int64, mode string) (bool, error) {
	s, ok := a.stream(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return false, &AdapterError{Code: ErrIllParam}
	}
	ok2, err := s.CanSetPosition(pos, mode)
	if err != nil {
		a.errs.set(h, ErrNotAvail)
	}
	return ok2, err
}

// SetSync installs a sync-list entry for the stream, keyed by sync_type
// (spec.md §4.4's "sync list per stream keyed by sync_type -> {handle,
// callback, user}"). Returns -1 (the "handle it yourself" sentinel) for a
// sync type the adapter doesn't implement, e.g. POS/END, which the host
// retains.
func (a *Adapter) SetSync(h Handle, t SyncType, cb SyncCallback, user interface{}) int {
	s, ok := a.stream(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return -1
	}
	return s.SetSync(rxstream.SyncType(t), rxstream.SyncFunc(cb), user)
}

func (a *Adapter) stream(h Handle) (*rxstream.Stream, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.streams[h]
	return s, ok
}

// CreateOutput implements TX output creation (spec.md §4.3). host is the
// Channel the output pulls PCM from.
func (a *Adapter) CreateOutput(host hostio.Channel, cfg txoutput.Config) (Handle, error) {
	out, err := txoutput.New(a.l, a.clk, host, cfg)
	if err != nil {
		h := a.allocHandle()
		a.errs.set(h, ErrIllParam)
		return 0, &AdapterError{Code: ErrIllParam}
	}

	h := a.allocHandle()
	a.mu.Lock()
	a.outputs[h] = out
	a.mu.Unlock()
	return h, nil
}

// StartOutput starts a TX output; idempotent (spec.md §4.3).
func (a *Adapter) StartOutput(h Handle) error {
	o, ok := a.output(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return &AdapterError{Code: ErrIllParam}
	}
	if err := o.Start(); err != nil {
		a.errs.set(h, ErrInit)
		return &AdapterError{Code: ErrInit}
	}
	return nil
}

// StopOutput halts a TX output's send loop (spec.md §4.3).
func (a *Adapter) StopOutput(h Handle) error {
	o, ok := a.output(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return &AdapterError{Code: ErrIllParam}
	}
	return o.Stop()
}

// FreeOutput stops and releases a TX output permanently (spec.md §4.4 TX
// lifecycle: ... -> STOPPED -> FREED).
func (a *Adapter) FreeOutput(h Handle) error {
	a.mu.Lock()
	o, ok := a.outputs[h]
	delete(a.outputs, h)
	a.mu.Unlock()
	if !ok {
		a.errs.set(h, ErrIllParam)
		return &AdapterError{Code: ErrIllParam}
	}
	a.errs.clear(h)
	return o.Free()
}

// IsOutputRunning dispatches is_running (spec.md §4.3).
func (a *Adapter) IsOutputRunning(h Handle) bool {
	o, ok := a.output(h)
	return ok && o.IsRunning()
}

// OutputStats dispatches get_stats (spec.md §4.3).
func (a *Adapter) OutputStats(h Handle) (txoutput.Stats, error) {
	o, ok := a.output(h)
	if !ok {
		a.errs.set(h, ErrIllParam)
		return txoutput.Stats{}, &AdapterError{Code: ErrIllParam}
	}
	return o.Stats(), nil
}

// GetPPM reports the shared clock's frequency correction in ppm x1000,
// regardless of which output handle asked (spec.md §4.3 get_ppm: "the
// clock's PPM x 1000"); NO_CLOCK while the clock is DISABLED or LISTENING.
func (a *Adapter) GetPPM(h Handle) (int32, error) {
	if _, ok := a.output(h); !ok {
		a.errs.set(h, ErrIllParam)
		return 0, &AdapterError{Code: ErrIllParam}
	}
	if a.clk.State() == clock.StateDisabled || a.clk.State() == clock.StateListening {
		a.errs.set(h, ErrNoClock)
		return 0, &AdapterError{Code: ErrNoClock}
	}
	return a.clk.PPMx1000(), nil
}

func (a *Adapter) output(h Handle) (*txoutput.Output, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.outputs[h]
	return o, ok
}

// ConfigGet dispatches the config-plugin callback's read path over the
// enumerated option table (spec.md §3), merging Static and Live values
// into the single string/int registry the host sees.
func (a *Adapter) ConfigGet(key string) (interface{}, bool) {
	s := a.reg.Static()
	live := a.reg.Live()
	switch key {
	case "PT":
		return s.PT, true
	case "INTERFACE":
		return s.Interface, true
	case "JITTER":
		return s.Jitter, true
	case "PTP_DOMAIN":
		return s.PTPDomain, true
	case "PTP_ENABLED":
		return s.PTPEnabled, true
	case "CLOCK_MODE":
		return uint32(s.ClockMode), true
	case "CLOCK_FALLBACK_TIMEOUT":
		return s.ClockFallbackTimeout, true
	case "PTP_STATS":
		return live.PTPStats, true
	case "PTP_OFFSET":
		return live.PTPOffsetNS, true
	case "PTP_STATE":
		return live.PTPState, true
	case "PTP_LOCKED":
		return live.PTPLocked, true
	case "PTP_FREQ":
		return live.PTPFreqPPMx1000, true
	case "BUFFER_LEVEL":
		return live.BufferLevel, true
	case "BUFFER_PACKETS":
		return live.BufferPackets, true
	case "TARGET_PACKETS":
		return live.TargetPackets, true
	case "JITTER_UNDERRUNS":
		return live.JitterUnderruns, true
	case "PACKETS_RECEIVED":
		return live.PacketsReceived, true
	case "PACKETS_LATE":
		return live.PacketsLate, true
	case "PACKET_TIME":
		return live.PacketTimeUS, true
	default:
		return nil, false
	}
}

// ConfigSet dispatches the config-plugin callback's write path: only the
// writable keys from spec.md §3 are accepted; everything else (including
// every read-only diagnostic key) fails ILLPARAM.
func (a *Adapter) ConfigSet(key string, value interface{}) error {
	s := a.reg.Static()
	switch key {
	case "PT":
		v, ok := value.(uint32)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.PT = v
	case "INTERFACE":
		v, ok := value.(string)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.Interface = v
	case "JITTER":
		v, ok := value.(uint32)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.Jitter = v
	case "PTP_DOMAIN":
		v, ok := value.(uint32)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.PTPDomain = v
	case "PTP_ENABLED":
		v, ok := value.(bool)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.PTPEnabled = v
	case "CLOCK_MODE":
		v, ok := value.(uint32)
		if !ok || v > uint32(config.ClockModeSystem) {
			return &AdapterError{Code: ErrIllParam}
		}
		s.ClockMode = config.ClockMode(v)
	case "CLOCK_FALLBACK_TIMEOUT":
		v, ok := value.(uint32)
		if !ok {
			return &AdapterError{Code: ErrIllParam}
		}
		s.ClockFallbackTimeout = v
	default:
		return &AdapterError{Code: ErrIllParam}
	}
	a.reg.SetStatic(s)
	return nil
}
