/*
NAME
  client.go

DESCRIPTION
  client.go implements a slave-only IEEE 1588v2 client (spec.md §4.1): it
  joins the PTP event (319) and general (320) multicast groups, tracks
  the first grandmaster it hears from (a deliberately simplified
  best-master-selection, same shortcut the original takes), derives a
  relative clock offset from Sync/Follow_Up pairs, and periodically
  issues a Delay_Req to estimate path delay for display purposes only.

  Ported from
  _examples/original_source/BassAES67/bass-ptp/src/client.rs: two
  goroutines stand in for the Rust event_thread/general_thread pair, a
  mutex-guarded Client stands in for PtpSharedState, and the "first
  Announce wins, relative offset baselined on first Follow_Up" shortcuts
  are kept verbatim since spec.md §4.1 explicitly allows "a full BMCA is
  out of scope; last/first-seen master selection is acceptable."

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ptp

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/aes67node/endpoint/rtp"
)

// MulticastAddr is the well-known PTP multicast group.
const MulticastAddr = "224.0.1.129"

// EventPort carries Sync and Delay_Req.
const EventPort = 319

// GeneralPort carries Announce, Follow_Up and Delay_Resp.
const GeneralPort = 320

// delayReqEverySyncs sends a Delay_Req once per this many Sync/Follow_Up
// pairs, mirroring the original's fixed cadence.
const delayReqEverySyncs = 8

// slaveAfterSyncs is how many Sync messages must be seen before the
// client reports SLAVE rather than UNCALIBRATED.
const slaveAfterSyncs = 5

// Feeder receives offset measurements and liveness signals from a running
// Client. clock.Clock implements this interface; it is declared here,
// in the leaf package, so ptp never needs to import clock.
type Feeder interface {
	UpdateOffsetNS(offsetNS int64)
	NoteSyncSeen()
}

type pendingSync struct {
	sequenceID    uint16
	receiveTimeNS int64
}

type pendingDelay struct {
	sequenceID uint16
	sendTimeNS int64
}

// Client is a slave-only PTP client for one domain on one interface. The
// zero value is not usable; construct with NewClient.
type Client struct {
	domain uint8
	iface  string

	mu               sync.Mutex
	localPort        PortIdentity
	grandmaster      *PortIdentity
	pendingSync      *pendingSync
	pendingDelay     *pendingDelay
	delayReqSeq      uint16
	initialOffsetSet bool
	initialOffsetNS  int64
	stats            Stats

	eventConn *net.UDPConn
}

// NewClient constructs a Client for the given PTP domain, bound to the
// given local interface address ("" selects the kernel default route).
func NewClient(domain uint8, iface string) *Client {
	return &Client{
		domain:    domain,
		iface:     iface,
		localPort: generateLocalPortIdentity(),
		stats:     Stats{State: StateListening, Domain: domain},
	}
}

// generateLocalPortIdentity derives a pseudo-random clock identity from
// the current time, same shortcut as the original ("use a simple hash of
// current time... In production, this should use MAC address").
func generateLocalPortIdentity() PortIdentity {
	var id ClockIdentity
	binary.BigEndian.PutUint64(id[:], uint64(time.Now().UnixNano()))
	return PortIdentity{ClockIdentity: id, PortNumber: 1}
}

// Stats returns a snapshot of the client's current diagnostics.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run joins the PTP multicast groups and processes messages until stop is
// closed, feeding offset measurements and liveness signals to feed. Run
// blocks; call it from its own goroutine.
func (c *Client) Run(stop <-chan struct{}, feed Feeder, l logging.Logger) {
	eventConn, err := rtp.ListenMulticast(MulticastAddr, EventPort, c.iface)
	if err != nil {
		if l != nil {
			l.Log(logging.Error, "ptp: could not join event multicast group", "error", err)
		}
		return
	}
	defer eventConn.Close()

	generalConn, err := rtp.ListenMulticast(MulticastAddr, GeneralPort, c.iface)
	if err != nil {
		if l != nil {
			l.Log(logging.Error, "ptp: could not join general multicast group", "error", err)
		}
		return
	}
	defer generalConn.Close()

	c.mu.Lock()
	c.eventConn = eventConn
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.runEventLoop(stop, eventConn, feed, l)
	}()
	go func() {
		defer wg.Done()
		c.runGeneralLoop(stop, generalConn, feed, l)
	}()

	<-stop
	eventConn.Close()
	generalConn.Close()
	wg.Wait()
}

func (c *Client) runEventLoop(stop <-chan struct{}, conn *net.UDPConn, feed Feeder, l logging.Logger) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-stop:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		receiveTimeNS := time.Now().UnixNano()

		h, err := parseHeader(buf[:n])
		if err != nil || h.DomainNumber != c.domain {
			continue
		}
		switch h.MessageType {
		case Sync:
			sync, err := ParseSync(buf[:n])
			if err != nil {
				continue
			}
			c.handleSync(sync, receiveTimeNS, feed)
		}
	}
}

func (c *Client) runGeneralLoop(stop <-chan struct{}, conn *net.UDPConn, feed Feeder, l logging.Logger) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-stop:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		h, err := parseHeader(buf[:n])
		if err != nil || h.DomainNumber != c.domain {
			continue
		}
		switch h.MessageType {
		case Announce:
			a, err := ParseAnnounce(buf[:n])
			if err != nil {
				continue
			}
			c.handleAnnounce(a)
		case FollowUp:
			f, err := ParseFollowUp(buf[:n])
			if err != nil {
				continue
			}
			c.handleFollowUp(f, feed, l)
		case DelayResp:
			d, err := ParseDelayResp(buf[:n])
			if err != nil {
				continue
			}
			c.handleDelayResp(d)
		}
	}
}

// handleAnnounce records the first grandmaster heard from. A full
// implementation would run the best-master-clock algorithm here;
// spec.md §4.1 accepts first/last-seen selection instead.
func (c *Client) handleAnnounce(a AnnounceMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gm := a.Header.SourcePortIdentity
	if c.grandmaster != nil && *c.grandmaster != gm {
		return // first grandmaster already latched; ignore others.
	}
	c.grandmaster = &gm
	c.stats.GrandmasterID = a.GrandmasterIdentity
	c.stats.GrandmasterPort = gm.PortNumber
	c.stats.ClockClass = a.GrandmasterClockQuality.ClockClass
	c.stats.AnnounceCount++

	if c.stats.State == StateListening {
		c.stats.State = StateUncalibrated
	}
}

func (c *Client) handleSync(s SyncMessage, receiveTimeNS int64, feed Feeder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grandmaster == nil || s.Header.SourcePortIdentity != *c.grandmaster {
		return
	}

	c.pendingSync = &pendingSync{
		sequenceID:    s.Header.SequenceID,
		receiveTimeNS: receiveTimeNS,
	}
	c.stats.SyncCount++

	if feed != nil {
		feed.NoteSyncSeen()
	}
}

// handleFollowUp computes the relative clock offset from a two-step
// Sync/Follow_Up pair and feeds it to the servo. The absolute (t2 - t1)
// difference mixes epoch offset (TAI vs local), network path delay and
// actual clock drift; since none of those can be disentangled without
// system-clock discipline, the client baselines on the first measurement
// and reports only the change from that baseline, exactly as the
// original implementation does.
func (c *Client) handleFollowUp(f FollowUpMessage, feed Feeder, l logging.Logger) {
	c.mu.Lock()

	if c.grandmaster == nil || f.Header.SourcePortIdentity != *c.grandmaster {
		c.mu.Unlock()
		return
	}

	pending := c.pendingSync
	if pending == nil || pending.sequenceID != f.Header.SequenceID {
		c.mu.Unlock()
		return
	}
	c.pendingSync = nil
	c.stats.FollowUpCount++

	t1 := f.PreciseOriginTimestamp.ToNS()
	t2 := pending.receiveTimeNS
	rawDiff := t2 - t1

	if !c.initialOffsetSet {
		c.initialOffsetNS = rawDiff
		c.initialOffsetSet = true
	}
	offsetNS := rawDiff - c.initialOffsetNS

	if c.stats.State == StateUncalibrated && c.stats.SyncCount > slaveAfterSyncs {
		c.stats.State = StateSlave
	}
	c.stats.OffsetNS = offsetNS

	sendDelayReq := c.stats.SyncCount%delayReqEverySyncs == 0
	local := c.localPort
	domain := c.domain
	conn := c.eventConn
	c.delayReqSeq++
	seq := c.delayReqSeq

	c.mu.Unlock()

	if feed != nil {
		feed.UpdateOffsetNS(offsetNS)
	}

	if sendDelayReq && conn != nil {
		c.sendDelayReq(conn, local, seq, domain, l)
	}
}

func (c *Client) sendDelayReq(conn *net.UDPConn, local PortIdentity, seq uint16, domain uint8, l logging.Logger) {
	msg := EncodeDelayReq(local, seq, domain)
	dest := &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: EventPort}
	sendTimeNS := time.Now().UnixNano()

	if _, err := conn.WriteToUDP(msg, dest); err != nil {
		if l != nil {
			l.Log(logging.Warning, "ptp: could not send Delay_Req", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.pendingDelay = &pendingDelay{sequenceID: seq, sendTimeNS: sendTimeNS}
	c.mu.Unlock()
}

// handleDelayResp estimates one-way path delay as half the measured
// round trip. This is for display only (PTP_STATS' "Delay:" field); the
// offset tracked by handleFollowUp does not depend on it, matching the
// original's design note that master/slave timestamps use incompatible
// epochs so a true path delay cannot be computed.
func (c *Client) handleDelayResp(d DelayRespMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.RequestingPortIdentity != c.localPort {
		return
	}
	pending := c.pendingDelay
	if pending == nil || pending.sequenceID != d.Header.SequenceID {
		return
	}
	c.pendingDelay = nil
	c.stats.DelayRespCount++

	rttNS := time.Now().UnixNano() - pending.sendTimeNS
	c.stats.MeanPathDelayNS = rttNS / 2
}
