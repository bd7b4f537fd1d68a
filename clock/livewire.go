/*
NAME
  livewire.go

DESCRIPTION
  livewire.go provides the Axia Livewire clock source. spec.md §9 notes
  this as an open question: "the spec mentions Axia Livewire as a
  selectable clock but the source does not show its wire format.
  Implementers should treat it as a stub that can be filled in without
  changing the Clock contract." This is exactly that stub: it joins the
  configured interface's Livewire clock multicast group and applies the
  same Feeder contract as PTP, but does not parse the (undocumented)
  Livewire wire format — any datagram received is treated only as a
  liveness signal (NoteSyncSeen), with no offset correction applied.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package clock

import (
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/aes67node/endpoint/rtp"
)

// livewireMulticastAddr is the conventional Axia Livewire clock
// distribution group. Kept as a constant since the wire format itself is
// out of scope (see package doc above).
const livewireMulticastAddr = "239.192.0.1"

const livewirePort = 2068

type livewireSource struct {
	iface string
}

func newLivewireSource(iface string) *livewireSource {
	return &livewireSource{iface: iface}
}

func (s *livewireSource) run(stop <-chan struct{}, c *Clock, l logging.Logger) {
	conn, err := rtp.ListenMulticast(livewireMulticastAddr, livewirePort, s.iface)
	if err != nil {
		if l != nil {
			l.Log(logging.Error, "livewire: could not bind socket", "error", err)
		}
		return
	}
	defer conn.Close()

	go func() {
		<-stop
		conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		select {
		case <-stop:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		if n == 0 {
			continue
		}
		// Wire format unspecified (spec.md §9 open question): treat any
		// datagram as a liveness signal only, applying no offset.
		c.NoteSyncSeen()
		c.UpdateOffsetNS(c.OffsetNS())
	}
}
