/*
NAME
  socket.go

DESCRIPTION
  socket.go provides multicast UDP socket helpers shared by the RX and TX
  pipelines: joining a multicast group for receive, and setting TTL/DSCP
  for transmit (spec.md §6: "Multicast TTL 15, DSCP EF").

  Adapted from the teacher's protocol/rtp.Client dial/listen pattern
  (client.go), generalized to multicast and extended with the socket
  options the teacher's unicast client didn't need.

AUTHOR
  AES67 endpoint contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// DefaultTTL is the multicast hop limit AES67 endpoints use on the LAN
// (spec.md §6).
const DefaultTTL = 15

// DSCP_EF is the Differentiated Services Code Point for Expedited
// Forwarding (spec.md §6), shifted into the high 6 bits of the IPv4 ToS
// byte as golang.org/x/net/ipv4 expects.
const DSCP_EF = 46 << 2

// ListenMulticast joins the multicast group at groupAddr:port on the given
// local interface address (iface == "" or "0.0.0.0" selects the kernel
// default route) and returns a ready-to-read *net.UDPConn.
func ListenMulticast(groupAddr string, port int, iface string) (*net.UDPConn, error) {
	group := net.ParseIP(groupAddr)
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("rtp: %q is not a valid multicast address", groupAddr)
	}

	ifc, err := interfaceForAddr(iface)
	if err != nil {
		return nil, fmt.Errorf("rtp: could not resolve interface %q: %w", iface, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("rtp: could not bind udp port %d: %w", port, err)
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(ifc, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: could not join multicast group %s: %w", groupAddr, err)
	}

	return conn, nil
}

// DialMulticast creates a UDP socket bound to iface (or the kernel default)
// suitable for sending to a multicast group at groupAddr:port, with TTL and
// DSCP set per spec.md §6.
func DialMulticast(groupAddr string, port int, iface string) (*net.UDPConn, error) {
	localIP := net.IPv4zero
	if iface != "" && iface != "0.0.0.0" {
		ip := net.ParseIP(iface)
		if ip == nil {
			return nil, fmt.Errorf("rtp: invalid interface address %q", iface)
		}
		localIP = ip
	}

	conn, err := net.DialUDP("udp4", &net.UDPAddr{IP: localIP}, &net.UDPAddr{IP: net.ParseIP(groupAddr), Port: port})
	if err != nil {
		return nil, fmt.Errorf("rtp: could not dial %s:%d: %w", groupAddr, port, err)
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(DefaultTTL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: could not set multicast TTL: %w", err)
	}
	if err := p.SetTOS(DSCP_EF); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: could not set DSCP: %w", err)
	}

	return conn, nil
}

// interfaceForAddr returns the net.Interface owning addr, or nil (kernel
// default) if addr is empty or "0.0.0.0".
func interfaceForAddr(addr string) (*net.Interface, error) {
	if addr == "" || addr == "0.0.0.0" {
		return nil, nil
	}
	want := net.ParseIP(addr)
	if want == nil {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(want) {
				ifc := ifc
				return &ifc, nil
			}
		}
	}
	return nil, fmt.Errorf("no interface with address %s", addr)
}
