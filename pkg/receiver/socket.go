// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package receiver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/opiproject/opi-p4-join/pkg/tuple"
)

type ListenOptions struct {
	Port int
	// Interface restricts the socket to the first IPv4 address of the named
	// link, e.g. h2-eth0. Empty binds to all addresses.
	Interface string
}

// Listen opens the UDP socket a Receiver reads from.
func Listen(ctx context.Context, opts ListenOptions) (net.PacketConn, error) {
	host := ""
	if opts.Interface != "" {
		ip, err := InterfaceIPv4(opts.Interface)
		if err != nil {
			return nil, err
		}
		host = ip.String()
	}
	lc := net.ListenConfig{Control: reuseAddr}
	return lc.ListenPacket(ctx, "udp4", net.JoinHostPort(host, strconv.Itoa(opts.Port)))
}

func reuseAddr(_, _ string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}

// InterfaceIPv4 returns the first IPv4 address configured on a link.
func InterfaceIPv4(name string) (net.IP, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", name, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("addresses of %s: %w", name, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("link %s has no IPv4 address", name)
	}
	return addrs[0].IP, nil
}

// Send transmits one record in a single datagram.
func Send(ctx context.Context, addr string, rec tuple.Record) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp4", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(data)
	return err
}
