// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package topology describes the static host bindings behind the switch.
package topology

import (
	"errors"
	"fmt"
	"net"

	"github.com/opiproject/opi-p4-join/pkg/config"
)

// MaxPort is the largest egress port the 9-bit bmv2 egress_spec can carry.
const MaxPort = 511

// ErrMalformedHost is returned for a host binding that cannot be programmed.
var ErrMalformedHost = errors.New("malformed host binding")

// HostBinding maps a host address to the switch port and MAC behind it.
type HostBinding struct {
	IP   net.IP
	MAC  net.HardwareAddr
	Port uint32
}

func (h HostBinding) String() string {
	return fmt.Sprintf("(%s, %s, %d)", h.IP, h.MAC, h.Port)
}

// Parse validates one (ip, mac, port) tuple.
func Parse(ip, mac string, port int) (HostBinding, error) {
	addr := net.ParseIP(ip).To4()
	if addr == nil {
		return HostBinding{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrMalformedHost, ip)
	}
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return HostBinding{}, fmt.Errorf("%w: %q is not an EUI-48 MAC address", ErrMalformedHost, mac)
	}
	if port < 0 || port > MaxPort {
		return HostBinding{}, fmt.Errorf("%w: port %d out of range [0, %d]", ErrMalformedHost, port, MaxPort)
	}
	return HostBinding{IP: addr, MAC: hw, Port: uint32(port)}, nil
}

// FromConfig converts the configured hosts in order. The first malformed
// entry fails the whole list.
func FromConfig(hosts []config.HostConfig) ([]HostBinding, error) {
	bindings := make([]HostBinding, 0, len(hosts))
	for i, h := range hosts {
		b, err := Parse(h.IP, h.MAC, h.Port)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// Default returns h1..h3 of the tutorial topology.
func Default() []HostBinding {
	return []HostBinding{
		mustParse("10.0.1.1", "00:00:00:00:01:01", 1),
		mustParse("10.0.1.2", "00:00:00:00:01:02", 2),
		mustParse("10.0.1.3", "00:00:00:00:01:03", 3),
	}
}

// DefaultConfig returns Default in its configuration form.
func DefaultConfig() []config.HostConfig {
	var hosts []config.HostConfig
	for _, h := range Default() {
		hosts = append(hosts, config.HostConfig{IP: h.IP.String(), MAC: h.MAC.String(), Port: int(h.Port)})
	}
	return hosts
}

func mustParse(ip, mac string, port int) HostBinding {
	h, err := Parse(ip, mac, port)
	if err != nil {
		panic(err)
	}
	return h
}
