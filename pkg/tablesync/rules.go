// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package tablesync

import (
	"fmt"
	"math/rand"

	"github.com/opiproject/opi-p4-join/pkg/p4info"
	"github.com/opiproject/opi-p4-join/pkg/topology"
)

// Names from the join P4 programs.
const (
	ForwardTable  = "MyIngress.ipv4_lpm"
	ForwardMatch  = "hdr.ipv4.dstAddr"
	ForwardAction = "MyIngress.ipv4_forward"
	ForwardMAC    = "dstAddr"
	ForwardPort   = "port"
	DropAction    = "MyIngress.drop"

	JoinTable  = "MyEgress.join_exact"
	JoinMatch  = "hdr.tupleVal.age"
	JoinAction = "MyEgress.update_headers"
	JoinParam  = "z"
)

// Join row sampling bounds. Ages are drawn without replacement from
// [0, AgeLimit), zip codes with replacement from [ZipMin, ZipMax).
const (
	DefaultJoinRows = 10
	AgeLimit        = 100
	ZipMin          = 10000
	ZipMax          = 70000
)

const hostPrefixLen = 32

// JoinRow is one (age, zip) pair of the join table.
type JoinRow struct {
	Age uint32
	Zip uint32
}

// SampleJoinRows draws n join rows from rng. Ages never repeat, so no join
// rule can shadow another one.
func SampleJoinRows(rng *rand.Rand, n int) ([]JoinRow, error) {
	if n < 0 || n > AgeLimit {
		return nil, fmt.Errorf("join rows %d out of range [0, %d]", n, AgeLimit)
	}
	ages := rng.Perm(AgeLimit)[:n]
	rows := make([]JoinRow, n)
	for i, age := range ages {
		rows[i] = JoinRow{
			Age: uint32(age),
			Zip: uint32(ZipMin + rng.Intn(ZipMax-ZipMin)),
		}
	}
	return rows, nil
}

// DefaultRule drops everything the forwarding table does not match.
func DefaultRule() p4info.Entry {
	return p4info.Entry{
		Table:   ForwardTable,
		Default: true,
		Action:  DropAction,
	}
}

// ForwardRule sends traffic for the host address out of its port, rewriting
// the destination MAC.
func ForwardRule(h topology.HostBinding) p4info.Entry {
	return p4info.Entry{
		Table: ForwardTable,
		Matches: []p4info.Match{
			{Field: ForwardMatch, Value: h.IP, PrefixLen: hostPrefixLen},
		},
		Action: ForwardAction,
		Params: []p4info.Param{
			{Name: ForwardMAC, Value: h.MAC},
			{Name: ForwardPort, Value: h.Port},
		},
	}
}

// JoinRule maps an age to its zip code.
func JoinRule(r JoinRow) p4info.Entry {
	return p4info.Entry{
		Table:   JoinTable,
		Matches: []p4info.Match{{Field: JoinMatch, Value: r.Age}},
		Action:  JoinAction,
		Params:  []p4info.Param{{Name: JoinParam, Value: r.Zip}},
	}
}

// Plan returns the rules of one pass in installation order: the default rule,
// one forwarding rule per host in list order, then the join rules.
func Plan(hosts []topology.HostBinding, rows []JoinRow) []p4info.Entry {
	rules := make([]p4info.Entry, 0, 1+len(hosts)+len(rows))
	rules = append(rules, DefaultRule())
	for _, h := range hosts {
		rules = append(rules, ForwardRule(h))
	}
	for _, r := range rows {
		rules = append(rules, JoinRule(r))
	}
	return rules
}
