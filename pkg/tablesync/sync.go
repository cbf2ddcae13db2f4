// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package tablesync programs the forwarding and join tables of a switch and
// reads them back.
package tablesync

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"
	p4_v1 "github.com/p4lang/p4runtime/go/p4/v1"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opiproject/opi-p4-join/pkg/p4info"
	"github.com/opiproject/opi-p4-join/pkg/topology"
)

// Switch accepts table writes and reads. Writes are order dependent, so a
// Switch must only be driven by one Synchronizer at a time.
type Switch interface {
	WriteTableEntry(ctx context.Context, entry *p4_v1.TableEntry) error
	ReadTableEntries(ctx context.Context, filters ...*p4_v1.TableEntry) ([]*p4_v1.TableEntry, error)
}

// Schema translates between symbolic and wire table entries.
type Schema interface {
	BuildTableEntry(e p4info.Entry) (*p4_v1.TableEntry, error)
	DescribeTableEntry(te *p4_v1.TableEntry) (p4info.Entry, error)
}

type Config struct {
	Hosts []topology.HostBinding
	// JoinRows is the number of sampled join rules, zero skips the join table.
	JoinRows int
	// Rand drives join row sampling. A time seeded source is used when nil.
	Rand *rand.Rand
}

// Result describes one synchronization pass.
type Result struct {
	PassID  string
	Written []p4info.Entry
	Entries []p4info.Entry
}

type Synchronizer struct {
	sw     Switch
	schema Schema
	cfg    Config
	tracer trace.Tracer
}

func New(sw Switch, schema Schema, cfg Config) *Synchronizer {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Synchronizer{
		sw:     sw,
		schema: schema,
		cfg:    cfg,
		tracer: otel.Tracer("tablesync"),
	}
}

// Sync writes every planned rule in order and then reads all tables back.
// The first failing write or read aborts the pass; rules already written
// stay on the switch.
func (s *Synchronizer) Sync(ctx context.Context) (*Result, error) {
	res := &Result{PassID: uuid.NewString()}
	logger := log.WithField("pass", res.PassID)

	ctx, span := s.tracer.Start(ctx, "Sync", trace.WithAttributes(attribute.String("pass", res.PassID)))
	defer span.End()

	rows, err := SampleJoinRows(s.cfg.Rand, s.cfg.JoinRows)
	if err != nil {
		return res, fail(span, err)
	}
	rules := Plan(s.cfg.Hosts, rows)

	entries := make([]*p4_v1.TableEntry, len(rules))
	for i, rule := range rules {
		if entries[i], err = s.schema.BuildTableEntry(rule); err != nil {
			return res, fail(span, fmt.Errorf("build %s: %w", rule, err))
		}
	}

	for i, rule := range rules {
		logger.Debugf("Installing %s", rule)
		if err := s.sw.WriteTableEntry(ctx, entries[i]); err != nil {
			return res, fail(span, fmt.Errorf("install %s: %w", rule, err))
		}
		res.Written = append(res.Written, rule)
	}
	logger.Infof("Installed %d rules (%d hosts, %d join rows)", len(res.Written), len(s.cfg.Hosts), len(rows))
	span.SetAttributes(attribute.Int("rules", len(res.Written)))

	res.Entries, err = s.readBack(ctx)
	if err != nil {
		return res, fail(span, err)
	}
	return res, nil
}

func (s *Synchronizer) readBack(ctx context.Context) ([]p4info.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "ReadBack")
	defer span.End()

	def, err := s.schema.BuildTableEntry(p4info.Entry{Table: ForwardTable, Default: true})
	if err != nil {
		return nil, fmt.Errorf("build read filter: %w", err)
	}
	tes, err := s.sw.ReadTableEntries(ctx, def, &p4_v1.TableEntry{})
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	entries := make([]p4info.Entry, 0, len(tes))
	for _, te := range tes {
		e, err := s.schema.DescribeTableEntry(te)
		if err != nil {
			return nil, fmt.Errorf("describe entry of table %d: %w", te.GetTableId(), err)
		}
		entries = append(entries, e)
	}
	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}

// Render prints the read back entries of a switch.
func (r *Result) Render(w io.Writer, switchName string) {
	fmt.Fprintf(w, "\n----- Reading tables rules for %s -----\n", switchName)
	for _, e := range r.Entries {
		fmt.Fprintln(w, e)
	}
}
