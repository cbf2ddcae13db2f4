// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package receiver reads tuple records from a datagram socket.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/opiproject/opi-p4-join/pkg/tuple"
)

// Ports the tutorial receivers listen on.
const (
	StaticJoinPort  = 3490
	TupleFilterPort = 8000
)

// maxDatagram is large enough that an oversized datagram is seen at its full
// length and rejected instead of silently truncated.
const maxDatagram = 64 * 1024

// Handler consumes decoded records.
type Handler interface {
	HandleRecord(ctx context.Context, rec tuple.Record, from net.Addr) error
}

type HandlerFunc func(ctx context.Context, rec tuple.Record, from net.Addr) error

func (f HandlerFunc) HandleRecord(ctx context.Context, rec tuple.Record, from net.Addr) error {
	return f(ctx, rec, from)
}

// Receiver is a single goroutine blocking receive loop. Each datagram must
// carry exactly one record.
type Receiver struct {
	conn    net.PacketConn
	handler Handler
	log     *log.Entry

	received atomic.Uint64
	dropped  atomic.Uint64
}

func New(conn net.PacketConn, handler Handler) *Receiver {
	return &Receiver{
		conn:    conn,
		handler: handler,
		log:     log.WithField("listen", conn.LocalAddr().String()),
	}
}

// Serve blocks until ctx is cancelled or the socket fails. Malformed
// datagrams and handler errors are logged and the loop goes on.
func (r *Receiver) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.conn.Close()
		case <-done:
		}
	}()

	r.log.Info("Waiting for tuples")
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		rec, err := tuple.Decode(buf[:n])
		if err != nil {
			r.dropped.Add(1)
			r.log.WithField("from", from).Warnf("Dropping datagram: %v", err)
			continue
		}
		r.received.Add(1)
		if err := r.handler.HandleRecord(ctx, rec, from); err != nil {
			r.log.WithField("from", from).Errorf("Handling %s: %v", rec, err)
		}
	}
}

// Stats returns the number of accepted and dropped datagrams.
func (r *Receiver) Stats() (received, dropped uint64) {
	return r.received.Load(), r.dropped.Load()
}
