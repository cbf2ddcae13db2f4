// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

// Package switchctl is the P4Runtime control channel to a single switch.
package switchctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/antoninbas/p4runtime-go-client/pkg/client"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	p4_v1 "github.com/p4lang/p4runtime/go/p4/v1"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/opiproject/opi-p4-join/pkg/utils"
)

const (
	defaultArbitrationTimeout = 5 * time.Second
)

// Conn is the set of operations the controller needs from a switch.
type Conn interface {
	Arbitrate(ctx context.Context) error
	SetPipeline(ctx context.Context, binPath, p4infoPath string) error
	WriteTableEntry(ctx context.Context, entry *p4_v1.TableEntry) error
	ReadTableEntries(ctx context.Context, filters ...*p4_v1.TableEntry) ([]*p4_v1.TableEntry, error)
	Close() error
}

type Options struct {
	Name               string
	Address            string
	DeviceID           uint64
	ElectionID         uint64
	ProtoDumpFile      string
	ArbitrationTimeout time.Duration
	// DialOptions are appended to the default gRPC dial options.
	DialOptions []grpc.DialOption
}

// Client is a Conn backed by a gRPC P4Runtime session.
type Client struct {
	opts   Options
	conn   *grpc.ClientConn
	rt     p4_v1.P4RuntimeClient
	p4RtC  *client.Client
	dump   *protoDump
	stopCh chan struct{}
	once   sync.Once
	log    *log.Entry
}

var _ Conn = (*Client)(nil)

// Dial opens the gRPC channel to the switch. No RPC is issued until
// Arbitrate is called.
func Dial(opts Options) (*Client, error) {
	if opts.ArbitrationTimeout == 0 {
		opts.ArbitrationTimeout = defaultArbitrationTimeout
	}
	logger := log.WithFields(log.Fields{"switch": opts.Name, "address": opts.Address})

	unary := []grpc.UnaryClientInterceptor{
		logging.UnaryClientInterceptor(utils.InterceptorLogger(logger),
			logging.WithLogOnEvents(logging.StartCall, logging.FinishCall)),
	}
	stream := []grpc.StreamClientInterceptor{
		logging.StreamClientInterceptor(utils.InterceptorLogger(logger),
			logging.WithLogOnEvents(logging.StartCall, logging.FinishCall)),
	}
	var dump *protoDump
	if opts.ProtoDumpFile != "" {
		var err error
		if dump, err = openProtoDump(opts.ProtoDumpFile); err != nil {
			return nil, fmt.Errorf("open proto dump file: %w", err)
		}
		unary = append(unary, dump.unaryInterceptor())
		stream = append(stream, dump.streamInterceptor())
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(unary...),
		grpc.WithChainStreamInterceptor(stream...),
	}, opts.DialOptions...)
	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		if dump != nil {
			dump.Close()
		}
		return nil, fmt.Errorf("dial %s: %w", opts.Address, err)
	}
	rt := p4_v1.NewP4RuntimeClient(conn)
	electionID := &p4_v1.Uint128{High: 0, Low: opts.ElectionID}
	return &Client{
		opts:   opts,
		conn:   conn,
		rt:     rt,
		p4RtC:  client.NewClient(rt, opts.DeviceID, electionID),
		dump:   dump,
		stopCh: make(chan struct{}),
		log:    logger,
	}, nil
}

// Arbitrate starts the stream channel and blocks until this client is the
// primary controller or the arbitration timeout expires.
func (c *Client) Arbitrate(ctx context.Context) error {
	resp, err := c.rt.Capabilities(ctx, &p4_v1.CapabilitiesRequest{})
	if err != nil {
		return NewProtocolError("Capabilities", err)
	}
	c.log.Infof("P4Runtime server version is %s", resp.GetP4RuntimeApiVersion())

	arbitrationCh := make(chan bool)
	errCh := make(chan error, 1)
	go func() {
		if err := c.p4RtC.Run(c.stopCh, arbitrationCh, nil); err != nil {
			c.log.Errorf("stream channel closed: %v", err)
			errCh <- err
		}
	}()

	waitCh := make(chan struct{})
	go func() {
		sent := false
		for isPrimary := range arbitrationCh {
			if isPrimary {
				c.log.Info("We are the primary client!")
				if !sent {
					close(waitCh)
					sent = true
				}
			} else {
				c.log.Info("We are not the primary client!")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.ArbitrationTimeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return fmt.Errorf("could not become the primary client within %v: %w", c.opts.ArbitrationTimeout, ctx.Err())
	case err := <-errCh:
		return NewProtocolError("StreamChannel", err)
	case <-waitCh:
		return nil
	}
}

// SetPipeline installs the compiled program and its P4Info.
func (c *Client) SetPipeline(ctx context.Context, binPath, p4infoPath string) error {
	c.log.Info("Setting forwarding pipe")
	if _, err := c.p4RtC.SetFwdPipe(ctx, binPath, p4infoPath, 0); err != nil {
		return NewProtocolError("SetForwardingPipelineConfig", err)
	}
	c.log.Infof("Installed P4 Program using SetForwardingPipelineConfig on %s", c.opts.Name)
	return nil
}

// WriteTableEntry inserts a specific entry or modifies the table default
// entry when IsDefaultAction is set.
func (c *Client) WriteTableEntry(ctx context.Context, entry *p4_v1.TableEntry) error {
	var err error
	if entry.GetIsDefaultAction() {
		err = c.p4RtC.ModifyTableEntry(ctx, entry)
	} else {
		err = c.p4RtC.InsertTableEntry(ctx, entry)
	}
	return NewProtocolError("Write", err)
}

// ReadTableEntries reads the entries selected by filters. Without filters
// every non default entry of every table is returned.
func (c *Client) ReadTableEntries(ctx context.Context, filters ...*p4_v1.TableEntry) ([]*p4_v1.TableEntry, error) {
	if len(filters) == 0 {
		filters = []*p4_v1.TableEntry{{}}
	}
	req := &p4_v1.ReadRequest{DeviceId: c.opts.DeviceID}
	for _, f := range filters {
		req.Entities = append(req.Entities, &p4_v1.Entity{
			Entity: &p4_v1.Entity_TableEntry{TableEntry: f},
		})
	}
	stream, err := c.rt.Read(ctx, req)
	if err != nil {
		return nil, NewProtocolError("Read", err)
	}
	var entries []*p4_v1.TableEntry
	for {
		rep, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewProtocolError("Read", err)
		}
		for _, e := range rep.GetEntities() {
			if te := e.GetTableEntry(); te != nil {
				entries = append(entries, te)
			}
		}
	}
	return entries, nil
}

// Close stops the stream channel and releases the connection. Calls after
// the first are no-ops.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stopCh)
		err = c.conn.Close()
		if c.dump != nil {
			if derr := c.dump.Close(); err == nil {
				err = derr
			}
		}
	})
	return err
}
