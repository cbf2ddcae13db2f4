// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package switchctl

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	p4_v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeP4Runtime struct {
	p4_v1.UnimplementedP4RuntimeServer

	mu        sync.Mutex
	writes    []*p4_v1.WriteRequest
	reads     []*p4_v1.ReadRequest
	pipelines []*p4_v1.SetForwardingPipelineConfigRequest
	writeErr  error
	entries   []*p4_v1.TableEntry

	// streamErr ends StreamChannel right away; otherwise every arbitration
	// update is answered with arbitrationCode.
	streamErr       error
	arbitrationCode codes.Code
}

func (s *fakeP4Runtime) Capabilities(context.Context, *p4_v1.CapabilitiesRequest) (*p4_v1.CapabilitiesResponse, error) {
	return &p4_v1.CapabilitiesResponse{P4RuntimeApiVersion: "1.4.0"}, nil
}

func (s *fakeP4Runtime) StreamChannel(stream p4_v1.P4Runtime_StreamChannelServer) error {
	if s.streamErr != nil {
		return s.streamErr
	}
	for {
		req, err := stream.Recv()
		if err != nil {
			return nil
		}
		arb := req.GetArbitration()
		if arb == nil {
			continue
		}
		if err := stream.Send(&p4_v1.StreamMessageResponse{
			Update: &p4_v1.StreamMessageResponse_Arbitration{Arbitration: &p4_v1.MasterArbitrationUpdate{
				DeviceId:   arb.GetDeviceId(),
				ElectionId: arb.GetElectionId(),
				Status:     &rpcstatus.Status{Code: int32(s.arbitrationCode)},
			}},
		}); err != nil {
			return err
		}
	}
}

func (s *fakeP4Runtime) SetForwardingPipelineConfig(_ context.Context, req *p4_v1.SetForwardingPipelineConfigRequest) (*p4_v1.SetForwardingPipelineConfigResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines = append(s.pipelines, req)
	return &p4_v1.SetForwardingPipelineConfigResponse{}, nil
}

func (s *fakeP4Runtime) Write(_ context.Context, req *p4_v1.WriteRequest) (*p4_v1.WriteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, req)
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	return &p4_v1.WriteResponse{}, nil
}

func (s *fakeP4Runtime) Read(req *p4_v1.ReadRequest, stream p4_v1.P4Runtime_ReadServer) error {
	s.mu.Lock()
	s.reads = append(s.reads, req)
	entries := s.entries
	s.mu.Unlock()
	for _, te := range entries {
		if err := stream.Send(&p4_v1.ReadResponse{
			Entities: []*p4_v1.Entity{{Entity: &p4_v1.Entity_TableEntry{TableEntry: te}}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func newTestClient(t *testing.T, srv *fakeP4Runtime, dumpFile string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	p4_v1.RegisterP4RuntimeServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := Dial(Options{
		Name:          "s1",
		Address:       "passthrough:///bufnet",
		DeviceID:      0,
		ElectionID:    1,
		ProtoDumpFile: dumpFile,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWriteTableEntry(t *testing.T) {
	srv := &fakeP4Runtime{}
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	require.NoError(t, c.WriteTableEntry(ctx, &p4_v1.TableEntry{TableId: 1, IsDefaultAction: true}))
	require.NoError(t, c.WriteTableEntry(ctx, &p4_v1.TableEntry{TableId: 1}))

	require.Len(t, srv.writes, 2)
	assert.Equal(t, p4_v1.Update_MODIFY, srv.writes[0].GetUpdates()[0].GetType())
	assert.Equal(t, p4_v1.Update_INSERT, srv.writes[1].GetUpdates()[0].GetType())
	assert.Equal(t, uint64(1), srv.writes[1].GetElectionId().GetLow())
}

func TestWriteTableEntryProtocolError(t *testing.T) {
	srv := &fakeP4Runtime{writeErr: status.Error(codes.AlreadyExists, "entry exists")}
	c := newTestClient(t, srv, "")

	err := c.WriteTableEntry(context.Background(), &p4_v1.TableEntry{TableId: 1})
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, codes.AlreadyExists, perr.Code)
	assert.Equal(t, "entry exists", perr.Detail)
	assert.Equal(t, "Write", perr.Op)
}

func TestReadTableEntries(t *testing.T) {
	srv := &fakeP4Runtime{entries: []*p4_v1.TableEntry{{TableId: 1}, {TableId: 2}}}
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	entries, err := c.ReadTableEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.Len(t, srv.reads, 1)
	require.Len(t, srv.reads[0].GetEntities(), 1)
	assert.Equal(t, uint32(0), srv.reads[0].GetEntities()[0].GetTableEntry().GetTableId())

	_, err = c.ReadTableEntries(ctx, &p4_v1.TableEntry{TableId: 1, IsDefaultAction: true}, &p4_v1.TableEntry{})
	require.NoError(t, err)
	require.Len(t, srv.reads, 2)
	assert.Len(t, srv.reads[1].GetEntities(), 2)
	assert.True(t, srv.reads[1].GetEntities()[0].GetTableEntry().GetIsDefaultAction())
}

func TestProtoDump(t *testing.T) {
	dumpFile := filepath.Join(t.TempDir(), "logs", "s1-p4runtime-requests.txt")
	srv := &fakeP4Runtime{}
	c := newTestClient(t, srv, dumpFile)

	require.NoError(t, c.WriteTableEntry(context.Background(), &p4_v1.TableEntry{TableId: 33574068}))
	_, err := c.ReadTableEntries(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(dumpFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/p4.v1.P4Runtime/Write")
	assert.Contains(t, string(data), "/p4.v1.P4Runtime/Read")
	assert.Contains(t, string(data), "33574068")
}

func TestNewProtocolError(t *testing.T) {
	assert.NoError(t, NewProtocolError("Write", nil))

	plain := NewProtocolError("Write", assert.AnError)
	assert.ErrorIs(t, plain, assert.AnError)

	st, err := status.New(codes.Unknown, "batch failed").WithDetails(
		&p4_v1.Error{CanonicalCode: int32(codes.OK)},
		&p4_v1.Error{CanonicalCode: int32(codes.InvalidArgument), Message: "bad match"},
	)
	require.NoError(t, err)

	var perr *ProtocolError
	require.ErrorAs(t, NewProtocolError("Write", st.Err()), &perr)
	assert.Equal(t, codes.InvalidArgument, perr.Code)
	assert.Equal(t, "bad match", perr.Detail)
	assert.Equal(t, "Write: gRPC Error: bad match (InvalidArgument)", perr.Error())
}

func TestArbitratePrimary(t *testing.T) {
	c := newTestClient(t, &fakeP4Runtime{}, "")
	c.opts.ArbitrationTimeout = 5 * time.Second

	start := time.Now()
	require.NoError(t, c.Arbitrate(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestArbitrateStreamRefused(t *testing.T) {
	srv := &fakeP4Runtime{streamErr: status.Error(codes.PermissionDenied, "nope")}
	c := newTestClient(t, srv, "")
	c.opts.ArbitrationTimeout = 5 * time.Second

	err := c.Arbitrate(context.Background())
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "StreamChannel", perr.Op)
	assert.Equal(t, codes.PermissionDenied, perr.Code)
	assert.Equal(t, "nope", perr.Detail)
}

func TestArbitrateTimeout(t *testing.T) {
	// another controller holds a higher election id
	srv := &fakeP4Runtime{arbitrationCode: codes.AlreadyExists}
	c := newTestClient(t, srv, "")
	c.opts.ArbitrationTimeout = 200 * time.Millisecond

	err := c.Arbitrate(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	var perr *ProtocolError
	assert.False(t, errors.As(err, &perr))
}

func TestSetPipeline(t *testing.T) {
	dir := t.TempDir()
	p4infoPath := filepath.Join(dir, "static_join.p4info")
	binPath := filepath.Join(dir, "static_join.json")
	require.NoError(t, os.WriteFile(p4infoPath, []byte(`
tables {
  preamble {
    id: 37375156
    name: "MyIngress.ipv4_lpm"
    alias: "ipv4_lpm"
  }
}
`), 0o600))
	require.NoError(t, os.WriteFile(binPath, []byte(`{"program": "static_join.p4"}`), 0o600))

	srv := &fakeP4Runtime{}
	c := newTestClient(t, srv, "")
	require.NoError(t, c.SetPipeline(context.Background(), binPath, p4infoPath))

	require.Len(t, srv.pipelines, 1)
	req := srv.pipelines[0]
	assert.Equal(t, p4_v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT, req.GetAction())
	assert.Equal(t, uint64(1), req.GetElectionId().GetLow())
	assert.Equal(t, []byte(`{"program": "static_join.p4"}`), req.GetConfig().GetP4DeviceConfig())
	require.Len(t, req.GetConfig().GetP4Info().GetTables(), 1)
	assert.Equal(t, "MyIngress.ipv4_lpm", req.GetConfig().GetP4Info().GetTables()[0].GetPreamble().GetName())

	assert.Error(t, c.SetPipeline(context.Background(), filepath.Join(dir, "absent.json"), p4infoPath))
	assert.Len(t, srv.pipelines, 1)
}

func TestCloseTwice(t *testing.T) {
	c := newTestClient(t, &fakeP4Runtime{}, "")
	require.NoError(t, c.Close())
	assert.NotPanics(t, func() { _ = c.Close() })
}
