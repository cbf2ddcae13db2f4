// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package switchctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"google.golang.org/grpc"
)

// protoDump appends every outgoing P4Runtime message in text form to a file.
type protoDump struct {
	mu sync.Mutex
	w  io.WriteCloser
}

func openProtoDump(path string) (*protoDump, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &protoDump{w: f}, nil
}

func (d *protoDump) write(method string, m interface{}) {
	msg, ok := m.(proto.Message)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "\n[%s] %s\n---\n%s", time.Now().Format("2006-01-02 15:04:05.000"), method, proto.MarshalTextString(msg))
}

func (d *protoDump) Close() error {
	return d.w.Close()
}

func (d *protoDump) unaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		d.write(method, req)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (d *protoDump) streamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, err
		}
		return &dumpStream{ClientStream: cs, dump: d, method: method}, nil
	}
}

type dumpStream struct {
	grpc.ClientStream
	dump   *protoDump
	method string
}

func (s *dumpStream) SendMsg(m interface{}) error {
	s.dump.write(s.method, m)
	return s.ClientStream.SendMsg(m)
}
