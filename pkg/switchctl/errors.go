// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package switchctl

import (
	"fmt"

	p4_v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ProtocolError is a P4Runtime error reported by the switch.
type ProtocolError struct {
	Op     string
	Code   codes.Code
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: gRPC Error: %s (%s)", e.Op, e.Detail, e.Code)
}

// NewProtocolError converts a gRPC error into a ProtocolError. Errors that do
// not carry a gRPC status are wrapped unchanged. For batched writes the first
// failing per update error replaces the top level status.
func NewProtocolError(op string, err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	perr := &ProtocolError{Op: op, Code: s.Code(), Detail: s.Message()}
	for _, d := range s.Details() {
		if ue, ok := d.(*p4_v1.Error); ok && codes.Code(ue.GetCanonicalCode()) != codes.OK {
			perr.Code = codes.Code(ue.GetCanonicalCode())
			perr.Detail = ue.GetMessage()
			break
		}
	}
	return perr
}
