// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package receiver

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/gokv"

	"github.com/opiproject/opi-p4-join/pkg/tuple"
)

// LogHandler prints every record followed by the sender address.
func LogHandler(w io.Writer) Handler {
	return HandlerFunc(func(_ context.Context, rec tuple.Record, from net.Addr) error {
		_, err := fmt.Fprintln(w, rec, from)
		return err
	})
}

// StoredRecord is the value kept in the store for each record.
type StoredRecord struct {
	Record     tuple.Record `json:"record"`
	From       string       `json:"from"`
	ReceivedAt time.Time    `json:"received_at"`
}

// StoreHandler keeps every record in store under a fresh uuid key.
func StoreHandler(store gokv.Store) Handler {
	return HandlerFunc(func(_ context.Context, rec tuple.Record, from net.Addr) error {
		v := StoredRecord{Record: rec, ReceivedAt: time.Now()}
		if from != nil {
			v.From = from.String()
		}
		return store.Set(uuid.NewString(), v)
	})
}

// Chain calls every handler in order and returns the first error.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, rec tuple.Record, from net.Addr) error {
		for _, h := range handlers {
			if err := h.HandleRecord(ctx, rec, from); err != nil {
				return err
			}
		}
		return nil
	})
}
