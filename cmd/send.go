// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opiproject/opi-p4-join/pkg/receiver"
	"github.com/opiproject/opi-p4-join/pkg/tuple"
)

type sendOptions struct {
	addr    string
	id      uint32
	age     uint32
	key     uint32
	payload string
	zip     uint32
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "tuple sender",
		Long:  "sends one tuple record in a single UDP datagram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := opts.record()
			if err != nil {
				return err
			}
			if err := receiver.Send(cmd.Context(), opts.addr, rec); err != nil {
				return err
			}
			log.Infof("Sent %s to %s", rec, opts.addr)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "10.0.1.2:3490", "receiver address in ip_address:port format")
	flags.Uint32Var(&opts.id, "id", 1, "tuple id")
	flags.Uint32Var(&opts.age, "age", 0, "tuple age, the join key")
	flags.Uint32Var(&opts.key, "key", 0, "secondary key")
	flags.StringVar(&opts.payload, "payload", "", "payload, NUL padded to 10 bytes")
	flags.Uint32Var(&opts.zip, "zip", 0, "zip code, filled in by the switch on a join hit")
	return cmd
}

func (o *sendOptions) record() (tuple.Record, error) {
	payload, err := tuple.PadPayload(o.payload)
	if err != nil {
		return tuple.Record{}, err
	}
	rec := tuple.Record{ID: o.id, Age: o.age, Key: o.key, Zip: o.zip}
	copy(rec.Payload[:], payload)
	return rec, nil
}
