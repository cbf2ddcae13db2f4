// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opiproject/opi-p4-join/pkg/config"
	"github.com/opiproject/opi-p4-join/pkg/receiver"
	"github.com/opiproject/opi-p4-join/pkg/storage"
)

func newReceiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "tuple receiver",
		Long:  "receives tuple records over UDP and prints them with the sender address",
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return config.GetConfig().ValidateReceiver()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReceiver(cmd.Context(), config.GetConfig(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Int("port", receiver.StaticJoinPort,
		fmt.Sprintf("UDP port, %d for the static join and %d for tuple filtering", receiver.StaticJoinPort, receiver.TupleFilterPort))
	flags.String("interface", "", "bind to the IPv4 address of this interface instead of all addresses")
	flags.Bool("store", false, "keep received tuples in the configured database")

	bindFlags(flags, map[string]string{
		"receiver.port":      "port",
		"receiver.interface": "interface",
		"receiver.store":     "store",
	})
	return cmd
}

func runReceiver(ctx context.Context, cfg *config.Config, out io.Writer) error {
	handler := receiver.LogHandler(out)
	if cfg.Receiver.Store {
		if cfg.Database == "" {
			return errors.New("--store needs --database")
		}
		store, err := storage.NewStore(cfg.Database, cfg.DBAddress)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Errorf("closing store: %v", err)
			}
		}()
		handler = receiver.Chain(handler, receiver.StoreHandler(store.GetClient()))
	}

	conn, err := receiver.Listen(ctx, receiver.ListenOptions{
		Port:      cfg.Receiver.Port,
		Interface: cfg.Receiver.Interface,
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	r := receiver.New(conn, handler)
	err = r.Serve(ctx)
	received, dropped := r.Stats()
	log.Infof("Receiver stopped after %d tuples, %d malformed datagrams dropped", received, dropped)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
