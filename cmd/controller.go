// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opiproject/opi-p4-join/pkg/config"
	"github.com/opiproject/opi-p4-join/pkg/p4info"
	"github.com/opiproject/opi-p4-join/pkg/switchctl"
	"github.com/opiproject/opi-p4-join/pkg/tablesync"
	"github.com/opiproject/opi-p4-join/pkg/topology"
	"github.com/opiproject/opi-p4-join/pkg/utils"
)

func newControllerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "controller",
		Short: "P4Runtime controller",
		Long:  "installs the join program on the switch, writes the forwarding and join rules and reads them back",
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return config.GetConfig().ValidateSwitch()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd.Context(), config.GetConfig(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("name", "s1", "switch name")
	flags.String("address", "127.0.0.1:50051", "P4Runtime server address in ip_address:port format")
	flags.Uint64("device-id", 0, "P4Runtime device id")
	flags.Uint64("election-id", 1, "election id used for primary arbitration")
	flags.String("proto-dump-file", "logs/s1-p4runtime-requests.txt", "dump every P4Runtime request to this file, empty disables")
	flags.String("program", config.ProgramStaticJoin, "p4 program variant (static_join, streaming_join)")
	flags.String("p4info", "", "p4info proto in text format from p4c (default ./build/<program>.p4info)")
	flags.String("bmv2-json", "", "BMv2 JSON file from p4c (default ./build/<program>.json)")
	flags.Int("join-rows", tablesync.DefaultJoinRows, "number of sampled join rules")
	flags.Int64("seed", 0, "join row sampling seed, 0 seeds from the clock")

	bindFlags(flags, map[string]string{
		"switch.name":               "name",
		"switch.address":            "address",
		"switch.device_id":          "device-id",
		"switch.election_id":        "election-id",
		"switch.proto_dump_file":    "proto-dump-file",
		"switch.program":            "program",
		"switch.config.p4info_file": "p4info",
		"switch.config.bin_file":    "bmv2-json",
		"join.rows":                 "join-rows",
		"join.seed":                 "seed",
	})
	return cmd
}

func runController(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.Tracing.Enabled {
		tp := utils.InitTracerProvider(serviceName)
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Errorf("Tracer Provider Shutdown: %v", err)
			}
		}()
	}

	files := cfg.Switch.P4Files()
	schema, err := p4info.Load(files.P4infoFile)
	if err != nil {
		return err
	}

	sw, err := switchctl.Dial(switchctl.Options{
		Name:          cfg.Switch.Name,
		Address:       cfg.Switch.Address,
		DeviceID:      cfg.Switch.DeviceID,
		ElectionID:    cfg.Switch.ElectionID,
		ProtoDumpFile: cfg.Switch.ProtoDumpFile,
	})
	if err != nil {
		return err
	}
	defer sw.Close()

	res, err := programSwitch(ctx, sw, schema, cfg)
	if err != nil {
		printProtocolError(err)
		return err
	}
	res.Render(out, cfg.Switch.Name)
	return nil
}

// programSwitch runs one controller pass against an open switch connection.
func programSwitch(ctx context.Context, sw switchctl.Conn, schema *p4info.Helper, cfg *config.Config) (*tablesync.Result, error) {
	hosts := topology.Default()
	if len(cfg.Hosts) > 0 {
		var err error
		if hosts, err = topology.FromConfig(cfg.Hosts); err != nil {
			return nil, err
		}
	}

	files := cfg.Switch.P4Files()
	if err := sw.Arbitrate(ctx); err != nil {
		return nil, err
	}
	if err := sw.SetPipeline(ctx, files.BinFile, files.P4infoFile); err != nil {
		return nil, err
	}

	seed := cfg.Join.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Debugf("Join row seed %d", seed)

	return tablesync.New(sw, schema, tablesync.Config{
		Hosts:    hosts,
		JoinRows: cfg.EffectiveJoinRows(),
		Rand:     rand.New(rand.NewSource(seed)),
	}).Sync(ctx)
}

func printProtocolError(err error) {
	var perr *switchctl.ProtocolError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "gRPC Error: %s (%s) during %s\n", perr.Detail, perr.Code, perr.Op)
	}
}
