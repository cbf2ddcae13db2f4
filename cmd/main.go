// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package main is the main package of the application
package main

import (
	"context"
	"os"

	"github.com/antoninbas/p4runtime-go-client/pkg/signals"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opiproject/opi-p4-join/pkg/config"
	"github.com/opiproject/opi-p4-join/pkg/utils"
)

const (
	configFilePath = "./"
	serviceName    = "opi-p4-join"
)

var rootCmd = &cobra.Command{
	Use:   "p4-join",
	Short: "p4 tuple join tutorial",
	Long:  "controller and tuple receivers for the p4 tuple join tutorial",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if configErr != nil {
			return configErr
		}
		return utils.SetLogLevel(config.GlobalConfig.LogLevel)
	},
}

// configErr holds the initConfig failure; cobra.OnInitialize hooks cannot
// return one, so the root pre-run reports it before any command runs.
var configErr error

func initialize() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&config.GlobalConfig.CfgFile, "config", "c", "", "config file path")
	flags.String("loglevel", "info", "log level (debug, info, warn, error)")
	flags.Bool("tracing", false, "export traces over OTLP gRPC")
	flags.String("database", "", "store received tuples in this database (gomap, redis)")
	flags.String("dbaddress", "127.0.0.1:6379", "db address in ip_address:port format")

	bindFlags(flags, map[string]string{
		"loglevel":        "loglevel",
		"tracing.enabled": "tracing",
		"database":        "database",
		"dbaddress":       "dbaddress",
	})

	rootCmd.AddCommand(newControllerCmd(), newReceiveCmd(), newSendCmd())
}

func initConfig() {
	if config.GlobalConfig.CfgFile != "" {
		viper.SetConfigFile(config.GlobalConfig.CfgFile)
	} else {
		viper.AddConfigPath(configFilePath)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}
	configErr = config.LoadConfig()
}

// bindFlags binds flags to nested viper keys so viper.Unmarshal fills
// config.GlobalConfig from flags, the config file and defaults alike.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			log.Errorf("Error binding flag %s to Viper: %v", name, err)
			os.Exit(1)
		}
	}
}

func main() {
	initialize()

	ctx, cancel := context.WithCancel(context.Background())
	stopCh := signals.RegisterSignalHandlers()
	go func() {
		<-stopCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
