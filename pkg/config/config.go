// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package config holds the process wide configuration loaded through viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Program variants built by the tutorial.
const (
	ProgramStaticJoin    = "static_join"
	ProgramStreamingJoin = "streaming_join"
)

type HostConfig struct {
	IP   string `yaml:"ip" mapstructure:"ip"`
	MAC  string `yaml:"mac" mapstructure:"mac"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type P4FilesConfig struct {
	P4infoFile string `yaml:"p4info_file" mapstructure:"p4info_file"`
	BinFile    string `yaml:"bin_file" mapstructure:"bin_file"`
}

type SwitchConfig struct {
	Name          string        `yaml:"name" mapstructure:"name"`
	Address       string        `yaml:"address" mapstructure:"address"`
	DeviceID      uint64        `yaml:"device_id" mapstructure:"device_id"`
	ElectionID    uint64        `yaml:"election_id" mapstructure:"election_id"`
	ProtoDumpFile string        `yaml:"proto_dump_file" mapstructure:"proto_dump_file"`
	Program       string        `yaml:"program" mapstructure:"program"`
	Config        P4FilesConfig `yaml:"config" mapstructure:"config"`
}

type JoinConfig struct {
	Rows int   `yaml:"rows" mapstructure:"rows"`
	Seed int64 `yaml:"seed" mapstructure:"seed"`
}

type ReceiverConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
	Store     bool   `yaml:"store" mapstructure:"store"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type Config struct {
	CfgFile   string
	LogLevel  string         `yaml:"loglevel" mapstructure:"loglevel"`
	Database  string         `yaml:"database" mapstructure:"database"`
	DBAddress string         `yaml:"dbaddress" mapstructure:"dbaddress"`
	Switch    SwitchConfig   `yaml:"switch" mapstructure:"switch"`
	Hosts     []HostConfig   `yaml:"hosts" mapstructure:"hosts"`
	Join      JoinConfig     `yaml:"join" mapstructure:"join"`
	Receiver  ReceiverConfig `yaml:"receiver" mapstructure:"receiver"`
	Tracing   TracingConfig  `yaml:"tracing" mapstructure:"tracing"`
}

var GlobalConfig Config

// LoadConfig reads the config file, if any, and decodes it together with
// the bound flags into GlobalConfig. A missing default config file is not an
// error; an unreadable or undecodable one is.
func LoadConfig() error {
	if err := viper.ReadInConfig(); err == nil {
		log.Infof("Using config file: %s", viper.ConfigFileUsed())
	} else if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return fmt.Errorf("read config: %w", err)
	}
	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	if lvl, err := log.ParseLevel(GlobalConfig.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	log.Debugf("config %+v", GlobalConfig)
	return nil
}

func GetConfig() *Config {
	return &GlobalConfig
}

// DefaultP4Files returns the p4c output paths for a program variant.
func DefaultP4Files(program string) P4FilesConfig {
	return P4FilesConfig{
		P4infoFile: filepath.Join("build", program+".p4info"),
		BinFile:    filepath.Join("build", program+".json"),
	}
}

// P4Files resolves the configured p4info and bmv2 JSON paths, falling back to
// the program defaults.
func (s *SwitchConfig) P4Files() P4FilesConfig {
	files := DefaultP4Files(s.Program)
	if s.Config.P4infoFile != "" {
		files.P4infoFile = s.Config.P4infoFile
	}
	if s.Config.BinFile != "" {
		files.BinFile = s.Config.BinFile
	}
	return files
}

// ValidateSwitch checks the controller settings before anything touches the
// network.
func (c *Config) ValidateSwitch() error {
	if c.Switch.Program != ProgramStaticJoin && c.Switch.Program != ProgramStreamingJoin {
		return fmt.Errorf("unknown program %q, expected %s or %s", c.Switch.Program, ProgramStaticJoin, ProgramStreamingJoin)
	}
	if _, _, err := net.SplitHostPort(c.Switch.Address); err != nil {
		return fmt.Errorf("invalid switch address %q. It should be in ip_address:port format", c.Switch.Address)
	}
	if c.Join.Rows < 0 {
		return fmt.Errorf("join rows must not be negative, got %d", c.Join.Rows)
	}
	files := c.Switch.P4Files()
	if _, err := os.Stat(files.P4infoFile); err != nil {
		return fmt.Errorf("p4info file not found: %s", files.P4infoFile)
	}
	if _, err := os.Stat(files.BinFile); err != nil {
		return fmt.Errorf("BMv2 JSON file not found: %s", files.BinFile)
	}
	return nil
}

// EffectiveJoinRows is the number of join rules to install. The streaming
// join program has no join table.
func (c *Config) EffectiveJoinRows() int {
	if c.Switch.Program == ProgramStreamingJoin {
		return 0
	}
	return c.Join.Rows
}

// ValidateReceiver checks the receiver port.
func (c *Config) ValidateReceiver() error {
	if c.Receiver.Port <= 0 || c.Receiver.Port > 65535 {
		return fmt.Errorf("receiver port must be a positive integer between 1 and 65535")
	}
	return nil
}
