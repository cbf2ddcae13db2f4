// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Intel Corporation, or its subsidiaries.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestP4FilesDefaults(t *testing.T) {
	s := SwitchConfig{Program: ProgramStreamingJoin}
	assert.Equal(t, P4FilesConfig{
		P4infoFile: filepath.Join("build", "streaming_join.p4info"),
		BinFile:    filepath.Join("build", "streaming_join.json"),
	}, s.P4Files())

	s.Config.BinFile = "/tmp/x.json"
	assert.Equal(t, "/tmp/x.json", s.P4Files().BinFile)
	assert.Equal(t, filepath.Join("build", "streaming_join.p4info"), s.P4Files().P4infoFile)
}

func TestValidateSwitch(t *testing.T) {
	dir := t.TempDir()
	p4info := filepath.Join(dir, "static_join.p4info")
	bin := filepath.Join(dir, "static_join.json")
	require.NoError(t, os.WriteFile(p4info, []byte(""), 0o600))

	cfg := Config{
		Switch: SwitchConfig{
			Address: "127.0.0.1:50051",
			Program: ProgramStaticJoin,
			Config:  P4FilesConfig{P4infoFile: p4info, BinFile: bin},
		},
		Join: JoinConfig{Rows: 10},
	}
	err := cfg.ValidateSwitch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BMv2 JSON file not found")

	require.NoError(t, os.WriteFile(bin, []byte("{}"), 0o600))
	assert.NoError(t, cfg.ValidateSwitch())

	bad := cfg
	bad.Switch.Program = "l2_switch"
	assert.Error(t, bad.ValidateSwitch())

	bad = cfg
	bad.Switch.Address = "127.0.0.1"
	assert.Error(t, bad.ValidateSwitch())

	bad = cfg
	bad.Join.Rows = -1
	assert.Error(t, bad.ValidateSwitch())
}

func TestValidateReceiver(t *testing.T) {
	for port, ok := range map[int]bool{0: false, 3490: true, 8000: true, 65536: false} {
		cfg := Config{Receiver: ReceiverConfig{Port: port}}
		if ok {
			assert.NoError(t, cfg.ValidateReceiver(), "port %d", port)
		} else {
			assert.Error(t, cfg.ValidateReceiver(), "port %d", port)
		}
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
loglevel: debug
switch:
  name: s1
  address: 127.0.0.1:50051
  program: static_join
hosts:
  - ip: 10.0.1.1
    mac: "00:00:00:00:01:01"
    port: 1
join:
  rows: 5
  seed: 7
`), 0o600))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(file)
	require.NoError(t, LoadConfig())

	cfg := GetConfig()
	assert.Equal(t, "s1", cfg.Switch.Name)
	assert.Equal(t, 5, cfg.Join.Rows)
	assert.Equal(t, int64(7), cfg.Join.Seed)
	require.Len(t, cfg.Hosts, 1)
	assert.Equal(t, HostConfig{IP: "10.0.1.1", MAC: "00:00:00:00:01:01", Port: 1}, cfg.Hosts[0])
}

func TestEffectiveJoinRows(t *testing.T) {
	cfg := Config{Switch: SwitchConfig{Program: ProgramStaticJoin}, Join: JoinConfig{Rows: 10}}
	assert.Equal(t, 10, cfg.EffectiveJoinRows())
	cfg.Switch.Program = ProgramStreamingJoin
	assert.Equal(t, 0, cfg.EffectiveJoinRows())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
switch:
  name: s1
join:
  rows: ten
`), 0o600))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(file)
	err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "join.rows")
}

func TestLoadConfigMissingFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, LoadConfig())

	viper.Reset()
	viper.AddConfigPath(t.TempDir())
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	assert.NoError(t, LoadConfig())
}
