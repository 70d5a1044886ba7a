/*
Copyright (c) the photon-server-go authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Nil(t, c.MinVersion())
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_port: 6000
max_connections: 50
ping_interval: 10s
empty_room_ttl: 1m
min_client_version: "1.2.3"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 6000, c.ListenPort)
	require.Equal(t, 50, c.MaxConnections)
	require.Equal(t, 10*time.Second, c.PingInterval)
	require.Equal(t, time.Minute, c.EmptyRoomTTL)
	// Untouched values keep their defaults.
	require.Equal(t, "0.0.0.0", c.ListenHost)
	require.Equal(t, 60*time.Second, c.ConnectionTimeout)

	require.NotNil(t, c.MinVersion())
	require.Equal(t, "1.2.3", c.MinVersion().String())
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.ListenPort = 0 }},
		{"port too big", func(c *Config) { c.ListenPort = 70000 }},
		{"bad max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"players cap too big", func(c *Config) { c.MaxPlayersHardCap = 501 }},
		{"players cap too small", func(c *Config) { c.MaxPlayersHardCap = 0 }},
		{"bad cache size", func(c *Config) { c.MaxCachedEvents = 0 }},
		{"bad queue depth", func(c *Config) { c.SendQueueDepth = -1 }},
		{"bad interval", func(c *Config) { c.PingInterval = 0 }},
		{"unparseable version", func(c *Config) { c.MinClientVersion = "not-a-version" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
