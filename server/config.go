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

/*
Package server implements the Photon-compatible game server: per
connection peers, rooms with master-client election and event fan-out,
the operation router and the process-wide registry with its accept loop
and background tickers.
*/
package server

import (
	"fmt"
	"os"
	"time"

	version "github.com/hashicorp/go-version"
	yaml "gopkg.in/yaml.v2"
)

// Config is a server config structure
type Config struct {
	ListenHost     string        `yaml:"listen_host"`
	ListenPort     int           `yaml:"listen_port"`
	MonitoringPort int           `yaml:"monitoring_port"`
	LogLevel       string        `yaml:"log_level"`
	MaxConnections int           `yaml:"max_connections"`

	PingInterval      time.Duration `yaml:"ping_interval"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	EmptyRoomTTL      time.Duration `yaml:"empty_room_ttl"`
	GracefulShutdown  time.Duration `yaml:"graceful_shutdown"`
	MetricInterval    time.Duration `yaml:"metric_interval"`

	MaxReliableCommands int `yaml:"max_reliable_commands"`
	MaxCachedEvents     int `yaml:"max_cached_events"`
	MaxPlayersHardCap   int `yaml:"max_players_hard_cap"`
	SendQueueDepth      int `yaml:"send_queue_depth"`

	// MinClientVersion rejects Authenticate requests whose AppVersion
	// parses below this version. Empty disables the gate.
	MinClientVersion string `yaml:"min_client_version"`

	minClientVersion *version.Version
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		ListenHost:          "0.0.0.0",
		ListenPort:          5055,
		MonitoringPort:      8888,
		LogLevel:            "info",
		MaxConnections:      1000,
		PingInterval:        30 * time.Second,
		ConnectionTimeout:   60 * time.Second,
		CleanupInterval:     60 * time.Second,
		EmptyRoomTTL:        5 * time.Minute,
		GracefulShutdown:    10 * time.Second,
		MetricInterval:      1 * time.Minute,
		MaxReliableCommands: 1000,
		MaxCachedEvents:     100,
		MaxPlayersHardCap:   500,
		SendQueueDepth:      1024,
	}
}

// ReadConfig loads a yaml config file on top of the defaults.
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(cData, c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks option sanity and parses the minimum client version.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", c.ListenPort)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxPlayersHardCap < 1 || c.MaxPlayersHardCap > 500 {
		return fmt.Errorf("max players hard cap must be in [1,500], got %d", c.MaxPlayersHardCap)
	}
	if c.MaxCachedEvents <= 0 {
		return fmt.Errorf("max cached events must be positive, got %d", c.MaxCachedEvents)
	}
	if c.SendQueueDepth <= 0 {
		return fmt.Errorf("send queue depth must be positive, got %d", c.SendQueueDepth)
	}
	if c.PingInterval <= 0 || c.ConnectionTimeout <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.MinClientVersion != "" {
		v, err := version.NewVersion(c.MinClientVersion)
		if err != nil {
			return fmt.Errorf("parsing min client version: %w", err)
		}
		c.minClientVersion = v
	}
	return nil
}

// MinVersion returns the parsed minimum client version, or nil when the
// gate is disabled.
func (c *Config) MinVersion() *version.Version {
	return c.minClientVersion
}
