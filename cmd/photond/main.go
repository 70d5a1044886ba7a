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

package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cyberarchives/photon-server-go/server"
	"github.com/cyberarchives/photon-server-go/stats"
)

func main() {
	c := server.DefaultConfig()

	var configFile string
	var pprofaddr string
	var promPort int

	flag.StringVar(&configFile, "config", "", "Path to a yaml config file. Flags override it")
	flag.StringVar(&c.ListenHost, "ip", c.ListenHost, "IP to bind on")
	flag.IntVar(&c.ListenPort, "port", c.ListenPort, "TCP port to listen on")
	flag.StringVar(&c.LogLevel, "loglevel", c.LogLevel, "Set a log level. Can be: debug, info, warning, error")
	flag.IntVar(&c.MaxConnections, "maxconn", c.MaxConnections, "Maximum concurrent connections")
	flag.DurationVar(&c.PingInterval, "pinginterval", c.PingInterval, "Interval between server pings to idle peers")
	flag.DurationVar(&c.ConnectionTimeout, "timeout", c.ConnectionTimeout, "Disconnect peers idle for longer than this")
	flag.DurationVar(&c.CleanupInterval, "cleanupinterval", c.CleanupInterval, "Interval between empty room sweeps")
	flag.DurationVar(&c.EmptyRoomTTL, "emptyroomttl", c.EmptyRoomTTL, "Default TTL of empty rooms")
	flag.DurationVar(&c.MetricInterval, "metricinterval", c.MetricInterval, "Interval of resetting metrics")
	flag.IntVar(&c.MonitoringPort, "monitoringport", c.MonitoringPort, "Port to run monitoring server on")
	flag.IntVar(&promPort, "promport", 0, "Port to serve prometheus metrics on, 0 disables")
	flag.StringVar(&c.MinClientVersion, "minclientversion", c.MinClientVersion, "Reject clients below this app version")
	flag.StringVar(&pprofaddr, "pprofaddr", "", "host:port for the pprof to bind")

	flag.Parse()

	if configFile != "" {
		fc, err := server.ReadConfig(configFile)
		if err != nil {
			log.Fatalf("Reading config: %v", err)
		}
		// Flags given explicitly win over the file.
		*c = *fc
		flag.Parse()
	}

	switch c.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", c.LogLevel)
	}

	if err := c.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if pprofaddr != "" {
		log.Warningf("Starting profiler on %s", pprofaddr)
		go func() {
			log.Println(http.ListenAndServe(pprofaddr, nil))
		}()
	}

	// Monitoring
	st := stats.NewJSONStats()
	go st.Start(c.MonitoringPort)
	if promPort != 0 {
		exporter := stats.NewPrometheusExporter(st, promPort, c.MetricInterval)
		go exporter.Start()
	}

	s := server.NewServer(c, st)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("Received signal, shutting down")
		cancel()
		// A second signal skips the graceful drain.
		<-sig
		log.Warning("Forced exit")
		time.Sleep(100 * time.Millisecond)
		os.Exit(1)
	}()

	if err := s.Start(ctx); err != nil {
		log.Fatalf("Server run failed: %v", err)
	}
}
