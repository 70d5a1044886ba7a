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

package stats

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// JSONStats is what we want to report as stats via http
type JSONStats struct {
	report counters

	counters

	sysStats SysStats
}

// NewJSONStats returns a new JSONStats
func NewJSONStats() *JSONStats {
	s := &JSONStats{}

	s.init()
	s.report.init()

	return s
}

// Start runs the http monitoring server
func (s *JSONStats) Start(monitoringport int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	addr := fmt.Sprintf(":%d", monitoringport)
	log.Infof("Starting http json server on %s", addr)
	err := http.ListenAndServe(addr, mux)
	if err != nil {
		log.Fatalf("Failed to start listener: %v", err)
	}
}

// Snapshot the values so they can be reported atomically
func (s *JSONStats) Snapshot() {
	s.rxCommands.copy(&s.report.rxCommands)
	s.txCommands.copy(&s.report.txCommands)
	s.operations.copy(&s.report.operations)
	s.opErrors.copy(&s.report.opErrors)
	s.eventsSent.copy(&s.report.eventsSent)
	s.report.disconnects.Lock()
	s.report.disconnects.m = s.disconnects.snapshot()
	s.report.disconnects.Unlock()
	s.report.eventsRaised = atomic.LoadInt64(&s.eventsRaised)
	s.report.decodeErrors = atomic.LoadInt64(&s.decodeErrors)
	s.report.queueOverflows = atomic.LoadInt64(&s.queueOverflows)
	s.report.roomsCreated = atomic.LoadInt64(&s.roomsCreated)
	s.report.roomsDestroyed = atomic.LoadInt64(&s.roomsDestroyed)
	s.report.masterSwitches = atomic.LoadInt64(&s.masterSwitches)
	s.report.peers = atomic.LoadInt64(&s.peers)
	s.report.rooms = atomic.LoadInt64(&s.rooms)
}

// handleRequest serves the current report plus process/runtime stats
func (s *JSONStats) handleRequest(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]any)
	for k, v := range s.report.toMap() {
		out[k] = v
	}
	for k, v := range s.timings.snapshot() {
		out[k] = v
	}
	if sys, err := s.sysStats.CollectRuntimeStats(); err == nil {
		for k, v := range sys {
			out[k] = v
		}
	} else {
		log.Errorf("Failed to collect runtime stats: %v", err)
	}

	js, err := json.Marshal(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(js); err != nil {
		log.Errorf("Failed to reply: %v", err)
	}
}

// Reset atomically sets all the counters to 0
func (s *JSONStats) Reset() {
	s.reset()
}

// IncRXCommand atomically adds 1 to the received command counter
func (s *JSONStats) IncRXCommand(kind byte) {
	s.rxCommands.inc(int(kind))
}

// IncTXCommand atomically adds 1 to the sent command counter
func (s *JSONStats) IncTXCommand(kind byte) {
	s.txCommands.inc(int(kind))
}

// IncOperation atomically adds 1 to the operation counter
func (s *JSONStats) IncOperation(op byte) {
	s.operations.inc(int(op))
}

// IncOperationError atomically adds 1 to the failed operation counter
func (s *JSONStats) IncOperationError(op byte) {
	s.opErrors.inc(int(op))
}

// IncEventSent atomically adds 1 to the sent event counter
func (s *JSONStats) IncEventSent(code byte) {
	s.eventsSent.inc(int(code))
}

// IncEventRaised atomically adds 1 to the raised event counter
func (s *JSONStats) IncEventRaised() {
	atomic.AddInt64(&s.eventsRaised, 1)
}

// IncDecodeError atomically adds 1 to the decode error counter
func (s *JSONStats) IncDecodeError() {
	atomic.AddInt64(&s.decodeErrors, 1)
}

// IncDisconnect atomically adds 1 to the disconnect counter for the reason
func (s *JSONStats) IncDisconnect(reason string) {
	s.disconnects.inc(reason)
}

// IncSendQueueOverflow atomically adds 1 to the overflow counter
func (s *JSONStats) IncSendQueueOverflow() {
	atomic.AddInt64(&s.queueOverflows, 1)
}

// IncRoomCreated atomically adds 1 to the created room counter
func (s *JSONStats) IncRoomCreated() {
	atomic.AddInt64(&s.roomsCreated, 1)
}

// IncRoomDestroyed atomically adds 1 to the destroyed room counter
func (s *JSONStats) IncRoomDestroyed() {
	atomic.AddInt64(&s.roomsDestroyed, 1)
}

// IncMasterSwitch atomically adds 1 to the master switch counter
func (s *JSONStats) IncMasterSwitch() {
	atomic.AddInt64(&s.masterSwitches, 1)
}

// SetPeers atomically sets the current peer count
func (s *JSONStats) SetPeers(n int64) {
	atomic.StoreInt64(&s.peers, n)
}

// SetRooms atomically sets the current room count
func (s *JSONStats) SetRooms(n int64) {
	atomic.StoreInt64(&s.rooms, n)
}

// ObserveOperation records the handling latency of one operation
func (s *JSONStats) ObserveOperation(op byte, d time.Duration) {
	s.timings.add(int(op), d.Seconds())
}
