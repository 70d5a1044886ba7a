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
Package stats implements statistics collection and reporting for the
game server: counters for commands, operations, rooms and disconnects,
plus operation handling latency.
*/
package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eclesh/welford"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// Stats is a metric collection interface
type Stats interface {
	// Start starts a stat reporter
	// Use this for passive reporters
	Start(monitoringport int)

	// Snapshot the values so they can be reported atomically
	Snapshot()

	// Reset atomically sets all the counters to 0
	Reset()

	// IncRXCommand atomically adds 1 to the received command counter
	IncRXCommand(kind byte)

	// IncTXCommand atomically adds 1 to the sent command counter
	IncTXCommand(kind byte)

	// IncOperation atomically adds 1 to the operation counter
	IncOperation(op byte)

	// IncOperationError atomically adds 1 to the failed operation counter
	IncOperationError(op byte)

	// IncEventSent atomically adds 1 to the sent event counter
	IncEventSent(code byte)

	// IncEventRaised atomically adds 1 to the raised event counter
	IncEventRaised()

	// IncDecodeError atomically adds 1 to the decode error counter
	IncDecodeError()

	// IncDisconnect atomically adds 1 to the disconnect counter for the reason
	IncDisconnect(reason string)

	// IncSendQueueOverflow atomically adds 1 to the overflow counter
	IncSendQueueOverflow()

	// IncRoomCreated atomically adds 1 to the created room counter
	IncRoomCreated()

	// IncRoomDestroyed atomically adds 1 to the destroyed room counter
	IncRoomDestroyed()

	// IncMasterSwitch atomically adds 1 to the master switch counter
	IncMasterSwitch()

	// SetPeers atomically sets the current peer count
	SetPeers(n int64)

	// SetRooms atomically sets the current room count
	SetRooms(n int64)

	// ObserveOperation records the handling latency of one operation
	ObserveOperation(op byte, d time.Duration)
}

// syncMapInt64 is a mutex protected map of counters
type syncMapInt64 struct {
	sync.Mutex
	m map[int]int64
}

func (s *syncMapInt64) init() {
	s.m = make(map[int]int64)
}

func (s *syncMapInt64) keys() []int {
	keys := make([]int, 0, len(s.m))
	s.Lock()
	for k := range s.m {
		keys = append(keys, k)
	}
	s.Unlock()
	return keys
}

func (s *syncMapInt64) load(key int) int64 {
	s.Lock()
	defer s.Unlock()
	return s.m[key]
}

func (s *syncMapInt64) inc(key int) {
	s.Lock()
	s.m[key]++
	s.Unlock()
}

func (s *syncMapInt64) store(key int, value int64) {
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

func (s *syncMapInt64) copy(dst *syncMapInt64) {
	for _, t := range s.keys() {
		dst.store(t, s.load(t))
	}
}

func (s *syncMapInt64) reset() {
	s.Lock()
	for t := range s.m {
		s.m[t] = 0
	}
	s.Unlock()
}

// syncMapStr64 is the string keyed variant used for disconnect reasons
type syncMapStr64 struct {
	sync.Mutex
	m map[string]int64
}

func (s *syncMapStr64) init() {
	s.m = make(map[string]int64)
}

func (s *syncMapStr64) inc(key string) {
	s.Lock()
	s.m[key]++
	s.Unlock()
}

func (s *syncMapStr64) snapshot() map[string]int64 {
	s.Lock()
	defer s.Unlock()
	out := make(map[string]int64, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *syncMapStr64) reset() {
	s.Lock()
	for k := range s.m {
		s.m[k] = 0
	}
	s.Unlock()
}

// opTimings aggregates per operation latency with welford accumulators
type opTimings struct {
	sync.Mutex
	m map[int]*welford.Stats
}

func (t *opTimings) init() {
	t.m = make(map[int]*welford.Stats)
}

func (t *opTimings) add(op int, seconds float64) {
	t.Lock()
	w, ok := t.m[op]
	if !ok {
		w = welford.New()
		t.m[op] = w
	}
	w.Add(seconds)
	t.Unlock()
}

func (t *opTimings) snapshot() map[string]float64 {
	t.Lock()
	defer t.Unlock()
	out := make(map[string]float64, len(t.m)*2)
	for op, w := range t.m {
		name := strings.ToLower(protocol.OperationName(byte(op)))
		out[fmt.Sprintf("operations.%s.mean_sec", name)] = w.Mean()
		out[fmt.Sprintf("operations.%s.stddev_sec", name)] = w.Stddev()
	}
	return out
}

func (t *opTimings) reset() {
	t.Lock()
	t.m = make(map[int]*welford.Stats)
	t.Unlock()
}

type counters struct {
	rxCommands  syncMapInt64
	txCommands  syncMapInt64
	operations  syncMapInt64
	opErrors    syncMapInt64
	eventsSent  syncMapInt64
	disconnects syncMapStr64
	timings     opTimings

	eventsRaised    int64
	decodeErrors    int64
	queueOverflows  int64
	roomsCreated    int64
	roomsDestroyed  int64
	masterSwitches  int64
	peers           int64
	rooms           int64
}

func (c *counters) init() {
	c.rxCommands.init()
	c.txCommands.init()
	c.operations.init()
	c.opErrors.init()
	c.eventsSent.init()
	c.disconnects.init()
	c.timings.init()
}

func (c *counters) reset() {
	c.rxCommands.reset()
	c.txCommands.reset()
	c.operations.reset()
	c.opErrors.reset()
	c.eventsSent.reset()
	c.disconnects.reset()
	c.timings.reset()
	c.eventsRaised = 0
	c.decodeErrors = 0
	c.queueOverflows = 0
	c.roomsCreated = 0
	c.roomsDestroyed = 0
	c.masterSwitches = 0
}

// toMap converts counters to a flat report map
func (c *counters) toMap() map[string]int64 {
	res := make(map[string]int64)

	for _, t := range c.rxCommands.keys() {
		name := strings.ToLower(protocol.CommandName(byte(t)))
		res[fmt.Sprintf("rx.%s", name)] = c.rxCommands.load(t)
	}
	for _, t := range c.txCommands.keys() {
		name := strings.ToLower(protocol.CommandName(byte(t)))
		res[fmt.Sprintf("tx.%s", name)] = c.txCommands.load(t)
	}
	for _, t := range c.operations.keys() {
		name := strings.ToLower(protocol.OperationName(byte(t)))
		res[fmt.Sprintf("operations.%s", name)] = c.operations.load(t)
	}
	for _, t := range c.opErrors.keys() {
		name := strings.ToLower(protocol.OperationName(byte(t)))
		res[fmt.Sprintf("operations.%s.errors", name)] = c.opErrors.load(t)
	}
	for _, t := range c.eventsSent.keys() {
		name := strings.ToLower(protocol.EventName(byte(t)))
		res[fmt.Sprintf("events.sent.%s", name)] = c.eventsSent.load(t)
	}
	for reason, v := range c.disconnects.snapshot() {
		res[fmt.Sprintf("disconnects.%s", flattenKey(reason))] = v
	}

	res["events.raised"] = c.eventsRaised
	res["decode_errors"] = c.decodeErrors
	res["send_queue_overflows"] = c.queueOverflows
	res["rooms.created"] = c.roomsCreated
	res["rooms.destroyed"] = c.roomsDestroyed
	res["rooms.master_switches"] = c.masterSwitches
	res["peers"] = c.peers
	res["rooms"] = c.rooms

	return res
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
