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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberarchives/photon-server-go/protocol"
)

func TestJSONStatsReport(t *testing.T) {
	s := NewJSONStats()

	s.IncRXCommand(protocol.CmdPing)
	s.IncRXCommand(protocol.CmdSendReliable)
	s.IncTXCommand(protocol.CmdSendReliable)
	s.IncOperation(protocol.OpAuthenticate)
	s.IncOperationError(protocol.OpAuthenticate)
	s.IncEventSent(protocol.EvJoin)
	s.IncEventRaised()
	s.IncDecodeError()
	s.IncDisconnect("inactivity timeout")
	s.IncSendQueueOverflow()
	s.IncRoomCreated()
	s.IncRoomDestroyed()
	s.IncMasterSwitch()
	s.SetPeers(3)
	s.SetRooms(2)

	s.Snapshot()
	m := s.report.toMap()

	require.EqualValues(t, 1, m["rx.ping"])
	require.EqualValues(t, 1, m["rx.sendreliable"])
	require.EqualValues(t, 1, m["tx.sendreliable"])
	require.EqualValues(t, 1, m["operations.authenticate"])
	require.EqualValues(t, 1, m["operations.authenticate.errors"])
	require.EqualValues(t, 1, m["events.sent.join"])
	require.EqualValues(t, 1, m["events.raised"])
	require.EqualValues(t, 1, m["decode_errors"])
	require.EqualValues(t, 1, m["disconnects.inactivity_timeout"])
	require.EqualValues(t, 1, m["send_queue_overflows"])
	require.EqualValues(t, 1, m["rooms.created"])
	require.EqualValues(t, 1, m["rooms.destroyed"])
	require.EqualValues(t, 1, m["rooms.master_switches"])
	require.EqualValues(t, 3, m["peers"])
	require.EqualValues(t, 2, m["rooms"])
}

func TestJSONStatsSnapshotIsStable(t *testing.T) {
	s := NewJSONStats()
	s.IncOperation(protocol.OpRaiseEvent)
	s.Snapshot()

	// Counters keep moving; the report stays until the next snapshot.
	s.IncOperation(protocol.OpRaiseEvent)
	m := s.report.toMap()
	require.EqualValues(t, 1, m["operations.raiseevent"])

	s.Snapshot()
	m = s.report.toMap()
	require.EqualValues(t, 2, m["operations.raiseevent"])
}

func TestJSONStatsReset(t *testing.T) {
	s := NewJSONStats()
	s.IncOperation(protocol.OpAuthenticate)
	s.IncDisconnect("client request")
	s.IncRoomCreated()
	s.Reset()
	s.Snapshot()

	m := s.report.toMap()
	require.EqualValues(t, 0, m["operations.authenticate"])
	require.EqualValues(t, 0, m["disconnects.client_request"])
	require.EqualValues(t, 0, m["rooms.created"])
}

func TestOperationTimings(t *testing.T) {
	s := NewJSONStats()
	s.ObserveOperation(protocol.OpRaiseEvent, 100*time.Millisecond)
	s.ObserveOperation(protocol.OpRaiseEvent, 300*time.Millisecond)

	m := s.timings.snapshot()
	require.InDelta(t, 0.2, m["operations.raiseevent.mean_sec"], 0.0001)
	require.Greater(t, m["operations.raiseevent.stddev_sec"], 0.0)
}

func TestHandleRequest(t *testing.T) {
	s := NewJSONStats()
	s.IncOperation(protocol.OpAuthenticate)
	s.Snapshot()

	rec := httptest.NewRecorder()
	s.handleRequest(rec, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, 200, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Contains(t, out, "operations.authenticate")
	require.Contains(t, out, "runtime.cpu.goroutines")
}

func TestFlattenKey(t *testing.T) {
	require.Equal(t, "send_queue_overflow", flattenKey("send queue overflow"))
	require.Equal(t, "a_b_c_d", flattenKey("a.b-c/d"))
}
