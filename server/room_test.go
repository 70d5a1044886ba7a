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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberarchives/photon-server-go/protocol"
)

func TestRoomOptionsCappedByConfig(t *testing.T) {
	s := newTestServer(t)
	room, err := newRoom("r", RoomOptions{MaxPlayers: 100000}, s)
	require.NoError(t, err)
	require.Equal(t, s.Config.MaxPlayersHardCap, room.opts.MaxPlayers)

	room, err = newRoom("r2", RoomOptions{MaxPlayers: -1}, s)
	require.NoError(t, err)
	require.Equal(t, s.Config.MaxPlayersHardCap, room.opts.MaxPlayers)
}

func TestCleanupEligibility(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()

	tests := []struct {
		name     string
		opts     RoomOptions
		idleFor  time.Duration
		eligible bool
	}{
		{"fresh empty room", RoomOptions{AutoCleanup: true, EmptyRoomTTL: time.Minute}, 0, false},
		{"expired empty room", RoomOptions{AutoCleanup: true, EmptyRoomTTL: time.Minute}, 2 * time.Minute, true},
		{"no auto cleanup", RoomOptions{AutoCleanup: false, EmptyRoomTTL: time.Minute}, 2 * time.Minute, false},
		{"zero ttl never expires", RoomOptions{AutoCleanup: true, EmptyRoomTTL: 0}, time.Hour, false},
	}
	for _, tt := range tests {
		room, err := newRoom(tt.name, tt.opts, s)
		require.NoError(t, err)
		room.lastActivity = now.Add(-tt.idleFor)
		require.Equal(t, tt.eligible, room.eligibleForCleanup(now), tt.name)
	}
}

func TestCleanupDestroysExpiredRooms(t *testing.T) {
	s := newTestServer(t)
	opts := DefaultRoomOptions(s.Config)
	opts.EmptyRoomTTL = time.Minute
	room, err := s.createRoom("stale", opts)
	require.NoError(t, err)
	require.Equal(t, 1, s.RoomCount())

	s.cleanupRooms(time.Now())
	require.Equal(t, 1, s.RoomCount())

	room.mu.Lock()
	room.lastActivity = time.Now().Add(-2 * time.Minute)
	room.mu.Unlock()
	s.cleanupRooms(time.Now())
	require.Equal(t, 0, s.RoomCount())
}

func TestEventCacheEvictsOldest(t *testing.T) {
	s := newTestServer(t)
	s.Config.MaxCachedEvents = 2

	a := connectTestPeer(t, s)
	defer a.close()
	b := connectTestPeer(t, s)
	defer b.close()
	a.authenticate("alice")
	b.authenticate("bob")

	require.Equal(t, protocol.ReturnOK, a.join("game", nil).ReturnCode)
	for i := 0; i < 4; i++ {
		resp := a.request(protocol.OpRaiseEvent, map[byte]protocol.Value{
			protocol.ParamCode:  60,
			protocol.ParamData:  int(i),
			protocol.ParamCache: 1,
		})
		require.Equal(t, protocol.ReturnOK, resp.ReturnCode)
	}
	require.Equal(t, 2, s.getRoom("game").CachedEventCount())

	// Only the two newest survive, still in raise order.
	require.Equal(t, protocol.ReturnOK, b.join("game", nil).ReturnCode)
	ev := b.expectEvent(60)
	require.EqualValues(t, 2, ev.Parameters[protocol.ParamData])
	ev = b.expectEvent(60)
	require.EqualValues(t, 3, ev.Parameters[protocol.ParamData])
}

func TestMatchesFilter(t *testing.T) {
	s := newTestServer(t)
	opts := DefaultRoomOptions(s.Config)
	opts.MaxPlayers = 8
	opts.Properties = map[string]protocol.Value{"mode": "ctf", "tier": int64(3)}
	room, err := newRoom("game", opts, s)
	require.NoError(t, err)

	require.True(t, room.matchesFilter(0, nil))
	require.True(t, room.matchesFilter(8, map[string]protocol.Value{"mode": "ctf"}))
	require.False(t, room.matchesFilter(4, nil), "room allows more players than requested")
	require.False(t, room.matchesFilter(0, map[string]protocol.Value{"mode": "tdm"}))
	require.False(t, room.matchesFilter(0, map[string]protocol.Value{"missing": 1}))

	room.opts.IsVisible = false
	require.False(t, room.matchesFilter(0, nil))
	room.opts.IsVisible = true
	room.opts.IsOpen = false
	require.False(t, room.matchesFilter(0, nil))
}

func TestScalarEqual(t *testing.T) {
	require.True(t, scalarEqual("a", "a"))
	require.True(t, scalarEqual(int64(5), int64(5)))
	require.False(t, scalarEqual(int64(5), int32(5)))
	require.False(t, scalarEqual([]protocol.Value{1}, []protocol.Value{1}))
	require.False(t, scalarEqual(map[string]protocol.Value{}, map[string]protocol.Value{}))
}
