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

	"github.com/stretchr/testify/require"

	"github.com/cyberarchives/photon-server-go/protocol"
)

func TestParamsByteKey(t *testing.T) {
	pm := params{protocol.ParamRoomName: "lobby"}
	name, ok := pm.str(protocol.ParamRoomName, "roomName")
	require.True(t, ok)
	require.Equal(t, "lobby", name)
}

func TestParamsStringAlias(t *testing.T) {
	// Options tucked into a hash-table with string keys, as some
	// client builds send them.
	pm := params{
		protocol.ParamProperties: map[protocol.Value]protocol.Value{
			"RoomName": "lobby",
			"maxplayers": int64(8),
			"isOpen":   true,
		},
	}

	name, ok := pm.str(protocol.ParamRoomName, "roomName", "RoomName")
	require.True(t, ok)
	require.Equal(t, "lobby", name)

	n, ok := pm.integer(protocol.ParamMaxPlayers, "maxPlayers")
	require.True(t, ok)
	require.Equal(t, 8, n)

	b, ok := pm.boolean(protocol.ParamIsOpen, "isopen")
	require.True(t, ok)
	require.True(t, b)

	_, ok = pm.str(protocol.ParamPassword, "password")
	require.False(t, ok)
}

func TestParamsIntegerCoercion(t *testing.T) {
	tests := []struct {
		in   protocol.Value
		want int
	}{
		{byte(7), 7},
		{int16(300), 300},
		{int32(70000), 70000},
		{int64(1 << 33), 1 << 33},
		{42, 42},
		{float64(9), 9},
	}
	for _, tt := range tests {
		pm := params{protocol.ParamMaxPlayers: tt.in}
		n, ok := pm.integer(protocol.ParamMaxPlayers)
		require.True(t, ok, "%T", tt.in)
		require.Equal(t, tt.want, n)
	}

	pm := params{protocol.ParamMaxPlayers: "8"}
	_, ok := pm.integer(protocol.ParamMaxPlayers)
	require.False(t, ok)
}

func TestParamsMillis(t *testing.T) {
	pm := params{protocol.ParamPlayerTTL: int32(1500)}
	d, ok := pm.millis(protocol.ParamPlayerTTL)
	require.True(t, ok)
	require.Equal(t, "1.5s", d.String())
}

func TestParamsStringMap(t *testing.T) {
	pm := params{
		protocol.ParamProperties: map[protocol.Value]protocol.Value{
			"mode": "ctf",
			42:     "dropped non-string key",
		},
	}
	m, ok := pm.stringMap(protocol.ParamProperties)
	require.True(t, ok)
	require.Equal(t, map[string]protocol.Value{"mode": "ctf"}, m)
}

func TestParamsActorList(t *testing.T) {
	pm := params{protocol.ParamTargetActors: []protocol.Value{1, int16(2), int64(3)}}
	ids, ok := pm.actorList(protocol.ParamTargetActors)
	require.True(t, ok)
	require.Equal(t, []uint16{1, 2, 3}, ids)

	pm = params{protocol.ParamTargetActors: []int16{4, 5}}
	ids, ok = pm.actorList(protocol.ParamTargetActors)
	require.True(t, ok)
	require.Equal(t, []uint16{4, 5}, ids)

	// The wire int-array tag decodes to []int32.
	pm = params{protocol.ParamTargetActors: []int32{6, 7}}
	ids, ok = pm.actorList(protocol.ParamTargetActors)
	require.True(t, ok)
	require.Equal(t, []uint16{6, 7}, ids)

	pm = params{protocol.ParamTargetActors: "nope"}
	_, ok = pm.actorList(protocol.ParamTargetActors)
	require.False(t, ok)
}
