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

package protocol

import (
	"fmt"
)

// Operation codes sent by PUN clients.
const (
	OpJoinRandomRoom   byte = 225
	OpJoinRoom         byte = 226
	OpRoom             byte = 227 // LeaveRoom when in a room, CreateRoom otherwise
	OpAuthenticate     byte = 230
	OpChangeProperties byte = 248
	OpGetRoomList      byte = 253
	OpRaiseEvent       byte = 255
	// OpGetRoomListAlias is sent by some client versions instead of 253.
	OpGetRoomListAlias byte = 220
)

// OperationName returns a human readable operation name.
func OperationName(op byte) string {
	switch op {
	case OpJoinRandomRoom:
		return "JoinRandomRoom"
	case OpJoinRoom:
		return "JoinRoom"
	case OpRoom:
		return "LeaveRoom/CreateRoom"
	case OpAuthenticate:
		return "Authenticate"
	case OpChangeProperties:
		return "ChangeProperties"
	case OpGetRoomList, OpGetRoomListAlias:
		return "GetRoomList"
	case OpRaiseEvent:
		return "RaiseEvent"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// Operation return codes.
const (
	ReturnOK                  int16 = 0
	ReturnOperationInvalid    int16 = -1
	ReturnInternalServerError int16 = -2
	ReturnNotAllowedInState   int16 = 32760
	ReturnJoinFailedDenied    int16 = 32758
	ReturnRoomClosed          int16 = 32757
	ReturnRoomFull            int16 = 32765
	ReturnRoomNotFound        int16 = 32764
)

// Event codes raised by the room engine. Custom events raised through
// RaiseEvent use whatever code the sender chose.
const (
	EvJoin                 byte = 255
	EvLeave                byte = 254
	EvPropertiesChanged    byte = 253
	EvMasterClientSwitched byte = 208
)

// EventName returns a human readable event name.
func EventName(code byte) string {
	switch code {
	case EvJoin:
		return "Join"
	case EvLeave:
		return "Leave"
	case EvPropertiesChanged:
		return "PropertiesChanged"
	case EvMasterClientSwitched:
		return "MasterClientSwitched"
	default:
		return fmt.Sprintf("Custom(%d)", code)
	}
}

// Well-known parameter byte keys. Room options arriving inside
// hash-tables use string keys instead; both spellings per key are
// accepted (see server.paramLookup).
const (
	ParamRoomName       byte = 255
	ParamActorNr        byte = 254
	ParamActorList      byte = 252
	ParamTargetActors   byte = 252
	ParamProperties     byte = 251
	ParamBroadcast      byte = 250
	ParamActorProps     byte = 249
	ParamGameProps      byte = 248
	ParamCache          byte = 247
	ParamData           byte = 245
	ParamCode           byte = 244
	ParamPlayerTTL      byte = 235
	ParamEmptyRoomTTL   byte = 236
	ParamUserID         byte = 225
	ParamPassword       byte = 223
	ParamAppVersion     byte = 220
	ParamNickname       byte = 196
	ParamMasterClientID byte = 203
	ParamMaxPlayers     byte = 191
	ParamIsOpen         byte = 190
	ParamIsVisible      byte = 189
	ParamRoomList       byte = 222
)
