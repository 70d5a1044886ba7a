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
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	version "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// handleAuthenticate sets the peer identity. Missing nickname and user
// id fall back to timestamped guest values.
func (s *Server) handleAuthenticate(p *Peer, pm params) *protocol.OperationResponse {
	s.hooks.emit(HookPeerAuthenticating, HookContext{PeerID: p.ID()})

	if min := s.Config.MinVersion(); min != nil {
		appVersion, _ := pm.str(protocol.ParamAppVersion, "appVersion", "AppVersion")
		v := parseClientVersion(appVersion)
		if v == nil || v.LessThan(min) {
			return failResponse(protocol.OpAuthenticate, protocol.ReturnOperationInvalid,
				fmt.Sprintf("client version below minimum %s", min))
		}
	}

	nickname, ok := pm.str(protocol.ParamNickname, "nickname", "Nickname", "nickName")
	if !ok || nickname == "" {
		nickname = fmt.Sprintf("Guest_%d", time.Now().Unix())
	}
	userID, ok := pm.str(protocol.ParamUserID, "userId", "UserId", "userID")
	if !ok || userID == "" {
		userID = fmt.Sprintf("user_%d", time.Now().Unix())
	}
	p.setIdentity(nickname, userID)

	s.hooks.emit(HookPeerAuthenticated, HookContext{PeerID: p.ID()})
	log.Infof("Peer %d authenticated as %q (%s)", p.ID(), nickname, userID)

	return okResponse(protocol.OpAuthenticate, map[byte]protocol.Value{
		protocol.ParamNickname: nickname,
		protocol.ParamUserID:   userID,
	})
}

// parseClientVersion parses the client app version. PUN clients append
// their library version after an underscore; both halves are tried.
func parseClientVersion(appVersion string) *version.Version {
	if appVersion == "" {
		return nil
	}
	if v, err := version.NewVersion(appVersion); err == nil {
		return v
	}
	if head, _, found := strings.Cut(appVersion, "_"); found {
		if v, err := version.NewVersion(head); err == nil {
			return v
		}
	}
	return nil
}

// handleJoinRoom joins by name, creating the room when absent. A
// successful join answers from inside the room lock, so nil is returned
// here.
func (s *Server) handleJoinRoom(p *Peer, pm params) *protocol.OperationResponse {
	if p.Room() != nil {
		return failResponse(protocol.OpJoinRoom, protocol.ReturnNotAllowedInState, "already in a room")
	}
	name, ok := pm.str(protocol.ParamRoomName, "roomName", "RoomName", "gameId")
	if !ok || name == "" {
		return failResponse(protocol.OpJoinRoom, protocol.ReturnOperationInvalid, "missing room name")
	}

	room := s.getRoom(name)
	if room == nil {
		var err error
		room, err = s.createRoom(name, s.parseRoomOptions(pm))
		if err != nil {
			// Lost a create race, join whoever won.
			room = s.getRoom(name)
			if room == nil {
				return failResponse(protocol.OpJoinRoom, protocol.ReturnInternalServerError, err.Error())
			}
		}
	}

	password, _ := pm.str(protocol.ParamPassword, "password", "Password")
	if err := room.Join(p, protocol.OpJoinRoom, password); err != nil {
		return joinFailure(protocol.OpJoinRoom, err)
	}
	return nil
}

// handleCreateRoom creates a uniquely named room and auto-joins the
// creator. Dispatched from operation 227 when the peer is not in a
// room.
func (s *Server) handleCreateRoom(p *Peer, pm params) *protocol.OperationResponse {
	name, ok := pm.str(protocol.ParamRoomName, "roomName", "RoomName", "gameId")
	if !ok || name == "" {
		return failResponse(protocol.OpRoom, protocol.ReturnOperationInvalid, "missing room name")
	}

	room, err := s.createRoom(name, s.parseRoomOptions(pm))
	if err != nil {
		return failResponse(protocol.OpRoom, protocol.ReturnOperationInvalid, err.Error())
	}

	password, _ := pm.str(protocol.ParamPassword, "password", "Password")
	if err := room.Join(p, protocol.OpRoom, password); err != nil {
		return joinFailure(protocol.OpRoom, err)
	}
	return nil
}

// handleLeaveRoom removes the peer from its room. Dispatched from
// operation 227 when the peer is in a room.
func (s *Server) handleLeaveRoom(p *Peer) *protocol.OperationResponse {
	room := p.Room()
	if room == nil {
		return failResponse(protocol.OpRoom, protocol.ReturnNotAllowedInState, "not in a room")
	}
	room.Leave(p)
	return okResponse(protocol.OpRoom, nil)
}

// handleJoinRandomRoom picks uniformly among the visible open rooms
// that fit the requested filter.
func (s *Server) handleJoinRandomRoom(p *Peer, pm params) *protocol.OperationResponse {
	if p.Room() != nil {
		return failResponse(protocol.OpJoinRandomRoom, protocol.ReturnNotAllowedInState, "already in a room")
	}
	filter, _ := pm.stringMap(protocol.ParamGameProps, "properties", "expectedProperties")
	maxPlayers, _ := pm.integer(protocol.ParamMaxPlayers, "maxPlayers", "MaxPlayers")

	var candidates []*Room
	for _, room := range s.allRooms() {
		if room.matchesFilter(maxPlayers, filter) {
			candidates = append(candidates, room)
		}
	}
	if len(candidates) == 0 {
		return failResponse(protocol.OpJoinRandomRoom, protocol.ReturnRoomNotFound, "no match found")
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	var lastErr error
	for _, room := range candidates {
		if err := room.Join(p, protocol.OpJoinRandomRoom, ""); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return joinFailure(protocol.OpJoinRandomRoom, lastErr)
}

// handleChangeProperties merges actor or game properties. An actor
// number in the request selects actor properties; otherwise the change
// targets the game properties, which only the master client may touch.
func (s *Server) handleChangeProperties(p *Peer, pm params) *protocol.OperationResponse {
	props, ok := pm.stringMap(protocol.ParamProperties, "properties", "Properties")
	if !ok {
		if props, ok = pm.stringMap(protocol.ParamGameProps, "gameProperties"); !ok {
			props, ok = pm.stringMap(protocol.ParamActorProps, "actorProperties")
		}
	}
	if !ok || len(props) == 0 {
		return failResponse(protocol.OpChangeProperties, protocol.ReturnOperationInvalid, "missing properties")
	}

	if actorNr, isActor := pm.integer(protocol.ParamActorNr); isActor {
		room := p.Room()
		if room == nil {
			if actorNr != int(p.ID()) {
				return failResponse(protocol.OpChangeProperties, protocol.ReturnNotAllowedInState, "not in a room")
			}
			p.mergeProperties(props)
			return okResponse(protocol.OpChangeProperties, nil)
		}
		room.ChangeActorProperties(p, uint16(actorNr), props)
		return okResponse(protocol.OpChangeProperties, nil)
	}

	room := p.Room()
	if room == nil {
		return failResponse(protocol.OpChangeProperties, protocol.ReturnNotAllowedInState, "not in a room")
	}
	if !room.IsMasterClient(p) {
		return failResponse(protocol.OpChangeProperties, protocol.ReturnNotAllowedInState, "only the master client may change game properties")
	}
	room.ChangeGameProperties(p, props)
	return okResponse(protocol.OpChangeProperties, nil)
}

// handleGetRoomList lists all visible rooms.
func (s *Server) handleGetRoomList(p *Peer, _ params) *protocol.OperationResponse {
	var list []protocol.Value
	for _, room := range s.allRooms() {
		info := room.Info()
		if !info.IsVisible {
			continue
		}
		list = append(list, map[string]protocol.Value{
			"name":        info.Name,
			"playerCount": info.PlayerCount,
			"maxPlayers":  info.MaxPlayers,
			"isOpen":      info.IsOpen,
			"isVisible":   info.IsVisible,
			"properties":  info.Properties,
		})
	}
	return okResponse(protocol.OpGetRoomList, map[byte]protocol.Value{
		protocol.ParamRoomList: list,
	})
}

// handleRaiseEvent fans a custom event out to the room.
func (s *Server) handleRaiseEvent(p *Peer, pm params) *protocol.OperationResponse {
	code, ok := pm.integer(protocol.ParamCode, "code", "eventCode")
	if !ok || code < 0 || code > 255 {
		return failResponse(protocol.OpRaiseEvent, protocol.ReturnOperationInvalid, "missing event code")
	}
	room := p.Room()
	if room == nil {
		return failResponse(protocol.OpRaiseEvent, protocol.ReturnNotAllowedInState, "not in a room")
	}

	data, _ := pm.lookup(protocol.ParamData, "data", "Data")
	targets, _ := pm.actorList(protocol.ParamTargetActors)
	cache := false
	if n, ok := pm.integer(protocol.ParamCache, "cache"); ok {
		cache = n > 0
	} else if b, ok := pm.boolean(protocol.ParamCache, "cache"); ok {
		cache = b
	}

	evParams := map[byte]protocol.Value{protocol.ParamData: data}
	if err := room.RaiseEvent(p, byte(code), evParams, targets, cache, true); err != nil {
		return failResponse(protocol.OpRaiseEvent, protocol.ReturnNotAllowedInState, err.Error())
	}
	return okResponse(protocol.OpRaiseEvent, nil)
}

// parseRoomOptions reads room creation options from the request, with
// config defaults for the rest.
func (s *Server) parseRoomOptions(pm params) RoomOptions {
	opts := DefaultRoomOptions(s.Config)
	if n, ok := pm.integer(protocol.ParamMaxPlayers, "maxPlayers", "MaxPlayers"); ok && n > 0 {
		opts.MaxPlayers = n
	}
	if b, ok := pm.boolean(protocol.ParamIsOpen, "isOpen", "IsOpen", "open"); ok {
		opts.IsOpen = b
	}
	if b, ok := pm.boolean(protocol.ParamIsVisible, "isVisible", "IsVisible", "visible"); ok {
		opts.IsVisible = b
	}
	if pw, ok := pm.str(protocol.ParamPassword, "password", "Password"); ok {
		opts.Password = pw
	}
	if d, ok := pm.millis(protocol.ParamPlayerTTL, "playerTtl", "PlayerTTL"); ok {
		opts.PlayerTTL = d
	}
	if d, ok := pm.millis(protocol.ParamEmptyRoomTTL, "emptyRoomTtl", "EmptyRoomTTL"); ok {
		opts.EmptyRoomTTL = d
	}
	if props, ok := pm.stringMap(protocol.ParamProperties, "properties", "customProperties"); ok {
		opts.Properties = copyProperties(props)
	} else if props, ok := pm.stringMap(protocol.ParamGameProps, "gameProperties"); ok {
		opts.Properties = copyProperties(props)
	}
	return opts
}

func joinFailure(op byte, err error) *protocol.OperationResponse {
	switch {
	case errors.Is(err, errRoomFull):
		return failResponse(op, protocol.ReturnRoomFull, err.Error())
	case errors.Is(err, errRoomClosed):
		return failResponse(op, protocol.ReturnRoomClosed, err.Error())
	case errors.Is(err, errBadPassword):
		return failResponse(op, protocol.ReturnJoinFailedDenied, err.Error())
	case errors.Is(err, errAlreadyMember):
		return failResponse(op, protocol.ReturnNotAllowedInState, err.Error())
	case errors.Is(err, errRoomDestroyed):
		return failResponse(op, protocol.ReturnRoomNotFound, err.Error())
	case err == nil:
		return failResponse(op, protocol.ReturnInternalServerError, "join failed")
	default:
		return failResponse(op, protocol.ReturnInternalServerError, err.Error())
	}
}
