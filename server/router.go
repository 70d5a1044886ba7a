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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// router maps operation codes to handlers and enforces the per
// operation state pre-checks. Every request gets exactly one response;
// join paths answer from inside the room lock and return nil here.
type router struct {
	server *Server
}

func (rt *router) dispatch(p *Peer, req *protocol.OperationRequest) {
	s := rt.server
	start := time.Now()
	s.Stats.IncOperation(req.OpCode)
	s.hooks.emit(HookOperationReceived, HookContext{PeerID: p.ID(), OpCode: req.OpCode})
	log.Debugf("Peer %d: %s", p.ID(), protocol.OperationName(req.OpCode))

	resp := rt.handle(p, req)
	if resp != nil {
		resp.OpCode = req.OpCode
		if resp.ReturnCode != protocol.ReturnOK {
			s.Stats.IncOperationError(req.OpCode)
			log.Debugf("Peer %d: %s failed: %d %s",
				p.ID(), protocol.OperationName(req.OpCode), resp.ReturnCode, resp.DebugMessage)
		}
		if err := p.SendResponse(resp); err != nil {
			log.Debugf("Peer %d: response send: %v", p.ID(), err)
		}
	}

	s.Stats.ObserveOperation(req.OpCode, time.Since(start))
	s.hooks.emit(HookOperationProcessed, HookContext{PeerID: p.ID(), OpCode: req.OpCode})
}

func (rt *router) handle(p *Peer, req *protocol.OperationRequest) *protocol.OperationResponse {
	s := rt.server
	pm := params(req.Parameters)

	if p.State() != StateConnecting && p.State() != StateConnected {
		return failResponse(req.OpCode, protocol.ReturnNotAllowedInState, "peer is disconnecting")
	}

	switch req.OpCode {
	case protocol.OpAuthenticate:
		return s.handleAuthenticate(p, pm)
	case protocol.OpJoinRoom:
		if resp := requireAuth(p, req.OpCode); resp != nil {
			return resp
		}
		return s.handleJoinRoom(p, pm)
	case protocol.OpRoom:
		if resp := requireAuth(p, req.OpCode); resp != nil {
			return resp
		}
		if p.Room() != nil {
			return s.handleLeaveRoom(p)
		}
		return s.handleCreateRoom(p, pm)
	case protocol.OpJoinRandomRoom:
		if resp := requireAuth(p, req.OpCode); resp != nil {
			return resp
		}
		return s.handleJoinRandomRoom(p, pm)
	case protocol.OpChangeProperties:
		if resp := requireAuth(p, req.OpCode); resp != nil {
			return resp
		}
		return s.handleChangeProperties(p, pm)
	case protocol.OpGetRoomList, protocol.OpGetRoomListAlias:
		return s.handleGetRoomList(p, pm)
	case protocol.OpRaiseEvent:
		if resp := requireRoom(p, req.OpCode); resp != nil {
			return resp
		}
		return s.handleRaiseEvent(p, pm)
	default:
		log.Warningf("Peer %d: unknown operation %d", p.ID(), req.OpCode)
		return failResponse(req.OpCode, protocol.ReturnOperationInvalid, "unknown operation")
	}
}

func requireAuth(p *Peer, op byte) *protocol.OperationResponse {
	if !p.Authenticated() {
		return failResponse(op, protocol.ReturnNotAllowedInState, "not authenticated")
	}
	return nil
}

func requireRoom(p *Peer, op byte) *protocol.OperationResponse {
	if resp := requireAuth(p, op); resp != nil {
		return resp
	}
	if p.Room() == nil {
		return failResponse(op, protocol.ReturnNotAllowedInState, "not in a room")
	}
	return nil
}

func failResponse(op byte, code int16, debug string) *protocol.OperationResponse {
	return &protocol.OperationResponse{
		OpCode:       op,
		ReturnCode:   code,
		DebugMessage: debug,
		Parameters:   map[byte]protocol.Value{},
	}
}

func okResponse(op byte, parameters map[byte]protocol.Value) *protocol.OperationResponse {
	if parameters == nil {
		parameters = map[byte]protocol.Value{}
	}
	return &protocol.OperationResponse{
		OpCode:     op,
		ReturnCode: protocol.ReturnOK,
		Parameters: parameters,
	}
}
