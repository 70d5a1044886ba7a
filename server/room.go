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
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// Join failure sentinels, mapped to return codes by the handlers.
var (
	errRoomClosed    = errors.New("room is closed")
	errRoomFull      = errors.New("room is full")
	errBadPassword   = errors.New("wrong password")
	errAlreadyMember = errors.New("already a member")
	errRoomDestroyed = errors.New("room is destroyed")
)

// RoomOptions carries the creation parameters of a room.
type RoomOptions struct {
	MaxPlayers   int
	IsOpen       bool
	IsVisible    bool
	AutoCleanup  bool
	Password     string
	PlayerTTL    time.Duration
	EmptyRoomTTL time.Duration
	Properties   map[string]protocol.Value
}

// DefaultRoomOptions returns the options applied when a create request
// leaves them out.
func DefaultRoomOptions(c *Config) RoomOptions {
	return RoomOptions{
		MaxPlayers:   c.MaxPlayersHardCap,
		IsOpen:       true,
		IsVisible:    true,
		AutoCleanup:  true,
		EmptyRoomTTL: c.EmptyRoomTTL,
		Properties:   make(map[string]protocol.Value),
	}
}

// cachedEvent is one entry of the room event cache, replayed to every
// later joiner in insertion order.
type cachedEvent struct {
	code     byte
	params   map[byte]protocol.Value
	senderID uint16
	raisedAt time.Time
}

// Room holds members, the master client, game properties and the event
// cache. The room mutex covers all of them; peers are always locked
// after the room (lock order is registry, room, peer).
type Room struct {
	name   string
	server *Server

	mu           sync.Mutex
	members      map[uint16]*Peer
	masterID     uint16
	opts         RoomOptions
	cache        *lru.Cache
	cacheSeq     uint64
	lastActivity time.Time
	createdAt    time.Time
	destroyed    bool
}

func newRoom(name string, opts RoomOptions, srv *Server) (*Room, error) {
	cache, err := lru.New(srv.Config.MaxCachedEvents)
	if err != nil {
		return nil, err
	}
	if opts.Properties == nil {
		opts.Properties = make(map[string]protocol.Value)
	}
	if opts.MaxPlayers <= 0 || opts.MaxPlayers > srv.Config.MaxPlayersHardCap {
		opts.MaxPlayers = srv.Config.MaxPlayersHardCap
	}
	now := time.Now()
	return &Room{
		name:         name,
		server:       srv,
		members:      make(map[uint16]*Peer),
		opts:         opts,
		cache:        cache,
		lastActivity: now,
		createdAt:    now,
	}, nil
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// MemberCount returns the current member count.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// MasterID returns the actor number of the master client, 0 when empty.
func (r *Room) MasterID() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.masterID
}

// Join admits a peer, answers the triggering operation and fans out the
// join notifications. Response, cached event replay and the join
// broadcast all happen under one lock hold so the joiner always sees
// the response first and the cache before live events.
func (r *Room) Join(p *Peer, opCode byte, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return errRoomDestroyed
	}
	if _, ok := r.members[p.ID()]; ok {
		return errAlreadyMember
	}
	if !r.opts.IsOpen {
		return errRoomClosed
	}
	if len(r.members) >= r.opts.MaxPlayers {
		return errRoomFull
	}
	if r.opts.Password != "" && password != r.opts.Password {
		return errBadPassword
	}

	r.members[p.ID()] = p
	p.setRoom(r)
	r.lastActivity = time.Now()

	// The first member becomes master without a broadcast; the join
	// response already names the master client.
	if len(r.members) == 1 {
		r.masterID = p.ID()
		p.setMaster(true)
		r.server.Stats.IncMasterSwitch()
	}

	if err := p.SendResponse(r.joinResponse(p, opCode)); err != nil {
		log.Debugf("Room %s: join response to peer %d: %v", r.name, p.ID(), err)
	}

	for _, key := range r.cache.Keys() {
		v, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		ce := v.(*cachedEvent)
		params := make(map[byte]protocol.Value, len(ce.params)+1)
		for k, pv := range ce.params {
			params[k] = pv
		}
		params[protocol.ParamActorNr] = int(ce.senderID)
		if err := p.SendEvent(&protocol.EventData{Code: ce.code, Parameters: params}, true); err != nil {
			break
		}
	}

	joinEv := &protocol.EventData{
		Code: protocol.EvJoin,
		Parameters: map[byte]protocol.Value{
			protocol.ParamActorNr:    int(p.ID()),
			protocol.ParamNickname:   p.Nickname(),
			protocol.ParamActorProps: p.Properties(),
		},
	}
	r.broadcastLocked(joinEv, p.ID(), true)

	log.Infof("Peer %d joined room %s (%d members)", p.ID(), r.name, len(r.members))
	return nil
}

// joinResponse builds the response for a successful join. Caller holds
// the room lock.
func (r *Room) joinResponse(p *Peer, opCode byte) *protocol.OperationResponse {
	actorList := make([]protocol.Value, 0, len(r.members))
	actorProps := make(map[protocol.Value]protocol.Value, len(r.members))
	ids := r.memberIDsLocked()
	for _, id := range ids {
		actorList = append(actorList, int(id))
		actorProps[int(id)] = r.members[id].Properties()
	}
	return &protocol.OperationResponse{
		OpCode:     opCode,
		ReturnCode: protocol.ReturnOK,
		Parameters: map[byte]protocol.Value{
			protocol.ParamActorNr:        int(p.ID()),
			protocol.ParamRoomName:       r.name,
			protocol.ParamActorList:      actorList,
			protocol.ParamActorProps:     actorProps,
			protocol.ParamGameProps:      copyProperties(r.opts.Properties),
			protocol.ParamMasterClientID: int(r.masterID),
			protocol.ParamPlayerTTL:      int(r.opts.PlayerTTL / time.Millisecond),
			protocol.ParamEmptyRoomTTL:   int(r.opts.EmptyRoomTTL / time.Millisecond),
		},
	}
}

// Leave removes the peer, reassigns the master when needed and tells
// the remaining members. Leaving a room one is not in is a no-op.
func (r *Room) Leave(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[p.ID()]; !ok {
		return
	}
	delete(r.members, p.ID())
	p.setRoom(nil)
	r.lastActivity = time.Now()

	wasMaster := r.masterID == p.ID()
	masterChanged := false
	if len(r.members) == 0 {
		r.masterID = 0
	} else if wasMaster {
		ids := r.memberIDsLocked()
		r.masterID = ids[0]
		if m, ok := r.members[r.masterID]; ok {
			m.setMaster(true)
		}
		r.server.Stats.IncMasterSwitch()
		masterChanged = true
	}

	leaveEv := &protocol.EventData{
		Code: protocol.EvLeave,
		Parameters: map[byte]protocol.Value{
			protocol.ParamActorNr:        int(p.ID()),
			protocol.ParamMasterClientID: int(r.masterID),
		},
	}
	// Remaining members learn about the departure first; the master
	// handover notification follows.
	r.broadcastLocked(leaveEv, p.ID(), true)
	if masterChanged {
		r.broadcastMasterLocked()
	}
	log.Infof("Peer %d left room %s (%d members)", p.ID(), r.name, len(r.members))
}

// broadcastMasterLocked notifies the members of the current master
// client. Caller holds the room lock.
func (r *Room) broadcastMasterLocked() {
	ev := &protocol.EventData{
		Code: protocol.EvMasterClientSwitched,
		Parameters: map[byte]protocol.Value{
			protocol.ParamMasterClientID: int(r.masterID),
		},
	}
	r.broadcastLocked(ev, 0, true)
	log.Debugf("Room %s: master client is now %d", r.name, r.masterID)
}

// memberIDsLocked returns the member ids in ascending order. Caller
// holds the room lock.
func (r *Room) memberIDsLocked() []uint16 {
	ids := make([]uint16, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RaiseEvent fans out a custom event from a member. A nil target list
// broadcasts to everyone but the sender; otherwise each listed member
// receives it and absent ids are skipped. Cached events are replayed to
// later joiners.
func (r *Room) RaiseEvent(sender *Peer, code byte, params map[byte]protocol.Value, targets []uint16, cache, reliable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[sender.ID()]; !ok {
		return errors.New("sender is not a member")
	}
	r.lastActivity = time.Now()
	r.server.Stats.IncEventRaised()
	r.server.hooks.emit(HookEventRaised, HookContext{PeerID: sender.ID(), RoomName: r.name, EventCode: code})

	if cache {
		r.cacheSeq++
		r.cache.Add(r.cacheSeq, &cachedEvent{
			code:     code,
			params:   params,
			senderID: sender.ID(),
			raisedAt: time.Now(),
		})
	}

	out := make(map[byte]protocol.Value, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[protocol.ParamActorNr] = int(sender.ID())
	ev := &protocol.EventData{Code: code, Parameters: out}

	if targets == nil {
		r.broadcastLocked(ev, sender.ID(), reliable)
		return nil
	}
	for _, id := range targets {
		m, ok := r.members[id]
		if !ok {
			continue
		}
		if err := m.SendEvent(ev, reliable); err != nil {
			log.Debugf("Room %s: event %d to peer %d: %v", r.name, code, id, err)
		}
	}
	return nil
}

// broadcastLocked sends an event to every member except skipID. Caller
// holds the room lock.
func (r *Room) broadcastLocked(ev *protocol.EventData, skipID uint16, reliable bool) {
	for id, m := range r.members {
		if id == skipID {
			continue
		}
		if err := m.SendEvent(ev, reliable); err != nil {
			log.Debugf("Room %s: event %d to peer %d: %v", r.name, ev.Code, id, err)
		}
	}
}

// ChangeGameProperties merges into the room properties and broadcasts
// the full post-merge map. Only the master client may call it; the
// router enforces that.
func (r *Room) ChangeGameProperties(sender *Peer, props map[string]protocol.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range props {
		r.opts.Properties[k] = v
	}
	r.lastActivity = time.Now()

	ev := &protocol.EventData{
		Code: protocol.EvPropertiesChanged,
		Parameters: map[byte]protocol.Value{
			protocol.ParamActorNr:   int(sender.ID()),
			protocol.ParamGameProps: copyProperties(r.opts.Properties),
		},
	}
	r.broadcastLocked(ev, 0, true)
}

// ChangeActorProperties merges into a member's custom properties and
// broadcasts the change.
func (r *Room) ChangeActorProperties(sender *Peer, actorID uint16, props map[string]protocol.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.members[actorID]
	if !ok {
		return
	}
	target.mergeProperties(props)
	r.lastActivity = time.Now()

	ev := &protocol.EventData{
		Code: protocol.EvPropertiesChanged,
		Parameters: map[byte]protocol.Value{
			protocol.ParamActorNr:    int(actorID),
			protocol.ParamActorProps: target.Properties(),
		},
	}
	r.broadcastLocked(ev, 0, true)
}

// IsMasterClient reports whether the peer is the current master.
func (r *Room) IsMasterClient(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.masterID == p.ID()
}

// CachedEventCount returns the number of cached events.
func (r *Room) CachedEventCount() int {
	return r.cache.Len()
}

// eligibleForCleanup reports whether the room may be destroyed.
func (r *Room) eligibleForCleanup(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0 &&
		r.opts.AutoCleanup &&
		r.opts.EmptyRoomTTL > 0 &&
		now.Sub(r.lastActivity) > r.opts.EmptyRoomTTL
}

// matchesFilter reports whether a random-join request fits this room.
func (r *Room) matchesFilter(maxPlayers int, filter map[string]protocol.Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed || !r.opts.IsVisible || !r.opts.IsOpen {
		return false
	}
	if len(r.members) >= r.opts.MaxPlayers {
		return false
	}
	if maxPlayers > 0 && r.opts.MaxPlayers > maxPlayers {
		return false
	}
	for k, want := range filter {
		have, ok := r.opts.Properties[k]
		if !ok || !scalarEqual(have, want) {
			return false
		}
	}
	return true
}

// scalarEqual compares two property values of scalar type. Composite
// values never match a filter.
func scalarEqual(a, b protocol.Value) bool {
	switch a.(type) {
	case nil, bool, byte, int16, int32, int64, int, float32, float64, string:
		return a == b
	}
	return false
}

// destroy marks the room dead and drops the cache. The registry removes
// it from the room map; members, if any, are kicked first.
func (r *Room) destroy() {
	r.mu.Lock()
	members := make([]*Peer, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.destroyed = true
	r.mu.Unlock()

	for _, m := range members {
		r.Leave(m)
	}

	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()
}

// RoomInfo is the room list entry returned by GetRoomList.
type RoomInfo struct {
	Name        string
	PlayerCount int
	MaxPlayers  int
	IsOpen      bool
	IsVisible   bool
	Properties  map[string]protocol.Value
}

// Info snapshots the list entry for this room.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		Name:        r.name,
		PlayerCount: len(r.members),
		MaxPlayers:  r.opts.MaxPlayers,
		IsOpen:      r.opts.IsOpen,
		IsVisible:   r.opts.IsVisible,
		Properties:  copyProperties(r.opts.Properties),
	}
}

func copyProperties(props map[string]protocol.Value) map[string]protocol.Value {
	out := make(map[string]protocol.Value, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
