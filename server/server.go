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
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cyberarchives/photon-server-go/protocol"
	"github.com/cyberarchives/photon-server-go/stats"
)

// Server owns the peer and room maps, the accept loop and the
// background tickers.
type Server struct {
	Config *Config
	Stats  stats.Stats

	hooks  hookRegistry
	router *router

	peersMu sync.RWMutex
	peers   map[uint16]*Peer

	roomsMu sync.RWMutex
	rooms   map[string]*Room

	nextPeerID   uint32
	listener     net.Listener
	shuttingDown atomic.Bool
}

// NewServer creates a Server from a validated config.
func NewServer(c *Config, st stats.Stats) *Server {
	s := &Server{
		Config: c,
		Stats:  st,
		peers:  make(map[uint16]*Peer),
		rooms:  make(map[string]*Room),
	}
	s.router = &router{server: s}
	return s
}

// RegisterObserver adds a hook observer.
func (s *Server) RegisterObserver(o Observer) {
	s.hooks.Register(o)
}

// Start binds the listener and runs the accept loop and the tickers
// until the context is cancelled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	s.hooks.emit(HookServerStarting, HookContext{})

	addr := fmt.Sprintf("%s:%d", s.Config.ListenHost, s.Config.ListenPort)
	lc := net.ListenConfig{Control: reuseAddr}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = l
	log.Infof("Listening on %s", addr)
	s.hooks.emit(HookServerStarted, HookContext{})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop() })
	g.Go(func() error { return s.livenessLoop(ctx) })
	g.Go(func() error { return s.cleanupLoop(ctx) })
	g.Go(func() error { return s.metricLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		s.Shutdown()
		return nil
	})
	return g.Wait()
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if s.shuttingDown.Load() || s.PeerCount() >= s.Config.MaxConnections {
			log.Warningf("Rejecting connection from %s", conn.RemoteAddr())
			conn.Close()
			continue
		}
		p := s.addPeer(conn)
		if p == nil {
			conn.Close()
			continue
		}
		go p.run()
	}
}

// addPeer allocates an id and registers the peer. Peer ids are 16 bit,
// never 0 and never reused while the holder is still connected.
func (s *Server) addPeer(conn net.Conn) *Peer {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	if len(s.peers) >= 1<<16-1 {
		return nil
	}
	var id uint16
	for {
		id = uint16(atomic.AddUint32(&s.nextPeerID, 1))
		if id == 0 {
			continue
		}
		if _, taken := s.peers[id]; !taken {
			break
		}
	}
	p := newPeer(id, conn, s)
	s.peers[id] = p
	s.Stats.SetPeers(int64(len(s.peers)))
	return p
}

// removePeer takes the peer out of its room and the registry. Called
// exactly once from the peer's finalizer.
func (s *Server) removePeer(p *Peer, reason string) {
	if room := p.Room(); room != nil {
		room.Leave(p)
	}

	s.peersMu.Lock()
	delete(s.peers, p.ID())
	n := len(s.peers)
	s.peersMu.Unlock()

	s.Stats.SetPeers(int64(n))
	s.Stats.IncDisconnect(reason)
	s.hooks.emit(HookPeerDisconnected, HookContext{PeerID: p.ID(), Reason: reason})
	log.Infof("Peer %d disconnected: %s", p.ID(), reason)
}

// GetPeer looks a peer up by id.
func (s *Server) GetPeer(id uint16) *Peer {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	return s.peers[id]
}

// PeerCount returns the number of registered peers.
func (s *Server) PeerCount() int {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	return len(s.peers)
}

func (s *Server) allPeers() []*Peer {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *Server) getRoom(name string) *Room {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return s.rooms[name]
}

// RoomCount returns the number of live rooms.
func (s *Server) RoomCount() int {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return len(s.rooms)
}

func (s *Server) allRooms() []*Room {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// createRoom registers a new room. The name must be unique.
func (s *Server) createRoom(name string, opts RoomOptions) (*Room, error) {
	s.hooks.emit(HookRoomCreating, HookContext{RoomName: name})

	s.roomsMu.Lock()
	if _, taken := s.rooms[name]; taken {
		s.roomsMu.Unlock()
		return nil, fmt.Errorf("room name %q is taken", name)
	}
	room, err := newRoom(name, opts, s)
	if err != nil {
		s.roomsMu.Unlock()
		return nil, err
	}
	s.rooms[name] = room
	n := len(s.rooms)
	s.roomsMu.Unlock()

	s.Stats.IncRoomCreated()
	s.Stats.SetRooms(int64(n))
	s.hooks.emit(HookRoomCreated, HookContext{RoomName: name})
	log.Infof("Room %s created (max players %d)", name, room.opts.MaxPlayers)
	return room, nil
}

// RemoveRoom destroys an empty room. It refuses to remove a room that
// still has members.
func (s *Server) RemoveRoom(name string) error {
	room := s.getRoom(name)
	if room == nil {
		return fmt.Errorf("room %q not found", name)
	}
	if room.MemberCount() > 0 {
		return fmt.Errorf("room %q is not empty", name)
	}
	s.destroyRoom(room)
	return nil
}

func (s *Server) destroyRoom(room *Room) {
	s.hooks.emit(HookRoomDestroying, HookContext{RoomName: room.Name()})

	s.roomsMu.Lock()
	delete(s.rooms, room.Name())
	n := len(s.rooms)
	s.roomsMu.Unlock()

	room.destroy()
	s.Stats.IncRoomDestroyed()
	s.Stats.SetRooms(int64(n))
	s.hooks.emit(HookRoomDestroyed, HookContext{RoomName: room.Name()})
	log.Infof("Room %s destroyed", room.Name())
}

// livenessLoop pings idle peers and disconnects the unresponsive ones.
func (s *Server) livenessLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.PingInterval / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.checkLiveness(time.Now())
		}
	}
}

func (s *Server) checkLiveness(now time.Time) {
	for _, p := range s.allPeers() {
		if p.State() != StateConnected {
			continue
		}
		if now.Sub(p.LastActivity()) > s.Config.ConnectionTimeout {
			p.Disconnect("inactivity timeout")
			continue
		}
		lastPing := time.Unix(0, p.lastPingSent.Load())
		if now.Sub(lastPing) > s.Config.PingInterval {
			p.lastPingSent.Store(now.UnixNano())
			if err := p.sendCommand(&protocol.Command{Kind: protocol.CmdPing}); err != nil {
				log.Debugf("Peer %d ping: %v", p.ID(), err)
			}
		}
	}
}

// cleanupLoop destroys rooms that stayed empty past their TTL.
func (s *Server) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanupRooms(time.Now())
		}
	}
}

func (s *Server) cleanupRooms(now time.Time) {
	for _, room := range s.allRooms() {
		if room.eligibleForCleanup(now) {
			s.destroyRoom(room)
		}
	}
}

// metricLoop refreshes the gauges and snapshots the counters.
func (s *Server) metricLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.MetricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Stats.SetPeers(int64(s.PeerCount()))
			s.Stats.SetRooms(int64(s.RoomCount()))
			s.Stats.Snapshot()
		}
	}
}

// Shutdown stops accepting, disconnects every peer and destroys every
// room. Peers that have not drained by the deadline get their sockets
// closed.
func (s *Server) Shutdown() {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	s.hooks.emit(HookServerStopping, HookContext{})
	log.Info("Shutting down")

	if s.listener != nil {
		s.listener.Close()
	}

	for _, p := range s.allPeers() {
		p.Disconnect("server shutdown")
	}

	deadline := time.Now().Add(s.Config.GracefulShutdown)
	for s.PeerCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	for _, p := range s.allPeers() {
		p.forceClose()
	}

	for _, room := range s.allRooms() {
		s.destroyRoom(room)
	}
	s.hooks.emit(HookServerStopped, HookContext{})
}
