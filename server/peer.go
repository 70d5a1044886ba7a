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
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// PeerState is the connection lifecycle state.
type PeerState int32

// Peer states.
const (
	StateConnecting PeerState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("PeerState(%d)", int32(s))
	}
}

// Decode error policy: repeated decode errors escalate to a disconnect.
const (
	maxBadSignatures  = 3
	maxDecodeErrors   = 10
	decodeErrorWindow = time.Minute
)

const writeTimeout = 10 * time.Second

var errSendQueueOverflow = errors.New("send queue overflow")
var errPeerClosed = errors.New("peer is closed")

// Peer is one connected client session.
type Peer struct {
	id     uint16
	conn   net.Conn
	server *Server

	state         atomic.Int32
	authenticated atomic.Bool

	// mu guards identity and room association.
	mu         sync.Mutex
	nickname   string
	userID     string
	properties map[string]protocol.Value
	room       *Room
	isMaster   bool

	// Two independent outbound sequence counters.
	reliableSeq   atomic.Uint32
	unreliableSeq atomic.Uint32

	sendQ     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	reason    string

	lastActivity atomic.Int64
	lastPingSent atomic.Int64
	lastPongRecv atomic.Int64

	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64

	errMu         sync.Mutex
	decodeErrors  int
	decodeWindow  time.Time
	badSignatures int
}

func newPeer(id uint16, conn net.Conn, srv *Server) *Peer {
	p := &Peer{
		id:         id,
		conn:       conn,
		server:     srv,
		properties: make(map[string]protocol.Value),
		sendQ:      make(chan []byte, srv.Config.SendQueueDepth),
		closed:     make(chan struct{}),
	}
	p.touch()
	return p
}

// ID returns the registry-assigned peer id.
func (p *Peer) ID() uint16 {
	return p.id
}

// State returns the current lifecycle state.
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

func (p *Peer) setState(s PeerState) {
	p.state.Store(int32(s))
}

// Authenticated reports whether the peer passed Authenticate.
func (p *Peer) Authenticated() bool {
	return p.authenticated.Load()
}

// Nickname returns the display name set during Authenticate.
func (p *Peer) Nickname() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nickname
}

// UserID returns the user id set during Authenticate.
func (p *Peer) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

func (p *Peer) setIdentity(nickname, userID string) {
	p.mu.Lock()
	p.nickname = nickname
	p.userID = userID
	p.mu.Unlock()
	p.authenticated.Store(true)
}

// Properties returns a copy of the peer custom properties.
func (p *Peer) Properties() map[string]protocol.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]protocol.Value, len(p.properties))
	for k, v := range p.properties {
		out[k] = v
	}
	return out
}

func (p *Peer) mergeProperties(props map[string]protocol.Value) {
	p.mu.Lock()
	for k, v := range props {
		p.properties[k] = v
	}
	p.mu.Unlock()
}

// Room returns the room this peer is in, or nil.
func (p *Peer) Room() *Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

func (p *Peer) setRoom(r *Room) {
	p.mu.Lock()
	p.room = r
	if r == nil {
		p.isMaster = false
	}
	p.mu.Unlock()
}

// IsMaster reports whether this peer is the master client of its room.
func (p *Peer) IsMaster() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isMaster
}

func (p *Peer) setMaster(master bool) {
	p.mu.Lock()
	p.isMaster = master
	p.mu.Unlock()
}

func (p *Peer) touch() {
	p.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last inbound command.
func (p *Peer) LastActivity() time.Time {
	return time.Unix(0, p.lastActivity.Load())
}

// run drives the peer: the write loop in its own goroutine, VerifyConnect
// emission and then the blocking read loop.
func (p *Peer) run() {
	defer p.finalize()
	go p.writeLoop()

	p.server.hooks.emit(HookPeerConnecting, HookContext{PeerID: p.id})
	if err := p.sendCommand(&protocol.Command{Kind: protocol.CmdVerifyConnect}); err != nil {
		p.Disconnect("verify connect failed")
		return
	}
	p.setState(StateConnected)
	p.server.hooks.emit(HookPeerConnected, HookContext{PeerID: p.id})
	log.Debugf("Peer %d connected from %s", p.id, p.conn.RemoteAddr())

	p.readLoop()
}

func (p *Peer) readLoop() {
	var sb protocol.StreamBuffer
	buf := make([]byte, 4096)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			select {
			case <-p.closed:
			default:
				if errors.Is(err, io.EOF) {
					p.Disconnect("client closed connection")
				} else {
					p.Disconnect("read error")
					log.Debugf("Peer %d read error: %v", p.id, err)
				}
			}
			return
		}
		p.bytesIn.Add(uint64(n))
		sb.Feed(buf[:n])
		for {
			pkt, err := sb.Next()
			if err != nil {
				log.Warningf("Peer %d: %v", p.id, err)
				p.server.Stats.IncDecodeError()
				if p.noteBadSignature() {
					p.Disconnect("bad packet signature")
					return
				}
				break
			}
			if pkt == nil {
				break
			}
			p.resetBadSignatures()
			if !p.handlePacket(pkt) {
				return
			}
		}
	}
}

// handlePacket dispatches the commands of one packet. It returns false
// when the peer should stop reading.
func (p *Peer) handlePacket(pkt *protocol.Packet) bool {
	cmds, derr := protocol.DecodeCommands(pkt.Payload)
	for _, c := range cmds {
		p.handleCommand(c)
	}
	if derr != nil {
		log.Debugf("Peer %d command decode: %v", p.id, derr)
		p.server.Stats.IncDecodeError()
		if p.noteDecodeError() {
			p.Disconnect("too many decode errors")
			return false
		}
	}
	return p.State() != StateDisconnected
}

func (p *Peer) handleCommand(c *protocol.Command) {
	p.touch()
	p.server.Stats.IncRXCommand(c.Kind)
	switch c.Kind {
	case protocol.CmdVerifyConnect:
		// Client side echo, nothing to do.
	case protocol.CmdDisconnect:
		p.Disconnect("client request")
	case protocol.CmdPing:
		if c.Flags&protocol.FlagPingReply != 0 {
			p.lastPongRecv.Store(time.Now().UnixNano())
			return
		}
		if err := p.sendCommand(&protocol.Command{Kind: protocol.CmdPing, Flags: protocol.FlagPingReply}); err != nil {
			log.Debugf("Peer %d ping reply: %v", p.id, err)
		}
	case protocol.CmdSendReliable, protocol.CmdSendUnreliable:
		p.messagesIn.Add(1)
		req, ok := c.Message.(*protocol.OperationRequest)
		if !ok {
			// Clients may only send operation requests.
			log.Warningf("Peer %d sent unexpected message %T", p.id, c.Message)
			p.server.Stats.IncDecodeError()
			if p.noteDecodeError() {
				p.Disconnect("too many decode errors")
			}
			return
		}
		p.server.router.dispatch(p, req)
	}
}

// noteDecodeError counts a decode error and reports whether the peer
// crossed the disconnect threshold for the current window.
func (p *Peer) noteDecodeError() bool {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	now := time.Now()
	if now.Sub(p.decodeWindow) > decodeErrorWindow {
		p.decodeWindow = now
		p.decodeErrors = 0
	}
	p.decodeErrors++
	return p.decodeErrors >= maxDecodeErrors
}

func (p *Peer) noteBadSignature() bool {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.badSignatures++
	return p.badSignatures >= maxBadSignatures
}

func (p *Peer) resetBadSignatures() {
	p.errMu.Lock()
	p.badSignatures = 0
	p.errMu.Unlock()
}

// sendCommand assigns the sequence number for data commands, serializes
// and enqueues the command. One send never interleaves with another.
func (p *Peer) sendCommand(c *protocol.Command) error {
	switch c.Kind {
	case protocol.CmdSendReliable:
		c.Sequence = p.reliableSeq.Add(1)
	case protocol.CmdSendUnreliable:
		c.Sequence = p.unreliableSeq.Add(1)
	}
	c.Timestamp = uint32(time.Now().UnixMilli())
	payload, err := protocol.EncodeCommands(c)
	if err != nil {
		return err
	}
	raw := protocol.EncodePacket(p.id, payload)

	select {
	case <-p.closed:
		return errPeerClosed
	default:
	}
	select {
	case p.sendQ <- raw:
		p.bytesOut.Add(uint64(len(raw)))
		p.server.Stats.IncTXCommand(c.Kind)
		if c.Message != nil {
			p.messagesOut.Add(1)
		}
		return nil
	default:
		p.server.Stats.IncSendQueueOverflow()
		p.Disconnect("send queue overflow")
		return errSendQueueOverflow
	}
}

// SendResponse sends an operation response reliably.
func (p *Peer) SendResponse(resp *protocol.OperationResponse) error {
	return p.sendCommand(&protocol.Command{Kind: protocol.CmdSendReliable, Message: resp})
}

// SendEvent sends an event to this peer.
func (p *Peer) SendEvent(ev *protocol.EventData, reliable bool) error {
	kind := protocol.CmdSendReliable
	if !reliable {
		kind = protocol.CmdSendUnreliable
	}
	err := p.sendCommand(&protocol.Command{Kind: kind, Message: ev})
	if err == nil {
		p.server.Stats.IncEventSent(ev.Code)
		p.server.hooks.emit(HookEventSent, HookContext{PeerID: p.id, EventCode: ev.Code})
	}
	return err
}

func (p *Peer) writeLoop() {
	defer p.conn.Close()
	for {
		select {
		case b := <-p.sendQ:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := p.conn.Write(b); err != nil {
				return
			}
		case <-p.closed:
			// Grace window: flush whatever is already queued.
			for {
				select {
				case b := <-p.sendQ:
					_ = p.conn.SetWriteDeadline(time.Now().Add(p.server.Config.GracefulShutdown / 10))
					if _, err := p.conn.Write(b); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Disconnect initiates a cooperative disconnect. The first caller wins;
// later reasons are ignored.
func (p *Peer) Disconnect(reason string) {
	p.closeOnce.Do(func() {
		p.reason = reason
		if p.State() != StateDisconnected {
			p.setState(StateDisconnecting)
		}
		p.server.hooks.emit(HookPeerDisconnecting, HookContext{PeerID: p.id, Reason: reason})
		log.Debugf("Peer %d disconnecting: %s", p.id, reason)

		// Best-effort goodbye; dropped when the queue is full.
		if payload, err := protocol.EncodeCommands(&protocol.Command{
			Kind:      protocol.CmdDisconnect,
			Timestamp: uint32(time.Now().UnixMilli()),
		}); err == nil {
			select {
			case p.sendQ <- protocol.EncodePacket(p.id, payload):
			default:
			}
		}
		close(p.closed)
	})
}

// forceClose abandons any queued writes and closes the socket.
func (p *Peer) forceClose() {
	p.Disconnect("forced close")
	_ = p.conn.Close()
}

// finalize runs exactly once when the read loop exits: the peer leaves
// its room and is removed from the registry.
func (p *Peer) finalize() {
	p.Disconnect("connection closed")
	p.setState(StateDisconnected)
	p.server.removePeer(p, p.reason)
}

// Stat values exposed for monitoring and tests.

// BytesIn returns the total bytes received from this peer.
func (p *Peer) BytesIn() uint64 { return p.bytesIn.Load() }

// BytesOut returns the total bytes queued to this peer.
func (p *Peer) BytesOut() uint64 { return p.bytesOut.Load() }

// ReliableSeq returns the current reliable-out sequence number.
func (p *Peer) ReliableSeq() uint32 { return p.reliableSeq.Load() }

// UnreliableSeq returns the current unreliable-out sequence number.
func (p *Peer) UnreliableSeq() uint32 { return p.unreliableSeq.Load() }
