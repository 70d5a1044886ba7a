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
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberarchives/photon-server-go/protocol"
	"github.com/cyberarchives/photon-server-go/stats"
)

const testReadTimeout = 2 * time.Second

func newTestServer(t *testing.T) *Server {
	c := DefaultConfig()
	c.SendQueueDepth = 64
	c.GracefulShutdown = 500 * time.Millisecond
	require.NoError(t, c.Validate())
	return NewServer(c, stats.NewJSONStats())
}

// testClient drives one server-side peer over a net.Pipe, speaking the
// wire protocol like a real client.
type testClient struct {
	t    *testing.T
	peer *Peer
	conn net.Conn

	sb      protocol.StreamBuffer
	pending []*protocol.Command
	events  []*protocol.EventData
	seq     uint32
}

func connectTestPeer(t *testing.T, s *Server) *testClient {
	serverSide, clientSide := net.Pipe()
	p := s.addPeer(serverSide)
	require.NotNil(t, p)
	go p.run()

	tc := &testClient{t: t, peer: p, conn: clientSide}
	cmd := tc.readCommand()
	require.Equal(t, protocol.CmdVerifyConnect, cmd.Kind)
	return tc
}

func (tc *testClient) close() {
	tc.conn.Close()
}

func (tc *testClient) readCommand() *protocol.Command {
	tc.t.Helper()
	if len(tc.pending) > 0 {
		cmd := tc.pending[0]
		tc.pending = tc.pending[1:]
		return cmd
	}
	buf := make([]byte, 4096)
	deadline := time.Now().Add(testReadTimeout)
	for {
		pkt, err := tc.sb.Next()
		require.NoError(tc.t, err)
		if pkt != nil {
			cmds, err := protocol.DecodeCommands(pkt.Payload)
			require.NoError(tc.t, err)
			tc.pending = append(tc.pending, cmds...)
			if len(tc.pending) > 0 {
				cmd := tc.pending[0]
				tc.pending = tc.pending[1:]
				return cmd
			}
			continue
		}
		require.NoError(tc.t, tc.conn.SetReadDeadline(deadline))
		n, err := tc.conn.Read(buf)
		require.NoError(tc.t, err)
		tc.sb.Feed(buf[:n])
	}
}

func (tc *testClient) send(req *protocol.OperationRequest) {
	tc.t.Helper()
	tc.seq++
	payload, err := protocol.EncodeCommands(&protocol.Command{
		Kind:     protocol.CmdSendReliable,
		Sequence: tc.seq,
		Message:  req,
	})
	require.NoError(tc.t, err)
	_, err = tc.conn.Write(protocol.EncodePacket(0, payload))
	require.NoError(tc.t, err)
}

// request performs one operation round trip. Events arriving before the
// response are stashed for expectEvent.
func (tc *testClient) request(op byte, params map[byte]protocol.Value) *protocol.OperationResponse {
	tc.t.Helper()
	if params == nil {
		params = map[byte]protocol.Value{}
	}
	tc.send(&protocol.OperationRequest{OpCode: op, Parameters: params})
	for {
		cmd := tc.readCommand()
		switch m := cmd.Message.(type) {
		case *protocol.OperationResponse:
			require.Equal(tc.t, op, m.OpCode)
			return m
		case *protocol.EventData:
			tc.events = append(tc.events, m)
		}
	}
}

// expectEvent waits for the next event with the given code, stashed or
// freshly read. Other events read on the way are kept.
func (tc *testClient) expectEvent(code byte) *protocol.EventData {
	tc.t.Helper()
	for i, ev := range tc.events {
		if ev.Code == code {
			tc.events = append(tc.events[:i], tc.events[i+1:]...)
			return ev
		}
	}
	for {
		cmd := tc.readCommand()
		ev, ok := cmd.Message.(*protocol.EventData)
		if !ok {
			continue
		}
		if ev.Code == code {
			return ev
		}
		tc.events = append(tc.events, ev)
	}
}

// nextEvent returns the next event in arrival order, stashed first.
func (tc *testClient) nextEvent() *protocol.EventData {
	tc.t.Helper()
	if len(tc.events) > 0 {
		ev := tc.events[0]
		tc.events = tc.events[1:]
		return ev
	}
	for {
		cmd := tc.readCommand()
		if ev, ok := cmd.Message.(*protocol.EventData); ok {
			return ev
		}
	}
}

func (tc *testClient) authenticate(nickname string) *protocol.OperationResponse {
	tc.t.Helper()
	params := map[byte]protocol.Value{}
	if nickname != "" {
		params[protocol.ParamNickname] = nickname
	}
	resp := tc.request(protocol.OpAuthenticate, params)
	require.Equal(tc.t, protocol.ReturnOK, resp.ReturnCode)
	return resp
}

func (tc *testClient) join(room string, extra map[byte]protocol.Value) *protocol.OperationResponse {
	tc.t.Helper()
	params := map[byte]protocol.Value{protocol.ParamRoomName: room}
	for k, v := range extra {
		params[k] = v
	}
	return tc.request(protocol.OpJoinRoom, params)
}

func TestVerifyConnectOnAccept(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	require.Equal(t, 1, s.PeerCount())
	require.Eventually(t, func() bool {
		return tc.peer.State() == StateConnected
	}, time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	payload, err := protocol.EncodeCommands(&protocol.Command{Kind: protocol.CmdPing})
	require.NoError(t, err)
	_, err = tc.conn.Write(protocol.EncodePacket(0, payload))
	require.NoError(t, err)

	cmd := tc.readCommand()
	require.Equal(t, protocol.CmdPing, cmd.Kind)
	require.NotZero(t, cmd.Flags&protocol.FlagPingReply)
}

func TestClientDisconnectRemovesPeer(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)

	tc.close()
	require.Eventually(t, func() bool {
		return s.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, StateDisconnected, tc.peer.State())
}

func TestDisconnectCommand(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	payload, err := protocol.EncodeCommands(&protocol.Command{Kind: protocol.CmdDisconnect})
	require.NoError(t, err)
	_, err = tc.conn.Write(protocol.EncodePacket(0, payload))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestInactivityTimeout(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	require.Eventually(t, func() bool {
		return tc.peer.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	tc.peer.lastActivity.Store(time.Now().Add(-2 * s.Config.ConnectionTimeout).UnixNano())
	s.checkLiveness(time.Now())

	require.Eventually(t, func() bool {
		return s.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLivenessSendsPings(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	require.Eventually(t, func() bool {
		return tc.peer.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	// lastPingSent starts at zero, so the first sweep pings.
	s.checkLiveness(time.Now())
	cmd := tc.readCommand()
	require.Equal(t, protocol.CmdPing, cmd.Kind)
	require.Zero(t, cmd.Flags&protocol.FlagPingReply)
}

func TestBadSignatureDisconnects(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()

	for i := 0; i < maxBadSignatures; i++ {
		_, err := tc.conn.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 0})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return s.PeerCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestAcceptRejectsOverCapacity(t *testing.T) {
	s := newTestServer(t)
	s.Config.MaxConnections = 1

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	s.listener = l
	go s.acceptLoop()

	first, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	// The first connection is served and greeted.
	var sb protocol.StreamBuffer
	buf := make([]byte, 4096)
	require.NoError(t, first.SetReadDeadline(time.Now().Add(testReadTimeout)))
	for {
		pkt, err := sb.Next()
		require.NoError(t, err)
		if pkt != nil {
			cmds, err := protocol.DecodeCommands(pkt.Payload)
			require.NoError(t, err)
			require.Equal(t, protocol.CmdVerifyConnect, cmds[0].Kind)
			break
		}
		n, err := first.Read(buf)
		require.NoError(t, err)
		sb.Feed(buf[:n])
	}
	require.Equal(t, 1, s.PeerCount())

	// The second connection is over the cap and closed without a greeting.
	second, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(testReadTimeout)))
	_, err = second.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, s.PeerCount())
}

func TestSendQueueOverflowDisconnects(t *testing.T) {
	s := newTestServer(t)
	s.Config.SendQueueDepth = 2

	// The client never reads past the greeting, so the write loop blocks
	// on the pipe and the queue behind it fills up.
	tc := connectTestPeer(t, s)

	ev := &protocol.EventData{Code: 1, Parameters: map[byte]protocol.Value{
		protocol.ParamData: "payload",
	}}
	var sendErr error
	for i := 0; i < 2*s.Config.SendQueueDepth+2; i++ {
		if sendErr = tc.peer.SendEvent(ev, true); sendErr != nil {
			break
		}
	}
	require.ErrorIs(t, sendErr, errSendQueueOverflow)
	require.Equal(t, "send queue overflow", tc.peer.reason)

	tc.close()
	require.Eventually(t, func() bool {
		return s.PeerCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, StateDisconnected, tc.peer.State())
}

func TestRemoveRoomRefusesNonEmpty(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	defer tc.close()
	tc.authenticate("alice")
	resp := tc.join("lobby", nil)
	require.Equal(t, protocol.ReturnOK, resp.ReturnCode)

	require.Error(t, s.RemoveRoom("lobby"))
	require.Equal(t, 1, s.RoomCount())

	require.Error(t, s.RemoveRoom("missing"))
}

func TestShutdownDisconnectsEverything(t *testing.T) {
	s := newTestServer(t)
	tc := connectTestPeer(t, s)
	tc.authenticate("alice")
	resp := tc.join("lobby", nil)
	require.Equal(t, protocol.ReturnOK, resp.ReturnCode)

	// Drain whatever the server still sends during the shutdown.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := tc.conn.Read(buf); err != nil {
				return
			}
		}
	}()

	s.Shutdown()
	require.Eventually(t, func() bool {
		return s.PeerCount() == 0 && s.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHookObserver(t *testing.T) {
	s := newTestServer(t)

	var mu sync.Mutex
	seen := make(map[string]int)
	s.RegisterObserver(func(event string, ctx HookContext) {
		mu.Lock()
		seen[event]++
		mu.Unlock()
	})

	tc := connectTestPeer(t, s)
	tc.authenticate("alice")
	resp := tc.join("lobby", nil)
	require.Equal(t, protocol.ReturnOK, resp.ReturnCode)
	tc.close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[HookPeerDisconnected] == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, seen[HookPeerConnected])
	require.Equal(t, 1, seen[HookPeerAuthenticated])
	require.Equal(t, 1, seen[HookRoomCreated])
	require.GreaterOrEqual(t, seen[HookOperationProcessed], 2)
}
