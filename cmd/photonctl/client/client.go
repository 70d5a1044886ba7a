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

/*
Package client implements a minimal blocking game-server client used by
the photonctl diagnostics.
*/
package client

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// Client is a synchronous connection to a game server. It is not safe
// for concurrent use.
type Client struct {
	conn    net.Conn
	sb      protocol.StreamBuffer
	timeout time.Duration

	reliableSeq   uint32
	unreliableSeq uint32

	// Events arriving while waiting for a response are queued here.
	Events []*protocol.EventData
}

// Dial connects and waits for the server's VerifyConnect.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, timeout: timeout}
	cmd, err := c.readCommand()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for verify connect: %w", err)
	}
	if cmd.Kind != protocol.CmdVerifyConnect {
		conn.Close()
		return nil, fmt.Errorf("expected verify connect, got %s", protocol.CommandName(cmd.Kind))
	}
	return c, nil
}

// Close sends a Disconnect command and closes the socket.
func (c *Client) Close() error {
	_ = c.send(&protocol.Command{Kind: protocol.CmdDisconnect})
	return c.conn.Close()
}

func (c *Client) send(cmd *protocol.Command) error {
	switch cmd.Kind {
	case protocol.CmdSendReliable:
		c.reliableSeq++
		cmd.Sequence = c.reliableSeq
	case protocol.CmdSendUnreliable:
		c.unreliableSeq++
		cmd.Sequence = c.unreliableSeq
	}
	cmd.Timestamp = uint32(time.Now().UnixMilli())
	payload, err := protocol.EncodeCommands(cmd)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err = c.conn.Write(protocol.EncodePacket(0, payload))
	return err
}

func (c *Client) readCommand() (*protocol.Command, error) {
	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, 4096)
	for {
		if pkt, err := c.sb.Next(); err != nil {
			return nil, err
		} else if pkt != nil {
			cmds, err := protocol.DecodeCommands(pkt.Payload)
			if err != nil {
				return nil, err
			}
			if len(cmds) > 0 {
				// One command per packet is all the diagnostics need.
				return cmds[0], nil
			}
			continue
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, err
		}
		c.sb.Feed(buf[:n])
	}
}

// Request sends an operation and waits for its response. Events and
// pings arriving in between are collected or answered.
func (c *Client) Request(op byte, params map[byte]protocol.Value) (*protocol.OperationResponse, error) {
	if params == nil {
		params = map[byte]protocol.Value{}
	}
	err := c.send(&protocol.Command{
		Kind:    protocol.CmdSendReliable,
		Message: &protocol.OperationRequest{OpCode: op, Parameters: params},
	})
	if err != nil {
		return nil, err
	}
	for {
		cmd, err := c.readCommand()
		if err != nil {
			return nil, err
		}
		switch m := cmd.Message.(type) {
		case *protocol.OperationResponse:
			if m.OpCode != op {
				log.Debugf("Skipping response for operation %d", m.OpCode)
				continue
			}
			return m, nil
		case *protocol.EventData:
			c.Events = append(c.Events, m)
		case nil:
			if cmd.Kind == protocol.CmdPing && cmd.Flags&protocol.FlagPingReply == 0 {
				_ = c.send(&protocol.Command{Kind: protocol.CmdPing, Flags: protocol.FlagPingReply})
			}
		}
	}
}

// Authenticate performs the Authenticate operation.
func (c *Client) Authenticate(nickname string) (*protocol.OperationResponse, error) {
	params := map[byte]protocol.Value{}
	if nickname != "" {
		params[protocol.ParamNickname] = nickname
	}
	resp, err := c.Request(protocol.OpAuthenticate, params)
	if err != nil {
		return nil, err
	}
	if resp.ReturnCode != protocol.ReturnOK {
		return resp, fmt.Errorf("authenticate failed: %d %s", resp.ReturnCode, resp.DebugMessage)
	}
	return resp, nil
}

// Ping measures one ping round trip.
func (c *Client) Ping() (time.Duration, error) {
	start := time.Now()
	if err := c.send(&protocol.Command{Kind: protocol.CmdPing}); err != nil {
		return 0, err
	}
	for {
		cmd, err := c.readCommand()
		if err != nil {
			return 0, err
		}
		if cmd.Kind == protocol.CmdPing && cmd.Flags&protocol.FlagPingReply != 0 {
			return time.Since(start), nil
		}
	}
}
