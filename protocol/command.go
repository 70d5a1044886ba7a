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

// Command kinds.
const (
	CmdVerifyConnect  byte = 3
	CmdDisconnect     byte = 4
	CmdPing           byte = 5
	CmdSendReliable   byte = 6
	CmdSendUnreliable byte = 7
)

// FlagPingReply marks a ping answering an earlier ping. A peer receiving
// a ping without this flag answers with it set; a reply is only recorded.
const FlagPingReply byte = 0x01

// CommandName returns a human readable command kind name.
func CommandName(kind byte) string {
	switch kind {
	case CmdVerifyConnect:
		return "VerifyConnect"
	case CmdDisconnect:
		return "Disconnect"
	case CmdPing:
		return "Ping"
	case CmdSendReliable:
		return "SendReliable"
	case CmdSendUnreliable:
		return "SendUnreliable"
	default:
		return fmt.Sprintf("Unknown(%d)", kind)
	}
}

// Command is one command record inside a packet payload.
type Command struct {
	Kind      byte
	Channel   byte
	Flags     byte
	Timestamp uint32
	// Sequence is set for SendReliable and SendUnreliable, taken from
	// two independent per-peer counters.
	Sequence uint32
	// Message is the data payload of SendReliable/SendUnreliable:
	// *OperationRequest, *OperationResponse or *EventData.
	Message Message
}

func hasSequence(kind byte) bool {
	return kind == CmdSendReliable || kind == CmdSendUnreliable
}

// EncodeTo appends the command record to the encoder.
func (c *Command) EncodeTo(e *Encoder) error {
	e.writeByte(c.Kind)
	e.writeByte(c.Channel)
	e.writeByte(c.Flags)
	e.writeByte(0) // reserved
	e.writeUint32(c.Timestamp)
	if hasSequence(c.Kind) {
		e.writeUint32(c.Sequence)
	}
	if c.Message != nil {
		if !hasSequence(c.Kind) {
			return fmt.Errorf("command %s cannot carry a payload", CommandName(c.Kind))
		}
		return writeMessage(e, c.Message)
	}
	if hasSequence(c.Kind) {
		return fmt.Errorf("command %s requires a payload", CommandName(c.Kind))
	}
	return nil
}

// EncodeCommands serializes command records into a packet payload.
func EncodeCommands(cmds ...*Command) ([]byte, error) {
	e := NewEncoder()
	for _, c := range cmds {
		if err := c.EncodeTo(e); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// DecodeCommands parses a packet payload into command records. On a
// decode error the successfully parsed commands are returned together
// with the error; the remainder of the payload is discarded.
func DecodeCommands(payload []byte) ([]*Command, error) {
	d := NewDecoder(payload)
	var cmds []*Command
	for d.Remaining() > 0 {
		c, err := decodeCommand(d)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func decodeCommand(d *Decoder) (*Command, error) {
	start := d.pos
	if err := d.require(8); err != nil {
		return nil, err
	}
	c := &Command{}
	c.Kind, _ = d.readByte()
	c.Channel, _ = d.readByte()
	c.Flags, _ = d.readByte()
	_, _ = d.readByte() // reserved
	c.Timestamp, _ = d.readUint32()

	switch c.Kind {
	case CmdVerifyConnect, CmdDisconnect, CmdPing:
		return c, nil
	case CmdSendReliable, CmdSendUnreliable:
		seq, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		c.Sequence = seq
		msg, err := readMessage(d)
		if err != nil {
			return nil, err
		}
		c.Message = msg
		return c, nil
	default:
		return nil, newDecodeError(start, "unknown command kind %d", c.Kind)
	}
}
