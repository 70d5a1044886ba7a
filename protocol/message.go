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
	"math"
)

// MessageSignature opens every data-bearing command payload.
const MessageSignature byte = 0xF3

// Message type bytes following the signature.
const (
	MsgOperationRequest  byte = 2
	MsgOperationResponse byte = 3
	MsgEvent             byte = 4
)

// Message is a data payload carried inside SendReliable/SendUnreliable.
type Message interface {
	messageType() byte
}

// OperationRequest is a client-initiated operation call.
type OperationRequest struct {
	OpCode     byte
	Parameters map[byte]Value
}

func (*OperationRequest) messageType() byte { return MsgOperationRequest }

// OperationResponse answers exactly one OperationRequest.
type OperationResponse struct {
	OpCode       byte
	ReturnCode   int16
	DebugMessage string
	Parameters   map[byte]Value
}

func (*OperationResponse) messageType() byte { return MsgOperationResponse }

// EventData is a server-to-client notification.
type EventData struct {
	Code       byte
	Parameters map[byte]Value
}

func (*EventData) messageType() byte { return MsgEvent }

func writeParameters(e *Encoder, params map[byte]Value) error {
	if len(params) > math.MaxUint16 {
		return newDecodeError(e.Len(), "parameter table too big: %d entries", len(params))
	}
	e.writeUint16(uint16(len(params)))
	for k, v := range params {
		e.writeByte(k)
		if err := e.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

func readParameters(d *Decoder) (map[byte]Value, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	params := make(map[byte]Value, n)
	for i := 0; i < int(n); i++ {
		key, err := d.readByte()
		if err != nil {
			return nil, err
		}
		val, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		params[key] = val
	}
	return params, nil
}

func writeMessage(e *Encoder, m Message) error {
	e.writeByte(MessageSignature)
	e.writeByte(m.messageType())
	switch t := m.(type) {
	case *OperationRequest:
		e.writeByte(t.OpCode)
		return writeParameters(e, t.Parameters)
	case *OperationResponse:
		e.writeByte(t.OpCode)
		e.writeUint16(uint16(t.ReturnCode))
		var debug Value
		if t.DebugMessage != "" {
			debug = t.DebugMessage
		}
		if err := e.WriteValue(debug); err != nil {
			return err
		}
		return writeParameters(e, t.Parameters)
	case *EventData:
		e.writeByte(t.Code)
		return writeParameters(e, t.Parameters)
	default:
		return newDecodeError(e.Len(), "unsupported message %T", m)
	}
}

func readMessage(d *Decoder) (Message, error) {
	sig, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if sig != MessageSignature {
		return nil, newDecodeError(d.pos-1, "bad message signature 0x%02x", sig)
	}
	mt, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch mt {
	case MsgOperationRequest:
		op, err := d.readByte()
		if err != nil {
			return nil, err
		}
		params, err := readParameters(d)
		if err != nil {
			return nil, err
		}
		return &OperationRequest{OpCode: op, Parameters: params}, nil
	case MsgOperationResponse:
		op, err := d.readByte()
		if err != nil {
			return nil, err
		}
		rc, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		debugVal, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		debug, _ := debugVal.(string)
		params, err := readParameters(d)
		if err != nil {
			return nil, err
		}
		return &OperationResponse{OpCode: op, ReturnCode: int16(rc), DebugMessage: debug, Parameters: params}, nil
	case MsgEvent:
		code, err := d.readByte()
		if err != nil {
			return nil, err
		}
		params, err := readParameters(d)
		if err != nil {
			return nil, err
		}
		return &EventData{Code: code, Parameters: params}, nil
	default:
		return nil, newDecodeError(d.pos-1, "unknown message type %d", mt)
	}
}
