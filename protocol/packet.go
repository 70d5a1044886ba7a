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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Signature opens every packet on the wire.
const Signature uint16 = 0xFB17

// PacketHeaderLength is signature + peer-id + crc + payload length.
const PacketHeaderLength = 12

// MaxPacketLength caps the declared payload size. Anything larger is
// treated the same as a signature mismatch.
const MaxPacketLength = 1 << 20

// ErrBadSignature reports a packet whose signature doesn't match. The
// stream cannot be resynchronized, so the buffered bytes are dropped.
var ErrBadSignature = errors.New("packet signature mismatch")

// Packet is one framed unit of the TCP stream: the peer id from the
// header plus the raw command payload.
type Packet struct {
	PeerID  uint16
	Payload []byte
}

// EncodePacket frames a command payload. The crc field is written as
// zero and not validated on receipt.
func EncodePacket(peerID uint16, payload []byte) []byte {
	out := make([]byte, PacketHeaderLength+len(payload))
	binary.BigEndian.PutUint16(out[0:], Signature)
	binary.BigEndian.PutUint16(out[2:], peerID)
	binary.BigEndian.PutUint32(out[4:], 0)
	binary.BigEndian.PutUint32(out[8:], uint32(len(payload)))
	copy(out[PacketHeaderLength:], payload)
	return out
}

// StreamBuffer reassembles packets from a TCP stream. A single read may
// deliver multiple packets or a partial one; Feed the raw bytes and pull
// complete packets with Next.
type StreamBuffer struct {
	buf bytes.Buffer
}

// Feed appends raw bytes received from the connection.
func (s *StreamBuffer) Feed(p []byte) {
	s.buf.Write(p)
}

// Buffered returns the number of bytes awaiting a complete packet.
func (s *StreamBuffer) Buffered() int {
	return s.buf.Len()
}

// Next extracts the next complete packet. It returns (nil, nil) when more
// bytes are needed. On a signature mismatch or an insane declared length
// the buffered bytes are discarded and ErrBadSignature is returned; the
// caller decides whether to keep the connection.
func (s *StreamBuffer) Next() (*Packet, error) {
	if s.buf.Len() < PacketHeaderLength {
		return nil, nil
	}
	header := s.buf.Bytes()[:PacketHeaderLength]
	if binary.BigEndian.Uint16(header[0:]) != Signature {
		s.buf.Reset()
		return nil, ErrBadSignature
	}
	length := binary.BigEndian.Uint32(header[8:])
	if length > MaxPacketLength {
		s.buf.Reset()
		return nil, fmt.Errorf("%w: declared payload of %d bytes", ErrBadSignature, length)
	}
	if s.buf.Len() < PacketHeaderLength+int(length) {
		return nil, nil
	}
	peerID := binary.BigEndian.Uint16(header[2:])
	s.buf.Next(PacketHeaderLength)
	payload := make([]byte, length)
	copy(payload, s.buf.Next(int(length)))
	return &Packet{PeerID: peerID, Payload: payload}, nil
}
