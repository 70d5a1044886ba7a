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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	raw := EncodePacket(7, payload)
	require.Len(t, raw, PacketHeaderLength+len(payload))
	require.Equal(t, Signature, binary.BigEndian.Uint16(raw[0:]))

	var sb StreamBuffer
	sb.Feed(raw)
	p, err := sb.Next()
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, uint16(7), p.PeerID)
	require.Equal(t, payload, p.Payload)

	p, err = sb.Next()
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestPartialFeed(t *testing.T) {
	raw := EncodePacket(1, []byte{0xaa, 0xbb, 0xcc})

	var sb StreamBuffer
	for i := 0; i < len(raw)-1; i++ {
		sb.Feed(raw[i : i+1])
		p, err := sb.Next()
		require.NoError(t, err)
		require.Nil(t, p)
	}
	sb.Feed(raw[len(raw)-1:])
	p, err := sb.Next()
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, []byte{0xaa, 0xbb, 0xcc}, p.Payload)
}

func TestMultiplePacketsInOneRead(t *testing.T) {
	raw := append(EncodePacket(1, []byte{1}), EncodePacket(2, []byte{2})...)

	var sb StreamBuffer
	sb.Feed(raw)

	p, err := sb.Next()
	require.NoError(t, err)
	require.Equal(t, uint16(1), p.PeerID)

	p, err = sb.Next()
	require.NoError(t, err)
	require.Equal(t, uint16(2), p.PeerID)

	p, err = sb.Next()
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestBadSignatureDiscardsBuffer(t *testing.T) {
	var sb StreamBuffer
	sb.Feed(make([]byte, PacketHeaderLength))
	_, err := sb.Next()
	require.ErrorIs(t, err, ErrBadSignature)
	require.Equal(t, 0, sb.Buffered())
}

func TestInsaneLengthTreatedAsBadPacket(t *testing.T) {
	raw := EncodePacket(1, []byte{1})
	binary.BigEndian.PutUint32(raw[8:], MaxPacketLength+1)

	var sb StreamBuffer
	sb.Feed(raw)
	_, err := sb.Next()
	require.ErrorIs(t, err, ErrBadSignature)
}
