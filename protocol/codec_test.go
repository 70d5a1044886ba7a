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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		nil,
		true,
		false,
		byte(0),
		byte(255),
		int16(-1234),
		int32(1 << 20),
		int64(1 << 40),
		float32(3.5),
		float64(-2.25),
		"",
		"hello photon",
		[]byte{1, 2, 3},
		[]int32{-1, 0, 1 << 30},
		[]string{"a", "", "c"},
		[]bool{true, false, true},
		[]int16{1, -2, 3},
		[]int64{1 << 40, -1},
		[]float32{1.5, -0.25},
		[]float64{2.5, -0.125},
		[]Value{byte(1), "two", int32(3)},
		map[Value]Value{byte(1): "one", "two": int32(2)},
		Vec2{X: 1, Y: -2},
		Vec3{X: 1, Y: 2, Z: 3},
		Quaternion{W: 1, X: 0, Y: 0, Z: 0},
		Player{ID: 42},
		CustomData{Variant: 'Z', Data: []byte{0xde, 0xad}},
		Dictionary{
			KeyTag:   TagString,
			ValueTag: TagInt,
			Entries: []DictEntry{
				{Key: "a", Value: int32(1)},
				{Key: "b", Value: int32(2)},
			},
		},
		Dictionary{
			KeyTag:   0,
			ValueTag: 0,
			Entries: []DictEntry{
				{Key: byte(1), Value: "inline"},
			},
		},
	}

	for _, v := range values {
		b, err := EncodeValue(v)
		require.NoError(t, err, "encoding %#v", v)
		got, err := DecodeValue(b)
		require.NoError(t, err, "decoding %#v", v)
		require.Equal(t, v, got)
	}
}

func TestIntegerNarrowing(t *testing.T) {
	cases := []struct {
		in  int
		tag byte
	}{
		{0, TagByte},
		{255, TagByte},
		{256, TagShort},
		{-1, TagShort},
		{-32768, TagShort},
		{32768, TagInt},
		{-40000, TagInt},
		{1 << 31, TagLong},
		{-(1 << 35), TagLong},
	}
	for _, c := range cases {
		b, err := EncodeValue(c.in)
		require.NoError(t, err)
		require.Equal(t, c.tag, b[0], "value %d", c.in)

		got, err := DecodeValue(b)
		require.NoError(t, err)
		switch v := got.(type) {
		case byte:
			require.EqualValues(t, c.in, v)
		case int16:
			require.EqualValues(t, c.in, v)
		case int32:
			require.EqualValues(t, c.in, v)
		case int64:
			require.EqualValues(t, c.in, v)
		default:
			t.Fatalf("unexpected decoded type %T", got)
		}
	}
}

func TestSizedIntegersKeepTheirTag(t *testing.T) {
	b, err := EncodeValue(int16(5))
	require.NoError(t, err)
	require.Equal(t, TagShort, b[0])

	b, err = EncodeValue(int32(5))
	require.NoError(t, err)
	require.Equal(t, TagInt, b[0])

	b, err = EncodeValue(int64(5))
	require.NoError(t, err)
	require.Equal(t, TagLong, b[0])
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"unknown tag", []byte{0xff}},
		{"truncated short", []byte{TagShort, 0x01}},
		{"truncated string", []byte{TagString, 0x00, 0x05, 'a', 'b'}},
		{"string length overflow", []byte{TagString, 0xff, 0xff, 'a'}},
		{"byte array negative length", []byte{TagByteArray, 0xff, 0xff, 0xff, 0xff}},
		{"int array overflow", []byte{TagIntArray, 0x00, 0x00, 0x00, 0x09, 0x01}},
		{"truncated hash table", []byte{TagHashTable, 0x00, 0x02, TagByte, 0x01}},
		{"vec2 wrong payload", []byte{TagCustom, 'W', 0x00, 0x03, 1, 2, 3}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeValue(c.in)
			require.Error(t, err)
			var derr *DecodeError
			require.ErrorAs(t, err, &derr)
		})
	}
}

func TestDecodeErrorOffset(t *testing.T) {
	// A valid byte value followed by garbage inside an object array.
	b := []byte{TagObjectArray, 0x00, 0x02, TagByte, 0x07, 0xff}
	_, err := DecodeValue(b)
	require.Error(t, err)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, 5, derr.Offset)
}

func TestHashTableRejectsUnhashableKeys(t *testing.T) {
	// Hash table with a byte-array key.
	b := []byte{
		TagHashTable, 0x00, 0x01,
		TagByteArray, 0x00, 0x00, 0x00, 0x01, 0xaa,
		TagNull,
	}
	_, err := DecodeValue(b)
	require.Error(t, err)
}

func TestUnknownCustomVariantIsOpaque(t *testing.T) {
	in := CustomData{Variant: 'X', Data: []byte{1, 2, 3, 4, 5}}
	b, err := EncodeValue(in)
	require.NoError(t, err)
	got, err := DecodeValue(b)
	require.NoError(t, err)
	require.Equal(t, in, got)
}

func TestTrailingBytesRejected(t *testing.T) {
	b, err := EncodeValue(byte(1))
	require.NoError(t, err)
	_, err = DecodeValue(append(b, 0x00))
	require.Error(t, err)
}

func TestStringMapEncodesAsHashTable(t *testing.T) {
	in := map[string]Value{"hp": int32(100), "name": "alice"}
	b, err := EncodeValue(in)
	require.NoError(t, err)
	require.Equal(t, TagHashTable, b[0])

	got, err := DecodeValue(b)
	require.NoError(t, err)
	require.Equal(t, map[Value]Value{"hp": int32(100), "name": "alice"}, got)
}

func TestDictionaryTagMismatch(t *testing.T) {
	d := Dictionary{
		KeyTag:   TagString,
		ValueTag: TagInt,
		Entries:  []DictEntry{{Key: "a", Value: "not an int"}},
	}
	_, err := EncodeValue(d)
	require.Error(t, err)
}
