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
Package protocol implements the GpBinaryV16 wire format used by Photon
clients: tagged typed values, the outer packet framing and the command
records carried inside a packet. All multi-byte integers are big-endian.
*/
package protocol

import (
	"fmt"
)

// Type tags of the GpBinaryV16 encoding. Every serialized value starts
// with one of these.
const (
	TagNull        byte = 0x2A
	TagBool        byte = 0x6F
	TagByte        byte = 0x62
	TagShort       byte = 0x6B
	TagInt         byte = 0x69
	TagLong        byte = 0x6C
	TagFloat       byte = 0x66
	TagDouble      byte = 0x64
	TagString      byte = 0x73
	TagByteArray   byte = 0x78
	TagIntArray    byte = 0x6E
	TagStringArray byte = 0x61
	TagArray       byte = 0x79
	TagObjectArray byte = 0x7A
	TagHashTable   byte = 0x68
	TagDictionary  byte = 0x44
	TagCustom      byte = 0x63
)

// Custom data variant markers carried after TagCustom.
const (
	CustomVec2       byte = 'W'
	CustomVec3       byte = 'V'
	CustomQuaternion byte = 'Q'
	CustomPlayer     byte = 'P'
)

// Value is any Go value the codec can serialize. Decoded values map to
// the Go types listed next to each tag in the table above: nil, bool,
// byte, int16, int32, int64, float32, float64, string, []byte, []int32,
// []string, typed slices, []Value, map[Value]Value, Dictionary and the
// custom data structs.
type Value = any

// Vec2 is the 'W' custom data variant, two single-precision floats.
type Vec2 struct {
	X float32
	Y float32
}

// Vec3 is the 'V' custom data variant, three single-precision floats.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// Quaternion is the 'Q' custom data variant. The wire order is w,x,y,z.
type Quaternion struct {
	W float32
	X float32
	Y float32
	Z float32
}

// Player is the 'P' custom data variant, a single player id.
type Player struct {
	ID uint32
}

// CustomData holds a custom-data value with a variant the codec doesn't
// know. The payload is kept opaque and round-trips unchanged.
type CustomData struct {
	Variant byte
	Data    []byte
}

// DictEntry is a single key/value pair of a Dictionary.
type DictEntry struct {
	Key   Value
	Value Value
}

// Dictionary is the 0x44 container: strongly typed keys and values with
// the tags recorded up front. A zero or null tag means the elements carry
// their own tags inline.
type Dictionary struct {
	KeyTag   byte
	ValueTag byte
	Entries  []DictEntry
}

// DecodeError is a recoverable decoding failure bound to the offset where
// it was detected. The remainder of the enclosing command must be
// discarded by the caller.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Reason)
}

func newDecodeError(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
