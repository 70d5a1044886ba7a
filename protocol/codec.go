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
	"fmt"
	"math"
)

// Decoder reads tagged values from a byte slice, tracking the current
// offset so failures can be reported precisely.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder over buf. The slice is not copied.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset returns the current read position.
func (d *Decoder) Offset() int {
	return d.pos
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) require(n int) error {
	if n < 0 {
		return newDecodeError(d.pos, "negative declared length")
	}
	if d.pos+n > len(d.buf) {
		return newDecodeError(d.pos, "truncated value: need %d bytes, have %d", n, len(d.buf)-d.pos)
	}
	return nil
}

func (d *Decoder) readByte() (byte, error) {
	if err := d.require(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readUint16() (uint16, error) {
	if err := d.require(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) readUint32() (uint32, error) {
	if err := d.require(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) readUint64() (uint64, error) {
	if err := d.require(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if err := d.require(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

func (d *Decoder) readString() (string, error) {
	n, err := d.readUint16()
	if err != nil {
		return "", err
	}
	if err := d.require(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// readLength reads a u32 length and rejects values that would be negative
// as a signed 32-bit integer.
func (d *Decoder) readLength() (int, error) {
	n, err := d.readUint32()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, newDecodeError(d.pos-4, "negative declared length")
	}
	return int(n), nil
}

// ReadValue reads one tagged value.
func (d *Decoder) ReadValue() (Value, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	return d.readTagged(tag)
}

func (d *Decoder) readTagged(tag byte) (Value, error) {
	switch tag {
	case TagNull:
		return nil, nil
	case TagBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case TagByte:
		return d.readByte()
	case TagShort:
		v, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		return int16(v), nil
	case TagInt:
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case TagLong:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return int64(v), nil
	case TagFloat:
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil
	case TagDouble:
		v, err := d.readUint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case TagString:
		return d.readString()
	case TagByteArray:
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		return d.readBytes(n)
	case TagIntArray:
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if err := d.require(n * 4); err != nil {
			return nil, err
		}
		out := make([]int32, n)
		for i := range out {
			v, _ := d.readUint32()
			out[i] = int32(v)
		}
		return out, nil
	case TagStringArray:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, n)
		for i := 0; i < int(n); i++ {
			s, err := d.readString()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case TagArray:
		return d.readTypedArray()
	case TagObjectArray:
		n, err := d.readUint16()
		if err != nil {
			return nil, err
		}
		out := make([]Value, 0, n)
		for i := 0; i < int(n); i++ {
			v, err := d.ReadValue()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case TagHashTable:
		return d.readHashTable()
	case TagDictionary:
		return d.readDictionary()
	case TagCustom:
		return d.readCustom()
	default:
		return nil, newDecodeError(d.pos-1, "unknown type tag 0x%02x", tag)
	}
}

func (d *Decoder) readTypedArray() (Value, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	inner, err := d.readByte()
	if err != nil {
		return nil, err
	}
	count := int(n)
	switch inner {
	case TagBool:
		out := make([]bool, 0, count)
		for i := 0; i < count; i++ {
			b, err := d.readByte()
			if err != nil {
				return nil, err
			}
			out = append(out, b != 0)
		}
		return out, nil
	case TagShort:
		out := make([]int16, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readUint16()
			if err != nil {
				return nil, err
			}
			out = append(out, int16(v))
		}
		return out, nil
	case TagLong:
		out := make([]int64, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readUint64()
			if err != nil {
				return nil, err
			}
			out = append(out, int64(v))
		}
		return out, nil
	case TagFloat:
		out := make([]float32, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readUint32()
			if err != nil {
				return nil, err
			}
			out = append(out, math.Float32frombits(v))
		}
		return out, nil
	case TagDouble:
		out := make([]float64, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readUint64()
			if err != nil {
				return nil, err
			}
			out = append(out, math.Float64frombits(v))
		}
		return out, nil
	case TagHashTable:
		out := make([]map[Value]Value, 0, count)
		for i := 0; i < count; i++ {
			h, err := d.readHashTable()
			if err != nil {
				return nil, err
			}
			out = append(out, h)
		}
		return out, nil
	default:
		// Uncommon element types fall back to a generic slice.
		out := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			v, err := d.readTagged(inner)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func (d *Decoder) readHashTable() (map[Value]Value, error) {
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	out := make(map[Value]Value, n)
	for i := 0; i < int(n); i++ {
		keyOffset := d.pos
		key, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		if !comparableKey(key) {
			return nil, newDecodeError(keyOffset, "unsupported hash-table key type %T", key)
		}
		val, err := d.ReadValue()
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
	return out, nil
}

func (d *Decoder) readDictionary() (Dictionary, error) {
	keyTag, err := d.readByte()
	if err != nil {
		return Dictionary{}, err
	}
	valTag, err := d.readByte()
	if err != nil {
		return Dictionary{}, err
	}
	n, err := d.readUint16()
	if err != nil {
		return Dictionary{}, err
	}
	dict := Dictionary{KeyTag: keyTag, ValueTag: valTag}
	for i := 0; i < int(n); i++ {
		key, err := d.readDictElem(keyTag)
		if err != nil {
			return Dictionary{}, err
		}
		val, err := d.readDictElem(valTag)
		if err != nil {
			return Dictionary{}, err
		}
		dict.Entries = append(dict.Entries, DictEntry{Key: key, Value: val})
	}
	return dict, nil
}

// readDictElem reads a dictionary element. A zero or null tag means the
// element carries its own tag inline.
func (d *Decoder) readDictElem(tag byte) (Value, error) {
	if tag == 0 || tag == TagNull {
		return d.ReadValue()
	}
	return d.readTagged(tag)
}

func (d *Decoder) readCustom() (Value, error) {
	variant, err := d.readByte()
	if err != nil {
		return nil, err
	}
	n, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	start := d.pos
	payload, err := d.readBytes(int(n))
	if err != nil {
		return nil, err
	}
	switch variant {
	case CustomVec2:
		if len(payload) != 8 {
			return nil, newDecodeError(start, "vec2 payload must be 8 bytes, got %d", len(payload))
		}
		return Vec2{
			X: math.Float32frombits(binary.BigEndian.Uint32(payload[0:])),
			Y: math.Float32frombits(binary.BigEndian.Uint32(payload[4:])),
		}, nil
	case CustomVec3:
		if len(payload) != 12 {
			return nil, newDecodeError(start, "vec3 payload must be 12 bytes, got %d", len(payload))
		}
		return Vec3{
			X: math.Float32frombits(binary.BigEndian.Uint32(payload[0:])),
			Y: math.Float32frombits(binary.BigEndian.Uint32(payload[4:])),
			Z: math.Float32frombits(binary.BigEndian.Uint32(payload[8:])),
		}, nil
	case CustomQuaternion:
		if len(payload) != 16 {
			return nil, newDecodeError(start, "quaternion payload must be 16 bytes, got %d", len(payload))
		}
		return Quaternion{
			W: math.Float32frombits(binary.BigEndian.Uint32(payload[0:])),
			X: math.Float32frombits(binary.BigEndian.Uint32(payload[4:])),
			Y: math.Float32frombits(binary.BigEndian.Uint32(payload[8:])),
			Z: math.Float32frombits(binary.BigEndian.Uint32(payload[12:])),
		}, nil
	case CustomPlayer:
		if len(payload) != 4 {
			return nil, newDecodeError(start, "player payload must be 4 bytes, got %d", len(payload))
		}
		return Player{ID: binary.BigEndian.Uint32(payload)}, nil
	default:
		return CustomData{Variant: variant, Data: payload}, nil
	}
}

func comparableKey(v Value) bool {
	switch v.(type) {
	case nil, bool, byte, int16, int32, int64, float32, float64, string:
		return true
	default:
		return false
	}
}

// Encoder serializes tagged values into an internal buffer.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the serialized bytes accumulated so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of bytes accumulated so far.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

func (e *Encoder) writeByte(b byte) {
	e.buf.WriteByte(b)
}

func (e *Encoder) writeUint16(v uint16) {
	var scratch [2]byte
	binary.BigEndian.PutUint16(scratch[:], v)
	e.buf.Write(scratch[:])
}

func (e *Encoder) writeUint32(v uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], v)
	e.buf.Write(scratch[:])
}

func (e *Encoder) writeUint64(v uint64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	e.buf.Write(scratch[:])
}

func (e *Encoder) writeString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	e.writeUint16(uint16(len(s)))
	e.buf.WriteString(s)
	return nil
}

// writeInt picks the narrowest tag the value fits in: byte, short, int
// or long.
func (e *Encoder) writeInt(v int64) {
	switch {
	case v >= 0 && v <= math.MaxUint8:
		e.writeByte(TagByte)
		e.writeByte(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		e.writeByte(TagShort)
		e.writeUint16(uint16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		e.writeByte(TagInt)
		e.writeUint32(uint32(v))
	default:
		e.writeByte(TagLong)
		e.writeUint64(uint64(v))
	}
}

// WriteValue writes one tagged value. Sized integer types keep their
// natural tag so values survive a round trip; untyped ints are narrowed
// to the smallest tag that fits.
func (e *Encoder) WriteValue(v Value) error {
	switch t := v.(type) {
	case nil:
		e.writeByte(TagNull)
	case bool:
		e.writeByte(TagBool)
		if t {
			e.writeByte(1)
		} else {
			e.writeByte(0)
		}
	case byte:
		e.writeByte(TagByte)
		e.writeByte(t)
	case int8:
		e.writeInt(int64(t))
	case int16:
		e.writeByte(TagShort)
		e.writeUint16(uint16(t))
	case int32:
		e.writeByte(TagInt)
		e.writeUint32(uint32(t))
	case int64:
		e.writeByte(TagLong)
		e.writeUint64(uint64(t))
	case int:
		e.writeInt(int64(t))
	case uint16:
		e.writeInt(int64(t))
	case uint32:
		e.writeInt(int64(t))
	case float32:
		e.writeByte(TagFloat)
		e.writeUint32(math.Float32bits(t))
	case float64:
		e.writeByte(TagDouble)
		e.writeUint64(math.Float64bits(t))
	case string:
		e.writeByte(TagString)
		return e.writeString(t)
	case []byte:
		e.writeByte(TagByteArray)
		e.writeUint32(uint32(len(t)))
		e.buf.Write(t)
	case []int32:
		e.writeByte(TagIntArray)
		e.writeUint32(uint32(len(t)))
		for _, n := range t {
			e.writeUint32(uint32(n))
		}
	case []string:
		if len(t) > math.MaxUint16 {
			return fmt.Errorf("string array too long: %d elements", len(t))
		}
		e.writeByte(TagStringArray)
		e.writeUint16(uint16(len(t)))
		for _, s := range t {
			if err := e.writeString(s); err != nil {
				return err
			}
		}
	case []bool:
		return e.writeTypedArray(TagBool, len(t), func(i int) error {
			if t[i] {
				e.writeByte(1)
			} else {
				e.writeByte(0)
			}
			return nil
		})
	case []int16:
		return e.writeTypedArray(TagShort, len(t), func(i int) error {
			e.writeUint16(uint16(t[i]))
			return nil
		})
	case []int64:
		return e.writeTypedArray(TagLong, len(t), func(i int) error {
			e.writeUint64(uint64(t[i]))
			return nil
		})
	case []float32:
		return e.writeTypedArray(TagFloat, len(t), func(i int) error {
			e.writeUint32(math.Float32bits(t[i]))
			return nil
		})
	case []float64:
		return e.writeTypedArray(TagDouble, len(t), func(i int) error {
			e.writeUint64(math.Float64bits(t[i]))
			return nil
		})
	case []map[Value]Value:
		return e.writeTypedArray(TagHashTable, len(t), func(i int) error {
			return e.writeHashTableBody(t[i])
		})
	case []Value:
		if len(t) > math.MaxUint16 {
			return fmt.Errorf("object array too long: %d elements", len(t))
		}
		e.writeByte(TagObjectArray)
		e.writeUint16(uint16(len(t)))
		for _, elem := range t {
			if err := e.WriteValue(elem); err != nil {
				return err
			}
		}
	case map[Value]Value:
		e.writeByte(TagHashTable)
		return e.writeHashTableBody(t)
	case map[string]Value:
		e.writeByte(TagHashTable)
		if len(t) > math.MaxUint16 {
			return fmt.Errorf("hash table too big: %d entries", len(t))
		}
		e.writeUint16(uint16(len(t)))
		for k, val := range t {
			if err := e.WriteValue(k); err != nil {
				return err
			}
			if err := e.WriteValue(val); err != nil {
				return err
			}
		}
	case Dictionary:
		return e.writeDictionary(t)
	case Vec2:
		e.writeByte(TagCustom)
		e.writeByte(CustomVec2)
		e.writeUint16(8)
		e.writeUint32(math.Float32bits(t.X))
		e.writeUint32(math.Float32bits(t.Y))
	case Vec3:
		e.writeByte(TagCustom)
		e.writeByte(CustomVec3)
		e.writeUint16(12)
		e.writeUint32(math.Float32bits(t.X))
		e.writeUint32(math.Float32bits(t.Y))
		e.writeUint32(math.Float32bits(t.Z))
	case Quaternion:
		e.writeByte(TagCustom)
		e.writeByte(CustomQuaternion)
		e.writeUint16(16)
		e.writeUint32(math.Float32bits(t.W))
		e.writeUint32(math.Float32bits(t.X))
		e.writeUint32(math.Float32bits(t.Y))
		e.writeUint32(math.Float32bits(t.Z))
	case Player:
		e.writeByte(TagCustom)
		e.writeByte(CustomPlayer)
		e.writeUint16(4)
		e.writeUint32(t.ID)
	case CustomData:
		if len(t.Data) > math.MaxUint16 {
			return fmt.Errorf("custom data too long: %d bytes", len(t.Data))
		}
		e.writeByte(TagCustom)
		e.writeByte(t.Variant)
		e.writeUint16(uint16(len(t.Data)))
		e.buf.Write(t.Data)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func (e *Encoder) writeTypedArray(inner byte, n int, elem func(i int) error) error {
	if n > math.MaxUint16 {
		return fmt.Errorf("typed array too long: %d elements", n)
	}
	e.writeByte(TagArray)
	e.writeUint16(uint16(n))
	e.writeByte(inner)
	for i := 0; i < n; i++ {
		if err := elem(i); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeHashTableBody(m map[Value]Value) error {
	if len(m) > math.MaxUint16 {
		return fmt.Errorf("hash table too big: %d entries", len(m))
	}
	e.writeUint16(uint16(len(m)))
	for k, v := range m {
		if err := e.WriteValue(k); err != nil {
			return err
		}
		if err := e.WriteValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeDictionary(d Dictionary) error {
	if len(d.Entries) > math.MaxUint16 {
		return fmt.Errorf("dictionary too big: %d entries", len(d.Entries))
	}
	e.writeByte(TagDictionary)
	e.writeByte(d.KeyTag)
	e.writeByte(d.ValueTag)
	e.writeUint16(uint16(len(d.Entries)))
	for _, entry := range d.Entries {
		if err := e.writeDictElem(d.KeyTag, entry.Key); err != nil {
			return err
		}
		if err := e.writeDictElem(d.ValueTag, entry.Value); err != nil {
			return err
		}
	}
	return nil
}

// writeDictElem writes a dictionary element. With a fixed tag the element
// is written without its own tag byte; otherwise it is written inline.
func (e *Encoder) writeDictElem(tag byte, v Value) error {
	if tag == 0 || tag == TagNull {
		return e.WriteValue(v)
	}
	// Write the value with its tag, then strip the tag byte by checking
	// it matches the declared one.
	sub := NewEncoder()
	if err := sub.WriteValue(v); err != nil {
		return err
	}
	b := sub.Bytes()
	if len(b) == 0 || b[0] != tag {
		return fmt.Errorf("dictionary element %T does not match declared tag 0x%02x", v, tag)
	}
	e.buf.Write(b[1:])
	return nil
}

// EncodeValue serializes a single tagged value.
func EncodeValue(v Value) ([]byte, error) {
	e := NewEncoder()
	if err := e.WriteValue(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// DecodeValue deserializes a single tagged value and requires the whole
// buffer to be consumed.
func DecodeValue(b []byte) (Value, error) {
	d := NewDecoder(b)
	v, err := d.ReadValue()
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, newDecodeError(d.pos, "%d trailing bytes after value", d.Remaining())
	}
	return v, nil
}
