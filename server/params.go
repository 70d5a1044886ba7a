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
	"strings"
	"time"

	"github.com/cyberarchives/photon-server-go/protocol"
)

// params wraps an operation parameter table. Values are addressed by
// their byte key first; some client builds tuck room options into a
// hash-table with string keys instead, so lookups also accept
// case-insensitive string aliases found inside any hash-table value.
type params map[byte]protocol.Value

func (p params) lookup(key byte, aliases ...string) (protocol.Value, bool) {
	if v, ok := p[key]; ok && v != nil {
		return v, true
	}
	if len(aliases) == 0 {
		return nil, false
	}
	for _, raw := range p {
		if v, ok := lookupAlias(raw, aliases); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupAlias(raw protocol.Value, aliases []string) (protocol.Value, bool) {
	match := func(k string) bool {
		for _, a := range aliases {
			if strings.EqualFold(k, a) {
				return true
			}
		}
		return false
	}
	switch m := raw.(type) {
	case map[string]protocol.Value:
		for mk, mv := range m {
			if match(mk) {
				return mv, true
			}
		}
	case map[protocol.Value]protocol.Value:
		for mk, mv := range m {
			if s, ok := mk.(string); ok && match(s) {
				return mv, true
			}
		}
	}
	return nil, false
}

func (p params) str(key byte, aliases ...string) (string, bool) {
	v, ok := p.lookup(key, aliases...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// integer coerces any of the wire integer widths.
func (p params) integer(key byte, aliases ...string) (int, bool) {
	v, ok := p.lookup(key, aliases...)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func (p params) boolean(key byte, aliases ...string) (bool, bool) {
	v, ok := p.lookup(key, aliases...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// millis reads an integer number of milliseconds as a duration.
func (p params) millis(key byte, aliases ...string) (time.Duration, bool) {
	n, ok := p.integer(key, aliases...)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

// stringMap reads a hash-table value whose keys are strings. Non-string
// keys are dropped.
func (p params) stringMap(key byte, aliases ...string) (map[string]protocol.Value, bool) {
	v, ok := p.lookup(key, aliases...)
	if !ok {
		return nil, false
	}
	return asStringMap(v)
}

// actorList reads a target actor list from any integer array shape.
func (p params) actorList(key byte) ([]uint16, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []protocol.Value:
		out := make([]uint16, 0, len(t))
		for _, e := range t {
			n, ok := asInt(e)
			if !ok || n < 0 {
				return nil, false
			}
			out = append(out, uint16(n))
		}
		return out, true
	case []int16:
		out := make([]uint16, 0, len(t))
		for _, e := range t {
			out = append(out, uint16(e))
		}
		return out, true
	case []int32:
		out := make([]uint16, 0, len(t))
		for _, e := range t {
			out = append(out, uint16(e))
		}
		return out, true
	case []int64:
		out := make([]uint16, 0, len(t))
		for _, e := range t {
			out = append(out, uint16(e))
		}
		return out, true
	case []byte:
		out := make([]uint16, 0, len(t))
		for _, e := range t {
			out = append(out, uint16(e))
		}
		return out, true
	}
	return nil, false
}

func asInt(v protocol.Value) (int, bool) {
	switch n := v.(type) {
	case byte:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asStringMap(v protocol.Value) (map[string]protocol.Value, bool) {
	switch m := v.(type) {
	case map[string]protocol.Value:
		return m, true
	case map[protocol.Value]protocol.Value:
		out := make(map[string]protocol.Value, len(m))
		for k, mv := range m {
			if s, ok := k.(string); ok {
				out[s] = mv
			}
		}
		return out, true
	}
	return nil, false
}
