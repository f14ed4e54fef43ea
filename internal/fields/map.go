package fields

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

// Map is an insertion-ordered field map. Single fields hold one value, multi fields
// hold a []any.
type Map struct {
	keys   []string
	values map[string]any
}

func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Assign adds value under key following key's multiplicity. A second value for a
// Single key is discarded and logged with both values; Assign then returns false.
func Assign(log *slog.Logger, m *Map, key string, value any) bool {
	existing, ok := m.values[key]
	if MultiplicityOf(key) == Single {
		if ok {
			log.Warn("conflicting value for single-valued field",
				"field", key, "kept", existing, "discarded", value)
			return false
		}
		m.keys = append(m.keys, key)
		m.values[key] = value
		return true
	}
	if !ok {
		m.keys = append(m.keys, key)
		m.values[key] = []any{value}
		return true
	}
	m.values[key] = append(existing.([]any), value)
	return true
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Values returns the list stored under a multi key, or the single value wrapped in a
// slice.
func (m *Map) Values(key string) []any {
	v, ok := m.values[key]
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// Contains reports whether value is already stored under key.
func (m *Map) Contains(key string, value any) bool {
	for _, v := range m.Values(key) {
		if v == value {
			return true
		}
	}
	return false
}

// Has reports whether key holds a value.
func (m *Map) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return m.keys
}

func (m *Map) Len() int {
	return len(m.keys)
}

// Clone returns a copy whose lists can grow independently of m's.
func (m *Map) Clone() *Map {
	c := &Map{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]any, len(m.values)),
	}
	for k, v := range m.values {
		if list, ok := v.([]any); ok {
			v = append([]any(nil), list...)
		}
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the fields as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
