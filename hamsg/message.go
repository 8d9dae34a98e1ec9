// Package hamsg implements the heartbeat message record that travels
// around the ring, its wire codec, message authentication and the
// policy deciding whether a received message continues around the ring.
package hamsg

import (
	"strconv"
)

// Well-known fields.
const (
	FieldType   = "t"
	FieldSource = "src"
	FieldSeq    = "seq"
	FieldTTL    = "ttl"
	FieldRun    = "run"
	FieldAuth   = "auth"
)

// Message is an ordered string-keyed record. Field order is preserved
// through Encode and Decode because authentication covers it.
type Message struct {
	keys   []string
	values map[string]string
}

// New returns an empty message.
func New() *Message {
	return &Message{values: map[string]string{}}
}

// Set adds or replaces a field. A replaced field keeps its position.
func (m *Message) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value of key.
func (m *Message) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value of key or "".
func (m *Message) Value(key string) string {
	return m.values[key]
}

// Del removes key.
func (m *Message) Del(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns field names in order.
func (m *Message) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of fields.
func (m *Message) Len() int { return len(m.keys) }

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := &Message{
		keys:   append([]string(nil), m.keys...),
		values: make(map[string]string, len(m.values)),
	}
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// TTL returns the hop count. ok is false when the field is absent or
// not a number.
func (m *Message) TTL() (ttl int, ok bool) {
	v, present := m.values[FieldTTL]
	if !present {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetTTL stores the hop count.
func (m *Message) SetTTL(ttl int) {
	m.Set(FieldTTL, strconv.Itoa(ttl))
}
