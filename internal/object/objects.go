package object

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Objects is an insertion-ordered name -> Object mapping. Adding a name that is
// already present is a no-op, so a mapping never holds duplicates.
//
// The zero value is an empty mapping ready to use. Objects is not safe for
// concurrent mutation.
type Objects struct {
	names  []string
	byName map[string]Object
}

// NewObjects returns a mapping holding objs in order.
func NewObjects(objs ...Object) *Objects {
	m := &Objects{}
	for _, o := range objs {
		m.Add(o)
	}
	return m
}

// Add inserts o unless its name is already present. It reports whether o was added.
func (m *Objects) Add(o Object) bool {
	if m.byName == nil {
		m.byName = make(map[string]Object)
	}
	if _, ok := m.byName[o.Name]; ok {
		return false
	}
	m.byName[o.Name] = o
	m.names = append(m.names, o.Name)
	return true
}

// Merge adds every object of other in order, keeping existing entries.
func (m *Objects) Merge(other *Objects) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		m.Add(other.byName[name])
	}
}

// Get looks up an object by name.
func (m *Objects) Get(name string) (Object, bool) {
	if m == nil {
		return Object{}, false
	}
	o, ok := m.byName[name]
	return o, ok
}

// Len returns the number of objects.
func (m *Objects) Len() int {
	if m == nil {
		return 0
	}
	return len(m.names)
}

// Names returns the names in insertion order.
func (m *Objects) Names() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.names...)
}

// Slice returns the objects in insertion order.
func (m *Objects) Slice() []Object {
	if m == nil {
		return nil
	}
	out := make([]Object, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.byName[name])
	}
	return out
}

// Reversed returns a new mapping with the insertion order reversed.
func (m *Objects) Reversed() *Objects {
	out := &Objects{}
	for i := m.Len() - 1; i >= 0; i-- {
		out.Add(m.byName[m.names[i]])
	}
	return out
}

// Filter returns a new mapping with the objects for which keep returns true.
func (m *Objects) Filter(keep func(Object) bool) *Objects {
	out := &Objects{}
	for _, o := range m.Slice() {
		if keep(o) {
			out.Add(o)
		}
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object keyed by name, in insertion order.
func (m *Objects) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, o := range m.Slice() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(o.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keyed by name, keeping document order.
func (m *Objects) UnmarshalJSON(data []byte) error {
	*m = Objects{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: objects must be a JSON object", ErrInvalidObject)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidObject, err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: object key must be a string", ErrInvalidObject)
		}
		var o Object
		if err := dec.Decode(&o); err != nil {
			return fmt.Errorf("object %q: %w", name, err)
		}
		o.Name = name
		m.Add(o)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}
	return nil
}

// Batch splits m into consecutive mappings of at most size objects. A size of zero
// or less yields a single batch. An empty mapping yields no batches.
func Batch(m *Objects, size int) []*Objects {
	if m.Len() == 0 {
		return nil
	}
	if size <= 0 {
		size = m.Len()
	}

	batches := make([]*Objects, 0, (m.Len()+size-1)/size)
	current := &Objects{}
	for _, o := range m.Slice() {
		current.Add(o)
		if current.Len() == size {
			batches = append(batches, current)
			current = &Objects{}
		}
	}
	if current.Len() > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Digest hashes the name and canonical encoding of o. Two objects with the same
// digest are treated as identical by the echo damping logic.
func Digest(o Object) (uint64, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return 0, err
	}
	h := xxh3.New()
	_, _ = h.WriteString(o.Name)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(payload)
	return h.Sum64(), nil
}
