package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Extras is a string map that remembers insertion order.
//
// A nil *Extras behaves as an empty map for reads.
type Extras struct {
	keys   []string
	values map[string]string
}

// NewExtras returns an empty map.
func NewExtras() *Extras {
	return &Extras{values: make(map[string]string)}
}

// ExtrasOf builds a map from alternating key, value arguments.
func ExtrasOf(kv ...string) *Extras {
	e := NewExtras()
	for i := 0; i+1 < len(kv); i += 2 {
		e.Set(kv[i], kv[i+1])
	}
	return e
}

// Set stores value under key. A new key is appended to the order; an
// existing key keeps its position.
func (e *Extras) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the value for key.
func (e *Extras) Get(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e.values[key]
	return v, ok
}

// Delete removes key, if present.
func (e *Extras) Delete(key string) {
	if e == nil {
		return
	}
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i], e.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (e *Extras) Keys() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of entries.
func (e *Extras) Len() int {
	if e == nil {
		return 0
	}
	return len(e.keys)
}

// Clone returns an independent copy. Cloning nil yields nil.
func (e *Extras) Clone() *Extras {
	if e == nil {
		return nil
	}
	out := &Extras{keys: make([]string, len(e.keys)), values: make(map[string]string, len(e.values))}
	copy(out.keys, e.keys)
	for k, v := range e.values {
		out.values[k] = v
	}
	return out
}

// Equal reports whether e and other hold the same entries in the same order. A
// nil map equals an empty one.
func (e *Extras) Equal(other *Extras) bool {
	if e.Len() != other.Len() {
		return false
	}
	for i, k := range e.Keys() {
		if other.keys[i] != k || other.values[k] != e.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (e *Extras) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.values[k])
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

// UnmarshalJSON reads a JSON object of strings, keeping document order.
func (e *Extras) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*e = Extras{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("extras: expected object, got %v", tok)
	}

	*e = Extras{values: make(map[string]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("extras: value for %q: %w", key, err)
		}
		e.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
