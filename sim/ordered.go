package sim

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string-keyed map that remembers declaration order.
// Configuration sections whose order carries meaning (entity-type draw, rule
// evaluation, process start order) are decoded into it.
type OrderedMap[T any] struct {
	keys   []string
	values map[string]T
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[T any]() OrderedMap[T] {
	return OrderedMap[T]{values: make(map[string]T)}
}

// Set inserts or replaces key. New keys go to the end.
func (m *OrderedMap[T]) Set(key string, v T) {
	if m.values == nil {
		m.values = make(map[string]T)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key.
func (m OrderedMap[T]) Get(key string) (T, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m OrderedMap[T]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns keys in declaration order. Callers MUST NOT modify the slice.
func (m OrderedMap[T]) Keys() []string {
	return m.keys
}

// Len returns the number of entries.
func (m OrderedMap[T]) Len() int {
	return len(m.keys)
}

// UnmarshalYAML decodes a mapping node, preserving key order.
// Values are decoded strictly: unknown fields are rejected.
func (m *OrderedMap[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	*m = NewOrderedMap[T]()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if m.Has(keyNode.Value) {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
		}
		var v T
		if err := decodeStrict(valNode, &v); err != nil {
			return fmt.Errorf("%s: %w", keyNode.Value, err)
		}
		m.Set(keyNode.Value, v)
	}
	return nil
}

// MarshalYAML encodes the map in declaration order.
func (m OrderedMap[T]) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range m.keys {
		var val yaml.Node
		if err := val.Encode(m.values[k]); err != nil {
			return nil, err
		}
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
	}
	return out, nil
}

// decodeStrict decodes node into out with KnownFields(true).
// yaml.Node.Decode does not inherit the outer decoder's strictness, so the
// subtree is re-encoded and decoded with a strict decoder.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
