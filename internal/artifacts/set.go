package artifacts

import (
	"fmt"
	"slices"
)

// Set is an ordered collection of named, encoded artifacts.
type Set struct {
	names []string
	data  map[string][]byte
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{data: make(map[string][]byte)}
}

// Add encodes v with Encode and stores it under name.
func (s *Set) Add(name string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	s.AddRaw(name, data)
	return nil
}

// AddRaw stores already encoded data under name, replacing any previous entry.
func (s *Set) AddRaw(name string, data []byte) {
	if _, ok := s.data[name]; !ok {
		s.names = append(s.names, name)
	}
	s.data[name] = data
}

// Get returns the encoded artifact stored under name.
func (s *Set) Get(name string) ([]byte, bool) {
	d, ok := s.data[name]
	return d, ok
}

// Names returns artifact names in insertion order.
func (s *Set) Names() []string {
	return slices.Clone(s.names)
}

// Len is the number of artifacts.
func (s *Set) Len() int {
	return len(s.names)
}

// Size is the total encoded size in bytes.
func (s *Set) Size() int {
	n := 0
	for _, d := range s.data {
		n += len(d)
	}
	return n
}
