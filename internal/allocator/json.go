package allocator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the range as [core, start, end].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{r.Core, r.Start, r.End})
}

// UnmarshalJSON decodes a [core, start, end] triple.
func (r *Range) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 3 {
		return fmt.Errorf("core range must have 3 elements, got %d", len(v))
	}
	r.Core, r.Start, r.End = v[0], v[1], v[2]
	return nil
}

// MarshalJSON encodes the count as [core, count].
func (c CoreCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.Core, c.Count})
}

// UnmarshalJSON decodes a [core, count] pair.
func (c *CoreCount) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("core count must have 2 elements, got %d", len(v))
	}
	c.Core, c.Count = v[0], v[1]
	return nil
}

// MarshalJSON encodes the allocation as an object keyed by layer, in layer order.
func (a CoreAllocation) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(a), func(i int) (string, any) {
		return a[i].Layer, nonNil(a[i].Ranges)
	})
}

// UnmarshalJSON decodes a layer-keyed object, keeping the key order of the document.
func (a *CoreAllocation) UnmarshalJSON(data []byte) error {
	out := CoreAllocation{}
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var ranges []Range
		if err := json.Unmarshal(raw, &ranges); err != nil {
			return fmt.Errorf("layer %q: %w", key, err)
		}
		out = append(out, LayerRanges{Layer: key, Ranges: ranges})
		return nil
	})
	if err != nil {
		return err
	}
	*a = out
	return nil
}

// MarshalJSON encodes the counts as an object keyed by layer, in layer order.
func (n NIRToCores) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(n), func(i int) (string, any) {
		return n[i].Layer, nonNil(n[i].Counts)
	})
}

// UnmarshalJSON decodes a layer-keyed object, keeping the key order of the document.
func (n *NIRToCores) UnmarshalJSON(data []byte) error {
	out := NIRToCores{}
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var counts []CoreCount
		if err := json.Unmarshal(raw, &counts); err != nil {
			return fmt.Errorf("layer %q: %w", key, err)
		}
		out = append(out, LayerCounts{Layer: key, Counts: counts})
		return nil
	})
	if err != nil {
		return err
	}
	*n = out
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func marshalOrdered(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		key, val := entry(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalOrdered(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
