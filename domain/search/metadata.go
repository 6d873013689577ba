// Package search defines vector records, the vector store port and the
// similarity helpers shared by the index and the taxonomy phases.
package search

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrStructuredMetadata indicates a metadata value that is neither a scalar
// nor a list of strings.
var ErrStructuredMetadata = errors.New("structured metadata not supported")

// Metadata is the flat key/value payload stored alongside a vector. Values
// are scalars rendered as strings; lists are comma-joined.
type Metadata map[string]string

// NewMetadata converts values into Metadata. Scalars are stringified and
// []string values comma-joined; anything else is rejected.
func NewMetadata(values map[string]any) (Metadata, error) {
	m := make(Metadata, len(values))
	for k, v := range values {
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		m[k] = s
	}
	return m, nil
}

func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case []string:
		for _, s := range x {
			if strings.Contains(s, ",") {
				return "", fmt.Errorf("%w: list element %q contains a comma", ErrStructuredMetadata, s)
			}
		}
		return strings.Join(x, ","), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrStructuredMetadata, v)
	}
}

// Get returns the value for key, or "".
func (m Metadata) Get(key string) string { return m[key] }

// Int parses the value for key as an integer.
func (m Metadata) Int(key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("metadata %q: missing", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("metadata %q: %w", key, err)
	}
	return n, nil
}

// List splits a comma-joined value. An empty value yields nil.
func (m Metadata) List(key string) []string {
	v := m[key]
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of m.
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
