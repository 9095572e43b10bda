package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Node is one decoded plan node. Field names are engine specific.
type Node map[string]any

// Decode reads a single JSON document, keeping numbers as json.Number so that row counts
// and costs render exactly as the engine printed them.
func Decode(r io.Reader) (any, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode plan json")
	}
	return payload, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (any, error) {
	return Decode(bytes.NewReader(data))
}

// AsNode converts a decoded JSON object into a Node.
func AsNode(val any) (Node, error) {
	switch v := val.(type) {
	case Node:
		return v, nil
	case map[string]any:
		return Node(v), nil
	case nil:
		return nil, errors.New("nil object")
	default:
		return nil, errors.Errorf("expected object, got %T", val)
	}
}

// FirstEntry unwraps the `[ {...} ]` envelope PostgreSQL puts around EXPLAIN output.
func FirstEntry(payload any) (Node, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("explain json: empty payload")
		}
		obj, err := AsNode(v[0])
		if err != nil {
			return nil, errors.Wrap(err, "explain json: invalid entry")
		}
		return obj, nil
	case map[string]any:
		return Node(v), nil
	case Node:
		return v, nil
	default:
		return nil, errors.Errorf("explain json: unexpected top-level type %T", payload)
	}
}

// Has reports whether the node carries a non-null value for key.
func (n Node) Has(key string) bool {
	v, ok := n[key]
	return ok && v != nil
}

// Value returns the raw value stored under key.
func (n Node) Value(key string) any {
	return n[key]
}

// String returns the value under key rendered as text, or "" when absent.
func (n Node) String(key string) string {
	return asString(n[key])
}

// Float returns the numeric value under key. ok is false when the key is absent or the
// value is not a number.
func (n Node) Float(key string) (float64, bool) {
	return asFloat(n[key])
}

// Strings returns a list value under key. A comma separated string is split.
func (n Node) Strings(key string) []string {
	return asStringSlice(n[key])
}

// Objects returns the list of child objects stored under key.
func (n Node) Objects(key string) ([]Node, error) {
	items := asSlice(n[key])
	out := make([]Node, 0, len(items))
	for i, item := range items {
		child, err := AsNode(item)
		if err != nil {
			return nil, errors.Wrapf(err, "%s[%d]", key, i)
		}
		out = append(out, child)
	}
	return out, nil
}

// Keys returns the node's field names in sorted order.
func (n Node) Keys() []string {
	keys := make([]string, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asSlice(val any) []any {
	if val == nil {
		return nil
	}
	switch v := val.(type) {
	case []any:
		return v
	default:
		return nil
	}
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		return "[" + strings.Join(asStringSlice(v), ", ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

func asStringSlice(val any) []string {
	if val == nil {
		return nil
	}
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, asString(item))
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

func asFloat(val any) (float64, bool) {
	if val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
