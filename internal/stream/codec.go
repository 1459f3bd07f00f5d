package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field name prefixes of an encoded entry.
const (
	fieldType     = "type"
	prefixPayload = "payload"
	prefixMeta    = "metadata"
	// indexMark starts the path segment of an array element, so that an
	// object keyed "0", "1", ... is never mistaken for an array.
	indexMark = "#"
)

func validKey(k string) bool {
	return k != "" && !strings.Contains(k, ".") && !strings.HasPrefix(k, indexMark)
}

// Flatten turns a JSON-shaped value into dotted-path fields under prefix.
// Array elements use "#<index>" segments. Leaves are stored as JSON
// literals. Empty objects and arrays are kept as "{}" and "[]" so they
// survive the round trip. Object keys must be non-empty, contain no "."
// and not start with "#".
func Flatten(prefix string, v any, out map[string]string) error {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			out[prefix] = "{}"
			return nil
		}
		for k, child := range val {
			if !validKey(k) {
				return fmt.Errorf("invalid key %q under %q", k, prefix)
			}
			if err := Flatten(prefix+"."+k, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if len(val) == 0 {
			out[prefix] = "[]"
			return nil
		}
		for i, child := range val {
			if err := Flatten(prefix+"."+indexMark+strconv.Itoa(i), child, out); err != nil {
				return err
			}
		}
		return nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode %q: %w", prefix, err)
		}
		out[prefix] = string(raw)
		return nil
	}
}

// Unflatten rebuilds the value stored under prefix. Nodes whose segments
// are exactly #0..#n-1 come back as arrays. ok is false when nothing is stored.
func Unflatten(fields map[string]string, prefix string) (v any, ok bool, err error) {
	if raw, found := fields[prefix]; found {
		leaf, err := decodeLeaf(raw)
		return leaf, true, err
	}

	root := map[string]any{}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, prefix+".") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false, nil
	}
	sort.Strings(keys)

	for _, k := range keys {
		leaf, err := decodeLeaf(fields[k])
		if err != nil {
			return nil, true, fmt.Errorf("decode %q: %w", k, err)
		}
		parts := strings.Split(strings.TrimPrefix(k, prefix+"."), ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, exists := node[p]
			if !exists {
				next := map[string]any{}
				node[p] = next
				node = next
				continue
			}
			next, isMap := child.(map[string]any)
			if !isMap {
				return nil, true, fmt.Errorf("field %q collides with a leaf", k)
			}
			node = next
		}
		last := parts[len(parts)-1]
		if _, exists := node[last]; exists {
			return nil, true, fmt.Errorf("field %q collides with a nested value", k)
		}
		node[last] = leaf
	}
	return arrays(root), true, nil
}

func decodeLeaf(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// arrays converts maps keyed #0..#n-1 into slices, depth first.
func arrays(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = arrays(child)
	}
	if len(m) == 0 {
		return m
	}
	out := make([]any, len(m))
	for k, child := range m {
		digits, marked := strings.CutPrefix(k, indexMark)
		i, err := strconv.Atoi(digits)
		if !marked || err != nil || i < 0 || i >= len(m) || strconv.Itoa(i) != digits {
			return m
		}
		out[i] = child
	}
	return out
}

// toTree converts any JSON-marshalable value into maps, slices and leaves.
// Numbers are kept as json.Number so they are written back verbatim.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// encodeFields builds the entry fields for a message and its metadata.
func encodeFields(kind string, payload any, metadata map[string]any) (map[string]string, error) {
	if kind == "" {
		return nil, fmt.Errorf("message has no kind")
	}
	tree, err := toTree(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if _, isObject := tree.(map[string]any); !isObject {
		return nil, fmt.Errorf("payload of kind %q must encode to an object", kind)
	}

	fields := map[string]string{fieldType: kind}
	if err := Flatten(prefixPayload, tree, fields); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		meta, err := toTree(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		if err := Flatten(prefixMeta, meta, fields); err != nil {
			return nil, err
		}
	}
	return fields, nil
}
