package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one raw record as returned by the control plane, either a plain
// object or a {key, value} wrapper
type Record map[string]any

// Shape tags how a list response was encoded
type Shape int

const (
	// ShapeArray is a bare JSON array of records
	ShapeArray Shape = iota
	// ShapeWrapped is {"list": [{key, value}, ...]} (or the legacy
	// {"node": {"nodes": [...]}} form)
	ShapeWrapped
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeWrapped:
		return "wrapped"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// ErrUnknownShape is returned when a list response matches no known shape
var ErrUnknownShape = errors.New("unrecognized list response shape")

// Source is the decoded form of one list response
type Source struct {
	Shape   Shape
	records []Record

	// Skipped counts list elements that were not JSON objects
	Skipped int
}

// Records returns the records in server order
func (s Source) Records() []Record {
	return s.records
}

// Len returns the number of object records in the source
func (s Source) Len() int {
	return len(s.records)
}

// Decode parses a list response body. Numbers are kept as json.Number so
// identifiers and plugin settings survive a round trip unchanged.
func Decode(body []byte) (Source, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Source{}, fmt.Errorf("%w: empty body", ErrUnknownShape)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Source{}, fmt.Errorf("failed to decode list response: %w", err)
	}

	switch v := doc.(type) {
	case []any:
		return fromItems(ShapeArray, v), nil
	case map[string]any:
		if list, ok := v["list"]; ok {
			return fromList(list)
		}
		if node, ok := v["node"].(map[string]any); ok {
			return fromList(node["nodes"])
		}
		return Source{}, fmt.Errorf("%w: object without list", ErrUnknownShape)
	default:
		return Source{}, fmt.Errorf("%w: %T", ErrUnknownShape, doc)
	}
}

// fromList handles the "list" member, which an empty collection may encode
// as null or as an empty object
func fromList(list any) (Source, error) {
	switch l := list.(type) {
	case []any:
		return fromItems(ShapeWrapped, l), nil
	case nil:
		return Source{Shape: ShapeWrapped}, nil
	case map[string]any:
		if len(l) == 0 {
			return Source{Shape: ShapeWrapped}, nil
		}
	}
	return Source{}, fmt.Errorf("%w: list is %T", ErrUnknownShape, list)
}

func fromItems(shape Shape, items []any) Source {
	src := Source{Shape: shape, records: make([]Record, 0, len(items))}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			src.Skipped++
			continue
		}
		src.records = append(src.records, Record(obj))
	}
	return src
}
