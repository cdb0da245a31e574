package api

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Payload is a tagged, serialized value carried as orchestration or
// activity input/output.
//
// Type holds the Go type name of the encoded value (for example
// "video.VideoFileInfo"). Decoding into a concrete target whose type name
// differs fails with ErrPayloadTypeMismatch, which lets both sides of an
// activity contract verify what they exchange.
type Payload struct {
	Type string          `json:"type,omitempty" bson:"type,omitempty"`
	Data json.RawMessage `json:"data,omitempty" bson:"data,omitempty"`
}

// IsZero reports whether the payload carries no value.
func (p *Payload) IsZero() bool {
	return p == nil || len(p.Data) == 0 || string(p.Data) == "null"
}

// String returns the raw JSON data, for logs and diagnostics.
func (p *Payload) String() string {
	if p.IsZero() {
		return "<nil>"
	}
	return string(p.Data)
}

// NewPayload encodes v into a Payload. A nil v yields a nil payload.
// An existing Payload or *Payload is passed through unchanged.
func NewPayload(v any) (*Payload, error) {
	switch pv := v.(type) {
	case nil:
		return nil, nil
	case Payload:
		cp := pv
		return &cp, nil
	case *Payload:
		return pv, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload of type %T: %w", v, err)
	}
	return &Payload{Type: TypeName(v), Data: data}, nil
}

// MustPayload is like NewPayload but panics on error. Intended for tests and
// constant inputs.
func MustPayload(v any) *Payload {
	p, err := NewPayload(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Decode unmarshals the payload into target, which must be a non-nil
// pointer. A nil target discards the value. Decoding an empty payload leaves
// target untouched.
func (p *Payload) Decode(target any) error {
	if target == nil || p.IsZero() {
		return nil
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode payload: target must be a non-nil pointer, got %T", target)
	}

	elem := rv.Type().Elem()
	if p.Type != "" && elem.Kind() != reflect.Interface {
		if want := typeNameOf(elem); want != p.Type && !compatibleKinds(p.Type, elem) {
			return fmt.Errorf("%w: payload is %s, target is %s", ErrPayloadTypeMismatch, p.Type, want)
		}
	}

	if err := json.Unmarshal(p.Data, target); err != nil {
		return fmt.Errorf("decode payload of type %s: %w", p.Type, err)
	}
	return nil
}

// DecodePayload is a typed convenience wrapper around Payload.Decode.
func DecodePayload[T any](p *Payload) (T, error) {
	var out T
	err := p.Decode(&out)
	return out, err
}

// TypeName returns the tag recorded in Payload.Type for v.
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	return typeNameOf(reflect.TypeOf(v))
}

func typeNameOf(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.String()
}

// compatibleKinds allows the JSON-level conversions that are lossless in
// practice: any numeric payload into any numeric target, and anonymous
// composite payloads (maps, slices) into structurally matching targets.
func compatibleKinds(payloadType string, target reflect.Type) bool {
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return isNumericTypeName(payloadType)
	case reflect.Map:
		if target.Key().Kind() == reflect.String && target.Elem().Kind() == reflect.Interface {
			return true
		}
		return target.Name() == "" && strings.HasPrefix(payloadType, "map[")
	case reflect.Slice:
		return target.Name() == "" && strings.HasPrefix(payloadType, "[")
	}
	return false
}

func isNumericTypeName(s string) bool {
	switch s {
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64",
		"float32", "float64":
		return true
	}
	return false
}
