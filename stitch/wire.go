// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// ProcedureDescriptor is one catalog entry: the procedure's kind and its
// full Schema IR.
type ProcedureDescriptor struct {
	Kind   Kind    `json:"type"`
	Schema *Schema `json:"schema"`
}

// Catalog is the full schema catalog served at GET <prefix>/schema and
// cached by the client for its lifetime.
type Catalog map[string]ProcedureDescriptor

// DecodeCatalog parses a wire-form catalog.
func DecodeCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding schema catalog: %w", err)
	}
	return c, nil
}

// wireValue converts a handler result into its JSON-facing form: tagged
// struct fields serialize under their stitch wire names, matching the
// property names the schema declares. Untagged structs pass through for
// encoding/json to handle.
func wireValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return wireValue(rv.Elem().Interface())
	case reflect.Struct:
		sd := describeStruct(rv.Type())
		if len(sd.Fields) == 0 {
			return v
		}
		m := make(map[string]any, len(sd.Fields))
		for _, f := range sd.Fields {
			m[f.Name] = wireValue(rv.Field(f.Index).Interface())
		}
		return m
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = wireValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		m := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			m[fmt.Sprintf("%v", k.Interface())] = wireValue(rv.MapIndex(k).Interface())
		}
		return m
	default:
		return v
	}
}

// ErrorBody is the structured JSON body of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
	Errors  string `json:"errors,omitempty"`
}

// Wire forms of the five output shapes. Structs, not maps, so field order
// is deterministic.
type primitiveWire struct {
	Type string `json:"type"`
}

type structRefWire struct {
	Ref  string `json:"$ref"`
	Type string `json:"type"`
}

type voidWire struct {
	Items primitiveWire `json:"items"`
}

type arrayWire struct {
	Type  string        `json:"type"`
	Items *OutputSchema `json:"items"`
}

type tupleWire struct {
	Type  string          `json:"type"`
	Items []*OutputSchema `json:"items"`
}

// MarshalJSON encodes the output descriptor in its canonical wire form.
func (o *OutputSchema) MarshalJSON() ([]byte, error) {
	switch o.shape {
	case outputVoid:
		return json.Marshal(voidWire{Items: primitiveWire{Type: TypeNull}})
	case outputPrimitive:
		return json.Marshal(primitiveWire{Type: o.Type})
	case outputStruct:
		return json.Marshal(structRefWire{Ref: o.Ref, Type: o.Type})
	case outputArray:
		return json.Marshal(arrayWire{Type: TypeArray, Items: o.Elem})
	case outputTuple:
		return json.Marshal(tupleWire{Type: TypeArray, Items: o.Tuple})
	default:
		return nil, fmt.Errorf("unencodable output shape %d", o.shape)
	}
}

// UnmarshalJSON decodes any of the five wire forms back into an equal
// descriptor.
func (o *OutputSchema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string          `json:"type"`
		Ref   string          `json:"$ref"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.Ref != "":
		*o = OutputSchema{shape: outputStruct, Type: raw.Type, Ref: raw.Ref}
		return nil

	case raw.Type == TypeArray && len(raw.Items) > 0:
		if bytes.HasPrefix(bytes.TrimLeft(raw.Items, " \t\r\n"), []byte("[")) {
			var elems []*OutputSchema
			if err := json.Unmarshal(raw.Items, &elems); err != nil {
				return err
			}
			*o = OutputSchema{shape: outputTuple, Tuple: elems}
			return nil
		}
		var elem OutputSchema
		if err := json.Unmarshal(raw.Items, &elem); err != nil {
			return err
		}
		*o = OutputSchema{shape: outputArray, Elem: &elem}
		return nil

	case raw.Type == "" && len(raw.Items) > 0:
		var inner primitiveWire
		if err := json.Unmarshal(raw.Items, &inner); err != nil {
			return err
		}
		if inner.Type != TypeNull {
			return fmt.Errorf("unrecognized output descriptor: items type %q without array marker", inner.Type)
		}
		*o = OutputSchema{shape: outputVoid}
		return nil

	case raw.Type != "":
		*o = OutputSchema{shape: outputPrimitive, Type: raw.Type}
		return nil

	default:
		return fmt.Errorf("unrecognized output descriptor: %s", string(data))
	}
}
