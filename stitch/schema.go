// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"fmt"
	"reflect"
)

// Schema is the canonical, transport-neutral description of one procedure's
// contract. It is the protocol shared by both sides: the server stores and
// exposes it, the client caches it and validates against it.
type Schema struct {
	Input  InputSchema           `json:"input"`
	Output *OutputSchema         `json:"output"`
	Defs   map[string]Definition `json:"$defs"`
}

// InputSchema describes a procedure's parameters. Required lists every
// parameter lacking a default, in declaration order; parameters with
// defaults still appear in Properties carrying their default value.
type InputSchema struct {
	Properties map[string]FieldSchema `json:"properties"`
	Required   []string               `json:"required"`
}

// FieldSchema describes one input parameter or one field of a structured
// definition. Struct-typed fields carry the variant tag in Type and a
// reference into $defs.
type FieldSchema struct {
	Type    string `json:"type"`
	Ref     string `json:"$ref,omitempty"`
	Default any    `json:"default,omitempty"`
}

// Definition is one deduplicated $defs entry: the field description of a
// structured-object type, referenced by "#/defs/<Name>".
type Definition struct {
	Properties map[string]FieldSchema `json:"properties"`
	Required   []string               `json:"required"`
}

// outputShape enumerates the five wire forms an output descriptor can take.
type outputShape int

const (
	outputPrimitive outputShape = iota
	outputVoid
	outputStruct
	outputArray
	outputTuple
)

// OutputSchema describes a procedure's return shape: a primitive, a $defs
// reference, a homogeneous array, a positional tuple, or the void marker
// {items: {type: "null"}}. Wire encoding is handled in wire.go.
type OutputSchema struct {
	shape outputShape
	Type  string          // primitive kind, or struct variant tag
	Ref   string          // "#/defs/<Name>" for struct references
	Elem  *OutputSchema   // homogeneous array element
	Tuple []*OutputSchema // heterogeneous array, one descriptor per position
}

// IsVoid reports whether the procedure declares no return value.
func (o *OutputSchema) IsVoid() bool { return o.shape == outputVoid }

// IsStructRef reports whether the output is a single structured object.
func (o *OutputSchema) IsStructRef() bool { return o.shape == outputStruct }

func primitiveOutput(kind string) *OutputSchema {
	return &OutputSchema{shape: outputPrimitive, Type: kind}
}

func voidOutput() *OutputSchema {
	return &OutputSchema{shape: outputVoid}
}

func structOutput(name, variant string) *OutputSchema {
	return &OutputSchema{shape: outputStruct, Type: variant, Ref: defsRef(name)}
}

func arrayOutput(elem *OutputSchema) *OutputSchema {
	return &OutputSchema{shape: outputArray, Elem: elem}
}

func tupleOutput(elems []*OutputSchema) *OutputSchema {
	return &OutputSchema{shape: outputTuple, Tuple: elems}
}

func defsRef(name string) string { return "#/defs/" + name }

// defsBuilder collects every structured-object type encountered during one
// extraction into a deduplicated mapping keyed by type name. Registering
// the same type twice is a no-op; registering two different types that
// share a name is rejected as ambiguous rather than silently corrupting
// one definition with the other's fields.
type defsBuilder struct {
	defs  map[string]Definition
	types map[string]reflect.Type
}

func newDefsBuilder() *defsBuilder {
	return &defsBuilder{
		defs:  make(map[string]Definition),
		types: make(map[string]reflect.Type),
	}
}

func (b *defsBuilder) add(sd *structDescriptor) error {
	if sd.Name == "" {
		return fmt.Errorf("anonymous struct cannot be registered as a definition")
	}
	if len(sd.Fields) == 0 {
		return fmt.Errorf("struct %s has no stitch-tagged fields", sd.Name)
	}
	if prev, seen := b.types[sd.Name]; seen {
		if prev != sd.GoType {
			return fmt.Errorf("ambiguous definition name %s: %v and %v both claim it", sd.Name, prev, sd.GoType)
		}
		return nil // idempotent merge
	}
	// Reserve the slot before recursing so self-referential types terminate.
	b.types[sd.Name] = sd.GoType
	b.defs[sd.Name] = Definition{}

	def := Definition{
		Properties: make(map[string]FieldSchema, len(sd.Fields)),
		Required:   make([]string, 0, len(sd.Fields)),
	}
	for _, f := range sd.Fields {
		fs, err := b.fieldSchema(f.Type)
		if err != nil {
			return fmt.Errorf("field %s of %s: %w", f.Name, sd.Name, err)
		}
		if f.Default != nil {
			if err := validateDefault(*f.Default, f.GoType); err != nil {
				return fmt.Errorf("field %s of %s: %w", f.Name, sd.Name, err)
			}
			fs.Default = typedDefault(*f.Default, f.Type)
		} else {
			def.Required = append(def.Required, f.Name)
		}
		def.Properties[f.Name] = fs
	}
	b.defs[sd.Name] = def
	return nil
}

// fieldSchema produces the flat FieldSchema entry for one declared field or
// parameter; nested structs are represented the same way a top-level field
// would be and registered into $defs.
func (b *defsBuilder) fieldSchema(desc typeDescriptor) (FieldSchema, error) {
	switch desc.kind {
	case descPrimitive:
		return FieldSchema{Type: desc.primitive}, nil
	case descList:
		return FieldSchema{Type: TypeArray}, nil
	case descNone:
		return FieldSchema{Type: TypeNull}, nil
	case descStruct:
		if err := b.add(desc.strct); err != nil {
			return FieldSchema{}, err
		}
		return FieldSchema{Type: desc.strct.Variant, Ref: defsRef(desc.strct.Name)}, nil
	default:
		return FieldSchema{}, fmt.Errorf("unclassifiable construct")
	}
}

// output builds the output descriptor for a classified return type,
// registering any structured types it references.
func (b *defsBuilder) output(desc typeDescriptor) (*OutputSchema, error) {
	switch desc.kind {
	case descNone:
		return voidOutput(), nil
	case descPrimitive:
		return primitiveOutput(desc.primitive), nil
	case descStruct:
		if err := b.add(desc.strct); err != nil {
			return nil, err
		}
		return structOutput(desc.strct.Name, desc.strct.Variant), nil
	case descList:
		if len(desc.elems) == 1 {
			elem, err := b.output(desc.elems[0])
			if err != nil {
				return nil, err
			}
			if elem.IsVoid() {
				return nil, fmt.Errorf("list of none is not a describable return shape")
			}
			return arrayOutput(elem), nil
		}
		// Heterogeneous: one descriptor per declared position, declaration
		// order preserved.
		elems := make([]*OutputSchema, 0, len(desc.elems))
		for i, ed := range desc.elems {
			out, err := b.output(ed)
			if err != nil {
				return nil, fmt.Errorf("tuple position %d: %w", i, err)
			}
			if out.IsVoid() {
				return nil, fmt.Errorf("tuple position %d: none is not a describable element", i)
			}
			elems = append(elems, out)
		}
		return tupleOutput(elems), nil
	default:
		return nil, fmt.Errorf("unclassifiable construct")
	}
}

// extractSchema compiles a parameter struct type and a classified return
// type into a complete Schema. It never returns a partially-built Schema:
// any failure surfaces as a *SchemaExtractionError naming the offending
// parameter or the return position.
func extractSchema(procedure string, paramsType reflect.Type, result typeDescriptor) (*Schema, error) {
	params, err := paramFields(paramsType)
	if err != nil {
		return nil, &SchemaExtractionError{Procedure: procedure, Position: "parameters", Reason: err.Error()}
	}

	defs := newDefsBuilder()
	input := InputSchema{
		Properties: make(map[string]FieldSchema, len(params)),
		Required:   make([]string, 0, len(params)),
	}

	for _, p := range params {
		fs, err := defs.fieldSchema(p.Type)
		if err != nil {
			return nil, &SchemaExtractionError{Procedure: procedure, Position: p.Name, Reason: err.Error()}
		}
		if p.Default != nil {
			if err := validateDefault(*p.Default, p.GoType); err != nil {
				return nil, &SchemaExtractionError{Procedure: procedure, Position: p.Name, Reason: err.Error()}
			}
			fs.Default = typedDefault(*p.Default, p.Type)
		} else {
			input.Required = append(input.Required, p.Name)
		}
		input.Properties[p.Name] = fs
	}

	output, err := defs.output(result)
	if err != nil {
		return nil, &SchemaExtractionError{Procedure: procedure, Position: "return", Reason: err.Error()}
	}

	return &Schema{Input: input, Output: output, Defs: defs.defs}, nil
}

// paramFields lists the declared parameters of a procedure in declaration
// order. The parameter type must be a struct (or pointer to one); an empty
// struct declares a parameterless procedure.
func paramFields(t reflect.Type) ([]fieldDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("parameter type is not a struct")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("parameter type must be a struct, got %v", t.Kind())
	}
	return describeStruct(t).Fields, nil
}
