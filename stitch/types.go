// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Primitive kind vocabulary of the Schema IR. These are the JSON-facing
// type names that appear in input properties and output descriptors.
const (
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeNull    = "null"
	TypeAny     = "any"
)

// Structured-object variant tags, threaded into every $ref and $defs entry
// so consumers know whether post-construction validation already occurred
// upstream or must be checked by field-set comparison only.
const (
	VariantValidated = "validated"
	VariantPlain     = "plain"
)

// Validator marks a struct as the validated variant: a structured record
// with a runtime self-check capability. The registry calls Validate on
// every validated-variant result after its handler runs.
type Validator interface {
	Validate() error
}

var validatorType = reflect.TypeOf((*Validator)(nil)).Elem()

// tagInfo holds parsed information from a `stitch` struct tag.
type tagInfo struct {
	Name    string
	Default *string // nil if no default
}

// parseTag parses a stitch struct tag like "name" or "name,default=10".
func parseTag(tag string) tagInfo {
	parts := strings.Split(tag, ",")
	info := tagInfo{Name: parts[0]}
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "default=") {
			val := strings.TrimPrefix(part, "default=")
			info.Default = &val
		}
	}
	return info
}

// descriptorKind enumerates the closed tagged union produced by the
// classifier.
type descriptorKind int

const (
	descPrimitive descriptorKind = iota
	descList
	descNone
	descStruct
)

// typeDescriptor is the classifier's report on one declared type.
type typeDescriptor struct {
	kind      descriptorKind
	primitive string           // primitive kind, when kind == descPrimitive
	elems     []typeDescriptor // 1 = homogeneous, N = heterogeneous (positional)
	strct     *structDescriptor
}

// structDescriptor describes one structured-object type independently of
// which of the two variants it uses; extraction and registry logic is
// written once against this shape.
type structDescriptor struct {
	Name    string
	Variant string // VariantValidated or VariantPlain
	GoType  reflect.Type
	Fields  []fieldDescriptor
}

// fieldDescriptor describes one tagged field of a struct, in declaration
// order.
type fieldDescriptor struct {
	Name    string // wire name from the stitch tag
	Index   int    // reflect field index
	GoType  reflect.Type
	Type    typeDescriptor
	Default *string
}

func noneDescriptor() typeDescriptor { return typeDescriptor{kind: descNone} }
func primitiveOf(k string) typeDescriptor { return typeDescriptor{kind: descPrimitive, primitive: k} }

// classifyType inspects a declared Go type and reports whether it is a
// primitive, a list, none, or a structured object. Classification is total:
// unrecognized kinds degrade to the "any" wildcard rather than failing, so
// extraction always completes.
func classifyType(t reflect.Type) typeDescriptor {
	return classify(t, make(map[reflect.Type]*structDescriptor))
}

func classify(t reflect.Type, seen map[reflect.Type]*structDescriptor) typeDescriptor {
	if t == nil {
		return noneDescriptor()
	}
	if t.Kind() == reflect.Ptr {
		return classify(t.Elem(), seen)
	}

	switch t.Kind() {
	case reflect.String:
		return primitiveOf(TypeString)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return primitiveOf(TypeInteger)
	case reflect.Float32, reflect.Float64:
		return primitiveOf(TypeNumber)
	case reflect.Bool:
		return primitiveOf(TypeBoolean)
	case reflect.Map:
		return primitiveOf(TypeObject)
	case reflect.Interface:
		return primitiveOf(TypeAny)
	case reflect.Slice, reflect.Array:
		elem := classify(t.Elem(), seen)
		return typeDescriptor{kind: descList, elems: []typeDescriptor{elem}}
	case reflect.Struct:
		return typeDescriptor{kind: descStruct, strct: describeStructSeen(t, seen)}
	default:
		// chan, func, unsafe pointers, complex — wildcard fallback
		return primitiveOf(TypeAny)
	}
}

// describeStruct builds the variant-neutral descriptor for a struct type.
// The variant tag is decided by the Validator capability check.
func describeStruct(t reflect.Type) *structDescriptor {
	return describeStructSeen(t, make(map[reflect.Type]*structDescriptor))
}

func describeStructSeen(t reflect.Type, seen map[reflect.Type]*structDescriptor) *structDescriptor {
	if sd, ok := seen[t]; ok {
		// Self-referential type; fields are filled in by the first visit.
		return sd
	}

	variant := VariantPlain
	if t.Implements(validatorType) || reflect.PointerTo(t).Implements(validatorType) {
		variant = VariantValidated
	}

	sd := &structDescriptor{
		Name:    t.Name(),
		Variant: variant,
		GoType:  t,
	}
	seen[t] = sd
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("stitch")
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		sd.Fields = append(sd.Fields, fieldDescriptor{
			Name:    info.Name,
			Index:   i,
			GoType:  f.Type,
			Type:    classify(f.Type, seen),
			Default: info.Default,
		})
	}
	return sd
}

// classifyTuple classifies a heterogeneous list declaration from per-position
// prototype values. Position N in the descriptor corresponds to position N
// in the runtime list.
func classifyTuple(elems []any) (typeDescriptor, error) {
	if len(elems) == 0 {
		return typeDescriptor{}, fmt.Errorf("tuple declaration has no element types")
	}
	descs := make([]typeDescriptor, 0, len(elems))
	for i, e := range elems {
		if e == nil {
			return typeDescriptor{}, fmt.Errorf("tuple element %d: nil prototype", i)
		}
		descs = append(descs, classifyType(reflect.TypeOf(e)))
	}
	return typeDescriptor{kind: descList, elems: descs}, nil
}

// classifyValue maps a runtime Go value to the primitive kind vocabulary.
// Used by the client's pre-flight argument check.
func classifyValue(v any) string {
	if v == nil {
		return TypeNull
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.String:
		return TypeString
	case reflect.Bool:
		return TypeBoolean
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct:
		return TypeObject
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return TypeNull
		}
		return classifyValue(rv.Elem().Interface())
	default:
		return TypeAny
	}
}

// truthyTokens is the case-insensitive token set accepted as true when a
// boolean parameter arrives as a wire string. Everything else is false.
var truthyTokens = map[string]struct{}{
	"true": {}, "1": {}, "yes": {}, "on": {},
}

// setFieldFromString sets a struct field from a wire string or a tag
// default. Integer and number values are parsed strictly; booleans accept
// the truthy token set.
func setFieldFromString(field reflect.Value, fieldType reflect.Type, s string) error {
	if fieldType.Kind() == reflect.Ptr {
		fieldType = fieldType.Elem()
		ptr := reflect.New(fieldType)
		if err := setFieldFromString(ptr.Elem(), fieldType, s); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	switch fieldType.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing integer %q: %w", s, err)
		}
		field.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing integer %q: %w", s, err)
		}
		field.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing number %q: %w", s, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		_, truthy := truthyTokens[strings.ToLower(s)]
		field.SetBool(truthy)
	default:
		return fmt.Errorf("string coercion not supported for %v", fieldType.Kind())
	}
	return nil
}

// validateDefault checks at declaration time that a tag default can be
// coerced into the field's Go type. An impossible default fails the
// registration that declares it instead of the first call that relies on it.
func validateDefault(raw string, goType reflect.Type) error {
	t := goType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool:
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("default %q is not an integer", raw)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
			return fmt.Errorf("default %q is not an integer", raw)
		}
	case reflect.Float32, reflect.Float64:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("default %q is not a number", raw)
		}
	default:
		return fmt.Errorf("default %q not supported for %v fields", raw, t.Kind())
	}
	return nil
}

// typedDefault parses a tag default string into its native JSON value so
// schema defaults serialize as numbers and booleans, not strings.
func typedDefault(raw string, desc typeDescriptor) any {
	if desc.kind != descPrimitive {
		return raw
	}
	switch desc.primitive {
	case TypeInteger:
		// float64 keeps encode/decode round-trips exact: JSON numbers decode
		// as float64.
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return float64(v)
		}
	case TypeNumber:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case TypeBoolean:
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return raw
}
