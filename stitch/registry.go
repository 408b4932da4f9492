// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Kind identifies how a registered procedure is dispatched.
type Kind string

const (
	// KindQuery is a read-only procedure, dispatched as GET with query
	// string arguments.
	KindQuery Kind = "query"
	// KindMutation is a state-changing procedure, dispatched as POST with a
	// JSON body.
	KindMutation Kind = "mutation"
)

// procInfo stores the registration details for one procedure.
type procInfo struct {
	Name       string
	Kind       Kind
	ParamsType reflect.Type      // Go struct type for parameters
	Params     []fieldDescriptor // declared parameters, in order
	Result     typeDescriptor    // classified return declaration
	Void       bool              // handler returns only an error
	Handler    reflect.Value
	Schema     *Schema
}

// Registry holds every registered procedure and exclusively owns the
// registrations. Register procedures during single-threaded startup; after
// serving begins the map is read-only, so concurrent dispatch needs no
// locking.
type Registry struct {
	procs map[string]*procInfo
}

// NewRegistry creates an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*procInfo)}
}

// typeOf reports the static type of T, including interface types.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Query registers a query procedure with typed parameters and result.
// P must be a struct with `stitch` tags; R is the declared result type.
func Query[P any, R any](r *Registry, name string, handler func(context.Context, *CallContext, P) (R, error)) error {
	return r.register(name, KindQuery, typeOf[P](), classifyType(typeOf[R]()), false, reflect.ValueOf(handler))
}

// Mutation registers a mutation procedure with typed parameters and result.
func Mutation[P any, R any](r *Registry, name string, handler func(context.Context, *CallContext, P) (R, error)) error {
	return r.register(name, KindMutation, typeOf[P](), classifyType(typeOf[R]()), false, reflect.ValueOf(handler))
}

// QueryVoid registers a query procedure with no return value.
func QueryVoid[P any](r *Registry, name string, handler func(context.Context, *CallContext, P) error) error {
	return r.register(name, KindQuery, typeOf[P](), noneDescriptor(), true, reflect.ValueOf(handler))
}

// MutationVoid registers a mutation procedure with no return value.
func MutationVoid[P any](r *Registry, name string, handler func(context.Context, *CallContext, P) error) error {
	return r.register(name, KindMutation, typeOf[P](), noneDescriptor(), true, reflect.ValueOf(handler))
}

// QueryTuple registers a query returning a heterogeneous list: position N
// of the returned slice is declared by the type of elems[N].
func QueryTuple[P any](r *Registry, name string, elems []any, handler func(context.Context, *CallContext, P) ([]any, error)) error {
	desc, err := classifyTuple(elems)
	if err != nil {
		return &SchemaExtractionError{Procedure: name, Position: "return", Reason: err.Error()}
	}
	return r.register(name, KindQuery, typeOf[P](), desc, false, reflect.ValueOf(handler))
}

// MutationTuple registers a mutation returning a heterogeneous list.
func MutationTuple[P any](r *Registry, name string, elems []any, handler func(context.Context, *CallContext, P) ([]any, error)) error {
	desc, err := classifyTuple(elems)
	if err != nil {
		return &SchemaExtractionError{Procedure: name, Position: "return", Reason: err.Error()}
	}
	return r.register(name, KindMutation, typeOf[P](), desc, false, reflect.ValueOf(handler))
}

// QueryAs registers a query whose declared result type is given by a
// prototype value rather than the handler's static return type. Useful for
// dynamic handlers; the declared type still governs the post-invocation
// drift check.
func QueryAs[P any](r *Registry, name string, resultProto any, handler func(context.Context, *CallContext, P) (any, error)) error {
	return r.register(name, KindQuery, typeOf[P](), classifyType(reflect.TypeOf(resultProto)), false, reflect.ValueOf(handler))
}

// MutationAs is the mutation counterpart of [QueryAs].
func MutationAs[P any](r *Registry, name string, resultProto any, handler func(context.Context, *CallContext, P) (any, error)) error {
	return r.register(name, KindMutation, typeOf[P](), classifyType(reflect.TypeOf(resultProto)), false, reflect.ValueOf(handler))
}

func (r *Registry) register(name string, kind Kind, paramsType reflect.Type, result typeDescriptor, void bool, handler reflect.Value) error {
	if name == "" {
		return fmt.Errorf("stitch: procedure name must not be empty")
	}
	// The catalog endpoint owns this path segment on the HTTP transport; a
	// procedure registered under it would be unreachable.
	if name == strings.TrimPrefix(SchemaEndpoint, "/") {
		return fmt.Errorf("stitch: procedure name %q is reserved for the catalog endpoint", name)
	}
	if _, exists := r.procs[name]; exists {
		return &DuplicateProcedureError{Name: name, Kind: kind, Registered: r.Procedures()}
	}

	schema, err := extractSchema(name, paramsType, result)
	if err != nil {
		return err
	}
	params, err := paramFields(paramsType)
	if err != nil {
		return &SchemaExtractionError{Procedure: name, Position: "parameters", Reason: err.Error()}
	}

	r.procs[name] = &procInfo{
		Name:       name,
		Kind:       kind,
		ParamsType: paramsType,
		Params:     params,
		Result:     result,
		Void:       void,
		Handler:    handler,
		Schema:     schema,
	}
	return nil
}

// Procedures returns the sorted names of all registered procedures.
func (r *Registry) Procedures() []string {
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind reports the declared kind of a procedure, or false if unknown.
func (r *Registry) Kind(name string) (Kind, bool) {
	info, ok := r.procs[name]
	if !ok {
		return "", false
	}
	return info.Kind, true
}

// Catalog returns a read-only snapshot of every procedure's kind and
// Schema IR. An empty registry yields an empty mapping.
func (r *Registry) Catalog() Catalog {
	c := make(Catalog, len(r.procs))
	for name, info := range r.procs {
		c[name] = ProcedureDescriptor{Kind: info.Kind, Schema: info.Schema}
	}
	return c
}

// DecodeAndInvoke coerces raw wire parameters into typed handler arguments,
// invokes the handler, and checks the result against the declared output
// definition. Raw values may be strings (query string transport) or
// JSON-decoded values (body transport).
func (r *Registry) DecodeAndInvoke(ctx context.Context, name string, raw map[string]any) (any, error) {
	info, ok := r.procs[name]
	if !ok {
		return nil, &UnknownProcedureError{Name: name, Known: r.Procedures()}
	}

	params, err := r.buildParams(info, raw)
	if err != nil {
		return nil, err
	}

	callCtx := &CallContext{
		RequestID: RequestIDFrom(ctx),
		Procedure: name,
		Kind:      info.Kind,
	}

	results := info.Handler.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(callCtx),
		params,
	})

	if info.Void {
		if !results[0].IsNil() {
			return nil, results[0].Interface().(error)
		}
		return nil, nil
	}

	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	result := results[0].Interface()

	if err := r.checkResult(info, result); err != nil {
		return nil, err
	}
	return result, nil
}

// buildParams assembles the handler's parameter struct from raw values:
// present values are coerced to the declared kind, absent values fall back
// to tag defaults, and absent values without a default reject the call.
func (r *Registry) buildParams(info *procInfo, raw map[string]any) (reflect.Value, error) {
	t := info.ParamsType
	isPtr := t.Kind() == reflect.Ptr
	if isPtr {
		t = t.Elem()
	}
	v := reflect.New(t).Elem()

	for _, p := range info.Params {
		rawVal, present := raw[p.Name]
		if !present {
			if p.Default == nil {
				return reflect.Value{}, &ParamDecodeError{
					Procedure: info.Name, Param: p.Name, Reason: "required parameter missing",
				}
			}
			if err := setFieldFromString(v.Field(p.Index), p.GoType, *p.Default); err != nil {
				return reflect.Value{}, &ParamDecodeError{Procedure: info.Name, Param: p.Name, Reason: err.Error()}
			}
			continue
		}
		if err := assignParam(v.Field(p.Index), p, rawVal); err != nil {
			return reflect.Value{}, &ParamDecodeError{Procedure: info.Name, Param: p.Name, Reason: err.Error()}
		}
	}

	if isPtr {
		return v.Addr(), nil
	}
	return v, nil
}

// assignParam coerces one raw wire value into a parameter field. String
// raws are parsed per the declared kind (booleans accept the truthy token
// set); structured raws pass through, re-shaped via JSON when needed.
func assignParam(field reflect.Value, p fieldDescriptor, raw any) error {
	ft := field.Type()
	if s, ok := raw.(string); ok && ft.Kind() != reflect.Interface {
		switch ft.Kind() {
		case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.Bool, reflect.Ptr:
			return setFieldFromString(field, ft, s)
		}
	}
	return assignLoose(field, raw)
}

// assignLoose assigns an already-typed (JSON-decoded) value to a field.
func assignLoose(field reflect.Value, raw any) error {
	if raw == nil {
		return nil // leave the zero value
	}
	ft := field.Type()
	if ft.Kind() == reflect.Ptr {
		ptr := reflect.New(ft.Elem())
		if err := assignLoose(ptr.Elem(), raw); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	switch ft.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := rawInt(raw)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := rawInt(raw)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("negative value %d for unsigned parameter", n)
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			field.SetFloat(n)
		case float32:
			field.SetFloat(float64(n))
		case int:
			field.SetFloat(float64(n))
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("cannot convert %T to number", raw)
		}
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("cannot convert %T to boolean", raw)
		}
		field.SetBool(b)
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("cannot convert %T to string", raw)
		}
		field.SetString(s)
	case reflect.Interface:
		field.Set(reflect.ValueOf(raw))
	case reflect.Struct:
		m, isMap := raw.(map[string]any)
		if !isMap {
			return fmt.Errorf("cannot convert %T to object", raw)
		}
		sd := describeStruct(ft)
		if len(sd.Fields) == 0 {
			// No wire-named fields; let encoding/json do the mapping.
			data, err := json.Marshal(raw)
			if err != nil {
				return fmt.Errorf("cannot convert %T to %v: %w", raw, ft, err)
			}
			return json.Unmarshal(data, field.Addr().Interface())
		}
		for _, f := range sd.Fields {
			fv, present := m[f.Name]
			if !present {
				if f.Default != nil {
					if err := setFieldFromString(field.Field(f.Index), f.GoType, *f.Default); err != nil {
						return fmt.Errorf("field %q: %w", f.Name, err)
					}
					continue
				}
				return fmt.Errorf("missing field %q", f.Name)
			}
			if err := assignParam(field.Field(f.Index), f, fv); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	default:
		rv := reflect.ValueOf(raw)
		if rv.Type().AssignableTo(ft) {
			field.Set(rv)
			return nil
		}
		// Structured value with a mismatched Go shape: re-shape via JSON.
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("cannot convert %T to %v: %w", raw, ft, err)
		}
		if err := json.Unmarshal(data, field.Addr().Interface()); err != nil {
			return fmt.Errorf("cannot convert %T to %v: %w", raw, ft, err)
		}
	}
	return nil
}

// rawInt converts a JSON-decoded numeric value to int64, rejecting
// non-integral numbers.
func rawInt(raw any) (int64, error) {
	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("number %v is not an integer", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", raw)
	}
}

// checkResult runs the post-invocation contract check for validated-variant
// outputs: the result's own Validate, then a field-set comparison against
// the declared definition. Either failure is reported to the caller as a
// structured 422-class error, never a crash.
func (r *Registry) checkResult(info *procInfo, result any) error {
	out := info.Result
	if out.kind != descStruct || out.strct.Variant != VariantValidated {
		return nil
	}

	if v, ok := asValidator(result); ok {
		if err := v.Validate(); err != nil {
			return &ValidationFailedError{Procedure: info.Name, Err: err}
		}
	}

	def, ok := info.Schema.Defs[out.strct.Name]
	if !ok {
		return nil
	}
	expected := append([]string(nil), def.Required...)
	sort.Strings(expected)

	// Defaulted fields do not participate in the drift check; the comparison
	// is required-set vs required-set on both sides.
	actual := make([]string, 0, len(expected))
	for _, name := range resultFieldSet(result) {
		if fs, declared := def.Properties[name]; declared && fs.Default != nil {
			continue
		}
		actual = append(actual, name)
	}
	sort.Strings(actual)

	if len(expected) != len(actual) {
		return &ResultDriftError{Procedure: info.Name, Expected: expected, Actual: actual}
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return &ResultDriftError{Procedure: info.Name, Expected: expected, Actual: actual}
		}
	}
	return nil
}

// asValidator resolves the Validator capability on a result value or its
// address.
func asValidator(result any) (Validator, bool) {
	if v, ok := result.(Validator); ok {
		return v, true
	}
	if result == nil {
		return nil, false
	}
	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Ptr {
		return nil, false
	}
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	v, ok := ptr.Interface().(Validator)
	return v, ok
}

// resultFieldSet reports the wire field names actually present on a handler
// result: tagged fields for structs, keys for maps.
func resultFieldSet(result any) []string {
	if result == nil {
		return nil
	}
	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		sd := describeStruct(rv.Type())
		names := make([]string, 0, len(sd.Fields))
		for _, f := range sd.Fields {
			names = append(names, f.Name)
		}
		return names
	case reflect.Map:
		names := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			names = append(names, fmt.Sprintf("%v", k.Interface()))
		}
		return names
	default:
		return nil
	}
}
