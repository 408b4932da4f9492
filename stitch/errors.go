// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"fmt"
	"strings"
)

// SchemaExtractionError reports that a declared parameter or return type
// could not be compiled into the Schema IR. It is fatal to the registration
// that produced it; the procedure is not registered.
type SchemaExtractionError struct {
	Procedure string
	Position  string // parameter wire name, or "return"
	Reason    string
}

func (e *SchemaExtractionError) Error() string {
	return fmt.Sprintf("schema extraction failed for %q at %s: %s", e.Procedure, e.Position, e.Reason)
}

// DuplicateProcedureError reports a name collision at registration time.
// The previously registered procedure is unaffected.
type DuplicateProcedureError struct {
	Name       string
	Kind       Kind
	Registered []string
}

func (e *DuplicateProcedureError) Error() string {
	return fmt.Sprintf("duplicate procedure name: %q already exists (registering kind %q, existing: %v)",
		e.Name, e.Kind, e.Registered)
}

// UnknownProcedureError reports a call to a name absent from the registry
// or the client's cached catalog.
type UnknownProcedureError struct {
	Name  string
	Known []string
}

func (e *UnknownProcedureError) Error() string {
	return fmt.Sprintf("unknown procedure: %q (available: %v)", e.Name, e.Known)
}

// RequiredFieldMissing is a client-side pre-flight failure: a field listed
// in the input schema's required set was not supplied. No network call is
// attempted.
type RequiredFieldMissing struct {
	Field    string
	Required []string
}

func (e *RequiredFieldMissing) Error() string {
	return fmt.Sprintf("missing required field %q (required: %s)", e.Field, strings.Join(e.Required, ", "))
}

// FieldTypeError is a client-side pre-flight failure: a supplied argument's
// runtime kind disagrees with the declared field type. No network call is
// attempted.
type FieldTypeError struct {
	Field    string
	Expected string
	Received string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("invalid type for field %q: expected %s, received %s", e.Field, e.Expected, e.Received)
}

// InvalidProcedureKind reports a catalog entry whose kind is neither query
// nor mutation. The catalog should never produce one; the client refuses to
// proceed rather than guess a dispatch method.
type InvalidProcedureKind struct {
	Procedure string
	Kind      Kind
}

func (e *InvalidProcedureKind) Error() string {
	return fmt.Sprintf("invalid kind %q for procedure %q", e.Kind, e.Procedure)
}

// ParamDecodeError reports a server-side failure to assemble handler
// arguments from raw wire parameters: a declared-but-unconvertible value,
// or a required parameter that is absent with no default. The call is
// rejected rather than silently defaulted.
type ParamDecodeError struct {
	Procedure string
	Param     string
	Reason    string
}

func (e *ParamDecodeError) Error() string {
	return fmt.Sprintf("decoding parameter %q of %q: %s", e.Param, e.Procedure, e.Reason)
}

// ValidationFailedError reports that a validated-variant result rejected
// itself via [Validator.Validate] after the handler ran. Reported to the
// caller as a 422 response, never a crash.
type ValidationFailedError struct {
	Procedure string
	Err       error
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed for result of %q: %v", e.Procedure, e.Err)
}

func (e *ValidationFailedError) Unwrap() error { return e.Err }

// ResultDriftError reports that a handler's returned field set disagrees
// with the declared output definition. It protects callers from silently
// receiving malformed payloads that merely happen to parse as JSON.
type ResultDriftError struct {
	Procedure string
	Expected  []string // sorted
	Actual    []string // sorted
}

func (e *ResultDriftError) Error() string {
	return fmt.Sprintf("result schema drift in %q: expected fields %v, got %v", e.Procedure, e.Expected, e.Actual)
}

// CallError is the client-side representation of a non-2xx response from
// the server, carrying the structured {message, errors} body.
type CallError struct {
	Procedure string
	Status    int
	Message   string
	Errors    string
}

func (e *CallError) Error() string {
	if e.Errors != "" {
		return fmt.Sprintf("call to %q failed with status %d: %s (%s)", e.Procedure, e.Status, e.Message, e.Errors)
	}
	return fmt.Sprintf("call to %q failed with status %d: %s", e.Procedure, e.Status, e.Message)
}
