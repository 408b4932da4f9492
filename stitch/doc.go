// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

// Package stitch implements a typed procedure registry whose contract is a
// machine-readable JSON schema shared between server and client.
//
// A service declares queries and mutations as plain Go functions with typed
// parameter structs. At registration time stitch compiles each declaration
// into a canonical Schema IR ({input, output, $defs}) describing the input
// fields, their required-ness and defaults, and the shape of the result.
// The serving side exposes the full catalog at GET <prefix>/schema and uses
// the same IR to decode loosely-typed wire parameters into handler
// arguments and to detect result drift after a handler runs. The calling
// side ([Client]) fetches the catalog once and validates every outgoing
// call locally before any network transmission.
//
// # Procedure kinds
//
// Two kinds are supported:
//
//   - query: dispatched as GET <prefix>/<name> with arguments in the query
//     string. Register with [Query], [QueryVoid], [QueryTuple], or [QueryAs].
//   - mutation: dispatched as POST <prefix>/<name> with arguments as a JSON
//     body. Register with [Mutation], [MutationVoid], [MutationTuple], or
//     [MutationAs].
//
// # Struct tags
//
// Parameters are declared as Go structs annotated with `stitch` struct
// tags. The tag format is:
//
//	`stitch:"wire_name[,default=VALUE]"`
//
// Fields with a default are omitted from the schema's required list and
// the default is substituted server-side when the caller omits them.
// Untagged fields (or fields tagged "-") are invisible to the wire.
//
// # Struct variants
//
// Structured results come in two variants, distinguished in the schema so
// consumers know what to expect on decode:
//
//   - validated: the type implements [Validator]. The registry calls
//     Validate() after the handler runs and additionally compares the
//     result's field set against the declared definition; a mismatch is
//     reported to the caller as a 422 response instead of the raw result.
//   - plain: field introspection only; no post-invocation checking beyond
//     what the schema describes.
//
// # HTTP transport
//
// [HttpServer] wraps a [Registry] and exposes it over HTTP:
//
//	GET  <prefix>/schema  — JSON catalog of every procedure's Schema IR
//	GET  <prefix>/<name>  — query dispatch
//	POST <prefix>/<name>  — mutation dispatch
//
// Responses are JSON; schema drift and validation failures are reported
// with status 422 and a structured {message, errors} body.
//
// # Reference implementation
//
// The wire contract matches the stitch Python reference implementation
// (FastAPI router + requests client).
package stitch
