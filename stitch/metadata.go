// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

// Well-known constants of the stitch HTTP surface.
const (
	// HeaderRequestID carries the request identifier; the server mints one
	// when the caller does not supply it and echoes it on every response.
	HeaderRequestID = "X-Stitch-Request-Id"

	contentTypeJSON = "application/json"

	// SchemaEndpoint is the path, relative to the mount prefix, at which the
	// full procedure catalog is served.
	SchemaEndpoint = "/schema"

	// HeaderProtocolVersion advertises the catalog format version on schema
	// responses.
	HeaderProtocolVersion = "X-Stitch-Protocol"

	ProtocolVersion = "1"
)
