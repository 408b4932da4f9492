// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import "context"

// DispatchHook provides observability callpoints around procedure dispatch.
// Implementations must be safe for concurrent use (the HTTP transport is
// concurrent).
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back
// to OnDispatchEnd. Only meaningful to the DispatchHook that created it.
type HookToken interface{}

// DispatchInfo carries procedure metadata passed to hooks.
type DispatchInfo struct {
	Procedure         string            // procedure name
	Kind              string            // "query" or "mutation"
	RequestID         string            // request identifier
	TransportMetadata map[string]string // transport-level metadata (HTTP headers)
}

// CallStatistics holds per-call I/O counters.
type CallStatistics struct {
	RequestBytes  int64
	ResponseBytes int64
}

// RecordRequest records the size of the decoded request payload.
func (s *CallStatistics) RecordRequest(n int64) {
	s.RequestBytes += n
}

// RecordResponse records the size of the serialized response payload.
func (s *CallStatistics) RecordResponse(n int64) {
	s.ResponseBytes += n
}
