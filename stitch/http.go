// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
)

// HttpServer serves procedure calls over HTTP. Queries dispatch as GET with
// query string arguments, mutations as POST with a JSON object body, and the
// full catalog is served at GET <prefix>/schema.
type HttpServer struct {
	registry *Registry
	prefix   string
	serverID string
	hook     DispatchHook
	logger   *slog.Logger
	mux      *http.ServeMux
}

// HttpOption configures an HttpServer.
type HttpOption func(*HttpServer)

// WithPrefix sets the route prefix for all endpoints. Defaults to "" (the
// catalog lives at /schema and procedures at the root).
func WithPrefix(prefix string) HttpOption {
	return func(h *HttpServer) {
		h.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithServerID sets an identifier echoed in dispatch hook metadata and logs.
func WithServerID(id string) HttpOption {
	return func(h *HttpServer) { h.serverID = id }
}

// WithDispatchHook installs an observability hook invoked around every
// dispatched call.
func WithDispatchHook(hook DispatchHook) HttpOption {
	return func(h *HttpServer) { h.hook = hook }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) HttpOption {
	return func(h *HttpServer) { h.logger = logger }
}

// NewHttpServer creates an HTTP server exposing every procedure in the
// registry.
func NewHttpServer(registry *Registry, opts ...HttpOption) *HttpServer {
	h := &HttpServer{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc(fmt.Sprintf("GET %s%s", h.prefix, SchemaEndpoint), h.handleSchema)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/{procedure}", h.prefix), h.handleQuery)
	h.mux.HandleFunc(fmt.Sprintf("POST %s/{procedure}", h.prefix), h.handleMutation)
	h.mux.HandleFunc(fmt.Sprintf("GET %s/{$}", h.prefix), h.handleIndex)
	return h
}

// SetDispatchHook installs or replaces the observability hook. Not safe to
// call while serving.
func (h *HttpServer) SetDispatchHook(hook DispatchHook) {
	h.hook = hook
}

// ServeHTTP implements http.Handler.
func (h *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handler returns the server wrapped with transparent gzip compression.
func (h *HttpServer) Handler() http.Handler {
	return gzhttp.GzipHandler(h)
}

// handleSchema serves the catalog: every procedure's kind and Schema IR.
func (h *HttpServer) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(HeaderProtocolVersion, ProtocolVersion)
	h.writeJSON(w, http.StatusOK, h.registry.Catalog())
}

func (h *HttpServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("procedure")

	params := make(map[string]any)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	h.dispatch(w, r, name, KindQuery, params, 0)
}

func (h *HttpServer) handleMutation(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("procedure")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorBody{Message: "reading request body", Errors: err.Error()})
		return
	}

	params := make(map[string]any)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			h.writeError(w, http.StatusBadRequest, ErrorBody{Message: "request body must be a JSON object", Errors: err.Error()})
			return
		}
	}
	h.dispatch(w, r, name, KindMutation, params, int64(len(body)))
}

// dispatch runs the shared invoke path: kind check, hook start, registry
// invocation, error mapping, hook end.
func (h *HttpServer) dispatch(w http.ResponseWriter, r *http.Request, name string, kind Kind, params map[string]any, requestBytes int64) {
	declared, known := h.registry.Kind(name)
	if !known {
		h.writeError(w, http.StatusNotFound, ErrorBody{
			Message: fmt.Sprintf("unknown procedure: %q", name),
		})
		return
	}
	if declared != kind {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorBody{
			Message: fmt.Sprintf("procedure %q is a %s; use %s", name, declared, methodFor(declared)),
		})
		return
	}

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := WithRequestID(r.Context(), requestID)
	w.Header().Set(HeaderRequestID, requestID)

	info := DispatchInfo{
		Procedure:         name,
		Kind:              string(kind),
		RequestID:         requestID,
		TransportMetadata: transportMetadata(r, h.serverID),
	}
	stats := &CallStatistics{}
	stats.RecordRequest(requestBytes)

	var token HookToken
	if h.hook != nil {
		ctx, token = safeDispatchStart(h.hook, ctx, info)
	}

	result, err := h.registry.DecodeAndInvoke(ctx, name, params)

	var status int
	if err != nil {
		status = h.writeDispatchError(w, name, err)
	} else {
		payload, mErr := json.Marshal(wireValue(result))
		if mErr != nil {
			err = fmt.Errorf("serializing result of %q: %w", name, mErr)
			status = h.writeDispatchError(w, name, err)
		} else {
			stats.RecordResponse(int64(len(payload)))
			status = http.StatusOK
			w.Header().Set("Content-Type", contentTypeJSON)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload)
		}
	}

	if h.hook != nil {
		safeDispatchEnd(h.hook, ctx, token, info, stats, err)
	}

	if err != nil {
		h.logger.Warn("dispatch failed",
			"procedure", name, "kind", kind, "request_id", requestID,
			"status", status, "error", err)
	} else {
		h.logger.Debug("dispatch ok",
			"procedure", name, "kind", kind, "request_id", requestID,
			"request_bytes", stats.RequestBytes, "response_bytes", stats.ResponseBytes)
	}
}

// writeDispatchError maps an invocation error to its HTTP status and writes
// the structured body. Contract failures (result validation or drift) map to
// 422 so callers can distinguish them from transport or handler faults.
func (h *HttpServer) writeDispatchError(w http.ResponseWriter, name string, err error) int {
	var (
		decodeErr     *ParamDecodeError
		validationErr *ValidationFailedError
		driftErr      *ResultDriftError
		unknownErr    *UnknownProcedureError
	)
	switch {
	case errors.As(err, &unknownErr):
		h.writeError(w, http.StatusNotFound, ErrorBody{Message: err.Error()})
		return http.StatusNotFound
	case errors.As(err, &decodeErr):
		h.writeError(w, http.StatusBadRequest, ErrorBody{Message: err.Error()})
		return http.StatusBadRequest
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusUnprocessableEntity, ErrorBody{
			Message: fmt.Sprintf("result of %q failed validation", name),
			Errors:  validationErr.Err.Error(),
		})
		return http.StatusUnprocessableEntity
	case errors.As(err, &driftErr):
		h.writeError(w, http.StatusUnprocessableEntity, ErrorBody{
			Message: fmt.Sprintf("result of %q does not match its declared schema", name),
			Errors:  fmt.Sprintf("expected fields %v, got %v", driftErr.Expected, driftErr.Actual),
		})
		return http.StatusUnprocessableEntity
	default:
		h.writeError(w, http.StatusInternalServerError, ErrorBody{Message: err.Error()})
		return http.StatusInternalServerError
	}
}

func (h *HttpServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *HttpServer) writeError(w http.ResponseWriter, status int, body ErrorBody) {
	h.writeJSON(w, status, body)
}

func methodFor(kind Kind) string {
	if kind == KindMutation {
		return http.MethodPost
	}
	return http.MethodGet
}

// transportMetadata collects lowercased request headers plus connection
// details for dispatch hooks.
func transportMetadata(r *http.Request, serverID string) map[string]string {
	md := make(map[string]string, len(r.Header)+3)
	for key, vals := range r.Header {
		if len(vals) > 0 {
			md[strings.ToLower(key)] = vals[0]
		}
	}
	md["remote_addr"] = r.RemoteAddr
	md["user_agent"] = r.UserAgent()
	if serverID != "" {
		md["server_id"] = serverID
	}
	return md
}

// Hooks must never take a dispatch down with them.
func safeDispatchStart(hook DispatchHook, ctx context.Context, info DispatchInfo) (c context.Context, t HookToken) {
	c = ctx
	defer func() { _ = recover() }()
	c, t = hook.OnDispatchStart(ctx, info)
	return c, t
}

func safeDispatchEnd(hook DispatchHook, ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error) {
	defer func() { _ = recover() }()
	hook.OnDispatchEnd(ctx, token, info, stats, err)
}
