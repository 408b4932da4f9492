// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...HttpOption) (*Registry, *httptest.Server) {
	t.Helper()
	r := NewRegistry()

	require.NoError(t, Query(r, "add", func(_ context.Context, _ *CallContext, p struct {
		A float64 `stitch:"a"`
		B float64 `stitch:"b"`
	}) (float64, error) {
		return p.A + p.B, nil
	}))

	require.NoError(t, Mutation(r, "make_user", func(_ context.Context, _ *CallContext, p struct {
		Name  string `stitch:"name"`
		Email string `stitch:"email"`
	}) (testUser, error) {
		return testUser{ID: 1, Name: p.Name, Email: p.Email}, nil
	}))

	require.NoError(t, QueryAs(r, "drifting", testUser{}, func(_ context.Context, _ *CallContext, _ struct{}) (any, error) {
		return map[string]any{"id": int64(1)}, nil
	}))

	srv := httptest.NewServer(NewHttpServer(r, opts...))
	t.Cleanup(srv.Close)
	return r, srv
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if into != nil {
		require.NoError(t, json.Unmarshal(body, into), "body: %s", body)
	}
	return resp
}

func TestHttpServer_SchemaEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	catalog, err := DecodeCatalog(body)
	require.NoError(t, err)

	require.Len(t, catalog, 3)
	assert.Equal(t, KindQuery, catalog["add"].Kind)
	assert.Equal(t, KindMutation, catalog["make_user"].Kind)
	assert.True(t, catalog["make_user"].Schema.Output.IsStructRef())
}

func TestHttpServer_QueryDispatch(t *testing.T) {
	_, srv := newTestServer(t)

	var result float64
	resp := getJSON(t, srv.URL+"/add?a=1.5&b=2", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.5, result)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}

func TestHttpServer_MutationDispatch(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/make_user", contentTypeJSON,
		strings.NewReader(`{"name": "ada", "email": "ada@example.com"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "ada", user["name"])
	assert.Equal(t, "ada@example.com", user["email"])
}

func TestHttpServer_UnknownProcedure(t *testing.T) {
	_, srv := newTestServer(t)

	var body ErrorBody
	resp := getJSON(t, srv.URL+"/missing", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body.Message, "missing")
}

func TestHttpServer_KindMethodMismatch(t *testing.T) {
	_, srv := newTestServer(t)

	// GET on a mutation
	resp, err := http.Get(srv.URL + "/make_user")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// POST on a query
	resp, err = http.Post(srv.URL+"/add", contentTypeJSON, strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHttpServer_BadParameter(t *testing.T) {
	_, srv := newTestServer(t)

	var body ErrorBody
	resp := getJSON(t, srv.URL+"/add?a=abc&b=2", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Message, "a")
}

func TestHttpServer_MissingParameter(t *testing.T) {
	_, srv := newTestServer(t)

	var body ErrorBody
	resp := getJSON(t, srv.URL+"/add?a=1", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Message, "required parameter missing")
}

func TestHttpServer_DriftReturns422(t *testing.T) {
	_, srv := newTestServer(t)

	var body ErrorBody
	resp := getJSON(t, srv.URL+"/drifting", &body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body.Message, "declared schema")
	assert.NotEmpty(t, body.Errors)
}

func TestHttpServer_ValidationReturns422(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Query(r, "bad_user", func(_ context.Context, _ *CallContext, _ struct{}) (testUser, error) {
		return testUser{ID: 1, Email: "x@y.z"}, nil // fails Validate
	}))
	srv := httptest.NewServer(NewHttpServer(r))
	defer srv.Close()

	var body ErrorBody
	resp := getJSON(t, srv.URL+"/bad_user", &body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body.Errors, "name must not be empty")
}

func TestHttpServer_MalformedBody(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/make_user", contentTypeJSON, strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHttpServer_RequestIDEchoed(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/add?a=1&b=2", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "req-777")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-777", resp.Header.Get(HeaderRequestID))
}

func TestHttpServer_LandingPage(t *testing.T) {
	_, srv := newTestServer(t, WithServerID("calc"))

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	assert.Contains(t, page, "add")
	assert.Contains(t, page, "make_user")
	assert.Contains(t, page, "calc")
}

func TestHttpServer_Prefix(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Query(r, "ping", func(_ context.Context, _ *CallContext, _ struct{}) (string, error) {
		return "pong", nil
	}))
	srv := httptest.NewServer(NewHttpServer(r, WithPrefix("/rpc")))
	defer srv.Close()

	var result string
	resp := getJSON(t, srv.URL+"/rpc/ping", &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", result)

	resp2, err := http.Get(srv.URL + "/rpc/schema")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

// recordingHook captures dispatch callbacks for assertions.
type recordingHook struct {
	started []DispatchInfo
	ended   []error
}

func (h *recordingHook) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	h.started = append(h.started, info)
	return ctx, "token"
}

func (h *recordingHook) OnDispatchEnd(_ context.Context, token HookToken, _ DispatchInfo, _ *CallStatistics, err error) {
	if token != "token" {
		panic("token mismatch")
	}
	h.ended = append(h.ended, err)
}

func TestHttpServer_DispatchHook(t *testing.T) {
	hook := &recordingHook{}
	_, srv := newTestServer(t, WithDispatchHook(hook))

	var result float64
	getJSON(t, srv.URL+"/add?a=1&b=2", &result)

	require.Len(t, hook.started, 1)
	assert.Equal(t, "add", hook.started[0].Procedure)
	assert.Equal(t, "query", hook.started[0].Kind)
	assert.NotEmpty(t, hook.started[0].RequestID)
	assert.NotEmpty(t, hook.started[0].TransportMetadata["user_agent"])
	require.Len(t, hook.ended, 1)
	assert.NoError(t, hook.ended[0])
}
