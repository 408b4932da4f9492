// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Message string `stitch:"message"`
	Repeat  int    `stitch:"repeat,default=2"`
	Shout   bool   `stitch:"shout,default=false"`
}

func newEchoRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, Query(r, "echo", func(_ context.Context, _ *CallContext, p echoParams) (map[string]any, error) {
		return map[string]any{"message": p.Message, "repeat": p.Repeat, "shout": p.Shout}, nil
	}))
	return r
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := newEchoRegistry(t)

	err := Mutation(r, "echo", func(_ context.Context, _ *CallContext, p echoParams) (string, error) {
		return "", nil
	})
	var dupErr *DuplicateProcedureError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "echo", dupErr.Name)
	assert.Equal(t, KindMutation, dupErr.Kind)

	// First registration stays intact and callable.
	kind, ok := r.Kind("echo")
	require.True(t, ok)
	assert.Equal(t, KindQuery, kind)

	result, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.(map[string]any)["message"])
}

func TestRegistry_ExtractionFailureNotRegistered(t *testing.T) {
	type badParams struct {
		Blob struct {
			A int `stitch:"a"`
		} `stitch:"blob"`
	}

	r := NewRegistry()
	err := Query(r, "bad", func(_ context.Context, _ *CallContext, p badParams) (string, error) {
		return "", nil
	})
	var exErr *SchemaExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Empty(t, r.Procedures())
}

func TestRegistry_ReservedNameRejected(t *testing.T) {
	r := NewRegistry()

	err := Query(r, "schema", func(_ context.Context, _ *CallContext, _ struct{}) (string, error) {
		return "", nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
	assert.Empty(t, r.Procedures())
}

func TestDecodeAndInvoke_StringCoercion(t *testing.T) {
	r := newEchoRegistry(t)

	result, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{
		"message": "hi",
		"repeat":  "42",
		"shout":   "yes",
	})
	require.NoError(t, err)
	got := result.(map[string]any)
	assert.Equal(t, 42, got["repeat"])
	assert.Equal(t, true, got["shout"])
}

func TestDecodeAndInvoke_TruthyTokens(t *testing.T) {
	r := newEchoRegistry(t)

	for raw, want := range map[string]bool{
		"true": true, "1": true, "YES": true, "on": true,
		"false": false, "0": false, "off": false, "banana": false,
	} {
		result, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{
			"message": "x", "shout": raw,
		})
		require.NoError(t, err, "token %q", raw)
		assert.Equal(t, want, result.(map[string]any)["shout"], "token %q", raw)
	}
}

func TestDecodeAndInvoke_DefaultsApplied(t *testing.T) {
	r := newEchoRegistry(t)

	result, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	got := result.(map[string]any)
	assert.Equal(t, 2, got["repeat"])
	assert.Equal(t, false, got["shout"])
}

func TestDecodeAndInvoke_MissingRequired(t *testing.T) {
	r := newEchoRegistry(t)

	_, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{"repeat": "3"})
	var decErr *ParamDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "message", decErr.Param)
}

func TestDecodeAndInvoke_NonIntegralNumberRejected(t *testing.T) {
	r := newEchoRegistry(t)

	_, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{
		"message": "hi", "repeat": 3.5,
	})
	var decErr *ParamDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "repeat", decErr.Param)

	// An integral JSON number is fine.
	result, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{
		"message": "hi", "repeat": float64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.(map[string]any)["repeat"])
}

func TestDecodeAndInvoke_MalformedStringRejected(t *testing.T) {
	r := newEchoRegistry(t)

	_, err := r.DecodeAndInvoke(context.Background(), "echo", map[string]any{
		"message": "hi", "repeat": "many",
	})
	var decErr *ParamDecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "repeat", decErr.Param)
}

func TestDecodeAndInvoke_StructParamFromMap(t *testing.T) {
	type moveParams struct {
		Origin testPoint `stitch:"origin"`
	}

	r := NewRegistry()
	require.NoError(t, Query(r, "move", func(_ context.Context, _ *CallContext, p moveParams) (float64, error) {
		return p.Origin.X + p.Origin.Y, nil
	}))

	result, err := r.DecodeAndInvoke(context.Background(), "move", map[string]any{
		"origin": map[string]any{"x": 1.5, "y": 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, result)
}

func TestDecodeAndInvoke_UnknownProcedure(t *testing.T) {
	r := newEchoRegistry(t)

	_, err := r.DecodeAndInvoke(context.Background(), "nope", nil)
	var unknownErr *UnknownProcedureError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, []string{"echo"}, unknownErr.Known)
}

func TestDecodeAndInvoke_VoidProcedure(t *testing.T) {
	r := NewRegistry()
	var called bool
	require.NoError(t, MutationVoid(r, "reset", func(_ context.Context, _ *CallContext, _ struct{}) error {
		called = true
		return nil
	}))

	result, err := r.DecodeAndInvoke(context.Background(), "reset", map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.True(t, called)
}

func TestDecodeAndInvoke_HandlerError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, Query(r, "fail", func(_ context.Context, _ *CallContext, _ struct{}) (string, error) {
		return "", boom
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "fail", map[string]any{})
	assert.ErrorIs(t, err, boom)
}

func TestDecodeAndInvoke_TupleResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, QueryTuple(r, "stats", []any{int64(0), ""}, func(_ context.Context, _ *CallContext, _ struct{}) ([]any, error) {
		return []any{int64(7), "ok"}, nil
	}))

	result, err := r.DecodeAndInvoke(context.Background(), "stats", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), "ok"}, result)
}

func TestDecodeAndInvoke_CallContextPopulated(t *testing.T) {
	r := NewRegistry()
	var got CallContext
	require.NoError(t, Query(r, "who", func(_ context.Context, cc *CallContext, _ struct{}) (string, error) {
		got = *cc
		return "", nil
	}))

	ctx := WithRequestID(context.Background(), "req-123")
	_, err := r.DecodeAndInvoke(ctx, "who", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "req-123", got.RequestID)
	assert.Equal(t, "who", got.Procedure)
	assert.Equal(t, KindQuery, got.Kind)
}

func TestCheckResult_ValidationFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Query(r, "get_user", func(_ context.Context, _ *CallContext, _ struct{}) (testUser, error) {
		return testUser{ID: 1, Email: "a@b.c"}, nil // empty name fails Validate
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "get_user", map[string]any{})
	var valErr *ValidationFailedError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "get_user", valErr.Procedure)
}

func TestCheckResult_DriftDetected(t *testing.T) {
	r := NewRegistry()
	// The declared result is testUser, but the handler returns a map with a
	// missing field.
	require.NoError(t, QueryAs(r, "get_user", testUser{}, func(_ context.Context, _ *CallContext, _ struct{}) (any, error) {
		return map[string]any{"id": int64(1), "name": "ada"}, nil
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "get_user", map[string]any{})
	var driftErr *ResultDriftError
	require.ErrorAs(t, err, &driftErr)
	assert.Equal(t, []string{"email", "id", "name"}, driftErr.Expected)
	assert.Equal(t, []string{"id", "name"}, driftErr.Actual)
}

// testAccount carries a defaulted field alongside a required one.
type testAccount struct {
	ID     int64 `stitch:"id"`
	Active bool  `stitch:"active,default=true"`
}

func (a testAccount) Validate() error { return nil }

func TestCheckResult_DefaultedFieldsExcludedFromDrift(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Query(r, "get_account", func(_ context.Context, _ *CallContext, _ struct{}) (testAccount, error) {
		return testAccount{ID: 7, Active: true}, nil
	}))

	// The comparison is required-set vs required-set: a populated defaulted
	// field must not register as drift.
	_, err := r.DecodeAndInvoke(context.Background(), "get_account", map[string]any{})
	assert.NoError(t, err)
}

func TestCheckResult_MapWithoutDefaultedFieldPasses(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, QueryAs(r, "get_account", testAccount{}, func(_ context.Context, _ *CallContext, _ struct{}) (any, error) {
		return map[string]any{"id": int64(7)}, nil
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "get_account", map[string]any{})
	assert.NoError(t, err)

	// A missing required field still drifts.
	r2 := NewRegistry()
	require.NoError(t, QueryAs(r2, "get_account", testAccount{}, func(_ context.Context, _ *CallContext, _ struct{}) (any, error) {
		return map[string]any{"active": true}, nil
	}))

	_, err = r2.DecodeAndInvoke(context.Background(), "get_account", map[string]any{})
	var driftErr *ResultDriftError
	require.ErrorAs(t, err, &driftErr)
	assert.Equal(t, []string{"id"}, driftErr.Expected)
	assert.Empty(t, driftErr.Actual)
}

func TestCheckResult_MatchingMapPasses(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, QueryAs(r, "get_user", testUser{}, func(_ context.Context, _ *CallContext, _ struct{}) (any, error) {
		return map[string]any{"id": int64(1), "name": "ada", "email": "ada@example.com"}, nil
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "get_user", map[string]any{})
	assert.NoError(t, err)
}

func TestCheckResult_PlainStructSkipsValidation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, Query(r, "origin", func(_ context.Context, _ *CallContext, _ struct{}) (testPoint, error) {
		return testPoint{}, nil
	}))

	_, err := r.DecodeAndInvoke(context.Background(), "origin", map[string]any{})
	assert.NoError(t, err)
}

func TestRegistry_Catalog(t *testing.T) {
	r := newEchoRegistry(t)
	require.NoError(t, MutationVoid(r, "reset", func(_ context.Context, _ *CallContext, _ struct{}) error {
		return nil
	}))

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, KindQuery, catalog["echo"].Kind)
	assert.Equal(t, KindMutation, catalog["reset"].Kind)
	assert.True(t, catalog["reset"].Schema.Output.IsVoid())
	assert.Equal(t, []string{"echo", "reset"}, r.Procedures())
}
