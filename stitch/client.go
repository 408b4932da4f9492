// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaFetcher retrieves the schema catalog for a service. The HTTP
// fetcher is the default; tests and embedded setups can substitute their
// own.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, baseURL string) (Catalog, error)
}

// HTTPSchemaFetcher fetches the catalog over HTTP from <baseURL>/schema.
type HTTPSchemaFetcher struct {
	Client *http.Client
}

// FetchSchema implements SchemaFetcher.
func (f *HTTPSchemaFetcher) FetchSchema(ctx context.Context, baseURL string) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+SchemaEndpoint, nil)
	if err != nil {
		return nil, err
	}
	hc := f.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching schema catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading schema catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching schema catalog: status %d", resp.StatusCode)
	}
	return DecodeCatalog(body)
}

// Client is a schema-checked caller. It fetches the catalog once at
// construction and holds it for its lifetime; every Call is checked against
// the cached schemas before any network traffic.
type Client struct {
	baseURL string
	catalog Catalog
	http    *http.Client
	timeout time.Duration
	fetcher SchemaFetcher
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout applied when the caller's context
// carries no deadline. Defaults to 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithSchemaFetcher replaces the catalog fetch strategy.
func WithSchemaFetcher(f SchemaFetcher) ClientOption {
	return func(c *Client) { c.fetcher = f }
}

// NewClient constructs a client for the service at baseURL and eagerly
// fetches its schema catalog. A catalog fetch failure fails construction;
// there is no unchecked fallback mode.
func NewClient(ctx context.Context, baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetcher == nil {
		c.fetcher = &HTTPSchemaFetcher{Client: c.http}
	}

	catalog, err := c.fetcher.FetchSchema(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	c.catalog = catalog
	return c, nil
}

// Procedures returns the names in the cached catalog, unsorted.
func (c *Client) Procedures() []string {
	names := make([]string, 0, len(c.catalog))
	for name := range c.catalog {
		names = append(names, name)
	}
	return names
}

// Schema returns the cached descriptor for one procedure.
func (c *Client) Schema(name string) (ProcedureDescriptor, bool) {
	d, ok := c.catalog[name]
	return d, ok
}

// Call invokes a procedure by name. Arguments are checked against the
// cached input schema before dispatch: unknown procedures, missing required
// fields, and kind-mismatched values are all rejected without touching the
// network.
func (c *Client) Call(ctx context.Context, procedure string, args map[string]any) (any, error) {
	desc, ok := c.catalog[procedure]
	if !ok {
		known := make([]string, 0, len(c.catalog))
		for name := range c.catalog {
			known = append(known, name)
		}
		return nil, &UnknownProcedureError{Name: procedure, Known: known}
	}

	if err := checkArgs(desc.Schema, args); err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var req *http.Request
	var err error
	switch desc.Kind {
	case KindQuery:
		req, err = c.queryRequest(ctx, procedure, args)
	case KindMutation:
		req, err = c.mutationRequest(ctx, procedure, args)
	default:
		return nil, &InvalidProcedureKind{Procedure: procedure, Kind: desc.Kind}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %q: %w", procedure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of %q: %w", procedure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		if json.Unmarshal(body, &eb) != nil || eb.Message == "" {
			eb.Message = strings.TrimSpace(string(body))
		}
		return nil, &CallError{
			Procedure: procedure,
			Status:    resp.StatusCode,
			Message:   eb.Message,
			Errors:    eb.Errors,
		}
	}

	if len(body) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response of %q: %w", procedure, err)
	}
	return result, nil
}

func (c *Client) queryRequest(ctx context.Context, procedure string, args map[string]any) (*http.Request, error) {
	q := url.Values{}
	for key, val := range args {
		s, err := queryValue(val)
		if err != nil {
			return nil, fmt.Errorf("encoding argument %q of %q: %w", key, procedure, err)
		}
		q.Set(key, s)
	}
	target := c.baseURL + "/" + procedure
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
}

func (c *Client) mutationRequest(ctx context.Context, procedure string, args map[string]any) (*http.Request, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments of %q: %w", procedure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+procedure, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	return req, nil
}

// queryValue renders one argument for query string transport. Scalars use
// their plain text form; structured values fall back to JSON.
func queryValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// checkArgs runs the pre-flight argument check against an input schema:
// required fields must be present, and every supplied declared field must
// match its declared kind. Unknown extra fields pass through for the server
// to judge.
func checkArgs(schema *Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Input.Required {
		if _, ok := args[name]; !ok {
			return &RequiredFieldMissing{Field: name, Required: schema.Input.Required}
		}
	}
	for name, val := range args {
		field, declared := schema.Input.Properties[name]
		if !declared {
			continue
		}
		if !kindAccepts(field, val) {
			return &FieldTypeError{
				Field:    name,
				Expected: expectedKind(field),
				Received: classifyValue(val),
			}
		}
	}
	return nil
}

func expectedKind(field FieldSchema) string {
	if field.Ref != "" {
		return TypeObject
	}
	return field.Type
}

// kindAccepts reports whether a runtime value satisfies a declared field.
// The check is strict kind equality: an int supplied for a declared number
// field is rejected, the same as any other mismatch. Struct references
// accept objects.
func kindAccepts(field FieldSchema, val any) bool {
	expected := expectedKind(field)
	if expected == TypeAny {
		return true
	}
	return classifyValue(val) == expected
}
