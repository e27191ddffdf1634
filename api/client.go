package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultBase = "http://127.0.0.1:18888"

// FetchError is returned for any non-2xx response from the API. The raw
// response body is kept verbatim so callers can surface server detail.
type FetchError struct {
	Status int
	Body   string
	URL    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, e.Body)
}

// IsNotFound reports whether err is a FetchError with status 404.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Status == http.StatusNotFound
}

// Client talks to the BioWeaver HTTP API. It provides the generic
// resource surface (List/GetOne/.../DeleteMany) plus the typed chapter
// and admin endpoints. Filtering, sorting and pagination happen client
// side over the full collection; the server only ever sees bare
// collection fetches.
type Client struct {
	base       *url.URL
	http       *http.Client
	adminToken string
}

// NewClient builds a Client for the given base URL. An empty baseURL
// falls back to the local development default. adminToken, when
// non-empty, is sent as X-Admin-Token on every request.
func NewClient(baseURL, adminToken string) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: base,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		adminToken: adminToken,
	}, nil
}

// HTTPClient exposes the underlying client so the uploader can share
// its connection pool.
func (c *Client) HTTPClient() *http.Client { return c.http }

// BaseURL returns the normalized base URL string.
func (c *Client) BaseURL() string { return c.base.String() }

// AdminToken returns the configured credential, empty when unset.
func (c *Client) AdminToken() string { return c.adminToken }

// List fetches the entire collection and applies filter, sort and
// pagination in that order. Total is the post-filter, pre-pagination
// count, never the page length.
func (c *Client) List(ctx context.Context, resource string, p ListParams) (ListResult, error) {
	payload, err := c.do(ctx, http.MethodGet, "/"+resource, nil)
	if err != nil {
		return ListResult{}, err
	}
	all := asRecords(payload)
	filtered := applyFilter(all, p.Filter)
	sorted := applySort(filtered, p.Sort)
	return ListResult{
		Data:  applyPagination(sorted, p.Pagination),
		Total: len(filtered),
	}, nil
}

// GetOne fetches a single record by id. A missing record surfaces as a
// FetchError with status 404.
func (c *Client) GetOne(ctx context.Context, resource string, id any) (Record, error) {
	payload, err := c.do(ctx, http.MethodGet, "/"+resource+"/"+idString(id), nil)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}

// GetMany fetches the full collection and keeps records whose id is in
// ids. Ids are compared on their string form so numeric and string ids
// coincide. No pagination is applied.
func (c *Client) GetMany(ctx context.Context, resource string, ids []any) ([]Record, error) {
	payload, err := c.do(ctx, http.MethodGet, "/"+resource, nil)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[idString(id)] = struct{}{}
	}
	var out []Record
	for _, rec := range asRecords(payload) {
		if _, ok := want[rec.IDString()]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetManyByReference fetches the full collection and keeps records
// whose target field equals id. No pagination is applied.
func (c *Client) GetManyByReference(ctx context.Context, resource, target string, id any) (ListResult, error) {
	payload, err := c.do(ctx, http.MethodGet, "/"+resource, nil)
	if err != nil {
		return ListResult{}, err
	}
	var out []Record
	for _, rec := range asRecords(payload) {
		if stringify(rec[target]) == stringify(id) {
			out = append(out, rec)
		}
	}
	return ListResult{Data: out, Total: len(out)}, nil
}

// Create posts data and returns the server's response verbatim.
func (c *Client) Create(ctx context.Context, resource string, data Record) (Record, error) {
	payload, err := c.do(ctx, http.MethodPost, "/"+resource, data)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}

// Update patches a single record and returns the updated record.
func (c *Client) Update(ctx context.Context, resource string, id any, data Record) (Record, error) {
	payload, err := c.do(ctx, http.MethodPatch, "/"+resource+"/"+idString(id), data)
	if err != nil {
		return nil, err
	}
	return asRecord(payload), nil
}

// UpdateMany patches every id concurrently. The aggregate call fails if
// any individual patch fails, but patches that already completed are
// not rolled back; there is no compensation mechanism.
func (c *Client) UpdateMany(ctx context.Context, resource string, ids []any, data Record) ([]any, error) {
	if err := c.fanOut(ids, func(id any) error {
		_, err := c.Update(ctx, resource, id, data)
		return err
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a record. The returned record is exactly the
// caller-supplied previous state: the server does not confirm the
// deleted content and callers must not treat it as authoritative.
func (c *Client) Delete(ctx context.Context, resource string, id any, previous Record) (Record, error) {
	if _, err := c.do(ctx, http.MethodDelete, "/"+resource+"/"+idString(id), nil); err != nil {
		return nil, err
	}
	return previous, nil
}

// DeleteMany deletes every id concurrently, with the same
// non-atomicity caveat as UpdateMany.
func (c *Client) DeleteMany(ctx context.Context, resource string, ids []any) ([]any, error) {
	if err := c.fanOut(ids, func(id any) error {
		_, err := c.do(ctx, http.MethodDelete, "/"+resource+"/"+idString(id), nil)
		return err
	}); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) fanOut(ids []any, op func(id any) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id any) {
			defer wg.Done()
			errs[i] = op(id)
		}(i, id)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// do performs a JSON request and decodes the response loosely: JSON
// when the body parses as JSON, the raw text otherwise, nil for an
// empty body.
func (c *Client) do(ctx context.Context, method, path string, body any) (any, error) {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw), nil
	}
	return decoded, nil
}

// doJSON performs a request and strictly decodes the response into dest.
func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if dest == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	// JoinPath keeps any path prefix on the base URL, so a base like
	// https://host/api routes to /api/users rather than /users.
	reqURL := c.base.JoinPath(path)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Status: resp.StatusCode,
			Body:   string(raw),
			URL:    reqURL.String(),
		}
	}
	return raw, nil
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base %q: %w", baseURL, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func asRecords(payload any) []Record {
	list, ok := payload.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if rec := asRecord(item); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

func asRecord(payload any) Record {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	return Record(m)
}
