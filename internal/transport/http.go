package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 2 * time.Minute

// HTTP speaks to a platform's record API over HTTP. Credentials, when
// a username is configured, are attached as basic auth; without one
// the request goes out credential-less.
type HTTP struct {
	server Server
	client *http.Client
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = client }
}

// NewHTTP creates an HTTP transport for the given server.
func NewHTTP(server Server, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		server: server,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get submits a GET request and decodes the response JSON. An empty
// response body decodes to an empty list.
func (t *HTTP) Get(ctx context.Context, path string, params map[string]string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}

	q := req.URL.Query()
	for key, value := range params {
		q.Set(key, value)
	}
	req.URL.RawQuery = q.Encode()
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return []any{}, nil
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("parsing response for %s: %w", path, err)
	}
	return value, nil
}

// Put submits data as one POST per record. Lists are posted element by
// element; a failing element leaves earlier posts applied and later
// ones unattempted.
func (t *HTTP) Put(ctx context.Context, path string, data any) error {
	if list, ok := data.([]any); ok {
		for i, record := range list {
			if err := t.post(ctx, path, record); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		return nil
	}
	return t.post(ctx, path, data)
}

func (t *HTTP) post(ctx context.Context, path string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(path)+"/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

func (t *HTTP) url(path string) string {
	return strings.TrimRight(t.server.Host, "/") + "/" + strings.Trim(path, "/")
}

func (t *HTTP) authorize(req *http.Request) {
	if t.server.Username != "" {
		req.SetBasicAuth(t.server.Username, t.server.Password)
	}
}
