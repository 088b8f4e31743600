package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaystack/toolhost/internal/registry"
)

// maxFetchBody caps how much of a response body a fetch returns.
const maxFetchBody = 64 << 10

// fetcher owns the HTTP client for the http_fetch tool. The client is
// created on Start and its idle connections are released on Stop.
type fetcher struct {
	client *http.Client
}

func (f *fetcher) Start(_ context.Context) error {
	f.client = &http.Client{Timeout: 15 * time.Second}
	return nil
}

func (f *fetcher) Stop(_ context.Context) error {
	if f.client != nil {
		f.client.CloseIdleConnections()
		f.client = nil
	}
	return nil
}

// HTTPFetch returns a tool that retrieves a URL over HTTP GET. It needs
// the system credential "outbound_http"; the optional user_agent field
// defaults to a host identifier.
func HTTPFetch() registry.Definition {
	f := &fetcher{}
	return registry.Definition{
		ID:           "http_fetch",
		Name:         "HTTP Fetch",
		Description:  "Fetches a web page or API endpoint over HTTP GET and returns status and body.",
		Capabilities: []string{"read", "network"},
		Credential: registry.CredentialRequirement{
			Kind: registry.CredentialSystem,
			Type: &registry.CredentialType{
				Name: "outbound_http",
				Fields: []registry.CredentialField{
					{Name: "user_agent", Default: "toolhost/1.0"},
				},
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string"},
			},
			"required":             []any{"url"},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":    map[string]any{"type": "integer"},
				"body":      map[string]any{"type": "string"},
				"truncated": map[string]any{"type": "boolean"},
			},
			"required": []any{"status", "body", "truncated"},
		},
		Lifecycle: f,
		Handler: func(ctx context.Context, inv registry.Invocation) (map[string]any, error) {
			url, _ := inv.Input["url"].(string)
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return nil, fmt.Errorf("url must be http or https, got %q", url)
			}
			client := f.client
			if client == nil {
				return nil, fmt.Errorf("http_fetch is not started")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("User-Agent", inv.Credential["user_agent"])

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			truncated := false
			if len(body) > maxFetchBody {
				body = body[:maxFetchBody]
				truncated = true
			}
			return map[string]any{
				"status":    resp.StatusCode,
				"body":      string(body),
				"truncated": truncated,
			}, nil
		},
	}
}
