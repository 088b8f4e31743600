package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaystack/toolhost/internal/registry"
)

// GitHubIssues returns a tool that lists open issues for a repository
// on the caller's behalf. It needs the user credential "github": each
// user binds their own access_token; endpoint is overridable for
// GitHub Enterprise installs.
func GitHubIssues() registry.Definition {
	client := &http.Client{Timeout: 15 * time.Second}
	return registry.Definition{
		ID:           "github_issues",
		Name:         "GitHub Issues",
		Description:  "Lists open issues for a GitHub repository using the calling user's token.",
		Capabilities: []string{"read", "network"},
		Credential: registry.CredentialRequirement{
			Kind: registry.CredentialUser,
			Type: &registry.CredentialType{
				Name: "github",
				Fields: []registry.CredentialField{
					{Name: "access_token", Required: true},
					{Name: "endpoint", Default: "https://api.github.com"},
				},
			},
		},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"owner": map[string]any{"type": "string"},
				"repo":  map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
			},
			"required":             []any{"owner", "repo"},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"issues": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"number": map[string]any{"type": "integer"},
							"title":  map[string]any{"type": "string"},
							"state":  map[string]any{"type": "string"},
						},
						"required": []any{"number", "title", "state"},
					},
				},
			},
			"required": []any{"issues"},
		},
		Handler: func(ctx context.Context, inv registry.Invocation) (map[string]any, error) {
			owner, _ := inv.Input["owner"].(string)
			repo, _ := inv.Input["repo"].(string)
			limit := 10
			if v, ok := inv.Input["limit"].(float64); ok {
				limit = int(v)
			}

			url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&per_page=%d",
				inv.Credential["endpoint"], owner, repo, limit)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+inv.Credential["access_token"])
			req.Header.Set("Accept", "application/vnd.github+json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("list issues for %s/%s: %w", owner, repo, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("list issues for %s/%s: upstream status %d", owner, repo, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
			var raw []struct {
				Number int    `json:"number"`
				Title  string `json:"title"`
				State  string `json:"state"`
			}
			if err := json.Unmarshal(body, &raw); err != nil {
				return nil, fmt.Errorf("decode issue list: %w", err)
			}
			issues := make([]any, 0, len(raw))
			for _, it := range raw {
				issues = append(issues, map[string]any{
					"number": it.Number,
					"title":  it.Title,
					"state":  it.State,
				})
			}
			return map[string]any{"issues": issues}, nil
		},
	}
}

// All returns every compiled-in tool definition in registration order.
func All() []registry.Definition {
	return []registry.Definition{
		Echo(),
		Clock(),
		HTTPFetch(),
		GitHubIssues(),
	}
}
