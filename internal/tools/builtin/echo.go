// Package builtin ships the compiled-in tool set: small, dependency-free
// tools plus two that exercise system- and user-scoped credentials.
package builtin

import (
	"context"

	"github.com/relaystack/toolhost/internal/registry"
)

// Echo returns a tool that reflects its input message back to the
// caller. No credential, read capability.
func Echo() registry.Definition {
	return registry.Definition{
		ID:           "echo",
		Name:         "Echo",
		Description:  "Returns the provided message unchanged. Useful for connectivity and session checks.",
		Capabilities: []string{"read"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required":             []any{"message"},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"echo": map[string]any{"type": "string"},
			},
			"required": []any{"echo"},
		},
		Handler: func(_ context.Context, inv registry.Invocation) (map[string]any, error) {
			return map[string]any{"echo": inv.Input["message"]}, nil
		},
	}
}
