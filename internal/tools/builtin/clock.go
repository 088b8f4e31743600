package builtin

import (
	"context"
	"time"

	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
)

// Clock returns a tool reporting the current time, optionally in a
// named IANA time zone.
func Clock() registry.Definition {
	return registry.Definition{
		ID:           "clock",
		Name:         "Clock",
		Description:  "Reports the current wall clock time, optionally converted to a named time zone.",
		Capabilities: []string{"read"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"now":  map[string]any{"type": "string"},
				"zone": map[string]any{"type": "string"},
			},
			"required": []any{"now", "zone"},
		},
		Handler: func(_ context.Context, inv registry.Invocation) (map[string]any, error) {
			now := time.Now()
			if tz, ok := inv.Input["timezone"].(string); ok && tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fault.Newf(fault.KindHandlerError, "unknown time zone %q", tz)
				}
				now = now.In(loc)
			}
			zone, _ := now.Zone()
			return map[string]any{
				"now":  now.Format(time.RFC3339),
				"zone": zone,
			}, nil
		},
	}
}
