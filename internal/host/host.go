// Package host assembles the runtime: it builds the frozen tool
// registry, wires the session store, credential resolver, dispatcher
// and audit writer together, and owns tool lifecycle.
package host

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/credential"
	"github.com/relaystack/toolhost/internal/dispatch"
	"github.com/relaystack/toolhost/internal/embed"
	"github.com/relaystack/toolhost/internal/registry"
	"github.com/relaystack/toolhost/internal/session"
	"github.com/relaystack/toolhost/internal/storage"
)

// Host owns the assembled runtime. Build it with New, then Start before
// serving and Stop on shutdown.
type Host struct {
	Registry   *registry.Registry
	Sessions   session.Store
	Resolver   *credential.Resolver
	Dispatcher *dispatch.Dispatcher
	Embedder   embed.Embedder

	logger  *zap.Logger
	started []*registry.Tool
}

type Config struct {
	Sessions session.Store
	Resolver *credential.Resolver
	// Writer receives invocation audit events. Nil disables auditing.
	Writer storage.EventWriter
	// Embedder computes embeddings at build time for definitions that
	// lack one, and serves search queries. Nil disables semantic search
	// for tools without precomputed embeddings.
	Embedder       embed.Embedder
	HandlerTimeout time.Duration
	Logger         *zap.Logger
}

// New registers the given definitions, computes missing embeddings,
// freezes the registry and wires the dispatcher. Registration failures
// abort the build; no half-built host is returned.
func New(ctx context.Context, cfg Config, defs ...registry.Definition) (*Host, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New()
	for _, def := range defs {
		if len(def.Embedding) == 0 && cfg.Embedder != nil {
			text := def.Description
			if text == "" {
				text = def.Name
			}
			if text == "" {
				text = def.ID
			}
			vec, err := cfg.Embedder.Embed(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("embed tool %q: %w", def.ID, err)
			}
			def.Embedding = vec
		}
		if err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("register tool %q: %w", def.ID, err)
		}
	}
	reg.Freeze()

	dispatcher := dispatch.New(dispatch.Config{
		Registry: reg,
		Sessions: cfg.Sessions,
		Resolver: cfg.Resolver,
		Writer:   cfg.Writer,
		Timeout:  cfg.HandlerTimeout,
		Logger:   logger,
	})

	logger.Info("host assembled",
		zap.Int("tools", reg.Len()),
		zap.Int("embedding_dim", reg.Dimension()),
	)

	return &Host{
		Registry:   reg,
		Sessions:   cfg.Sessions,
		Resolver:   cfg.Resolver,
		Dispatcher: dispatcher,
		Embedder:   cfg.Embedder,
		logger:     logger,
	}, nil
}

// Start runs tool Start hooks in registration order. If one fails, the
// already-started prefix is stopped in reverse order before returning.
func (h *Host) Start(ctx context.Context) error {
	for _, tool := range h.Registry.List() {
		if tool.Def.Lifecycle == nil {
			continue
		}
		if err := tool.Def.Lifecycle.Start(ctx); err != nil {
			h.logger.Error("tool start failed",
				zap.String("tool_id", tool.Def.ID),
				zap.Error(err),
			)
			h.stopStarted(ctx)
			return fmt.Errorf("start tool %q: %w", tool.Def.ID, err)
		}
		h.started = append(h.started, tool)
		h.logger.Info("tool started", zap.String("tool_id", tool.Def.ID))
	}
	return nil
}

// Stop runs Stop hooks for every started tool in reverse registration
// order. All hooks run; the first error is returned.
func (h *Host) Stop(ctx context.Context) error {
	return h.stopStarted(ctx)
}

func (h *Host) stopStarted(ctx context.Context) error {
	var firstErr error
	for i := len(h.started) - 1; i >= 0; i-- {
		tool := h.started[i]
		if err := tool.Def.Lifecycle.Stop(ctx); err != nil {
			h.logger.Error("tool stop failed",
				zap.String("tool_id", tool.Def.ID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop tool %q: %w", tool.Def.ID, err)
			}
		}
	}
	h.started = nil
	return firstErr
}
