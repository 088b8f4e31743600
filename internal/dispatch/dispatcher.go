package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/credential"
	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
	"github.com/relaystack/toolhost/internal/session"
	"github.com/relaystack/toolhost/internal/storage"
)

// Request is one invocation as the transport adapters hand it in.
// RequestID is generated when the transport did not supply one.
type Request struct {
	RequestID    string
	ToolID       string
	SessionToken string
	Input        map[string]any
	Transport    string
}

// Dispatcher is the single internal entry point for tool invocation. It
// holds no locks of its own; the registry is immutable after boot and the
// session store serializes per session.
type Dispatcher struct {
	registry *registry.Registry
	sessions session.Store
	resolver *credential.Resolver
	writer   storage.EventWriter
	timeout  time.Duration
	logger   *zap.Logger
}

// Config configures a Dispatcher.
type Config struct {
	Registry *registry.Registry
	Sessions session.Store
	Resolver *credential.Resolver
	// Writer receives one audit event per invocation, fire-and-forget.
	// Nil disables auditing.
	Writer storage.EventWriter
	// Timeout bounds each handler call. Zero means no deadline beyond the
	// caller's own context.
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		resolver: cfg.Resolver,
		writer:   cfg.Writer,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Invoke runs the invocation pipeline in strict order: tool
// lookup, input validation, authorization, credential resolution, handler
// execution, then output validation. A later step never begins before the
// earlier one fully succeeds, and a cancelled request stops at the next
// step boundary.
func (d *Dispatcher) Invoke(ctx context.Context, req Request) (map[string]any, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	var meta eventMeta
	out, err := d.run(ctx, req, &meta)
	d.writeEvent(req, start, meta, err)
	return out, err
}

// eventMeta collects identity details the pipeline learns along the way,
// so the audit event carries them even when a later step fails.
type eventMeta struct {
	userID         string
	credentialType string
}

func (d *Dispatcher) run(ctx context.Context, req Request, meta *eventMeta) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 1. Tool lookup
	tool, err := d.registry.Get(req.ToolID)
	if err != nil {
		return nil, err
	}
	if tool.Def.Credential.Type != nil {
		meta.credentialType = tool.Def.Credential.Type.Name
	}

	// 2. Structural input validation
	if violations := tool.Input.Validate(req.Input); violations != nil {
		return nil, fault.WithFields(fault.KindInputValidation,
			"input does not match the tool's input schema", violations)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Authorization — precedes credential cost.
	sess, err := d.sessions.Authorize(req.SessionToken, tool)
	if err != nil {
		return nil, err
	}
	meta.userID = sess.UserID

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. Credential resolution; failures propagate verbatim.
	binding, err := d.resolver.Resolve(ctx, tool.Def.Credential, sess)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. Handler execution
	inv := registry.Invocation{
		RequestID:  req.RequestID,
		SessionID:  sess.Token,
		UserID:     sess.UserID,
		Credential: binding,
		Input:      req.Input,
	}
	output, err := d.callHandler(ctx, tool, inv)
	if err != nil {
		return nil, err
	}

	// 6. Output validation — a mismatch is a tool bug, not a caller error.
	if violations := tool.Output.Validate(output); violations != nil {
		d.logger.Error("tool returned output violating its own schema",
			zap.String("tool_id", tool.Def.ID),
			zap.String("request_id", req.RequestID),
		)
		return nil, fault.WithFields(fault.KindOutputValidation,
			"tool output does not match its declared output schema", violations)
	}

	return output, nil
}

// callHandler runs the handler under the per-invocation deadline. On
// expiry the handler's context is cancelled, not merely abandoned, and the
// call reports HandlerTimeout; a caller-side cancellation propagates as-is.
func (d *Dispatcher) callHandler(ctx context.Context, tool *registry.Tool, inv registry.Invocation) (map[string]any, error) {
	hctx := ctx
	cancel := context.CancelFunc(func() {})
	if d.timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	type handlerResult struct {
		output map[string]any
		err    error
	}
	ch := make(chan handlerResult, 1)
	go func() {
		output, err := tool.Def.Handler(hctx, inv)
		ch <- handlerResult{output: output, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && hctx.Err() != nil && ctx.Err() == nil {
				return nil, fault.Wrap(fault.KindHandlerTimeout, "handler exceeded the invocation deadline", res.err)
			}
			if errors.Is(res.err, context.Canceled) && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fault.Wrap(fault.KindHandlerError, "handler failed", res.err)
		}
		return res.output, nil
	case <-hctx.Done():
		// Result, if the handler ever produces one, is discarded.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.New(fault.KindHandlerTimeout, "handler exceeded the invocation deadline")
	}
}

func (d *Dispatcher) writeEvent(req Request, start time.Time, meta eventMeta, err error) {
	if d.writer == nil {
		return
	}

	outcome := "ok"
	detail := ""
	if err != nil {
		if kind := fault.KindOf(err); kind != fault.KindUnknown {
			outcome = kind.String()
		} else {
			outcome = "cancelled"
		}
		detail = err.Error()
	}

	d.writer.Write(&storage.InvocationEvent{
		RequestID:      req.RequestID,
		Timestamp:      time.Now(),
		ToolID:         req.ToolID,
		UserID:         meta.userID,
		SessionToken:   req.SessionToken,
		Transport:      req.Transport,
		Outcome:        outcome,
		Detail:         detail,
		CredentialType: meta.credentialType,
		LatencyMs:      float32(float64(time.Since(start)) / float64(time.Millisecond)),
	})
}
