package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/dispatch"
	"github.com/relaystack/toolhost/internal/embed"
	"github.com/relaystack/toolhost/internal/registry"
	"github.com/relaystack/toolhost/internal/session"
)

type contextKey int

const bearerCtxKey contextKey = iota

// SessionPrefix marks tokens minted by the session store, as opposed to
// thk_ API keys.
const SessionPrefix = "ths_"

const defaultSearchLimit = 5

// Handler serves the assistant protocol over a single HTTP POST route.
type Handler struct {
	registry   *registry.Registry
	sessions   session.Store
	dispatcher *dispatch.Dispatcher
	embedder   embed.Embedder
	serverName string
	version    string
	logger     *zap.Logger
}

type Config struct {
	Registry   *registry.Registry
	Sessions   session.Store
	Dispatcher *dispatch.Dispatcher
	Embedder   embed.Embedder
	ServerName string
	Version    string
	Logger     *zap.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "toolhost"
	}
	return &Handler{
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		dispatcher: cfg.Dispatcher,
		embedder:   cfg.Embedder,
		serverName: cfg.ServerName,
		version:    cfg.Version,
		logger:     cfg.Logger,
	}
}

// Routes returns the full middleware-wrapped handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", h.authMiddleware(h.serve))
	return corsMiddleware(requestLogging(mux, h.logger))
}

// authMiddleware requires a Bearer token and stashes it for the method
// handlers; initialize expects an API key, the other methods a session
// token.
func (h *Handler) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "missing or invalid Authorization header"})
			return
		}
		ctx := context.WithValue(r.Context(), bearerCtxKey, token)
		next(w, r.WithContext(ctx))
	}
}

func bearerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(bearerCtxKey).(string)
	return v
}

// serve decodes one JSON-RPC request and dispatches on the method name.
// Decode failures never reach the dispatcher.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := readJSON(r, &req); err != nil {
		writeRPC(w, rpcResponse{
			JSONRPC: jsonrpcVersion,
			Error:   &rpcError{Code: codeParseError, Message: "parse error: " + err.Error()},
		})
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		writeRPC(w, rpcResponse{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Error:   &rpcError{Code: codeInvalidRequest, Message: "expected a jsonrpc 2.0 request"},
		})
		return
	}

	var (
		result any
		rerr   *rpcError
	)
	switch req.Method {
	case "initialize":
		result, rerr = h.initialize(r.Context(), req.Params)
	case "tools/list":
		result, rerr = h.listTools()
	case "tools/search":
		result, rerr = h.searchTools(r.Context(), req.Params)
	case "tools/call":
		result, rerr = h.callTool(r.Context(), req.Params)
	case "ping":
		result = struct{}{}
	default:
		rerr = &rpcError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
	}

	resp := rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID}
	if rerr != nil {
		resp.Error = rerr
	} else {
		resp.Result = result
	}
	writeRPC(w, resp)
}

func (h *Handler) initialize(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}
	key := bearerFromContext(ctx)
	sess, err := h.sessions.Create(ctx, session.AuthMetadata{
		APIKey:          key,
		UserID:          p.Session.UserID,
		RequestedGrants: p.Session.RequestedGrants,
	})
	if err != nil {
		return nil, errorFromFault(err)
	}
	h.logger.Info("assistant session opened",
		zap.String("client", p.ClientInfo.Name),
		zap.String("user_id", sess.UserID),
	)
	return initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      peerInfo{Name: h.serverName, Version: h.version},
		SessionToken:    sess.Token,
		Grants:          sess.Grants,
	}, nil
}

func (h *Handler) listTools() (any, *rpcError) {
	tools := h.registry.List()
	out := listToolsResult{Tools: make([]toolDescriptor, 0, len(tools))}
	for _, t := range tools {
		out.Tools = append(out.Tools, describe(t))
	}
	return out, nil
}

func (h *Handler) searchTools(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p searchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid search params: " + err.Error()}
	}
	if p.Query == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "query must not be empty"}
	}
	if h.embedder == nil {
		return nil, &rpcError{Code: codeMethodNotFound, Message: "semantic search is not configured"}
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	vec, err := h.embedder.Embed(ctx, p.Query)
	if err != nil {
		h.logger.Error("query embedding failed", zap.Error(err))
		return nil, &rpcError{Code: codeFaultBase, Message: "embedding provider unavailable"}
	}
	matches, err := h.registry.Search(vec, limit)
	if err != nil {
		return nil, errorFromFault(err)
	}
	out := searchResult{Tools: make([]searchHit, 0, len(matches))}
	for _, m := range matches {
		out.Tools = append(out.Tools, searchHit{Tool: describe(m.Tool), Score: m.Score})
	}
	return out, nil
}

func (h *Handler) callTool(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid call params: " + err.Error()}
	}
	if p.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "name must not be empty"}
	}
	token := bearerFromContext(ctx)
	if !strings.HasPrefix(token, SessionPrefix) {
		return nil, &rpcError{Code: codeInvalidRequest, Message: "tools/call requires a session token; call initialize first"}
	}

	requestID := uuid.New().String()
	start := time.Now()
	output, err := h.dispatcher.Invoke(ctx, dispatch.Request{
		RequestID:    requestID,
		ToolID:       p.Name,
		SessionToken: token,
		Input:        p.Arguments,
		Transport:    "mcp",
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Connection dropped; nobody is listening for the reply.
			return nil, &rpcError{Code: codeInvalidRequest, Message: "request cancelled"}
		}
		return nil, errorFromFault(err)
	}

	text, merr := json.Marshal(output)
	if merr != nil {
		h.logger.Error("tool output not serializable",
			zap.String("tool_id", p.Name),
			zap.Error(merr),
		)
		return nil, &rpcError{Code: codeFaultBase, Message: "tool output not serializable"}
	}
	h.logger.Debug("tool call served",
		zap.String("tool_id", p.Name),
		zap.String("request_id", requestID),
		zap.Duration("latency", time.Since(start)),
	)
	return callResult{
		Content:           []contentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: output,
		RequestID:         requestID,
	}, nil
}

func describe(t *registry.Tool) toolDescriptor {
	return toolDescriptor{
		Name:         t.Def.ID,
		Description:  t.Def.Description,
		Capabilities: t.Def.Capabilities,
		InputSchema:  t.Def.InputSchema,
		OutputSchema: t.Def.OutputSchema,
	}
}

// --- HTTP plumbing ---

func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeRPC always answers 200; failures ride in the JSON-RPC error
// object.
func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	writeJSON(w, http.StatusOK, resp)
}

func readJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
