// Package rpc exposes the host over gRPC as
// relaystack.toolhost.v1.ToolService.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaystack/toolhost/internal/dispatch"
	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
	toolhostv1 "github.com/relaystack/toolhost/internal/rpc/toolhostv1"
	"github.com/relaystack/toolhost/internal/session"
)

// Server implements toolhostv1.ToolServiceServer. It holds no
// authorization state of its own; every call flows through the session
// store and the dispatcher.
type Server struct {
	registry   *registry.Registry
	sessions   session.Store
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

func NewServer(reg *registry.Registry, sessions session.Store, d *dispatch.Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry:   reg,
		sessions:   sessions,
		dispatcher: d,
		logger:     logger,
	}
}

// apiKeyFromContext extracts a thk_ API key from the authorization
// metadata header.
func apiKeyFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing request metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}
	token := values[0]
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, session.KeyPrefix) {
		return "", status.Error(codes.Unauthenticated, "authorization header is not an API key")
	}
	return token, nil
}

func (s *Server) OpenSession(ctx context.Context, req *toolhostv1.OpenSessionRequest) (*toolhostv1.OpenSessionResponse, error) {
	key, err := apiKeyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, session.AuthMetadata{
		APIKey:          key,
		UserID:          req.UserId,
		RequestedGrants: req.RequestedGrants,
	})
	if err != nil {
		return nil, statusFromFault(err)
	}
	s.logger.Info("session opened",
		zap.String("user_id", sess.UserID),
		zap.Strings("grants", sess.Grants),
	)
	return &toolhostv1.OpenSessionResponse{
		SessionToken: sess.Token,
		UserId:       sess.UserID,
		Grants:       sess.Grants,
	}, nil
}

func (s *Server) ListTools(ctx context.Context, req *toolhostv1.ListToolsRequest) (*toolhostv1.ListToolsResponse, error) {
	tools := s.registry.List(req.Capabilities...)
	out := make([]*toolhostv1.ToolSummary, 0, len(tools))
	for _, t := range tools {
		out = append(out, summarize(t))
	}
	return &toolhostv1.ListToolsResponse{Tools: out}, nil
}

func (s *Server) DescribeTool(ctx context.Context, req *toolhostv1.DescribeToolRequest) (*toolhostv1.DescribeToolResponse, error) {
	tool, err := s.registry.Get(req.ToolId)
	if err != nil {
		return nil, statusFromFault(err)
	}
	resp := &toolhostv1.DescribeToolResponse{
		Tool:           summarize(tool),
		CredentialKind: string(tool.Def.Credential.Kind),
	}
	if tool.Def.Credential.Type != nil {
		resp.CredentialType = tool.Def.Credential.Type.Name
	}
	if tool.Def.InputSchema != nil {
		raw, err := json.Marshal(tool.Def.InputSchema)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode input schema: %v", err)
		}
		resp.InputSchema = raw
	}
	if tool.Def.OutputSchema != nil {
		raw, err := json.Marshal(tool.Def.OutputSchema)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode output schema: %v", err)
		}
		resp.OutputSchema = raw
	}
	return resp, nil
}

func (s *Server) CallTool(ctx context.Context, req *toolhostv1.CallToolRequest) (*toolhostv1.CallToolResponse, error) {
	start := time.Now()

	var input map[string]any
	if len(req.Input) > 0 {
		if err := json.Unmarshal(req.Input, &input); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "input is not a JSON object: %v", err)
		}
	}

	requestID := uuid.New().String()
	output, err := s.dispatcher.Invoke(ctx, dispatch.Request{
		RequestID:    requestID,
		ToolID:       req.ToolId,
		SessionToken: req.SessionToken,
		Input:        input,
		Transport:    "grpc",
	})
	if err != nil {
		return nil, statusFromFault(err)
	}

	raw, err := json.Marshal(output)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode output: %v", err)
	}
	s.logger.Debug("tool call served",
		zap.String("tool_id", req.ToolId),
		zap.String("request_id", requestID),
		zap.Duration("latency", time.Since(start)),
	)
	return &toolhostv1.CallToolResponse{
		RequestId: requestID,
		Output:    raw,
	}, nil
}

func summarize(t *registry.Tool) *toolhostv1.ToolSummary {
	return &toolhostv1.ToolSummary{
		Id:           t.Def.ID,
		Name:         t.Def.Name,
		Description:  t.Def.Description,
		Capabilities: t.Def.Capabilities,
	}
}

// statusFromFault maps fault kinds onto gRPC status codes. Distinct
// kinds are never collapsed below this granularity; the kind string
// rides in the status message for clients that need it.
func statusFromFault(err error) error {
	kind := fault.KindOf(err)
	var code codes.Code
	switch kind {
	case fault.KindToolNotFound:
		code = codes.NotFound
	case fault.KindPolicyDenied, fault.KindSessionRevoked:
		code = codes.PermissionDenied
	case fault.KindAuthenticationFailed:
		code = codes.Unauthenticated
	case fault.KindInputValidation, fault.KindOutputValidation:
		code = codes.InvalidArgument
	case fault.KindCredentialNotConfigured, fault.KindCredentialNotBound, fault.KindCredentialSchemaViolation:
		code = codes.FailedPrecondition
	case fault.KindHandlerTimeout:
		code = codes.DeadlineExceeded
	default:
		if errors.Is(err, context.Canceled) {
			code = codes.Canceled
		} else {
			code = codes.Internal
		}
	}
	// fault messages already lead with the kind string; no need to repeat it.
	return status.Error(code, err.Error())
}
