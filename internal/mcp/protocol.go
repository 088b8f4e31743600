// Package mcp exposes the host over a JSON-RPC 2.0 assistant protocol
// endpoint: a single HTTP POST route serving initialize, tools/list,
// tools/search, tools/call and ping.
package mcp

import (
	"encoding/json"

	"github.com/relaystack/toolhost/internal/fault"
)

const (
	jsonrpcVersion  = "2.0"
	protocolVersion = "2025-03-26"
)

// Standard JSON-RPC error codes, plus a fault range: fault kinds map to
// -32000 - kind so clients can distinguish host failures from protocol
// failures numerically.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeFaultBase      = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// faultData is the machine-readable error payload for host failures.
type faultData struct {
	Kind   string             `json:"kind"`
	Fields []fault.FieldError `json:"fields,omitempty"`
}

func errorFromFault(err error) *rpcError {
	kind := fault.KindOf(err)
	return &rpcError{
		Code:    codeFaultBase - int(kind),
		Message: err.Error(),
		Data: faultData{
			Kind:   kind.String(),
			Fields: fault.FieldsOf(err),
		},
	}
}

// --- method payloads ---

type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      peerInfo   `json:"clientInfo"`
	Session         sessionAsk `json:"session"`
}

type sessionAsk struct {
	UserID          string   `json:"userId,omitempty"`
	RequestedGrants []string `json:"requestedGrants,omitempty"`
}

type peerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      peerInfo     `json:"serverInfo"`
	Capabilities    capabilities `json:"capabilities"`
	SessionToken    string       `json:"sessionToken"`
	Grants          []string     `json:"grants"`
}

type capabilities struct {
	Tools struct{} `json:"tools"`
}

type toolDescriptor struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"`
	InputSchema  map[string]any `json:"inputSchema,omitempty"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchHit struct {
	Tool  toolDescriptor `json:"tool"`
	Score float64        `json:"score"`
}

type searchResult struct {
	Tools []searchHit `json:"tools"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content           []contentBlock `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	RequestID         string         `json:"requestId"`
}
