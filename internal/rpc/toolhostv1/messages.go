// Package toolhostv1 defines the wire types and service glue for the
// relaystack.toolhost.v1.ToolService gRPC surface. Messages are plain
// structs exchanged through the registered JSON codec.
package toolhostv1

import "encoding/json"

// ToolSummary is the listing view of a registered tool.
type ToolSummary struct {
	Id           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ListToolsRequest filters the listing; a tool must carry every
// requested capability to be included. Empty means all tools.
type ListToolsRequest struct {
	Capabilities []string `json:"capabilities,omitempty"`
}

type ListToolsResponse struct {
	Tools []*ToolSummary `json:"tools"`
}

type DescribeToolRequest struct {
	ToolId string `json:"tool_id"`
}

// DescribeToolResponse carries the full tool contract, including the
// raw JSON-schema documents the registry validates against.
type DescribeToolResponse struct {
	Tool           *ToolSummary    `json:"tool"`
	InputSchema    json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema   json.RawMessage `json:"output_schema,omitempty"`
	CredentialKind string          `json:"credential_kind"`
	CredentialType string          `json:"credential_type,omitempty"`
}

// OpenSessionRequest asks for a session scoped to the given grants.
// The API key travels in the authorization metadata header, never in
// the message body.
type OpenSessionRequest struct {
	UserId          string   `json:"user_id,omitempty"`
	RequestedGrants []string `json:"requested_grants,omitempty"`
}

type OpenSessionResponse struct {
	SessionToken string   `json:"session_token"`
	UserId       string   `json:"user_id"`
	Grants       []string `json:"grants"`
}

type CallToolRequest struct {
	ToolId       string          `json:"tool_id"`
	SessionToken string          `json:"session_token"`
	Input        json.RawMessage `json:"input,omitempty"`
}

type CallToolResponse struct {
	RequestId string          `json:"request_id"`
	Output    json.RawMessage `json:"output"`
}
