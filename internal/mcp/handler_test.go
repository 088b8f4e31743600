package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/relaystack/toolhost/internal/credential"
	"github.com/relaystack/toolhost/internal/dispatch"
	"github.com/relaystack/toolhost/internal/embed"
	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/registry"
	"github.com/relaystack/toolhost/internal/session"
)

func setupHandler(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	logger := zap.NewNop()
	embedder := embed.NewLocalEmbedder(64)
	ctx := context.Background()

	reg := registry.New()
	register := func(def registry.Definition) {
		t.Helper()
		vec, err := embedder.Embed(ctx, def.Description)
		if err != nil {
			t.Fatalf("embed %s: %v", def.ID, err)
		}
		def.Embedding = vec
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.ID, err)
		}
	}
	register(registry.Definition{
		ID:           "echo",
		Description:  "echoes the message back to the caller",
		Capabilities: []string{"read"},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
			"required":   []any{"message"},
		},
		Handler: func(_ context.Context, inv registry.Invocation) (map[string]any, error) {
			return map[string]any{"echo": inv.Input["message"]}, nil
		},
	})
	register(registry.Definition{
		ID:           "clock",
		Description:  "reports the current wall clock time",
		Capabilities: []string{"read"},
		Handler: func(_ context.Context, _ registry.Invocation) (map[string]any, error) {
			return map[string]any{"now": time.Now().Format(time.RFC3339)}, nil
		},
	})
	reg.Freeze()

	store := session.NewMemoryStore(session.MemoryStoreConfig{
		Authenticator: session.NewStaticAuthenticator(),
		IdleTTL:       time.Minute,
		Logger:        logger,
	})
	dispatcher := dispatch.New(dispatch.Config{
		Registry: reg,
		Sessions: store,
		Resolver: credential.NewResolver(credential.NewStaticSource(), logger),
		Timeout:  time.Second,
		Logger:   logger,
	})

	h := NewHandler(Config{
		Registry:   reg,
		Sessions:   store,
		Dispatcher: dispatcher,
		Embedder:   embedder,
		Version:    "test",
		Logger:     logger,
	})
	srv := httptest.NewServer(h.Routes())
	return srv, srv.Close
}

func post(t *testing.T, srv *httptest.Server, bearer string, body string) rpcResponse {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func initSession(t *testing.T, srv *httptest.Server, grants ...string) string {
	t.Helper()
	params, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]string{"name": "test-client"},
		"session":         map[string]any{"userId": "alice", "requestedGrants": grants},
	})
	resp := post(t, srv, "thk_testkey1234",
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":`+string(params)+`}`)
	if resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.SessionToken == "" {
		t.Fatalf("initialize returned no session token")
	}
	return res.SessionToken
}

func TestMissingBearer(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()

	resp, err := http.Post(srv.URL+"/mcp", "application/json",
		bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestParseAndProtocolErrors(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"jsonrpc":`, codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"tools/reap"}`, codeMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/search","params":{"query":7}}`, codeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, srv, "thk_testkey1234", tc.body)
			if resp.Error == nil || resp.Error.Code != tc.code {
				t.Fatalf("error = %+v, want code %d", resp.Error, tc.code)
			}
		})
	}
}

func TestInitializeAndListTools(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()
	_ = initSession(t, srv, "read")

	resp := post(t, srv, "thk_testkey1234", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("tools/list: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var res listToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("listed %d tools, want 2", len(res.Tools))
	}
	if res.Tools[0].Name != "echo" || res.Tools[0].InputSchema["type"] != "object" {
		t.Fatalf("first tool = %+v, want echo with its schema", res.Tools[0])
	}
}

func TestToolsSearch(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()

	resp := post(t, srv, "thk_testkey1234",
		`{"jsonrpc":"2.0","id":3,"method":"tools/search","params":{"query":"what time is it","limit":1}}`)
	if resp.Error != nil {
		t.Fatalf("tools/search: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var res searchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 1 {
		t.Fatalf("got %d hits, want 1", len(res.Tools))
	}
	if res.Tools[0].Tool.Name != "clock" {
		t.Fatalf("top hit = %s, want clock", res.Tools[0].Tool.Name)
	}
}

func TestToolsCall(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()
	token := initSession(t, srv, "read")

	resp := post(t, srv, token,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	if resp.Error != nil {
		t.Fatalf("tools/call: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var res callResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.StructuredContent["echo"] != "hi" {
		t.Fatalf("structuredContent = %v, want echo:hi", res.StructuredContent)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content = %+v", res.Content)
	}
	if res.RequestID == "" {
		t.Fatalf("missing request id")
	}
}

func TestToolsCallFaultCodes(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()
	token := initSession(t, srv, "write") // echo needs "read"

	resp := post(t, srv, token,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	if resp.Error == nil {
		t.Fatalf("expected a policy error")
	}
	wantCode := codeFaultBase - int(fault.KindPolicyDenied)
	if resp.Error.Code != wantCode {
		t.Fatalf("code = %d, want %d", resp.Error.Code, wantCode)
	}
	raw, _ := json.Marshal(resp.Error.Data)
	var data faultData
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if data.Kind != fault.KindPolicyDenied.String() {
		t.Fatalf("data.kind = %q, want %q", data.Kind, fault.KindPolicyDenied.String())
	}
}

func TestToolsCallNeedsSessionToken(t *testing.T) {
	srv, done := setupHandler(t)
	defer done()

	resp := post(t, srv, "thk_testkey1234",
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("error = %+v, want invalid request", resp.Error)
	}
}
