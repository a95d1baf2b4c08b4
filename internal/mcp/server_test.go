package mcp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/formsense/internal/cache"
	"github.com/usestring/formsense/internal/config"
	"github.com/usestring/formsense/internal/mcp/tools"
	"github.com/usestring/formsense/internal/store"
)

var testImpl = &sdkmcp.Implementation{Name: "formsense-test", Version: "0.0.1"}

func newTestDeps(t *testing.T) *tools.Deps {
	t.Helper()
	cfg := config.Default()
	cfg.ProbeTimeout = 200 * time.Millisecond
	cfg.ProbeRetries = 1

	c, err := cache.NewSuggestionCache(cfg.CacheMaxItems)
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "backends.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return tools.NewDeps(cfg, c, st)
}

func connect(t *testing.T, deps *tools.Deps) *sdkmcp.ClientSession {
	t.Helper()
	s, err := NewServer(deps, WithBuiltinTools(), WithBuiltinPrompts())
	require.NoError(t, err)

	serverT, clientT := sdkmcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.MCPServer().Run(ctx, serverT) }()

	session, err := sdkmcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&tools.Deps{})
	assert.Error(t, err)
}

func TestServer_ListsTools(t *testing.T) {
	session := connect(t, newTestDeps(t))

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"formsense_discover_backends",
		"formsense_check_backend",
		"formsense_analyze_form",
		"formsense_classify_fields",
		"formsense_merge_suggestions",
	}, names)
}

func TestServer_AnalyzeFormOverTransport(t *testing.T) {
	session := connect(t, newTestDeps(t))

	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "formsense_analyze_form",
		Arguments: map[string]any{"form_html": `<form><input name="email"><input name="zzz"></form>`},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	var out tools.AnalyzeFormOutput
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	assert.Len(t, out.Fields, 2)
	assert.Equal(t, 1, out.Summary.DetectedCount)
}

func TestServer_ActiveBackendResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	deps := newTestDeps(t)
	session := connect(t, deps)
	ctx := context.Background()

	_, err = session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: activeBackendURI})
	assert.Error(t, err, "nothing recorded yet")

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "formsense_check_backend",
		Arguments: map[string]any{"kind": "ollama", "host": host, "port": port},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	read, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: activeBackendURI})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)

	var active activeBackend
	require.NoError(t, json.Unmarshal([]byte(read.Contents[0].Text), &active))
	assert.Equal(t, "ollama", active.Kind)
	assert.Equal(t, port, active.Port)
	assert.Equal(t, srv.URL+"/v1/models", active.Endpoint)
}

func TestServer_AutofillPrompt(t *testing.T) {
	session := connect(t, newTestDeps(t))

	res, err := session.GetPrompt(context.Background(), &sdkmcp.GetPromptParams{
		Name:      "autofill_form",
		Arguments: map[string]string{"backend_host": "gpu-box"},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	text, ok := res.Messages[0].Content.(*sdkmcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `host="gpu-box"`)
	assert.Contains(t, text.Text, "formsense_merge_suggestions")
	assert.Contains(t, text.Text, "postalCode")
}

func TestServer_ToolErrorIsReturnedAsResult(t *testing.T) {
	session := connect(t, newTestDeps(t))

	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "formsense_analyze_form",
		Arguments: map[string]any{"form_html": "   "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_Instructions(t *testing.T) {
	session := connect(t, newTestDeps(t))

	initRes := session.InitializeResult()
	require.NotNil(t, initRes)
	assert.Equal(t, "formsense-mcp", initRes.ServerInfo.Name)
	assert.Contains(t, initRes.Instructions, "formsense_classify_fields")
}

func TestServer_HTTPHealth(t *testing.T) {
	s, err := NewServer(newTestDeps(t), WithBuiltinTools())
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Store  bool   `json:"store"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Store)
}

func TestServer_StreamableHTTP(t *testing.T) {
	s, err := NewServer(newTestDeps(t), WithBuiltinTools())
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx := context.Background()
	session, err := sdkmcp.NewClient(testImpl, nil).Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 5)
}
