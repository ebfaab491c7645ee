package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/infrastructure/metrics"
	"github.com/TFMV/turnstile/pkg/services"
)

type scriptedQueryHandler struct {
	payload interface{}
	err     error
	calls   int
}

func (h *scriptedQueryHandler) HandleQuery(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	h.calls++
	return h.payload, h.err
}

type scriptedSchemaHandler struct {
	payload interface{}
	err     error
}

func (h *scriptedSchemaHandler) HandleAnalyzeSchema(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return h.payload, h.err
}

func (h *scriptedSchemaHandler) HandleListDatabases(ctx context.Context) (interface{}, error) {
	return h.payload, h.err
}

func (h *scriptedSchemaHandler) HandleListTables(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return h.payload, h.err
}

func runScript(t *testing.T, qh *scriptedQueryHandler, sh *scriptedSchemaHandler, policy services.Policy, lines ...string) []Response {
	t.Helper()

	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	srv := NewMCPServer(in, &out, qh, sh, policy, zerolog.Nop(), metrics.NewNoOpCollector())
	require.NoError(t, srv.Run(context.Background()))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestInitializeHandshake(t *testing.T) {
	responses := runScript(t, &scriptedQueryHandler{}, &scriptedSchemaHandler{}, services.Policy{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"clientInfo":{"name":"test","version":"0.1"}}}`,
		`{"jsonrpc":"2.0","method":"initialized"}`,
	)

	// The initialized notification gets no response.
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	result, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var init InitializeResult
	require.NoError(t, json.Unmarshal(result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, ServerName, init.ServerInfo.Name)
	assert.NotNil(t, init.Capabilities.Tools)
}

func TestListTools(t *testing.T) {
	responses := runScript(t, &scriptedQueryHandler{}, &scriptedSchemaHandler{}, services.Policy{},
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, responses, 1)

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var list ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &list))

	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"mysql_query", "list_databases", "list_tables", "analyze_schema"}, names)
}

func TestCallToolSuccess(t *testing.T) {
	qh := &scriptedQueryHandler{payload: map[string]interface{}{"row_count": 1}}
	responses := runScript(t, qh, &scriptedSchemaHandler{}, services.Policy{},
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"mysql_query","arguments":{"sql":"SELECT 1"}}}`,
	)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	assert.Equal(t, 1, qh.calls)

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "row_count")
}

func TestCallToolHandlerError(t *testing.T) {
	qh := &scriptedQueryHandler{err: errors.New(errors.CodePermissionDenied, "DELETE is a mutation (DML) statement; enable allow-mutation to permit it")}
	responses := runScript(t, qh, &scriptedSchemaHandler{}, services.Policy{},
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"mysql_query","arguments":{"sql":"DELETE FROM t"}}}`,
	)
	require.Len(t, responses, 1)
	// Tool failures surface as tool content, not protocol errors.
	require.Nil(t, responses[0].Error)

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, errors.CodePermissionDenied)
	assert.Contains(t, result.Content[0].Text, "allow-mutation")
}

func TestUnknownToolAndMethod(t *testing.T) {
	responses := runScript(t, &scriptedQueryHandler{}, &scriptedSchemaHandler{}, services.Policy{},
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":6,"method":"frobnicate"}`,
	)
	require.Len(t, responses, 2)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, MethodNotFound, responses[0].Error.Code)
	require.NotNil(t, responses[1].Error)
	assert.Equal(t, MethodNotFound, responses[1].Error.Code)
}

func TestMalformedInput(t *testing.T) {
	responses := runScript(t, &scriptedQueryHandler{}, &scriptedSchemaHandler{}, services.Policy{},
		`{not json`,
		`{"jsonrpc":"1.0","id":7,"method":"ping"}`,
		``,
		`{"jsonrpc":"2.0","id":8,"method":"ping"}`,
	)
	require.Len(t, responses, 3)
	assert.Equal(t, ParseError, responses[0].Error.Code)
	assert.Equal(t, InvalidRequest, responses[1].Error.Code)
	assert.Nil(t, responses[2].Error)
}

func TestPolicyShownInToolDescription(t *testing.T) {
	responses := runScript(t, &scriptedQueryHandler{}, &scriptedSchemaHandler{},
		services.Policy{AllowMutation: true},
		`{"jsonrpc":"2.0","id":9,"method":"tools/list"}`,
	)
	require.Len(t, responses, 1)

	raw, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var list ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &list))
	for _, tool := range list.Tools {
		if tool.Name == "mysql_query" {
			assert.Contains(t, tool.Description, "DML is enabled")
		}
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	srv := NewMCPServer(pr, &out, &scriptedQueryHandler{}, &scriptedSchemaHandler{},
		services.Policy{}, zerolog.Nop(), metrics.NewNoOpCollector())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Nothing is ever written to the pipe, so the reader is blocked when
	// the context is cancelled.
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
