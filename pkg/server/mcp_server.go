package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/handlers"
	"github.com/TFMV/turnstile/pkg/infrastructure/metrics"
	"github.com/TFMV/turnstile/pkg/services"
)

// MCPServer speaks JSON-RPC 2.0 over line-delimited stdio. Requests are
// handled sequentially in arrival order; responses go to stdout, logs to
// stderr so the protocol stream stays clean.
type MCPServer struct {
	queryHandler  handlers.QueryHandler
	schemaHandler handlers.SchemaHandler
	policy        services.Policy
	logger        zerolog.Logger
	metrics       metrics.Collector

	in  *bufio.Reader
	out io.Writer

	mu          sync.Mutex
	initialized bool
}

// NewMCPServer creates a server reading requests from in and writing
// responses to out.
func NewMCPServer(
	in io.Reader,
	out io.Writer,
	queryHandler handlers.QueryHandler,
	schemaHandler handlers.SchemaHandler,
	policy services.Policy,
	logger zerolog.Logger,
	collector metrics.Collector,
) *MCPServer {
	return &MCPServer{
		queryHandler:  queryHandler,
		schemaHandler: schemaHandler,
		policy:        policy,
		logger:        logger.With().Str("component", "mcp_server").Logger(),
		metrics:       collector,
		in:            bufio.NewReader(in),
		out:           out,
	}
}

type readResult struct {
	line string
	err  error
}

// Run reads requests until the input stream closes or the context is
// cancelled. Reading happens on its own goroutine so cancellation is
// observed while a read is blocked; on cancel the goroutine stays parked on
// the read until the input closes, which is fine for a stdio transport
// whose process is exiting.
func (s *MCPServer) Run(ctx context.Context) error {
	s.logger.Info().
		Bool("allow_mutation", s.policy.AllowMutation).
		Bool("allow_definition", s.policy.AllowDefinition).
		Msg("MCP server started")

	lines := make(chan readResult)
	go func() {
		defer close(lines)
		for {
			line, err := s.in.ReadString('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return nil
			}
			if res.err != nil && res.err != io.EOF {
				return fmt.Errorf("failed to read input: %w", res.err)
			}

			// EOF may carry a final unterminated line.
			if line := strings.TrimSpace(res.line); line != "" {
				if response := s.handleMessage(ctx, []byte(line)); response != nil {
					if err := s.write(response); err != nil {
						return err
					}
				}
			}

			if res.err == io.EOF {
				s.logger.Info().Msg("Input stream closed")
				return nil
			}
		}
	}
}

func (s *MCPServer) write(response *Response) error {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal response")
		return nil
	}
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

func (s *MCPServer) handleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.metrics.IncrementCounter("mcp_requests_total", "method", "invalid")
		return &Response{
			JSONRPC: "2.0",
			ID:      nil,
			Error:   &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()},
		}
	}

	if req.JSONRPC != "2.0" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: InvalidRequest, Message: "Invalid JSON-RPC version"},
		}
	}

	return s.handleRequest(ctx, &req)
}

func (s *MCPServer) handleRequest(ctx context.Context, req *Request) *Response {
	requestID := uuid.NewString()
	logger := s.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Logger()
	logger.Debug().Msg("Handling request")
	s.metrics.IncrementCounter("mcp_requests_total", "method", req.Method)

	var result interface{}
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		// Notification, no response.
		return nil
	case "tools/list":
		result = s.handleListTools()
	case "tools/call":
		result, rpcErr = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]interface{}{}
	default:
		rpcErr = &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if rpcErr != nil {
		logger.Warn().Int("code", rpcErr.Code).Str("error", rpcErr.Message).Msg("Request failed")
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	}
}

func (s *MCPServer) handleInitialize(params json.RawMessage) (*InitializeResult, *RPCError) {
	var initParams InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: "Invalid initialize parameters",
				Data:    err.Error(),
			}
		}
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info().
		Str("client", initParams.ClientInfo.Name).
		Str("client_version", initParams.ClientInfo.Version).
		Msg("Client initialized")

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

func (s *MCPServer) handleListTools() *ListToolsResult {
	queryDescription := "Execute a single SQL statement against MySQL. Read-only statements are always permitted"
	if s.policy.AllowMutation {
		queryDescription += "; DML is enabled"
	}
	if s.policy.AllowDefinition {
		queryDescription += "; DDL is enabled"
	}
	queryDescription += "."

	return &ListToolsResult{
		Tools: []Tool{
			{
				Name:        "mysql_query",
				Description: queryDescription,
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"sql": {
							Type:        "string",
							Description: "The SQL statement to execute (single statement only)",
						},
						"params": {
							Type:        "array",
							Description: "Positional values for ? placeholders, or pass an object for :name placeholders",
						},
						"database": {
							Type:        "string",
							Description: "Database to run the statement against",
						},
						"max_rows": {
							Type:        "number",
							Description: "Maximum number of rows to return",
						},
						"timeout_ms": {
							Type:        "number",
							Description: "Statement timeout in milliseconds",
						},
					},
					Required: []string{"sql"},
				},
			},
			{
				Name:        "list_databases",
				Description: "List the databases visible to the connected account.",
				InputSchema: InputSchema{
					Type:       "object",
					Properties: map[string]Property{},
				},
			},
			{
				Name:        "list_tables",
				Description: "List the tables of a database.",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"database": {
							Type:        "string",
							Description: "Database to list; defaults to the configured database",
						},
					},
				},
			},
			{
				Name:        "analyze_schema",
				Description: "Describe columns, foreign keys, and indexes for one or more tables.",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"tables": {
							Type:        "array",
							Description: "Table names to analyze",
							Items:       &Property{Type: "string"},
						},
						"detail_level": {
							Type:        "string",
							Description: "How much detail to fetch per table",
							Enum:        []string{"BASIC", "STANDARD", "FULL"},
						},
						"database": {
							Type:        "string",
							Description: "Database the tables belong to; defaults to the configured database",
						},
					},
					Required: []string{"tables"},
				},
			},
		},
	}
}

func (s *MCPServer) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, *RPCError) {
	var callParams CallToolParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &RPCError{
			Code:    InvalidParams,
			Message: "Invalid tool call parameters",
			Data:    err.Error(),
		}
	}
	if callParams.Arguments == nil {
		callParams.Arguments = map[string]interface{}{}
	}

	s.metrics.IncrementCounter("mcp_tool_calls_total", "tool", callParams.Name)

	var payload interface{}
	var err error

	switch callParams.Name {
	case "mysql_query":
		payload, err = s.queryHandler.HandleQuery(ctx, callParams.Arguments)
	case "list_databases":
		payload, err = s.schemaHandler.HandleListDatabases(ctx)
	case "list_tables":
		payload, err = s.schemaHandler.HandleListTables(ctx, callParams.Arguments)
	case "analyze_schema":
		payload, err = s.schemaHandler.HandleAnalyzeSchema(ctx, callParams.Arguments)
	default:
		return nil, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Unknown tool: %s", callParams.Name),
		}
	}

	if err != nil {
		s.metrics.IncrementCounter("mcp_tool_errors_total", "tool", callParams.Name)
		return toolError(err), nil
	}

	text, marshalErr := json.MarshalIndent(payload, "", "  ")
	if marshalErr != nil {
		return nil, &RPCError{
			Code:    InternalError,
			Message: "Failed to serialize tool result",
			Data:    marshalErr.Error(),
		}
	}

	return &CallToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
	}, nil
}

// toolError reports a handler failure as tool content so the client sees the
// code and message instead of a bare protocol error.
func toolError(err error) *CallToolResult {
	return &CallToolResult{
		Content: []Content{{
			Type: "text",
			Text: fmt.Sprintf("ERROR [%s]: %s", errors.GetCode(err), errors.GetMessage(err)),
		}},
		IsError: true,
	}
}
