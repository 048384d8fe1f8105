// Package mcp exposes the connection registry as a Model Context Protocol
// server speaking JSON-RPC over a line-delimited stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/puhuaqiang/db-query-tool/internal/resultset"
	"github.com/puhuaqiang/db-query-tool/internal/store"
)

// Registry is what the MCP tools need from the application service.
type Registry interface {
	ListConnections(ctx context.Context) ([]store.Connection, error)
	GetConnection(ctx context.Context, name string) (*store.ConnectionDetail, error)
	RefreshMetadata(ctx context.Context, name string) (*store.ConnectionDetail, error)
	Query(ctx context.Context, name, sql string, limit int) (*resultset.Outcome, error)
}

// Server handles MCP requests read from in and writes responses to out.
type Server struct {
	registry Registry
	in       *bufio.Reader
	out      io.Writer
	logger   *slog.Logger
}

// NewServer creates an MCP server. Diagnostics go to logger, never to out.
func NewServer(registry Registry, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		registry: registry,
		in:       bufio.NewReader(in),
		out:      out,
		logger:   logger,
	}
}

// Run serves requests until the input ends or ctx is cancelled. A closed
// input is a normal shutdown.
func (s *Server) Run(ctx context.Context) error {
	enc := json.NewEncoder(s.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			if response := s.handleMessage(ctx, []byte(trimmed)); response != nil {
				if encErr := enc.Encode(response); encErr != nil {
					return fmt.Errorf("failed to write response: %w", encErr)
				}
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, data []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &Error{
				Code:    ParseError,
				Message: "Parse error",
				Data:    err.Error(),
			},
		}
	}

	if req.JSONRPC != "2.0" {
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &Error{
				Code:    InvalidRequest,
				Message: "Invalid JSON-RPC version",
			},
		}
	}

	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	// Notifications carry no ID and get no response.
	if req.Method == "initialized" || strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	s.logger.Debug("mcp request", slog.String("method", req.Method))

	var result any
	var err *Error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "tools/list":
		result, err = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "resources/list":
		result, err = s.handleListResources(ctx)
	case "resources/read":
		result, err = s.handleReadResource(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		err = &Error{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if err != nil {
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: err}
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}
