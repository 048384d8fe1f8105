package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/puhuaqiang/db-query-tool/internal/store"
)

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, *Error) {
	var initParams InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &Error{
				Code:    InvalidParams,
				Message: "Invalid initialize parameters",
				Data:    err.Error(),
			}
		}
	}

	s.logger.Info("mcp client connected",
		slog.String("client", initParams.ClientInfo.Name),
		slog.String("version", initParams.ClientInfo.Version),
	)

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

var connectionProperty = Property{
	Type:        "string",
	Description: "Name of a registered database connection",
}

func (s *Server) handleListTools() (*ListToolsResult, *Error) {
	return &ListToolsResult{
		Tools: []Tool{
			{
				Name:        "list_connections",
				Description: "List the registered database connections",
				InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}, Required: []string{}},
			},
			{
				Name:        "describe_connection",
				Description: "Show the stored tables and columns of a connection",
				InputSchema: InputSchema{
					Type:       "object",
					Properties: map[string]Property{"connection": connectionProperty},
					Required:   []string{"connection"},
				},
			},
			{
				Name:        "refresh_metadata",
				Description: "Re-read the schema of a connection from the live database",
				InputSchema: InputSchema{
					Type:       "object",
					Properties: map[string]Property{"connection": connectionProperty},
					Required:   []string{"connection"},
				},
			},
			{
				Name:        "query",
				Description: "Execute a single read-only SELECT statement; a LIMIT is added when missing",
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]Property{
						"connection": connectionProperty,
						"sql": {
							Type:        "string",
							Description: "The SELECT statement to execute",
						},
						"limit": {
							Type:        "integer",
							Description: "Maximum rows to return when the statement has no LIMIT",
						},
					},
					Required: []string{"connection", "sql"},
				},
			},
		},
	}, nil
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, *Error) {
	var callParams CallToolParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	switch callParams.Name {
	case "list_connections":
		conns, err := s.registry.ListConnections(ctx)
		return toolResult(conns, err)
	case "describe_connection":
		name, rpcErr := stringArg(callParams.Arguments, "connection")
		if rpcErr != nil {
			return nil, rpcErr
		}
		detail, err := s.registry.GetConnection(ctx, name)
		return toolResult(detail, err)
	case "refresh_metadata":
		name, rpcErr := stringArg(callParams.Arguments, "connection")
		if rpcErr != nil {
			return nil, rpcErr
		}
		detail, err := s.registry.RefreshMetadata(ctx, name)
		return toolResult(detail, err)
	case "query":
		return s.executeQuery(ctx, callParams.Arguments)
	default:
		return nil, &Error{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Unknown tool: %s", callParams.Name),
		}
	}
}

func (s *Server) executeQuery(ctx context.Context, args map[string]any) (*CallToolResult, *Error) {
	name, rpcErr := stringArg(args, "connection")
	if rpcErr != nil {
		return nil, rpcErr
	}
	sqlQuery, rpcErr := stringArg(args, "sql")
	if rpcErr != nil {
		return nil, rpcErr
	}

	limit := 0
	if raw, ok := args["limit"]; ok && raw != nil {
		// JSON numbers decode as float64.
		n, ok := raw.(float64)
		if !ok || n != float64(int(n)) {
			return nil, &Error{
				Code:    InvalidParams,
				Message: "Invalid 'limit' parameter: must be an integer",
			}
		}
		limit = int(n)
	}

	outcome, err := s.registry.Query(ctx, name, sqlQuery, limit)
	return toolResult(outcome, err)
}

func (s *Server) handleListResources(ctx context.Context) (*ListResourcesResult, *Error) {
	conns, err := s.registry.ListConnections(ctx)
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Failed to list connections: %v", err),
		}
	}

	resources := []Resource{}
	for _, c := range conns {
		detail, err := s.registry.GetConnection(ctx, c.Name)
		if err != nil {
			s.logger.Warn("failed to read connection metadata", slog.String("name", c.Name), slog.Any("error", err))
			continue
		}
		for _, t := range detail.Tables {
			resources = append(resources, Resource{
				URI:      schemaURI(c.Name, t.Name),
				Name:     fmt.Sprintf("Schema for %s '%s' in '%s'", strings.ToLower(string(t.Kind)), t.Name, c.Name),
				MimeType: "application/json",
			})
		}
	}

	return &ListResourcesResult{Resources: resources}, nil
}

func (s *Server) handleReadResource(ctx context.Context, params json.RawMessage) (*ReadResourceResult, *Error) {
	var readParams ReadResourceParams
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid parameters",
			Data:    err.Error(),
		}
	}

	uri := readParams.URI
	connName, tableName, ok := parseSchemaURI(uri)
	if !ok {
		return nil, &Error{
			Code:    InvalidParams,
			Message: "Invalid resource URI format: expected " + ResourceScheme + "connection/table/schema",
		}
	}

	detail, err := s.registry.GetConnection(ctx, connName)
	if err != nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: fmt.Sprintf("Failed to get schema: %v", err),
		}
	}

	var table *store.TableRecord
	for i := range detail.Tables {
		if detail.Tables[i].Name == tableName {
			table = &detail.Tables[i]
			break
		}
	}
	if table == nil {
		return nil, &Error{
			Code:    InvalidParams,
			Message: fmt.Sprintf("Table '%s' not found in connection '%s'", tableName, connName),
		}
	}

	schemaJSON, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return nil, &Error{
			Code:    InternalError,
			Message: fmt.Sprintf("Failed to marshal schema: %v", err),
		}
	}

	return &ReadResourceResult{
		Contents: []ResourceContent{
			{
				URI:      uri,
				MimeType: "application/json",
				Text:     string(schemaJSON),
			},
		},
	}, nil
}

func schemaURI(connName, table string) string {
	return ResourceScheme + connName + "/" + table + "/schema"
}

// parseSchemaURI splits dbquery://connection/table/schema.
func parseSchemaURI(uri string) (connName, table string, ok bool) {
	rest, found := strings.CutPrefix(uri, ResourceScheme)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] != "schema" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func stringArg(args map[string]any, key string) (string, *Error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", &Error{
			Code:    InvalidParams,
			Message: fmt.Sprintf("Missing or invalid '%s' parameter", key),
		}
	}
	return v, nil
}

// toolResult renders v as indented JSON, or err as a tool-level error the
// model can read and react to.
func toolResult(v any, err error) (*CallToolResult, *Error) {
	if err != nil {
		return &CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &CallToolResult{
			Content: []Content{{Type: "text", Text: fmt.Sprintf("Failed to marshal result: %v", err)}},
			IsError: true,
		}, nil
	}
	return &CallToolResult{
		Content: []Content{{Type: "text", Text: string(text)}},
	}, nil
}
