package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ServerSpec describes how to launch one toolkit's MCP server.
type ServerSpec struct {
	Command string
	Args    []string
	Env     []string
}

// MCPProvider implements Provider over MCP stdio servers, one server
// process per configured toolkit. Connections are opened lazily and
// reused. MCP has no out-of-band consent flow, so Authorize completes
// immediately; consent-style suspensions come from the servers
// themselves as execution errors.
type MCPProvider struct {
	mu      sync.Mutex
	servers map[string]ServerSpec
	clients map[string]*client.Client
}

// NewMCPProvider creates a provider for the configured toolkits.
func NewMCPProvider(servers map[string]ServerSpec) *MCPProvider {
	return &MCPProvider{
		servers: servers,
		clients: make(map[string]*client.Client),
	}
}

// connect returns the (possibly cached) client for a toolkit.
func (p *MCPProvider) connect(ctx context.Context, toolkit string) (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[toolkit]; ok {
		return c, nil
	}

	spec, ok := p.servers[toolkit]
	if !ok {
		return nil, fmt.Errorf("toolkit not configured: %s", toolkit)
	}

	c, err := client.NewStdioMCPClient(spec.Command, spec.Env, spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("start toolkit server %s: %w", toolkit, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "crew", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize toolkit server %s: %w", toolkit, err)
	}

	p.clients[toolkit] = c
	return c, nil
}

// ListTools lists up to limit tools from the toolkit's server.
func (p *MCPProvider) ListTools(ctx context.Context, toolkit string, limit int) ([]Descriptor, error) {
	c, err := p.connect(ctx, toolkit)
	if err != nil {
		return nil, err
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools for toolkit %s: %w", toolkit, err)
	}

	var out []Descriptor
	for _, t := range res.Tools {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			Toolkit:     toolkit,
			Properties:  t.InputSchema.Properties,
			Required:    t.InputSchema.Required,
			Scopes:      []string{toolkit},
		})
	}
	return out, nil
}

// Execute runs the tool call on its toolkit's server and returns the
// concatenated text content.
func (p *MCPProvider) Execute(ctx context.Context, d Descriptor, args map[string]any, userID string) (string, error) {
	c, err := p.connect(ctx, d.Toolkit)
	if err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = d.Name
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("execute tool %s: %w", d.Name, err)
	}

	var sb strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", d.Name, sb.String())
	}
	return sb.String(), nil
}

// Authorize completes immediately: MCP toolkit servers carry their own
// credentials.
func (p *MCPProvider) Authorize(ctx context.Context, toolName, userID string) (*Authorization, error) {
	return &Authorization{Status: AuthCompleted}, nil
}

// WaitForAuthorization is a no-op for MCP-backed toolkits.
func (p *MCPProvider) WaitForAuthorization(ctx context.Context, id string) error {
	return nil
}

// Close shuts down all toolkit server connections.
func (p *MCPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for toolkit, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close toolkit server %s: %w", toolkit, err)
		}
		delete(p.clients, toolkit)
	}
	return firstErr
}
