package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Proxy serves the tools of a running server's /mcp endpoint on
// stdin/stdout. Every call goes to the server that owns the rooms.
type Proxy struct {
	upstream *client.Client
	mcp      *server.MCPServer

	defaultRoom string
	roomTools   map[string]bool
}

// ProxyOptions configures Dial
type ProxyOptions struct {
	URL         string
	DefaultRoom string
	Version     string
}

// Dial connects to the streamable HTTP endpoint at opts.URL and mirrors its
// tool list. It fails when no server is listening there.
func Dial(ctx context.Context, opts ProxyOptions) (*Proxy, error) {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "main"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	upstream, err := client.NewStreamableHttpClient(opts.URL, transport.WithHTTPTimeout(callTimeout))
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", opts.URL, err)
	}
	if err := upstream.Start(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.URL, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "vibe-presenting-stdio", Version: opts.Version}
	if _, err := upstream.Initialize(ctx, initReq); err != nil {
		upstream.Close()
		return nil, fmt.Errorf("initialize session with %s: %w", opts.URL, err)
	}

	tools, err := upstream.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		upstream.Close()
		return nil, fmt.Errorf("list tools: %w", err)
	}

	p := &Proxy{
		upstream:    upstream,
		defaultRoom: opts.DefaultRoom,
		roomTools:   make(map[string]bool),
		mcp: server.NewMCPServer(
			"vibe-presenting",
			opts.Version,
			server.WithToolCapabilities(true),
		),
	}
	for _, tool := range tools.Tools {
		if _, ok := tool.InputSchema.Properties["room"]; ok {
			p.roomTools[tool.Name] = true
		}
		p.mcp.AddTool(tool, p.forward)
	}

	slog.Info("connected to presentation server", "url", opts.URL, "tools", len(tools.Tools))
	return p, nil
}

// ServeStdio serves the mirrored tools on stdin/stdout until stdin closes
func (p *Proxy) ServeStdio() error {
	defer p.upstream.Close()
	slog.Info("starting MCP stdio proxy", "default_room", p.defaultRoom)
	return server.ServeStdio(p.mcp)
}

// Close ends the upstream session
func (p *Proxy) Close() error {
	return p.upstream.Close()
}

// forward relays one tool call. Calls without a room go to the default room.
func (p *Proxy) forward(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := make(map[string]any)
	for k, v := range req.GetArguments() {
		args[k] = v
	}
	if room, _ := args["room"].(string); room == "" && p.roomTools[req.Params.Name] {
		args["room"] = p.defaultRoom
	}

	out := mcp.CallToolRequest{}
	out.Params.Name = req.Params.Name
	out.Params.Arguments = args

	res, err := p.upstream.CallTool(ctx, out)
	if err != nil {
		slog.Warn("tool call failed", "tool", req.Params.Name, "error", err)
		return nil, err
	}
	return res, nil
}
