package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/core"
	"github.com/edvin/devtunnel/internal/model"
)

type toolDef struct {
	name    string
	params  []mcp.ToolOption
	handler server.ToolHandlerFunc
}

func buildTools(svc *core.Services, cfg *Config, logger zerolog.Logger) []server.ServerTool {
	defs := []toolDef{
		{
			name: "list_routes",
			params: []mcp.ToolOption{
				mcp.WithString("project_id", mcp.Description("Only routes linked to this project")),
				mcp.WithString("status", mcp.Description("Only routes in this status"),
					mcp.Enum(model.RouteStatusPending, model.RouteStatusActive, model.RouteStatusError, model.RouteStatusDisabled)),
			},
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return result(svc.Publish.List(ctx, model.RouteFilter{
					ProjectID: req.GetString("project_id", ""),
					Status:    req.GetString("status", ""),
				}))
			},
		},
		{
			name: "list_orphaned_routes",
			handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return result(svc.Reconcile.Orphaned(ctx))
			},
		},
		{
			name: "publish_route",
			params: []mcp.ToolOption{
				mcp.WithString("subdomain", mcp.Required(), mcp.Description("Subdomain label(s) under the zone")),
				mcp.WithNumber("local_port", mcp.Required(), mcp.Description("Local port the service listens on"),
					mcp.Min(model.MinPort), mcp.Max(model.MaxPort)),
				mcp.WithString("local_host", mcp.Description("Local host, default localhost")),
				mcp.WithString("scheme", mcp.Enum("http", "https")),
				mcp.WithString("project_id", mcp.Description("Project to link the route to")),
				mcp.WithString("description"),
				mcp.WithBoolean("enable_protection", mcp.Description("Put the route behind the identity provider")),
				mcp.WithBoolean("websocket", mcp.Description("Allow WebSocket upgrades")),
			},
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				subdomain, err := req.RequireString("subdomain")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				port, err := req.RequireInt("local_port")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return result(svc.Publish.Create(ctx, core.PublishRequest{
					Subdomain:        subdomain,
					LocalPort:        port,
					LocalHost:        req.GetString("local_host", ""),
					Scheme:           req.GetString("scheme", ""),
					ProjectID:        req.GetString("project_id", ""),
					Description:      req.GetString("description", ""),
					EnableProtection: req.GetBool("enable_protection", false),
					Websocket:        req.GetBool("websocket", false),
				}))
			},
		},
		{
			name:   "unpublish_route",
			params: []mcp.ToolOption{hostnameParam()},
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				hostname, errResult := requireHostname(req)
				if errResult != nil {
					return errResult, nil
				}
				return result(svc.Publish.Teardown(ctx, hostname))
			},
		},
		{
			name: "sync_routes",
			handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return result(svc.Reconcile.Sync(ctx))
			},
		},
		{
			name:   "check_route",
			params: []mcp.ToolOption{hostnameParam()},
			handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				hostname, errResult := requireHostname(req)
				if errResult != nil {
					return errResult, nil
				}
				return result(svc.Health.Check(ctx, hostname))
			},
		},
		{
			name: "restart_tunnel",
			handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return result(svc.Tunnel.Restart(ctx), nil)
			},
		},
	}

	tools := make([]server.ServerTool, 0, len(defs))
	for _, d := range defs {
		override := cfg.Tools[d.name]
		opts := append([]mcp.ToolOption{mcp.WithDescription(override.Description)}, annotations(override)...)
		opts = append(opts, d.params...)
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewTool(d.name, opts...),
			Handler: logged(logger, d.name, d.handler),
		})
	}
	return tools
}

func annotations(o ToolOverride) []mcp.ToolOption {
	var opts []mcp.ToolOption
	if o.ReadOnly != nil {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(*o.ReadOnly))
	}
	if o.Destructive != nil {
		opts = append(opts, mcp.WithDestructiveHintAnnotation(*o.Destructive))
	}
	if o.Idempotent != nil {
		opts = append(opts, mcp.WithIdempotentHintAnnotation(*o.Idempotent))
	}
	return opts
}

func hostnameParam() mcp.ToolOption {
	return mcp.WithString("hostname", mcp.Required(), mcp.Description("Fully qualified hostname, e.g. app.example.com"))
}

func requireHostname(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	raw, err := req.RequireString("hostname")
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	h := model.NormalizeHostname(raw)
	if !model.ValidHostname(h) {
		return "", mcp.NewToolResultError(fmt.Sprintf("invalid hostname %q", raw))
	}
	return h, nil
}

// result renders v as JSON text. Engine errors become tool errors so the
// client sees the message instead of a protocol failure.
func result(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func logged(logger zerolog.Logger, name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := next(ctx, req)
		ev := logger.Debug()
		if err != nil || (res != nil && res.IsError) {
			ev = logger.Warn()
		}
		ev.Str("tool", name).Err(err).Msg("mcp tool call")
		return res, err
	}
}
