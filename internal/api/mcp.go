package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Actions  *action.Controller
	Registry *extension.Registry
}

// NewMCPServer creates an MCP server exposing the action lifecycle as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aiassist",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("aiassist launches AI content generation actions for glossary, book and quiz modules and reports their progress."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_extensions",
			mcp.WithDescription("List module types and the actions each supports."),
		),
		mcpListExtensions(deps),
	)

	s.AddTool(
		mcp.NewTool("launch_action",
			mcp.WithDescription("Validate input and queue an action for a module. Only one action may be active per module and user."),
			mcp.WithNumber("context_id", mcp.Description("Module id"), mcp.Required()),
			mcp.WithNumber("user_id", mcp.Description("Acting user id"), mcp.Required()),
			mcp.WithString("action", mcp.Description("Action name, e.g. generate_definitions"), mcp.Required()),
			mcp.WithObject("data", mcp.Description("Form data, e.g. {\"wordlist\": \"cat\\ndog\"}")),
		),
		mcpLaunchAction(deps),
	)

	s.AddTool(
		mcp.NewTool("get_active_action",
			mcp.WithDescription("Return the pending or running action for a module and user, if any."),
			mcp.WithNumber("context_id", mcp.Description("Module id"), mcp.Required()),
			mcp.WithNumber("user_id", mcp.Description("Acting user id"), mcp.Required()),
		),
		mcpGetActiveAction(deps),
	)

	s.AddTool(
		mcp.NewTool("action_status",
			mcp.WithDescription("Return status, progress and status text of an action."),
			mcp.WithNumber("action_id", mcp.Description("Action id"), mcp.Required()),
		),
		mcpActionStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_action",
			mcp.WithDescription("Cancel a pending or running action."),
			mcp.WithNumber("action_id", mcp.Description("Action id"), mcp.Required()),
		),
		mcpCancelAction(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"aiassist://modules",
			"Modules",
			mcp.WithResourceDescription("All modules actions can run against"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceModules(deps),
	)

	return s
}

func mcpListExtensions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(listExtensions(deps.Registry))
	}
}

func mcpLaunchAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contextID := int64(req.GetInt("context_id", 0))
		if contextID <= 0 {
			return mcpError("context_id is required"), nil
		}
		userID := int64(req.GetInt("user_id", 0))
		if userID <= 0 {
			return mcpError("user_id is required"), nil
		}
		name, err := req.RequireString("action")
		if err != nil {
			return mcpError("action is required"), nil
		}

		var form extension.Form
		if raw, ok := req.GetArguments()["data"].(map[string]any); ok {
			form = extension.Form(raw)
		}

		data, err := deps.Registry.Prepare(ctx, contextID, name, form)
		if err != nil {
			return mcpActionError(err), nil
		}
		id, err := deps.Actions.Launch(ctx, userID, contextID, name, data)
		if err != nil {
			return mcpActionError(err), nil
		}
		return mcpText(fmt.Sprintf("Launched action %d", id)), nil
	}
}

func mcpGetActiveAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contextID := int64(req.GetInt("context_id", 0))
		userID := int64(req.GetInt("user_id", 0))
		if contextID <= 0 || userID <= 0 {
			return mcpError("context_id and user_id are required"), nil
		}

		a, err := deps.Actions.GetActiveAction(ctx, contextID, userID)
		if err != nil {
			return mcpActionError(err), nil
		}
		if a == nil {
			return mcpText("none"), nil
		}
		return mcpJSON(newActionView(*a, deps.Registry.Describe(*a)))
	}
}

func mcpActionStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := int64(req.GetInt("action_id", 0))
		if id <= 0 {
			return mcpError("action_id is required"), nil
		}
		a, err := deps.Actions.GetStatus(ctx, id)
		if err != nil {
			return mcpActionError(err), nil
		}
		return mcpJSON(newActionView(a, deps.Registry.Describe(a)))
	}
}

func mcpCancelAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := int64(req.GetInt("action_id", 0))
		if id <= 0 {
			return mcpError("action_id is required"), nil
		}
		ok, err := deps.Actions.Cancel(ctx, id)
		if err != nil {
			return mcpActionError(err), nil
		}
		if !ok {
			return mcpText(fmt.Sprintf("Action %d was not active", id)), nil
		}
		return mcpText(fmt.Sprintf("Cancelled action %d", id)), nil
	}
}

func mcpResourceModules(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		modules, err := deps.Store.ListModules()
		if err != nil {
			return nil, fmt.Errorf("failed to list modules: %w", err)
		}
		views := make([]ModuleView, len(modules))
		for i, m := range modules {
			views[i] = newModuleView(m)
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal modules: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpActionError renders controller errors for tool callers.
func mcpActionError(err error) *mcp.CallToolResult {
	var conflict *action.ConflictError
	if errors.As(err, &conflict) {
		return mcpError(fmt.Sprintf("%v; poll action %d instead", err, conflict.ExistingID))
	}
	return mcpError(err.Error())
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
