package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *testApp) {
	t.Helper()
	app := setupApp(t)
	return MCPDeps{Store: app.store, Actions: app.ctrl, Registry: app.reg}, app
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_ListExtensions(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	result, err := mcpListExtensions(deps)(context.Background(), makeCallToolRequest("list_extensions", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := toolText(t, result)
	if text != `[{"type":"glossary","actions":["generate_definitions"]}]` {
		t.Errorf("result = %s", text)
	}
}

func TestMCPTool_LaunchStatusCancel(t *testing.T) {
	deps, app := newTestMCPDeps(t)
	ctx := context.Background()

	result, err := mcpLaunchAction(deps)(ctx, makeCallToolRequest("launch_action", map[string]interface{}{
		"context_id": float64(app.module.ID),
		"user_id":    float64(3),
		"action":     "generate_definitions",
		"data":       map[string]interface{}{"words": "cat dog"},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("launch failed: %s", toolText(t, result))
	}
	var id int64
	if _, err := fmt.Sscanf(toolText(t, result), "Launched action %d", &id); err != nil {
		t.Fatalf("unexpected launch text %q", toolText(t, result))
	}

	// Conflict names the action to poll instead.
	result, _ = mcpLaunchAction(deps)(ctx, makeCallToolRequest("launch_action", map[string]interface{}{
		"context_id": float64(app.module.ID),
		"user_id":    float64(3),
		"action":     "generate_definitions",
		"data":       map[string]interface{}{"words": "owl"},
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), fmt.Sprintf("poll action %d", id)) {
		t.Errorf("conflict result = %s", toolText(t, result))
	}

	result, _ = mcpGetActiveAction(deps)(ctx, makeCallToolRequest("get_active_action", map[string]interface{}{
		"context_id": float64(app.module.ID),
		"user_id":    float64(3),
	}))
	var view ActionView
	if err := json.Unmarshal([]byte(toolText(t, result)), &view); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if view.ID != id || view.Status != "pending" {
		t.Errorf("active = %+v", view)
	}

	result, _ = mcpActionStatus(deps)(ctx, makeCallToolRequest("action_status", map[string]interface{}{"action_id": float64(id)}))
	if result.IsError || !strings.Contains(toolText(t, result), `"status":"pending"`) {
		t.Errorf("status = %s", toolText(t, result))
	}

	result, _ = mcpCancelAction(deps)(ctx, makeCallToolRequest("cancel_action", map[string]interface{}{"action_id": float64(id)}))
	if got := toolText(t, result); got != fmt.Sprintf("Cancelled action %d", id) {
		t.Errorf("cancel = %q", got)
	}
	result, _ = mcpCancelAction(deps)(ctx, makeCallToolRequest("cancel_action", map[string]interface{}{"action_id": float64(id)}))
	if got := toolText(t, result); got != fmt.Sprintf("Action %d was not active", id) {
		t.Errorf("second cancel = %q", got)
	}

	result, _ = mcpGetActiveAction(deps)(ctx, makeCallToolRequest("get_active_action", map[string]interface{}{
		"context_id": float64(app.module.ID),
		"user_id":    float64(3),
	}))
	if got := toolText(t, result); got != "none" {
		t.Errorf("active after cancel = %q", got)
	}
}

func TestMCPTool_LaunchValidation(t *testing.T) {
	deps, app := newTestMCPDeps(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing context", map[string]interface{}{"user_id": float64(1), "action": "generate_definitions"}, "context_id is required"},
		{"missing user", map[string]interface{}{"context_id": float64(app.module.ID), "action": "generate_definitions"}, "user_id is required"},
		{"missing action", map[string]interface{}{"context_id": float64(app.module.ID), "user_id": float64(1)}, "action is required"},
		{"invalid data", map[string]interface{}{"context_id": float64(app.module.ID), "user_id": float64(1), "action": "generate_definitions"}, "a word list is required"},
		{"unknown module", map[string]interface{}{"context_id": float64(77), "user_id": float64(1), "action": "generate_definitions"}, "unknown context"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := mcpLaunchAction(deps)(context.Background(), makeCallToolRequest("launch_action", tt.args))
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if !result.IsError || !strings.Contains(toolText(t, result), tt.want) {
				t.Errorf("result = %q (error=%v), want error containing %q", toolText(t, result), result.IsError, tt.want)
			}
		})
	}
}

func TestMCPTool_StatusNotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	result, _ := mcpActionStatus(deps)(context.Background(), makeCallToolRequest("action_status", map[string]interface{}{"action_id": float64(31337)}))
	if !result.IsError {
		t.Errorf("expected error for unknown action, got %s", toolText(t, result))
	}
}

func TestMCPResource_Modules(t *testing.T) {
	deps, app := newTestMCPDeps(t)
	contents, err := mcpResourceModules(deps)(context.Background(), makeReadResourceRequest("aiassist://modules"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var modules []ModuleView
	if err := json.Unmarshal([]byte(tc.Text), &modules); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(modules) != 1 || modules[0].ID != app.module.ID || modules[0].Name != "Animals" {
		t.Errorf("modules = %+v", modules)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
