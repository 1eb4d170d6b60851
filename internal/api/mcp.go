package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/localdesk/internal/assist"
	"github.com/kalambet/localdesk/internal/domain"
	"github.com/kalambet/localdesk/internal/entity"
	"github.com/kalambet/localdesk/internal/settings"
)

const defaultListLimit = 50

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry *domain.Registry
	Assist   *assist.Service // optional; if nil, assist_form returns an error
	Settings *settings.Manager
	// Wait bounds how long assist_form waits for the model. Zero uses the
	// gateway timeout.
	Wait time.Duration
}

// NewMCPServer creates an MCP server with all localdesk tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"localdesk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("localdesk: local records for tasks, tickets, transactions, products, students and investments."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_entities",
			mcp.WithDescription("List the records of one collection, optionally searched, filtered and sorted."),
			mcp.WithString("collection", mcp.Description("Collection name, e.g. tasks or transactions"), mcp.Required()),
			mcp.WithString("q", mcp.Description("Case-insensitive search over text fields")),
			mcp.WithObject("filters", mcp.Description("Exact field matches, e.g. {\"status\":\"open\"}")),
			mcp.WithString("sort", mcp.Description("Field to sort by")),
			mcp.WithBoolean("desc", mcp.Description("Sort descending")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
		),
		mcpListEntities(deps),
	)

	s.AddTool(
		mcp.NewTool("create_entity",
			mcp.WithDescription("Create a record in a collection. Missing fields take their defaults."),
			mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
			mcp.WithObject("fields", mcp.Description("Field values of the new record"), mcp.Required()),
		),
		mcpCreateEntity(deps),
	)

	s.AddTool(
		mcp.NewTool("update_entity",
			mcp.WithDescription("Change fields of an existing record."),
			mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record id"), mcp.Required()),
			mcp.WithObject("fields", mcp.Description("Fields to change"), mcp.Required()),
		),
		mcpUpdateEntity(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_entity",
			mcp.WithDescription("Delete a record."),
			mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Record id"), mcp.Required()),
		),
		mcpDeleteEntity(deps),
	)

	s.AddTool(
		mcp.NewTool("assist_form",
			mcp.WithDescription("Ask the configured model to fill a record form from free text, and optionally save the result."),
			mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
			mcp.WithString("input", mcp.Description("Free text such as a receipt or a task description"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Existing record to edit instead of creating one")),
			mcp.WithBoolean("save", mcp.Description("Save the filled form when the response is structured")),
		),
		mcpAssistForm(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"localdesk://collections",
			"Collections",
			mcp.WithResourceDescription("Collection names, record counts and view fields"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCollections(deps),
	)

	if deps.Settings != nil {
		s.AddResource(
			mcp.NewResource(
				"localdesk://settings",
				"Settings",
				mcp.WithResourceDescription("Current app settings as a flat JSON object"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceSettings(deps),
		)
	}

	return s
}

func mcpListEntities(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		coll, err := deps.Registry.Get(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		limit := req.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}
		items := coll.View(parseCriteria(criteriaArgs(req.GetArguments())))
		total := len(items)
		if len(items) > limit {
			items = items[:limit]
		}

		b, err := json.Marshal(map[string]any{
			"collection": coll.Name(),
			"count":      total,
			"items":      items,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal records: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreateEntity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		coll, err := deps.Registry.Get(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		fields, ok := objectArg(req, "fields")
		if !ok {
			return mcpError("fields must be an object"), nil
		}

		item, err := coll.Create(fields)
		if err != nil {
			return mcpError(fmt.Sprintf("create failed: %v", err)), nil
		}
		return mcpJSON(item)
	}
}

func mcpUpdateEntity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		coll, err := deps.Registry.Get(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		fields, ok := objectArg(req, "fields")
		if !ok {
			return mcpError("fields must be an object"), nil
		}

		item, err := coll.Update(id, fields)
		if err != nil {
			return mcpError(fmt.Sprintf("update failed: %v", err)), nil
		}
		return mcpJSON(item)
	}
}

func mcpDeleteEntity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		coll, err := deps.Registry.Get(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if err := coll.Delete(id); err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %s %s", coll.Name(), id)), nil
	}
}

func mcpAssistForm(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Assist == nil {
			return mcpError("assist not available: no AI backend configured"), nil
		}
		name, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}
		input, err := req.RequireString("input")
		if err != nil {
			return mcpError("input is required"), nil
		}
		entityID := req.GetString("id", "")
		save := req.GetBool("save", false)

		coll, err := deps.Registry.Get(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		draft, err := assist.NewDraft(coll, entityID)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		id, err := deps.Assist.Submit(ctx, assist.Request{
			Collection: coll.Name(),
			EntityID:   entityID,
			Input:      input,
			Current:    draft.Fields,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("assist failed: %v", err)), nil
		}

		wait := deps.Wait
		if wait <= 0 {
			wait = deps.Assist.Gateway().Timeout() + 5*time.Second
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		out, err := deps.Assist.Wait(waitCtx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("waiting for assist %s: %v", id, err)), nil
		}
		if out.Status == assist.StatusError {
			return mcpError(fmt.Sprintf("assist failed: %s", out.Error)), nil
		}

		resp := map[string]any{"outcome": out}
		if save && out.Result != nil && draft.Apply(*out.Result) {
			saved, err := draft.Commit(coll)
			if err != nil {
				return mcpError(fmt.Sprintf("saving %s: %v", coll.Name(), err)), nil
			}
			resp["saved"] = saved
		}
		return mcpJSON(resp)
	}
}

func mcpResourceCollections(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(listCollections(deps.Registry))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal collections: %w", err)
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

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Settings.Get()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}
		b, err := json.Marshal(s.Flat())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
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

func objectArg(req mcp.CallToolRequest, key string) (entity.Patch, bool) {
	m, ok := req.GetArguments()[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return entity.Patch(m), true
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
