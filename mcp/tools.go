package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	copilot "github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

const defaultSearchLimit = 20

// validationOptions assembles the per-call pipeline overrides shared by
// validate_workflow and deploy_workflow.
func validationOptions(req mcp.CallToolRequest) validation.Options {
	return validation.Options{
		Profile:  mcp.ParseString(req, "profile", ""),
		DryRun:   boolArg(req, "dry_run"),
		Semantic: boolArg(req, "semantic"),
	}
}

func (s *Server) handleValidateWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, ok := req.Params.Arguments["workflow"]
	if !ok || doc == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	res, err := s.coord.Validate(ctx, doc, validationOptions(req))
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(res)
}

func (s *Server) handleDeployWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, ok := req.Params.Arguments["workflow"]
	if !ok || doc == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	dep, err := s.coord.Deploy(ctx, doc, copilot.DeployOptions{
		WorkflowID: mcp.ParseString(req, "workflow_id", ""),
		Goal:       mcp.ParseString(req, "goal", ""),
		Validation: validationOptions(req),
	})
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(dep)
}

func (s *Server) handleGetWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "workflow_id", "")
	if id == "" {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, err := s.coord.GetWorkflow(ctx, id)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(wf)
}

func (s *Server) handleDeleteWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "workflow_id", "")
	if id == "" {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	if err := s.coord.DeleteWorkflow(ctx, id); err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(map[string]any{
		"deleted":    true,
		"workflowId": id,
	})
}

func (s *Server) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.coord.ListWorkflows(ctx, n8n.ListWorkflowsOptions{
		Active: boolArg(req, "active"),
		Name:   mcp.ParseString(req, "name", ""),
		Tags:   mcp.ParseString(req, "tags", ""),
		Limit:  intArg(req, "limit", 0),
		Cursor: mcp.ParseString(req, "cursor", ""),
	})
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(page)
}

func (s *Server) handleSetWorkflowActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "workflow_id", "")
	if id == "" {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	active := boolArg(req, "active")
	if active == nil {
		return mcp.NewToolResultError("active is required"), nil
	}

	wf, err := s.coord.SetWorkflowActive(ctx, id, *active)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(wf)
}

func (s *Server) handleRunWorkflow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "workflow_id", "")
	if id == "" {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	exec, err := s.coord.RunWorkflow(ctx, id, objectArg(req, "data"))
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(exec)
}

func (s *Server) handleGetExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "execution_id", "")
	if id == "" {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	exec, err := s.coord.GetExecution(ctx, id, mcp.ParseBoolean(req, "include_data", false))
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(exec)
}

func (s *Server) handleListExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.coord.ListExecutions(ctx, n8n.ListExecutionsOptions{
		WorkflowID:  mcp.ParseString(req, "workflow_id", ""),
		Status:      mcp.ParseString(req, "status", ""),
		IncludeData: mcp.ParseBoolean(req, "include_data", false),
		Limit:       intArg(req, "limit", 0),
		Cursor:      mcp.ParseString(req, "cursor", ""),
	})
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(page)
}

func (s *Server) handleStopExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "execution_id", "")
	if id == "" {
		return mcp.NewToolResultError("execution_id is required"), nil
	}

	exec, err := s.coord.StopExecution(ctx, id)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(exec)
}

func (s *Server) handleSearchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := mcp.ParseString(req, "query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	hits, err := s.coord.SearchNodes(ctx, query, intArg(req, "limit", defaultSearchLimit))
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(map[string]any{
		"nodes": hits,
		"count": len(hits),
	})
}

func (s *Server) handleGetNodeInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeID := mcp.ParseString(req, "node_type", "")
	if typeID == "" {
		return mcp.NewToolResultError("node_type is required"), nil
	}

	nt, err := s.coord.NodeInfo(ctx, typeID)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(nt)
}

func (s *Server) handleResyncCatalog(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.coord.ResyncCatalog(ctx)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(stats)
}

func (s *Server) handleCatalogStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalToolResult(s.coord.CatalogStats(ctx))
}

func (s *Server) handleRouterStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.coord.RouterStats(ctx)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(stats)
}

func (s *Server) handleMemoryQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := mcp.ParseString(req, "pattern", "")
	if pattern == "" {
		return mcp.NewToolResultError("pattern is required"), nil
	}

	entries, err := s.coord.MemoryQuery(ctx, memstore.Query{
		Pattern: pattern,
		Owner:   mcp.ParseString(req, "owner", ""),
		MaxAge:  time.Duration(intArg(req, "max_age_ms", 0)) * time.Millisecond,
		Limit:   intArg(req, "limit", 0),
	})
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleEngineHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health, err := s.coord.EngineHealth(ctx)
	if err != nil {
		return failResult(err), nil
	}
	return marshalToolResult(health)
}
