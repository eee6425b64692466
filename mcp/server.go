// Package mcp exposes the co-pilot coordinator over the Model Context
// Protocol. Every tool is a thin shim: parse arguments, call one coordinator
// operation, marshal the outcome. Validation, routing and engine access all
// live behind the coordinator; this package holds no workflow logic of its
// own.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	copilot "github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// Version is the MCP server version, set at build time.
var Version = "dev"

// Coordinator is the operation surface the tools call. It is kept as an
// interface so the handlers can be tested against a fake; *copilot.Coordinator
// satisfies it.
type Coordinator interface {
	Validate(ctx context.Context, doc any, opts validation.Options) (*validation.Result, error)
	Deploy(ctx context.Context, doc any, opts copilot.DeployOptions) (*copilot.Deployment, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context, opts n8n.ListWorkflowsOptions) (*n8n.WorkflowPage, error)
	SetWorkflowActive(ctx context.Context, id string, active bool) (*workflow.Workflow, error)
	RunWorkflow(ctx context.Context, id string, data map[string]any) (*n8n.Execution, error)
	GetExecution(ctx context.Context, id string, includeData bool) (*n8n.Execution, error)
	ListExecutions(ctx context.Context, opts n8n.ListExecutionsOptions) (*n8n.ExecutionPage, error)
	StopExecution(ctx context.Context, id string) (*n8n.Execution, error)
	ResyncCatalog(ctx context.Context) (catalog.Stats, error)
	SearchNodes(ctx context.Context, query string, limit int) ([]catalog.NodeType, error)
	NodeInfo(ctx context.Context, typeID string) (catalog.NodeType, error)
	CatalogStats(ctx context.Context) catalog.Stats
	RouterStats(ctx context.Context) (*router.Stats, error)
	MemoryQuery(ctx context.Context, q memstore.Query) ([]memstore.Entry, error)
	EngineHealth(ctx context.Context) (*n8n.Health, error)
}

// Server wraps an MCP server instance with the co-pilot tool set.
type Server struct {
	mcpServer *server.MCPServer
	coord     Coordinator
}

// NewServer builds the MCP server with every co-pilot tool and resource
// registered against coord.
func NewServer(coord Coordinator) *Server {
	s := &Server{coord: coord}

	s.mcpServer = server.NewMCPServer(
		"n8n-copilot",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("This MCP server is a co-pilot for an n8n workflow engine. "+
			"Use validate_workflow to check a workflow document against the seven-layer "+
			"admission pipeline without touching the engine, and deploy_workflow to validate "+
			"and create or update it in one call. search_nodes and get_node_info answer "+
			"questions about available node types from a locally synced catalog. Failed calls "+
			"return {ok:false, error:{kind, message, retryable, recoverySteps}} and, for "+
			"refused deploys, the full validation verdict alongside."),
	)

	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server instance (useful for testing).
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the MCP server over standard input/output.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// registerTools registers every coordinator operation as a tool.
func (s *Server) registerTools() {
	// validation
	s.mcpServer.AddTool(
		mcp.NewTool("validate_workflow",
			mcp.WithDescription("Run a workflow document through the admission pipeline (restriction policy, "+
				"schema, node existence, connections, credentials, optional semantic review, optional engine dry-run) "+
				"without deploying it. Returns the full verdict with errors, warnings, and which layer failed. "+
				"Use this to iterate on a workflow until it is admissible."),
			mcp.WithObject("workflow",
				mcp.Required(),
				mcp.Description("The workflow document: {name, nodes:[{name, type, typeVersion?, parameters?, position?, credentials?}], connections:{<source>:{main:[[{node, type?, index?}]]}}, settings?}"),
			),
			mcp.WithString("profile",
				mcp.Description("Label partitioning the validation result cache. Defaults to 'default'."),
			),
			mcp.WithBoolean("dry_run",
				mcp.Description("Override the configured dry-run default for this call. A dry-run creates a disposable copy on the engine and deletes it again."),
			),
			mcp.WithBoolean("semantic",
				mcp.Description("Override the configured semantic-review default for this call."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleValidateWorkflow,
	)

	// deployment
	s.mcpServer.AddTool(
		mcp.NewTool("deploy_workflow",
			mcp.WithDescription("Validate a workflow document and, when it passes admission, create it on the engine "+
				"(or update it when workflow_id is given or the document carries an id). A refused deploy returns the "+
				"validation verdict so the issues can be fixed and resubmitted; nothing reaches the engine in that case."),
			mcp.WithObject("workflow",
				mcp.Required(),
				mcp.Description("The workflow document to deploy (same shape as validate_workflow)."),
			),
			mcp.WithString("workflow_id",
				mcp.Description("Update this existing workflow instead of creating a new one."),
			),
			mcp.WithString("goal",
				mcp.Description("The automation goal behind this deploy, if any; feeds the execution router's decision."),
			),
			mcp.WithString("profile",
				mcp.Description("Validation cache profile label."),
			),
			mcp.WithBoolean("dry_run",
				mcp.Description("Override the configured dry-run default for the admission check."),
			),
			mcp.WithBoolean("semantic",
				mcp.Description("Override the configured semantic-review default for the admission check."),
			),
		),
		s.handleDeployWorkflow,
	)

	// workflow management
	s.mcpServer.AddTool(
		mcp.NewTool("get_workflow",
			mcp.WithDescription("Fetch one workflow from the engine by ID."),
			mcp.WithString("workflow_id",
				mcp.Required(),
				mcp.Description("The engine's workflow ID."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_workflow",
			mcp.WithDescription("Delete a workflow from the engine. This is irreversible; the engine keeps no trash."),
			mcp.WithString("workflow_id",
				mcp.Required(),
				mcp.Description("The engine's workflow ID."),
			),
		),
		s.handleDeleteWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_workflows",
			mcp.WithDescription("List workflows stored on the engine, with optional filters and cursor paging."),
			mcp.WithBoolean("active",
				mcp.Description("Only workflows with this activation state."),
			),
			mcp.WithString("name",
				mcp.Description("Only workflows whose name matches."),
			),
			mcp.WithString("tags",
				mcp.Description("Comma-separated tag names; only workflows carrying all of them."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Page size."),
			),
			mcp.WithString("cursor",
				mcp.Description("Opaque cursor from a previous page's nextCursor."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_workflow_active",
			mcp.WithDescription("Activate or deactivate a workflow. Active workflows respond to their triggers; "+
				"inactive ones only run manually."),
			mcp.WithString("workflow_id",
				mcp.Required(),
				mcp.Description("The engine's workflow ID."),
			),
			mcp.WithBoolean("active",
				mcp.Required(),
				mcp.Description("Desired activation state."),
			),
		),
		s.handleSetWorkflowActive,
	)

	// executions
	s.mcpServer.AddTool(
		mcp.NewTool("run_workflow",
			mcp.WithDescription("Trigger a manual execution of a workflow and return the engine's execution record. "+
				"The run proceeds asynchronously; poll get_execution for its outcome."),
			mcp.WithString("workflow_id",
				mcp.Required(),
				mcp.Description("The engine's workflow ID."),
			),
			mcp.WithObject("data",
				mcp.Description("Key-value input payload handed to the workflow's trigger node."),
			),
		),
		s.handleRunWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_execution",
			mcp.WithDescription("Fetch one execution record by ID."),
			mcp.WithString("execution_id",
				mcp.Required(),
				mcp.Description("The engine's execution ID."),
			),
			mcp.WithBoolean("include_data",
				mcp.Description("Include full node input/output data. Large; off by default."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetExecution,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_executions",
			mcp.WithDescription("List execution records, newest first, with optional filters and cursor paging."),
			mcp.WithString("workflow_id",
				mcp.Description("Only executions of this workflow."),
			),
			mcp.WithString("status",
				mcp.Description("Only executions in this state: success, error, or waiting."),
			),
			mcp.WithBoolean("include_data",
				mcp.Description("Include full node input/output data for each record."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Page size."),
			),
			mcp.WithString("cursor",
				mcp.Description("Opaque cursor from a previous page's nextCursor."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListExecutions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop_execution",
			mcp.WithDescription("Stop a running execution."),
			mcp.WithString("execution_id",
				mcp.Required(),
				mcp.Description("The engine's execution ID."),
			),
		),
		s.handleStopExecution,
	)

	// catalog
	s.mcpServer.AddTool(
		mcp.NewTool("search_nodes",
			mcp.WithDescription("Search the synced node-type catalog by name, display name, or description. "+
				"Use this to find the exact type identifier before authoring a node."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free-text search query (e.g. 'webhook', 'http request', 'slack')."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of hits. Default: 20."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleSearchNodes,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_node_info",
			mcp.WithDescription("Return the catalog entry for one node type: display name, supported versions, "+
				"required credential slots, trigger classification, and property summary."),
			mcp.WithString("node_type",
				mcp.Required(),
				mcp.Description("The full dotted type identifier (e.g. 'n8n-nodes-base.webhook')."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleGetNodeInfo,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("resync_catalog",
			mcp.WithDescription("Force an immediate catalog sync from the engine instead of waiting for the "+
				"background refresh. Use after installing new node packages on the engine."),
		),
		s.handleResyncCatalog,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("catalog_stats",
			mcp.WithDescription("Report the catalog's current state: node and credential-type counts, trigger count, "+
				"which introspection source fed the last sync, and when."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleCatalogStats,
	)

	// insight
	s.mcpServer.AddTool(
		mcp.NewTool("router_stats",
			mcp.WithDescription("Report the execution router's recorded outcomes per path (agent vs handler): "+
				"execution counts, success rates, average latency, and the current preference."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleRouterStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("memory_query",
			mcp.WithDescription("Query the shared-memory store by key pattern. Patterns are a literal key or a "+
				"prefix with a single trailing % wildcard (e.g. 'execution-metrics:%')."),
			mcp.WithString("pattern",
				mcp.Required(),
				mcp.Description("Key pattern to match."),
			),
			mcp.WithString("owner",
				mcp.Description("Only entries written by this owner tag."),
			),
			mcp.WithNumber("max_age_ms",
				mcp.Description("Only entries younger than this many milliseconds."),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries."),
			),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleMemoryQuery,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("engine_health",
			mcp.WithDescription("Probe the engine's health endpoint and report reachability and version."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleEngineHealth,
	)
}

// registerResources registers the documentation resources.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcp.NewResource(
			"copilot://docs/overview",
			"Co-pilot Overview",
			mcp.WithResourceDescription("What the co-pilot does, how the validation pipeline is layered, and how deploys flow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleDocsOverview,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"copilot://docs/workflow-format",
			"Workflow Document Format",
			mcp.WithResourceDescription("The workflow document shape accepted by validate_workflow and deploy_workflow, with a complete example."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleDocsWorkflowFormat,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"copilot://docs/error-kinds",
			"Error Kind Reference",
			mcp.WithResourceDescription("The closed error taxonomy carried by failed tool calls, with recovery guidance per kind."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.handleDocsErrorKinds,
	)
}

func (s *Server) handleDocsOverview(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "copilot://docs/overview",
			MIMEType: "text/markdown",
			Text:     docsOverview,
		},
	}, nil
}

func (s *Server) handleDocsWorkflowFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "copilot://docs/workflow-format",
			MIMEType: "text/markdown",
			Text:     docsWorkflowFormat,
		},
	}, nil
}

func (s *Server) handleDocsErrorKinds(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "copilot://docs/error-kinds",
			MIMEType: "text/markdown",
			Text:     docsErrorKinds,
		},
	}, nil
}

// --- Helpers ---

func marshalToolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("internal error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// failureEnvelope is the wire shape of a failed tool call. The verdict rides
// beside the error when a deploy was refused admission.
type failureEnvelope struct {
	OK         bool               `json:"ok"`
	Error      *copilot.Error     `json:"error"`
	Validation *validation.Result `json:"validation,omitempty"`
}

// failResult serializes a coordinator failure as the error envelope.
func failResult(err error) *mcp.CallToolResult {
	opErr, ok := copilot.AsError(err)
	if !ok {
		opErr = &copilot.Error{Kind: n8n.KindUnknown, Message: err.Error()}
	}
	env := failureEnvelope{Error: opErr, Validation: opErr.Validation}
	data, merr := json.MarshalIndent(env, "", "  ")
	if merr != nil {
		return mcp.NewToolResultError(opErr.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// boolArg reads an optional boolean argument, nil when absent, so handlers
// can tell "unset" from "false" for tri-state overrides.
func boolArg(req mcp.CallToolRequest, key string) *bool {
	if raw, ok := req.GetArguments()[key]; ok {
		if b, ok := raw.(bool); ok {
			return &b
		}
	}
	return nil
}

// intArg reads an optional numeric argument. JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, def int) int {
	switch n := req.Params.Arguments[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if v, err := n.Int64(); err == nil {
			return int(v)
		}
	}
	return def
}

// objectArg reads an optional object argument.
func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	if raw, ok := req.Params.Arguments[key]; ok {
		if m, ok := raw.(map[string]any); ok {
			return m
		}
	}
	return nil
}
