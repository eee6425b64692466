package copilot

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// fail classifies err, records it on the span and returns the typed failure.
func (c *Coordinator) fail(span trace.Span, err error) error {
	opErr := classify(err)
	c.tracer.RecordError(span, opErr)
	return opErr
}

func (c *Coordinator) notifyValidation(res *validation.Result) {
	if res.Valid {
		c.listener.OnValidationPassed(res)
	} else {
		c.listener.OnValidationFailed(res)
	}
}

// Validate runs doc through the admission pipeline without deploying. An
// invalid workflow is a successful validate: the verdict is the value, not
// an error.
func (c *Coordinator) Validate(ctx context.Context, doc any, opts validation.Options) (*validation.Result, error) {
	ctx, span := c.tracer.StartOp(ctx, "validate")
	defer span.End()

	res, err := c.gateway.Validate(ctx, doc, opts)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.notifyValidation(res)
	c.tracer.SetSuccess(span)
	return res, nil
}

// DeployOptions adjusts one deploy call.
type DeployOptions struct {
	// WorkflowID updates an existing workflow instead of creating one. When
	// empty, a document that carries its own id is also treated as an update.
	WorkflowID string
	// Goal, when present, feeds the router classification.
	Goal string
	// Validation adjusts the admission run.
	Validation validation.Options
}

// Deployment is the outcome of a successful deploy.
type Deployment struct {
	Workflow   *workflow.Workflow `json:"workflow"`
	Created    bool               `json:"created"`
	Validation *validation.Result `json:"validation"`
	Route      router.Decision    `json:"route"`
}

// Deploy validates doc and, when admission passes, creates or updates it on
// the engine. A refused admission returns a PolicyViolation error carrying
// the full validation verdict.
func (c *Coordinator) Deploy(ctx context.Context, doc any, opts DeployOptions) (*Deployment, error) {
	ctx, span := c.tracer.StartOp(ctx, "deploy")
	defer span.End()
	started := time.Now()

	decision := c.router.Decide(ctx, router.Input{Goal: opts.Goal, Workflow: doc})
	c.listener.OnRouteDecided(decision)

	res, err := c.gateway.Validate(ctx, doc, opts.Validation)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.notifyValidation(res)
	if !res.Admissible(c.cfg.Validation.Strict) {
		c.recordOutcome(ctx, decision.Path, false, started)
		return nil, c.fail(span, admissionError(res, c.cfg.Validation.Strict))
	}

	wf, report := workflow.Parse(doc)
	if !report.OK() {
		// Admission passed on this very document, so a parse failure here
		// means the input changed shape between the two reads.
		return nil, c.fail(span, &Error{
			Kind:    KindPolicyViolation,
			Message: "workflow document no longer parses to the canonical form",
		})
	}

	id := opts.WorkflowID
	if id == "" {
		id = wf.ID
	}
	var deployed *workflow.Workflow
	if id != "" {
		deployed, err = c.client.UpdateWorkflow(ctx, id, wf)
	} else {
		deployed, err = c.client.CreateWorkflow(ctx, wf)
	}
	if err != nil {
		c.recordOutcome(ctx, decision.Path, false, started)
		return nil, c.fail(span, err)
	}
	created := id == ""
	if created {
		c.listener.OnWorkflowCreated(deployed.ID, deployed.Name)
	}
	c.recordOutcome(ctx, decision.Path, true, started)
	c.logger.Info("workflow deployed",
		"id", deployed.ID, "name", deployed.Name, "created", created)
	c.tracer.SetSuccess(span)
	return &Deployment{
		Workflow:   deployed,
		Created:    created,
		Validation: res,
		Route:      decision,
	}, nil
}

// GetWorkflow fetches one workflow from the engine.
func (c *Coordinator) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	ctx, span := c.tracer.StartOp(ctx, "get_workflow")
	defer span.End()

	wf, err := c.client.GetWorkflow(ctx, id)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return wf, nil
}

// DeleteWorkflow removes a stored workflow from the engine.
func (c *Coordinator) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, span := c.tracer.StartOp(ctx, "delete_workflow")
	defer span.End()

	if err := c.client.DeleteWorkflow(ctx, id); err != nil {
		return c.fail(span, err)
	}
	c.listener.OnWorkflowDeleted(id)
	c.logger.Info("workflow deleted", "id", id)
	c.tracer.SetSuccess(span)
	return nil
}

// ListWorkflows returns one page of stored workflows.
func (c *Coordinator) ListWorkflows(ctx context.Context, opts n8n.ListWorkflowsOptions) (*n8n.WorkflowPage, error) {
	ctx, span := c.tracer.StartOp(ctx, "list_workflows")
	defer span.End()

	page, err := c.client.ListWorkflows(ctx, opts)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return page, nil
}

// SetWorkflowActive toggles a workflow's activation flag.
func (c *Coordinator) SetWorkflowActive(ctx context.Context, id string, active bool) (*workflow.Workflow, error) {
	ctx, span := c.tracer.StartOp(ctx, "set_active")
	defer span.End()

	wf, err := c.client.SetActive(ctx, id, active)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.logger.Info("workflow activation changed", "id", id, "active", active)
	c.tracer.SetSuccess(span)
	return wf, nil
}

// RunWorkflow triggers a manual execution of a stored workflow.
func (c *Coordinator) RunWorkflow(ctx context.Context, id string, data map[string]any) (*n8n.Execution, error) {
	ctx, span := c.tracer.StartOp(ctx, "run_workflow")
	defer span.End()

	exec, err := c.client.Run(ctx, id, data)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return exec, nil
}

// GetExecution fetches one execution, optionally with its run data.
func (c *Coordinator) GetExecution(ctx context.Context, id string, includeData bool) (*n8n.Execution, error) {
	ctx, span := c.tracer.StartOp(ctx, "get_execution")
	defer span.End()

	exec, err := c.client.GetExecution(ctx, id, includeData)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return exec, nil
}

// ListExecutions returns one page of executions.
func (c *Coordinator) ListExecutions(ctx context.Context, opts n8n.ListExecutionsOptions) (*n8n.ExecutionPage, error) {
	ctx, span := c.tracer.StartOp(ctx, "list_executions")
	defer span.End()

	page, err := c.client.ListExecutions(ctx, opts)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return page, nil
}

// StopExecution asks the engine to halt a running execution.
func (c *Coordinator) StopExecution(ctx context.Context, id string) (*n8n.Execution, error) {
	ctx, span := c.tracer.StartOp(ctx, "stop_execution")
	defer span.End()

	exec, err := c.client.StopExecution(ctx, id)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return exec, nil
}

// ResyncCatalog forces a catalog refresh now and reports the resulting
// snapshot statistics.
func (c *Coordinator) ResyncCatalog(ctx context.Context) (catalog.Stats, error) {
	ctx, span := c.tracer.StartOp(ctx, "resync_catalog")
	defer span.End()

	if err := c.catalog.Refresh(ctx); err != nil {
		return catalog.Stats{}, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return c.catalog.Stats(), nil
}

// SearchNodes queries the catalog snapshot. Before the first non-empty sync
// agents get an explicit CatalogUnavailable failure rather than a silently
// empty result.
func (c *Coordinator) SearchNodes(ctx context.Context, query string, limit int) ([]catalog.NodeType, error) {
	_, span := c.tracer.StartOp(ctx, "search_nodes")
	defer span.End()

	if !c.catalog.Ready() {
		return nil, c.fail(span, catalogNotReadyError())
	}
	hits := c.catalog.Search(query, limit)
	c.tracer.SetSuccess(span)
	return hits, nil
}

// NodeInfo returns the catalog entry for one node type identifier.
func (c *Coordinator) NodeInfo(ctx context.Context, typeID string) (catalog.NodeType, error) {
	_, span := c.tracer.StartOp(ctx, "node_info")
	defer span.End()

	if !c.catalog.Ready() {
		return catalog.NodeType{}, c.fail(span, catalogNotReadyError())
	}
	nt, ok := c.catalog.Lookup(typeID)
	if !ok {
		return catalog.NodeType{}, c.fail(span, &Error{
			Kind:    n8n.KindNotFound,
			Message: fmt.Sprintf("node type %q is not in the catalog", typeID),
			RecoverySteps: []string{
				"use search_nodes to find the right identifier",
				"run resync_catalog if the type was installed recently",
			},
		})
	}
	c.tracer.SetSuccess(span)
	return nt, nil
}

// CatalogStats reports the current snapshot summary.
func (c *Coordinator) CatalogStats(ctx context.Context) catalog.Stats {
	_, span := c.tracer.StartOp(ctx, "catalog_stats")
	defer span.End()
	c.tracer.SetSuccess(span)
	return c.catalog.Stats()
}

// RouterStats aggregates the recorded execution outcomes per path.
func (c *Coordinator) RouterStats(ctx context.Context) (*router.Stats, error) {
	ctx, span := c.tracer.StartOp(ctx, "router_stats")
	defer span.End()

	stats, err := c.router.Stats(ctx)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return stats, nil
}

// MemoryQuery reads entries from the shared store by key pattern.
func (c *Coordinator) MemoryQuery(ctx context.Context, q memstore.Query) ([]memstore.Entry, error) {
	ctx, span := c.tracer.StartOp(ctx, "memory_query")
	defer span.End()

	entries, err := c.store.Query(ctx, q)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return entries, nil
}

// EngineHealth probes the engine.
func (c *Coordinator) EngineHealth(ctx context.Context) (*n8n.Health, error) {
	ctx, span := c.tracer.StartOp(ctx, "engine_health")
	defer span.End()

	health, err := c.client.Health(ctx)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.tracer.SetSuccess(span)
	return health, nil
}
