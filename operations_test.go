package copilot

import (
	"context"
	"strings"
	"testing"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/config"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

func validDoc() map[string]any {
	return map[string]any{
		"name": "greeter",
		"nodes": []any{
			map[string]any{
				"name": "Hook", "type": "pkg-base.webhook", "typeVersion": 1,
				"position": []any{0.0, 0.0}, "parameters": map[string]any{"path": "in"},
			},
			map[string]any{
				"name": "Send", "type": "pkg-base.httpRequest", "typeVersion": 1,
				"position": []any{200.0, 0.0}, "parameters": map[string]any{"url": "https://example.test"},
			},
		},
		"connections": map[string]any{
			"Hook": map[string]any{
				"main": []any{[]any{
					map[string]any{"node": "Send", "type": "main", "index": 0},
				}},
			},
		},
	}
}

func unknownTypeDoc() map[string]any {
	doc := validDoc()
	doc["nodes"] = []any{
		map[string]any{
			"name": "Hook", "type": "pkg-base.webhook", "typeVersion": 1,
			"position": []any{0.0, 0.0}, "parameters": map[string]any{"path": "in"},
		},
		map[string]any{
			"name": "Send", "type": "pkg-base.does-not-exist", "typeVersion": 1,
			"position": []any{200.0, 0.0}, "parameters": map[string]any{"x": 1},
		},
	}
	return doc
}

func orphanDoc() map[string]any {
	return map[string]any{
		"name": "loner",
		"nodes": []any{
			map[string]any{
				"name": "Hook", "type": "pkg-base.webhook", "typeVersion": 1,
				"position": []any{0.0, 0.0}, "parameters": map[string]any{"path": "in"},
			},
			map[string]any{
				"name": "Stray", "type": "pkg-base.set", "typeVersion": 1,
				"position": []any{200.0, 0.0}, "parameters": map[string]any{"x": 1},
			},
		},
		"connections": map[string]any{},
	}
}

func TestValidateReturnsVerdict(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))
	ctx := context.Background()

	res, err := c.Validate(ctx, validDoc(), validation.Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}

	// An invalid workflow is still a successful validate call.
	res, err = c.Validate(ctx, unknownTypeDoc(), validation.Options{})
	if err != nil {
		t.Fatalf("Validate(unknown type): %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid verdict")
	}
	if res.FailedLayer != validation.LayerNodeExistence {
		t.Errorf("FailedLayer = %q, want %q", res.FailedLayer, validation.LayerNodeExistence)
	}

	got := rec.snapshot()
	if got.passed != 1 || got.failed != 1 {
		t.Errorf("listener passed/failed = %d/%d, want 1/1", got.passed, got.failed)
	}
}

func TestValidateUsesResultCache(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	ctx := context.Background()

	first, err := c.Validate(ctx, validDoc(), validation.Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if first.Cached {
		t.Error("first run must not be cached")
	}
	second, err := c.Validate(ctx, validDoc(), validation.Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !second.Cached {
		t.Error("second run should come from the shared-memory cache")
	}
}

func TestDeployCreates(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))
	ctx := context.Background()

	dep, err := c.Deploy(ctx, validDoc(), DeployOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !dep.Created {
		t.Error("expected a create, not an update")
	}
	if dep.Workflow.ID != "wf-1" {
		t.Errorf("deployed ID = %q, want wf-1", dep.Workflow.ID)
	}
	if dep.Validation == nil || !dep.Validation.Valid {
		t.Error("deployment must carry the passing verdict")
	}
	if dep.Route.Path != router.PathHandler {
		t.Errorf("route path = %q, want %q", dep.Route.Path, router.PathHandler)
	}

	creates, _, _ := f.counts()
	if creates != 1 {
		t.Errorf("engine creates = %d, want 1", creates)
	}

	got := rec.snapshot()
	if len(got.created) != 1 || got.created[0] != "wf-1" {
		t.Errorf("OnWorkflowCreated ids = %v, want [wf-1]", got.created)
	}
	if len(got.decisions) != 1 || got.decisions[0].Path != router.PathHandler {
		t.Errorf("decisions = %v", got.decisions)
	}

	stats, err := c.RouterStats(ctx)
	if err != nil {
		t.Fatalf("RouterStats: %v", err)
	}
	if stats.TotalExecutions != 1 {
		t.Errorf("TotalExecutions = %d, want 1", stats.TotalExecutions)
	}
	if hs := stats.Paths[router.PathHandler]; hs.Executions != 1 || hs.SuccessRate != 1 {
		t.Errorf("handler stats = %+v", hs)
	}
}

func TestDeployRefusedByValidation(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))
	ctx := context.Background()

	_, err := c.Deploy(ctx, unknownTypeDoc(), DeployOptions{})
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != KindPolicyViolation {
		t.Errorf("Kind = %q, want %q", opErr.Kind, KindPolicyViolation)
	}
	if opErr.Validation == nil || opErr.Validation.FailedLayer != validation.LayerNodeExistence {
		t.Errorf("refusal must carry the verdict, got %+v", opErr.Validation)
	}
	if opErr.Retryable {
		t.Error("admission refusal is not retryable")
	}

	creates, _, _ := f.counts()
	if creates != 0 {
		t.Errorf("engine creates = %d, want 0", creates)
	}

	stats, err := c.RouterStats(ctx)
	if err != nil {
		t.Fatalf("RouterStats: %v", err)
	}
	if hs := stats.Paths[router.PathHandler]; hs.Executions != 1 || hs.SuccessRate != 0 {
		t.Errorf("handler stats = %+v, want one failed execution", hs)
	}
	if got := rec.snapshot(); got.failed != 1 {
		t.Errorf("OnValidationFailed calls = %d, want 1", got.failed)
	}
}

func TestDeployStrictModeRefusesWarnings(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, func(cfg *config.Config) {
		cfg.Validation.Strict = true
	})

	_, err := c.Deploy(context.Background(), orphanDoc(), DeployOptions{})
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != KindPolicyViolation {
		t.Errorf("Kind = %q, want %q", opErr.Kind, KindPolicyViolation)
	}
	if !strings.Contains(opErr.Message, "strict mode") {
		t.Errorf("message = %q, want strict-mode refusal", opErr.Message)
	}
	if opErr.Validation == nil || !opErr.Validation.Valid {
		t.Error("strict refusal still carries a valid verdict with warnings")
	}
}

func TestDeployUpdates(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))
	f.seedWorkflow("wf-7", map[string]any{"name": "old"})

	dep, err := c.Deploy(context.Background(), validDoc(), DeployOptions{WorkflowID: "wf-7"})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if dep.Created {
		t.Error("expected an update, not a create")
	}
	if dep.Workflow.ID != "wf-7" {
		t.Errorf("deployed ID = %q, want wf-7", dep.Workflow.ID)
	}

	creates, updates, _ := f.counts()
	if creates != 0 || updates != 1 {
		t.Errorf("creates/updates = %d/%d, want 0/1", creates, updates)
	}
	if got := rec.snapshot(); len(got.created) != 0 {
		t.Errorf("OnWorkflowCreated must not fire on update, got %v", got.created)
	}
}

func TestDeployEngineRejection(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	f.setRejectCreate("bad parameter")

	_, err := c.Deploy(context.Background(), validDoc(), DeployOptions{})
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != n8n.KindValidationBadReq {
		t.Errorf("Kind = %q, want %q", opErr.Kind, n8n.KindValidationBadReq)
	}
	if !strings.Contains(opErr.Message, "bad parameter") {
		t.Errorf("message = %q, want the engine's own text", opErr.Message)
	}
	if opErr.Retryable {
		t.Error("a 400 is not retryable")
	}
}

func TestDeployWithDryRun(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, func(cfg *config.Config) {
		cfg.Validation.DryRun = true
	})

	dep, err := c.Deploy(context.Background(), validDoc(), DeployOptions{})
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if dep.Validation.DryRunID == "" {
		t.Error("dry-run verdict must carry the temporary workflow id")
	}

	// One temporary create plus the real one; the temporary is cleaned up.
	creates, _, deletes := f.counts()
	if creates != 2 || deletes != 1 {
		t.Errorf("creates/deletes = %d/%d, want 2/1", creates, deletes)
	}
	if dep.Workflow.ID != "wf-2" {
		t.Errorf("deployed ID = %q, want wf-2", dep.Workflow.ID)
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)

	_, err := c.GetWorkflow(context.Background(), "missing")
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != n8n.KindNotFound {
		t.Errorf("Kind = %q, want %q", opErr.Kind, n8n.KindNotFound)
	}
	if len(opErr.RecoverySteps) == 0 {
		t.Error("transport failures carry recovery steps")
	}
}

func TestDeleteWorkflowNotifiesListener(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))
	f.seedWorkflow("wf-3", map[string]any{"name": "old"})

	if err := c.DeleteWorkflow(context.Background(), "wf-3"); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	_, _, deletes := f.counts()
	if deletes != 1 {
		t.Errorf("deletes = %d, want 1", deletes)
	}
	if got := rec.snapshot(); len(got.deleted) != 1 || got.deleted[0] != "wf-3" {
		t.Errorf("OnWorkflowDeleted ids = %v, want [wf-3]", got.deleted)
	}
}

func TestListWorkflows(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	f.seedWorkflow("wf-1", map[string]any{"name": "a"})
	f.seedWorkflow("wf-2", map[string]any{"name": "b"})

	page, err := c.ListWorkflows(context.Background(), n8n.ListWorkflowsOptions{})
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(page.Data) != 2 {
		t.Errorf("page size = %d, want 2", len(page.Data))
	}
}

func TestSetWorkflowActive(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	f.seedWorkflow("wf-4", map[string]any{"name": "toggler", "active": false})

	wf, err := c.SetWorkflowActive(context.Background(), "wf-4", true)
	if err != nil {
		t.Fatalf("SetWorkflowActive: %v", err)
	}
	if !wf.Active {
		t.Error("workflow should report active")
	}
}

func TestExecutionLifecycle(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	ctx := context.Background()

	exec, err := c.RunWorkflow(ctx, "wf-1", map[string]any{"seed": 1})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if exec.ID != "exec-1" || exec.Status != "running" {
		t.Errorf("execution = %+v", exec)
	}

	got, err := c.GetExecution(ctx, "exec-1", false)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != "success" {
		t.Errorf("status = %q, want success", got.Status)
	}

	page, err := c.ListExecutions(ctx, n8n.ListExecutionsOptions{})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(page.Data) != 1 {
		t.Errorf("executions = %d, want 1", len(page.Data))
	}

	stopped, err := c.StopExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("StopExecution: %v", err)
	}
	if stopped.Status != "canceled" {
		t.Errorf("stopped status = %q, want canceled", stopped.Status)
	}
}

func TestResyncCatalogPicksUpNewTypes(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)

	types := append(defaultNodeTypes(), n8n.NodeTypeDescription{
		Name: "pkg-base.newThing", DisplayName: "New Thing",
	})
	f.setNodeTypes(types)

	stats, err := c.ResyncCatalog(context.Background())
	if err != nil {
		t.Fatalf("ResyncCatalog: %v", err)
	}
	if stats.TotalNodes != len(types) {
		t.Errorf("TotalNodes = %d, want %d", stats.TotalNodes, len(types))
	}
}

func TestSearchNodesBeforeSync(t *testing.T) {
	f := newFakeEngine(t)
	c := newCoordinator(t, f, nil)

	_, err := c.SearchNodes(context.Background(), "webhook", 5)
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != KindCatalogUnavailable {
		t.Errorf("Kind = %q, want %q", opErr.Kind, KindCatalogUnavailable)
	}
	if !opErr.Retryable {
		t.Error("an empty catalog is retryable after a resync")
	}
}

func TestSearchAndNodeInfo(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	ctx := context.Background()

	hits, err := c.SearchNodes(ctx, "webhook", 5)
	if err != nil {
		t.Fatalf("SearchNodes: %v", err)
	}
	if len(hits) == 0 || hits[0].Name != "pkg-base.webhook" {
		t.Errorf("hits = %v", hits)
	}

	nt, err := c.NodeInfo(ctx, "pkg-base.webhook")
	if err != nil {
		t.Fatalf("NodeInfo: %v", err)
	}
	if !nt.IsTrigger {
		t.Error("webhook should classify as a trigger")
	}

	_, err = c.NodeInfo(ctx, "pkg-base.nope")
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != n8n.KindNotFound {
		t.Errorf("Kind = %q, want %q", opErr.Kind, n8n.KindNotFound)
	}
	if len(opErr.RecoverySteps) == 0 {
		t.Error("missing-type failures should point at search and resync")
	}
}

func TestMemoryQueryFindsRouterMetrics(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)
	ctx := context.Background()

	if _, err := c.Deploy(ctx, validDoc(), DeployOptions{}); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	entries, err := c.MemoryQuery(ctx, memstore.Query{Pattern: "execution-metrics:%"})
	if err != nil {
		t.Fatalf("MemoryQuery: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Owner != "smart-router" {
		t.Errorf("owner = %q, want smart-router", entries[0].Owner)
	}
}

func TestMemoryQueryBadPattern(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)

	_, err := c.MemoryQuery(context.Background(), memstore.Query{Pattern: "a%b"})
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != n8n.KindValidationBadReq {
		t.Errorf("Kind = %q, want %q", opErr.Kind, n8n.KindValidationBadReq)
	}
}

func TestEngineHealth(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)

	health, err := c.EngineHealth(context.Background())
	if err != nil {
		t.Fatalf("EngineHealth: %v", err)
	}
	if !health.OK || health.Version != "1.99.1" {
		t.Errorf("health = %+v", health)
	}
}

func TestOperationsHonorCancelledContext(t *testing.T) {
	f := newFakeEngine(t)
	c := newConnected(t, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.EngineHealth(ctx)
	opErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if opErr.Kind != KindDeadlineExceeded {
		t.Errorf("Kind = %q, want %q", opErr.Kind, KindDeadlineExceeded)
	}
	if !opErr.Retryable {
		t.Error("deadline failures are retryable")
	}
}
