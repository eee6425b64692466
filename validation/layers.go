package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// sentinelTypes pass node-existence checks without a catalog entry; engines
// accept them regardless of which packages are installed.
var sentinelTypes = map[string]bool{
	"pkg-base.noOp":  true,
	"pkg-base.start": true,
}

// checkPolicy rejects node types the restriction filter refuses. It works on
// the lenient reduction so disallowed types are caught even in documents that
// would not survive schema parsing.
func (g *Gateway) checkPolicy(red *workflow.Reduction) []Issue {
	if red == nil {
		// Not an object at all; the schema layer reports that properly.
		return nil
	}
	policy := g.catalog.Policy()
	var errs []Issue
	for _, ref := range red.Nodes {
		if ref.Type == "" {
			continue
		}
		decision := policy.Check(ref.Type)
		if decision.Allowed {
			continue
		}
		path := fmt.Sprintf("nodes[%d].type", ref.Index)
		if ref.Name != "" {
			path = fmt.Sprintf("nodes.%s.type", ref.Name)
		}
		errs = append(errs, Issue{
			Layer:      LayerNodeRestrictions,
			Code:       CodeNodeNotAllowed,
			Message:    decision.Reason,
			Path:       path,
			Suggestion: suggestAlternatives(decision.Alternatives),
		})
	}
	return errs
}

func suggestAlternatives(alternatives []string) string {
	if len(alternatives) == 0 {
		return ""
	}
	return "use an official node instead: " + strings.Join(alternatives, ", ")
}

// checkSchema converts the document to canonical form. Structural problems
// block; the parser's advisory findings pass through as warnings.
func (g *Gateway) checkSchema(doc any) (*workflow.Workflow, []Issue, []Issue) {
	wf, report := workflow.Parse(doc)
	var warns []Issue
	for _, p := range report.Warnings {
		warns = append(warns, Issue{
			Layer:   LayerSchema,
			Code:    CodeSchemaWarning,
			Message: p.Message,
			Path:    p.Path,
		})
	}
	if !report.OK() {
		errs := make([]Issue, 0, len(report.Problems))
		for _, p := range report.Problems {
			errs = append(errs, Issue{
				Layer:   LayerSchema,
				Code:    CodeSchemaError,
				Message: p.Message,
				Path:    p.Path,
			})
		}
		return nil, errs, warns
	}
	return wf, nil, warns
}

// checkExistence resolves every node type against the catalog snapshot. An
// empty snapshot downgrades the whole layer to a warning.
func (g *Gateway) checkExistence(wf *workflow.Workflow) ([]Issue, []Issue) {
	if !g.catalog.Ready() {
		return nil, []Issue{{
			Layer:   LayerNodeExistence,
			Code:    CodeCatalogNotReady,
			Message: "node catalog is empty; node types were not verified against the engine",
		}}
	}
	var errs []Issue
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if sentinelTypes[node.Type] {
			continue
		}
		entry, ok := g.catalog.Lookup(node.Type)
		if !ok {
			errs = append(errs, Issue{
				Layer:      LayerNodeExistence,
				Code:       CodeNodeNotFound,
				Message:    fmt.Sprintf("unknown node type %q", node.Type),
				Path:       fmt.Sprintf("nodes.%s.type", node.Name),
				Suggestion: g.suggestTypes(node.Type),
			})
			continue
		}
		if node.TypeVersion != 0 && !entry.SupportsVersion(node.TypeVersion) {
			errs = append(errs, Issue{
				Layer: LayerNodeExistence,
				Code:  CodeNodeNotFound,
				Message: fmt.Sprintf("node type %q has no version %v (published: %v)",
					node.Type, node.TypeVersion, entry.Versions),
				Path: fmt.Sprintf("nodes.%s.typeVersion", node.Name),
			})
		}
	}
	return errs, nil
}

// suggestTypes searches the catalog for lookalikes of an unknown identifier
// using its last dotted segment.
func (g *Gateway) suggestTypes(typeID string) string {
	matches := g.catalog.Search(workflow.ShortName(typeID), maxSuggestions)
	if len(matches) == 0 {
		return ""
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Name
	}
	return "similar node types: " + strings.Join(names, ", ")
}

// checkConnections verifies that every edge endpoint names a node in the
// document. With a sound edge set, nodes outside it that are not trigger-like
// are flagged as orphans.
func (g *Gateway) checkConnections(wf *workflow.Workflow) ([]Issue, []Issue) {
	names := make(map[string]bool, len(wf.Nodes))
	for i := range wf.Nodes {
		names[wf.Nodes[i].Name] = true
	}

	var errs []Issue
	wired := make(map[string]bool)
	for _, src := range sortedKeys(wf.Connections) {
		channels := wf.Connections[src]
		if !names[src] {
			errs = append(errs, Issue{
				Layer:   LayerConnections,
				Code:    CodeConnectionSourceMissing,
				Message: fmt.Sprintf("connection source %q is not a node in this workflow", src),
				Path:    "connections." + src,
			})
		}
		for _, channel := range sortedKeys(channels) {
			for slot, endpoints := range channels[channel] {
				for _, ep := range endpoints {
					if !names[ep.Node] {
						errs = append(errs, Issue{
							Layer:   LayerConnections,
							Code:    CodeConnectionTargetMissing,
							Message: fmt.Sprintf("connection target %q is not a node in this workflow", ep.Node),
							Path:    fmt.Sprintf("connections.%s.%s[%d]", src, channel, slot),
						})
						continue
					}
					if names[src] {
						wired[src] = true
						wired[ep.Node] = true
					}
				}
			}
		}
	}
	if len(errs) > 0 {
		// Orphan analysis over a broken edge set would be guesswork.
		return errs, nil
	}

	var warns []Issue
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if wired[node.Name] || g.isTriggerLike(node.Type) {
			continue
		}
		warns = append(warns, Issue{
			Layer:      LayerConnections,
			Code:       CodeOrphanNode,
			Message:    fmt.Sprintf("node %q is not connected to anything", node.Name),
			Path:       "nodes." + node.Name,
			Suggestion: "connect it to the workflow or remove it",
		})
	}
	return nil, warns
}

// isTriggerLike prefers the catalog's group tags over the name heuristic.
func (g *Gateway) isTriggerLike(typeID string) bool {
	if entry, ok := g.catalog.Lookup(typeID); ok {
		return entry.IsTrigger
	}
	return workflow.IsTriggerType(typeID)
}

// checkCredentials verifies that every required credential slot declared by a
// node's type carries a non-empty reference. Supplied credentials of a type
// the engine never reported are soft findings, and only when credential types
// were fetched at all.
func (g *Gateway) checkCredentials(wf *workflow.Workflow) ([]Issue, []Issue) {
	var errs, warns []Issue
	checkTypes := g.catalog.HasCredentialTypes()
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if entry, ok := g.catalog.Lookup(node.Type); ok {
			for _, slot := range entry.Credentials {
				if !slot.Required {
					continue
				}
				ref, present := node.Credentials[slot.Name]
				if present && !ref.Empty() {
					continue
				}
				errs = append(errs, Issue{
					Layer:      LayerCredentials,
					Code:       CodeCredentialMissing,
					Message:    fmt.Sprintf("node %q requires a %q credential", node.Name, slot.Name),
					Path:       fmt.Sprintf("nodes.%s.credentials.%s", node.Name, slot.Name),
					Suggestion: fmt.Sprintf("create a %s credential in the engine and reference it on this node", slot.Name),
				})
			}
		}
		if !checkTypes {
			continue
		}
		for _, slotName := range sortedKeys(node.Credentials) {
			if _, known := g.catalog.CredentialType(slotName); !known {
				warns = append(warns, Issue{
					Layer:   LayerCredentials,
					Code:    CodeCredentialTypeUnknown,
					Message: fmt.Sprintf("credential type %q is not known to the engine", slotName),
					Path:    fmt.Sprintf("nodes.%s.credentials.%s", node.Name, slotName),
				})
			}
		}
	}
	return errs, warns
}

// checkSemantic hands the workflow summary to the advisor. Its findings are
// always warnings; an advisor failure becomes a warning too and the layer
// still passes.
func (g *Gateway) checkSemantic(ctx context.Context, wf *workflow.Workflow) []Issue {
	ctx, cancel := context.WithTimeout(ctx, g.semanticDeadline)
	defer cancel()

	analysis, err := g.advisor.AnalyzeWorkflowLogic(ctx, summarize(wf))
	if err != nil {
		g.logger.Warn("semantic advisor failed, continuing without it", "error", err)
		return []Issue{{
			Layer:   LayerSemantic,
			Code:    CodeSemanticError,
			Message: "semantic analysis unavailable: " + err.Error(),
		}}
	}
	warns := make([]Issue, 0, len(analysis.Issues))
	for _, issue := range analysis.Issues {
		warns = append(warns, Issue{
			Layer:      LayerSemantic,
			Code:       CodeSemanticIssue,
			Message:    issue.Message,
			Path:       issue.Path,
			Suggestion: issue.Suggestion,
		})
	}
	return warns
}

// summarize reduces the canonical form to the compact shape the advisor
// receives: names, types, parameter counts, and the flattened edge list.
func summarize(wf *workflow.Workflow) advisor.WorkflowSummary {
	s := advisor.WorkflowSummary{
		Name:  wf.Name,
		Nodes: make([]advisor.NodeSummary, 0, len(wf.Nodes)),
	}
	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		s.Nodes = append(s.Nodes, advisor.NodeSummary{
			Name:           node.Name,
			Type:           node.Type,
			ParameterCount: len(node.Parameters),
		})
	}
	for _, src := range sortedKeys(wf.Connections) {
		channels := wf.Connections[src]
		for _, channel := range sortedKeys(channels) {
			for _, endpoints := range channels[channel] {
				for _, ep := range endpoints {
					s.Edges = append(s.Edges, advisor.Edge{
						Source:  src,
						Target:  ep.Node,
						Channel: channel,
					})
				}
			}
		}
	}
	return s
}

// checkDryRun posts a disposable copy of the workflow to the engine and
// deletes it again. The engine's own rejection text carries through. Cleanup
// uses a detached context so it runs even when the caller is gone.
func (g *Gateway) checkDryRun(ctx context.Context, wf *workflow.Workflow) (errs, warns []Issue, dryRunID string) {
	ctx, cancel := context.WithTimeout(ctx, g.dryRunDeadline)
	defer cancel()

	temp := wf.Clone()
	temp.ID = ""
	temp.VersionID = ""
	temp.Active = false
	temp.Name = fmt.Sprintf("%s [dry-run %s]", wf.Name, uuid.NewString())

	created, err := g.engine.CreateWorkflow(ctx, temp)
	if err != nil {
		if apiErr, ok := n8n.AsAPIError(err); ok && apiErr.Status >= 400 {
			return []Issue{{
				Layer:   LayerDryRun,
				Code:    CodeN8nRejected,
				Message: "engine rejected the workflow: " + apiErr.Message,
			}}, nil, ""
		}
		return []Issue{{
			Layer:   LayerDryRun,
			Code:    CodeDryRunError,
			Message: "dry-run did not complete: " + err.Error(),
		}}, nil, ""
	}

	cleanupCtx, cancelCleanup := context.WithTimeout(context.WithoutCancel(ctx), cleanupGrace)
	defer cancelCleanup()
	if err := g.engine.DeleteWorkflow(cleanupCtx, created.ID); err != nil {
		g.logger.Warn("dry-run cleanup failed, temporary workflow left behind",
			"id", created.ID, "error", err)
		warns = append(warns, Issue{
			Layer:      LayerDryRun,
			Code:       CodeCleanupFailed,
			Message:    fmt.Sprintf("temporary workflow %s could not be deleted: %v", created.ID, err),
			Suggestion: "delete it manually in the engine",
		})
	}
	return nil, warns, created.ID
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
