package llm

import (
	"context"
	"fmt"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// Heuristic is a no-network advisor used when no API key is configured. It
// flags trigger nodes with no parameters and terminal nodes that cannot be
// reached from any trigger. Deterministic, so also handy in tests.
type Heuristic struct{}

var _ advisor.Advisor = (*Heuristic)(nil)

// NewHeuristic returns the fallback advisor.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// AnalyzeWorkflowLogic runs the structural heuristics.
func (h *Heuristic) AnalyzeWorkflowLogic(_ context.Context, summary advisor.WorkflowSummary) (*advisor.Analysis, error) {
	var issues []advisor.Issue

	triggers := map[string]bool{}
	for _, node := range summary.Nodes {
		if !workflow.IsTriggerType(node.Type) {
			continue
		}
		triggers[node.Name] = true
		if node.ParameterCount == 0 {
			issues = append(issues, advisor.Issue{
				Severity:   advisor.SeverityWarning,
				Message:    fmt.Sprintf("trigger %q has no parameters configured", node.Name),
				Path:       "nodes." + node.Name,
				Suggestion: "configure the trigger's event, path, or schedule",
			})
		}
	}

	if len(triggers) > 0 {
		for _, node := range summary.Nodes {
			if !reachable(summary, triggers, node.Name) && !triggers[node.Name] && terminal(summary, node.Name) {
				issues = append(issues, advisor.Issue{
					Severity:   advisor.SeverityWarning,
					Message:    fmt.Sprintf("node %q cannot be reached from any trigger", node.Name),
					Path:       "nodes." + node.Name,
					Suggestion: "connect it downstream of a trigger or remove it",
				})
			}
		}
	}

	return &advisor.Analysis{
		Valid:      true,
		Confidence: 0.6,
		Issues:     issues,
		Summary:    fmt.Sprintf("heuristic scan: %d nodes, %d findings", len(summary.Nodes), len(issues)),
	}, nil
}

// reachable reports whether name is reachable from any trigger by walking
// the edge list forward.
func reachable(summary advisor.WorkflowSummary, triggers map[string]bool, name string) bool {
	if triggers[name] {
		return true
	}
	next := map[string][]string{}
	for _, e := range summary.Edges {
		next[e.Source] = append(next[e.Source], e.Target)
	}
	seen := map[string]bool{}
	queue := make([]string, 0, len(triggers))
	for t := range triggers {
		queue = append(queue, t)
		seen[t] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, target := range next[cur] {
			if target == name {
				return true
			}
			if !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
	}
	return false
}

// terminal reports whether name has no outgoing edges.
func terminal(summary advisor.WorkflowSummary, name string) bool {
	for _, e := range summary.Edges {
		if e.Source == name {
			return false
		}
	}
	return true
}
