// Package advisor defines the semantic-analysis capability the validation
// gateway consumes. The capability is optional: when absent, semantic checks
// are skipped with a warning, and its failures never block admission.
package advisor

import "context"

// NodeSummary is one node in the compact workflow reduction.
type NodeSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// ParameterCount lets heuristics spot unconfigured nodes without
	// shipping the full parameter payload.
	ParameterCount int `json:"parameterCount"`
}

// Edge is one connection in the reduction.
type Edge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Channel string `json:"channel"`
}

// WorkflowSummary is the compact shape handed to the capability: workflow
// name, nodes in document order, and the edge list.
type WorkflowSummary struct {
	Name  string        `json:"name"`
	Nodes []NodeSummary `json:"nodes"`
	Edges []Edge        `json:"edges"`
}

// Severity grades an issue. All severities surface as warnings during
// validation; the grade is advisory.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is one soft finding about workflow logic.
type Issue struct {
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Path       string   `json:"path,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Analysis is the capability's verdict on a workflow summary.
type Analysis struct {
	Valid       bool     `json:"valid"`
	Confidence  float64  `json:"confidence"`
	Issues      []Issue  `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// Advisor is the required operation.
type Advisor interface {
	AnalyzeWorkflowLogic(ctx context.Context, summary WorkflowSummary) (*Analysis, error)
}

// Intent is a parsed automation goal.
type Intent struct {
	Goal     string   `json:"goal"`
	Triggers []string `json:"triggers,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

// IntentParser is an optional extension for turning free text into a
// structured goal.
type IntentParser interface {
	ParseIntent(ctx context.Context, text string) (*Intent, error)
}

// NodeRecommender is an optional extension suggesting node types for a task
// from the currently available set.
type NodeRecommender interface {
	RecommendNodes(ctx context.Context, task string, available []string) ([]string, error)
}

// FixSuggester is an optional extension proposing fixes for validation
// errors.
type FixSuggester interface {
	SuggestFixes(ctx context.Context, errors []string) ([]string, error)
}
