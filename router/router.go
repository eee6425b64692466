// Package router selects the execution path for incoming co-pilot requests.
// Inputs carrying only an automation goal go to the agent; complete workflow
// documents go straight to the handler. When both are present the router
// consults recorded execution outcomes and picks the path with the better
// success rate. The router never executes anything itself; callers act on
// the decision.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
)

// Execution paths.
const (
	PathAgent   = "agent"
	PathHandler = "handler"
)

// Input classifications.
const (
	ClassGoalOnly     = "goal-only"
	ClassWorkflowOnly = "workflow-only"
	ClassBoth         = "both"
	ClassUnknown      = "unknown"
)

const (
	defaultMinHistory = 5
	defaultRetention  = 30 * 24 * time.Hour

	metricPrefix = "execution-metrics:"
	metricOwner  = "smart-router"
)

// Input is one routing request. Force, when set to a path name, bypasses
// classification entirely.
type Input struct {
	Goal     string
	Workflow any
	Force    string
}

// Decision is the selected route. AlternativePath carries the runner-up so
// callers can retry on the other path after a failure.
type Decision struct {
	Path            string  `json:"path"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
	AlternativePath string  `json:"alternativePath,omitempty"`
	Classification  string  `json:"classification"`
}

// Metric is one recorded execution outcome.
type Metric struct {
	Path      string    `json:"path"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latencyMs"`
	At        time.Time `json:"at"`
}

// PathStats aggregates the recorded outcomes of one path.
type PathStats struct {
	Executions   int     `json:"executions"`
	SuccessRate  float64 `json:"successRate"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// Stats is the router's aggregate view of recorded executions.
type Stats struct {
	TotalExecutions int                  `json:"totalExecutions"`
	Paths           map[string]PathStats `json:"paths"`
	Preference      string               `json:"preference"`
}

// Router is the adaptive path selector. Safe for concurrent use; all state
// lives in the shared store.
type Router struct {
	store  memstore.Store
	logger *slog.Logger

	minHistory int
	retention  time.Duration
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithMinHistory sets how many recorded executions must exist before the
// router trusts success rates over the agent default.
func WithMinHistory(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.minHistory = n
		}
	}
}

// WithRetention bounds how long recorded metrics live in the store.
func WithRetention(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewRouter builds a path selector over the shared store. A nil store is
// tolerated: decisions still follow the classification rules, with no
// history to learn from.
func NewRouter(store memstore.Store, opts ...Option) *Router {
	r := &Router{
		store:      store,
		logger:     slog.Default(),
		minHistory: defaultMinHistory,
		retention:  defaultRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decide picks the execution path for in. It never fails: a store that
// cannot be read simply counts as empty history.
func (r *Router) Decide(ctx context.Context, in Input) Decision {
	class := classify(in)

	if in.Force != "" {
		if in.Force == PathAgent || in.Force == PathHandler {
			return Decision{
				Path:           in.Force,
				Confidence:     1.0,
				Reason:         "forced by caller",
				Classification: class,
			}
		}
		r.logger.Warn("ignoring unknown forced path", "force", in.Force)
	}

	switch class {
	case ClassGoalOnly:
		return Decision{
			Path:           PathAgent,
			Confidence:     1.0,
			Reason:         "goal requires agent planning",
			Classification: class,
		}
	case ClassWorkflowOnly:
		return Decision{
			Path:           PathHandler,
			Confidence:     1.0,
			Reason:         "complete workflow deploys directly",
			Classification: class,
		}
	case ClassUnknown:
		return Decision{
			Path:           PathAgent,
			Confidence:     0.3,
			Reason:         "nothing to classify; defaulting to the agent",
			Classification: class,
		}
	}

	agent, handler, total := r.history(ctx)
	if total < r.minHistory {
		return Decision{
			Path:            PathAgent,
			Confidence:      0.5,
			Reason:          "insufficient history",
			AlternativePath: PathHandler,
			Classification:  class,
		}
	}

	agentRate := agent.SuccessRate
	handlerRate := handler.SuccessRate
	delta := agentRate - handlerRate
	if delta < 0 {
		delta = -delta
	}
	confidence := delta + 0.5
	if confidence > 1.0 {
		confidence = 1.0
	}

	// Ties go to the agent, which can recover from more input shapes.
	path, alternative := PathAgent, PathHandler
	if handlerRate > agentRate {
		path, alternative = PathHandler, PathAgent
	}
	return Decision{
		Path:       path,
		Confidence: confidence,
		Reason: fmt.Sprintf("agent succeeds %.0f%% vs handler %.0f%% over %d executions",
			agentRate*100, handlerRate*100, total),
		AlternativePath: alternative,
		Classification:  class,
	}
}

// Record stores one completed execution outcome. A zero At is stamped with
// the current time.
func (r *Router) Record(ctx context.Context, m Metric) error {
	if m.Path != PathAgent && m.Path != PathHandler {
		return fmt.Errorf("router: unknown path %q", m.Path)
	}
	if r.store == nil {
		return nil
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	key := fmt.Sprintf("%s%d:%s", metricPrefix, m.At.UnixNano(), uuid.NewString())
	if err := r.store.Set(ctx, key, m, metricOwner, r.retention); err != nil {
		return fmt.Errorf("router: record metric: %w", err)
	}
	return nil
}

// Stats aggregates every retained metric.
func (r *Router) Stats(ctx context.Context) (*Stats, error) {
	metrics, err := r.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("router: load metrics: %w", err)
	}
	agent := aggregate(metrics, PathAgent)
	handler := aggregate(metrics, PathHandler)

	preference := "equal"
	switch {
	case agent.SuccessRate > handler.SuccessRate:
		preference = PathAgent
	case handler.SuccessRate > agent.SuccessRate:
		preference = PathHandler
	}
	return &Stats{
		TotalExecutions: agent.Executions + handler.Executions,
		Paths: map[string]PathStats{
			PathAgent:   agent,
			PathHandler: handler,
		},
		Preference: preference,
	}, nil
}

func (r *Router) history(ctx context.Context) (agent, handler PathStats, total int) {
	metrics, err := r.load(ctx)
	if err != nil {
		r.logger.Warn("router history unavailable, treating as empty", "error", err)
		return PathStats{}, PathStats{}, 0
	}
	agent = aggregate(metrics, PathAgent)
	handler = aggregate(metrics, PathHandler)
	return agent, handler, agent.Executions + handler.Executions
}

func (r *Router) load(ctx context.Context) ([]Metric, error) {
	if r.store == nil {
		return nil, nil
	}
	entries, err := r.store.Query(ctx, memstore.Query{
		Pattern: metricPrefix + "%",
		Owner:   metricOwner,
	})
	if err != nil {
		return nil, err
	}
	metrics := make([]Metric, 0, len(entries))
	for _, e := range entries {
		var m Metric
		if err := memstore.DecodeValue(e.Value, &m); err != nil {
			r.logger.Debug("skipping undecodable metric", "key", e.Key, "error", err)
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func aggregate(metrics []Metric, path string) PathStats {
	var s PathStats
	var successes int
	var latencyTotal int64
	for _, m := range metrics {
		if m.Path != path {
			continue
		}
		s.Executions++
		latencyTotal += m.LatencyMs
		if m.Success {
			successes++
		}
	}
	if s.Executions > 0 {
		s.SuccessRate = float64(successes) / float64(s.Executions)
		s.AvgLatencyMs = float64(latencyTotal) / float64(s.Executions)
	}
	return s
}

func classify(in Input) string {
	hasGoal := strings.TrimSpace(in.Goal) != ""
	hasWorkflow := in.Workflow != nil
	switch {
	case hasGoal && hasWorkflow:
		return ClassBoth
	case hasGoal:
		return ClassGoalOnly
	case hasWorkflow:
		return ClassWorkflowOnly
	default:
		return ClassUnknown
	}
}
