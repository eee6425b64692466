// Package validation runs workflow documents through the ordered admission
// pipeline: restriction policy, schema, node existence, connection integrity,
// credentials, optional semantic review, optional live dry-run against the
// engine. The first layer that finds errors stops the pipeline; warnings
// accumulate across every layer that ran.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

const (
	defaultDeadline         = 60 * time.Second
	defaultSemanticDeadline = 20 * time.Second
	defaultDryRunDeadline   = 30 * time.Second
	defaultCacheTTL         = 24 * time.Hour

	// cleanupGrace bounds the dry-run delete after the caller is gone.
	cleanupGrace = 10 * time.Second

	cacheOwner     = "validation-gateway"
	maxSuggestions = 3
)

// Catalog is the snapshot surface the static layers consult. *catalog.Catalog
// satisfies it.
type Catalog interface {
	Ready() bool
	Lookup(typeID string) (catalog.NodeType, bool)
	CredentialType(name string) (catalog.CredentialType, bool)
	HasCredentialTypes() bool
	Search(query string, limit int) []catalog.NodeType
	Policy() *catalog.Policy
}

// Engine is the subset of the engine client the dry-run layer needs.
// *n8n.Client satisfies it.
type Engine interface {
	CreateWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// Gateway owns the pipeline configuration and the result cache.
type Gateway struct {
	catalog Catalog
	engine  Engine
	advisor advisor.Advisor
	store   memstore.Store
	logger  *slog.Logger
	tracer  trace.Tracer

	deadline         time.Duration
	semanticDeadline time.Duration
	dryRunDeadline   time.Duration
	cacheTTL         time.Duration

	dryRun   bool
	semantic *bool // nil means "enabled iff an advisor is attached"
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logger }
}

// WithEngine attaches the engine client that backs the dry-run layer. Without
// it the layer is skipped.
func WithEngine(e Engine) GatewayOption {
	return func(g *Gateway) { g.engine = e }
}

// WithAdvisor attaches the semantic capability and enables the semantic layer
// unless WithSemanticEnabled(false) says otherwise.
func WithAdvisor(a advisor.Advisor) GatewayOption {
	return func(g *Gateway) { g.advisor = a }
}

// WithStore attaches the shared-memory store used as the result cache.
// Without it every call runs the full pipeline.
func WithStore(s memstore.Store) GatewayOption {
	return func(g *Gateway) { g.store = s }
}

func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *Gateway) { g.tracer = t }
}

// WithDeadline bounds one whole validation run.
func WithDeadline(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.deadline = d
		}
	}
}

// WithSemanticDeadline bounds the semantic layer's advisor call.
func WithSemanticDeadline(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.semanticDeadline = d
		}
	}
}

// WithDryRunDeadline bounds the dry-run layer's engine calls.
func WithDryRunDeadline(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.dryRunDeadline = d
		}
	}
}

// WithCacheTTL overrides the 24 hour result cache lifetime.
func WithCacheTTL(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.cacheTTL = d
		}
	}
}

// WithDryRunEnabled toggles the dry-run layer default (on).
func WithDryRunEnabled(enabled bool) GatewayOption {
	return func(g *Gateway) { g.dryRun = enabled }
}

// WithSemanticEnabled forces the semantic layer on or off regardless of
// whether an advisor is attached. It still cannot run without one.
func WithSemanticEnabled(enabled bool) GatewayOption {
	return func(g *Gateway) { g.semantic = &enabled }
}

// NewGateway builds a pipeline around the catalog snapshot. Dry-run, semantic
// review and caching activate only when their dependencies are attached.
func NewGateway(cat Catalog, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		catalog:          cat,
		logger:           slog.Default(),
		deadline:         defaultDeadline,
		semanticDeadline: defaultSemanticDeadline,
		dryRunDeadline:   defaultDryRunDeadline,
		cacheTTL:         defaultCacheTTL,
		dryRun:           true,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.GetTracerProvider().Tracer("copilot.validation")
	}
	return g
}

// Options adjusts one validation call. The zero value applies the gateway
// defaults.
type Options struct {
	// Profile partitions the result cache. Empty means DefaultProfile.
	Profile string
	// DryRun overrides the gateway default when non-nil.
	DryRun *bool
	// Semantic overrides the gateway default when non-nil.
	Semantic *bool
}

// Validate runs doc through the pipeline and returns the outcome. The error
// return is reserved for an expired or cancelled context; every other failure
// mode, recovered panics included, is reported inside the Result.
func (g *Gateway) Validate(ctx context.Context, doc any, opts Options) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.deadline)
	defer cancel()

	profile := opts.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	dryRun := g.dryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}
	dryRun = dryRun && g.engine != nil
	semantic := g.advisor != nil
	if g.semantic != nil {
		semantic = *g.semantic
	}
	if opts.Semantic != nil {
		semantic = *opts.Semantic
	}
	semantic = semantic && g.advisor != nil

	started := time.Now()
	ctx, span := g.tracer.Start(ctx, "validation.pipeline", trace.WithAttributes(
		attribute.String("validation.profile", profile),
		attribute.Bool("validation.dry_run", dryRun),
		attribute.Bool("validation.semantic", semantic),
	))
	defer span.End()

	// The semantic layer changes what the static pipeline produces, so its
	// toggle partitions the cache alongside the profile label.
	cacheProfile := profile
	if semantic {
		cacheProfile += "+semantic"
	}
	var fingerprint string
	red, reduced := workflow.Reduce(doc)
	if reduced {
		fingerprint = Fingerprint(cacheProfile, red)
		if hit := g.cachedResult(ctx, fingerprint, dryRun); hit != nil {
			hit.Cached = true
			hit.ElapsedMs = time.Since(started).Milliseconds()
			span.SetAttributes(attribute.Bool("validation.cached", true))
			g.logger.Debug("validation served from cache",
				"fingerprint", fingerprint[:12], "valid", hit.Valid)
			return hit, nil
		}
	}

	result, ranDryRun, err := g.run(ctx, doc, red, dryRun, semantic)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("validation: %w", err)
	}
	result.ElapsedMs = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.Bool("validation.valid", result.Valid),
		attribute.Int("validation.error_count", len(result.Errors)),
		attribute.Int("validation.warning_count", len(result.Warnings)),
	)
	if !result.Valid {
		span.SetAttributes(attribute.String("validation.failed_layer", result.FailedLayer))
		span.SetStatus(codes.Error, result.FailedLayer)
	}

	// Dry-run outcomes reflect the engine's state at this instant and are
	// never cached.
	if reduced && !ranDryRun {
		g.storeResult(ctx, fingerprint, result)
	}

	if result.Valid {
		g.logger.Debug("validation passed",
			"layers", len(result.PassedLayers),
			"warnings", len(result.Warnings),
			"elapsedMs", result.ElapsedMs)
	} else {
		g.logger.Info("validation failed",
			"failedLayer", result.FailedLayer,
			"errors", len(result.Errors),
			"warnings", len(result.Warnings),
			"elapsedMs", result.ElapsedMs)
	}
	return result, nil
}

// layerFunc runs one layer and returns its blocking errors and warnings.
type layerFunc func(ctx context.Context) (errs, warns []Issue)

// run walks the enabled layers in order, short-circuiting on the first layer
// that reports errors. A dead context abandons the run.
func (g *Gateway) run(ctx context.Context, doc any, red *workflow.Reduction, dryRun, semantic bool) (*Result, bool, error) {
	result := &Result{Valid: true}
	ranDryRun := false
	var wf *workflow.Workflow

	layers := []struct {
		id      string
		enabled bool
		fn      layerFunc
	}{
		{LayerNodeRestrictions, true, func(ctx context.Context) ([]Issue, []Issue) {
			return g.checkPolicy(red), nil
		}},
		{LayerSchema, true, func(ctx context.Context) ([]Issue, []Issue) {
			parsed, errs, warns := g.checkSchema(doc)
			wf = parsed
			return errs, warns
		}},
		{LayerNodeExistence, true, func(ctx context.Context) ([]Issue, []Issue) {
			return g.checkExistence(wf)
		}},
		{LayerConnections, true, func(ctx context.Context) ([]Issue, []Issue) {
			return g.checkConnections(wf)
		}},
		{LayerCredentials, true, func(ctx context.Context) ([]Issue, []Issue) {
			return g.checkCredentials(wf)
		}},
		{LayerSemantic, semantic, func(ctx context.Context) ([]Issue, []Issue) {
			return nil, g.checkSemantic(ctx, wf)
		}},
		{LayerDryRun, dryRun, func(ctx context.Context) ([]Issue, []Issue) {
			ranDryRun = true
			errs, warns, dryRunID := g.checkDryRun(ctx, wf)
			result.DryRunID = dryRunID
			return errs, warns
		}},
	}

	for _, l := range layers {
		if !l.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, ranDryRun, err
		}
		errs, warns := g.runLayer(ctx, l.id, l.fn)
		result.Warnings = append(result.Warnings, warns...)
		if len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
			result.Valid = false
			result.FailedLayer = l.id
			break
		}
		result.PassedLayers = append(result.PassedLayers, l.id)
	}
	return result, ranDryRun, nil
}

// runLayer executes one layer inside its own span, converting a panic into a
// VALIDATION_EXCEPTION error attributed to that layer.
func (g *Gateway) runLayer(ctx context.Context, id string, fn layerFunc) (errs, warns []Issue) {
	ctx, span := g.tracer.Start(ctx, "validation.layer."+id)
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("validation layer panicked", "layer", id, "panic", rec)
			errs = append(errs, Issue{
				Layer:   id,
				Code:    CodeValidationException,
				Message: fmt.Sprintf("internal fault in %s layer: %v", id, rec),
			})
			span.SetStatus(codes.Error, "panic")
		}
		span.SetAttributes(
			attribute.Int("validation.error_count", len(errs)),
			attribute.Int("validation.warning_count", len(warns)),
		)
	}()
	errs, warns = fn(ctx)
	return errs, warns
}

// cachedResult returns the stored result for the fingerprint when it can
// satisfy this call. A stored result that passed every static layer cannot
// stand in for a dry-run request.
func (g *Gateway) cachedResult(ctx context.Context, fingerprint string, wantDryRun bool) *Result {
	if g.store == nil {
		return nil
	}
	entry, ok, err := g.store.Get(ctx, cacheKey(fingerprint))
	if err != nil {
		g.logger.Debug("validation cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var r Result
	if err := memstore.DecodeValue(entry.Value, &r); err != nil {
		g.logger.Debug("validation cache entry undecodable", "error", err)
		return nil
	}
	if wantDryRun && r.Valid {
		return nil
	}
	return &r
}

func (g *Gateway) storeResult(ctx context.Context, fingerprint string, r *Result) {
	if g.store == nil {
		return
	}
	if err := g.store.Set(ctx, cacheKey(fingerprint), *r, cacheOwner, g.cacheTTL); err != nil {
		g.logger.Debug("validation cache write failed", "error", err)
	}
}
