// Package copilot wires the co-pilot control plane together: the engine
// client, node catalog, validation gateway, smart router and shared memory
// sit behind one Coordinator whose operations the MCP adapter exposes to
// agents. A Coordinator is an ordinary value constructed at boot and passed
// explicitly; there are no process-wide singletons.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor/llm"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/config"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/memstore"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/observability"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

// Coordinator owns the component lifecycles and exposes the stable operation
// set. All methods are safe for concurrent use once Connect has returned.
type Coordinator struct {
	cfg      config.Config
	logger   *slog.Logger
	listener Listener

	client  *n8n.Client
	catalog *catalog.Catalog
	gateway *validation.Gateway
	router  *router.Router
	store   memstore.Store
	tracer  *observability.OpTracer

	stopRefresh context.CancelFunc
	refreshDone chan struct{}
}

type options struct {
	logger     *slog.Logger
	listener   Listener
	advisor    advisor.Advisor
	store      memstore.Store
	clientOpts []n8n.Option
}

// Option configures a Coordinator beyond what the config file carries.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithListener attaches the lifecycle listener. Defaults to NoopListener.
func WithListener(l Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithAdvisor overrides the config-selected semantic capability.
func WithAdvisor(a advisor.Advisor) Option {
	return func(o *options) { o.advisor = a }
}

// WithStore overrides the config-selected shared-memory backend.
func WithStore(s memstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCollector wires the metrics collector in as both the lifecycle
// listener (unless one is already set) and the engine client's request and
// throttle observers.
func WithCollector(col *observability.Collector) Option {
	return func(o *options) {
		if o.listener == nil {
			o.listener = col
		}
		o.clientOpts = append(o.clientOpts,
			n8n.WithRequestObserver(col.ObserveEngineRequest),
			n8n.WithThrottleObserver(col.ObserveThrottleWait),
		)
	}
}

// New wires a Coordinator from configuration. The context bounds backend
// dials (the Redis store, when configured); no engine traffic happens until
// Connect. The config should already have passed Validate.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Coordinator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	listener := o.listener
	if listener == nil {
		listener = NoopListener{}
	}

	store := o.store
	if store == nil {
		var err error
		store, err = newStore(ctx, cfg.Memory)
		if err != nil {
			return nil, fmt.Errorf("copilot: build store: %w", err)
		}
	}

	adv := o.advisor
	if adv == nil {
		adv = newAdvisor(cfg.Advisor, logger)
	}

	clientOpts := []n8n.Option{
		n8n.WithLogger(logger.With("component", "n8n")),
		n8n.WithRetryPolicy(cfg.Engine.MaxAttempts, cfg.Engine.RetryBase()),
		n8n.WithWebhookTimeout(cfg.Engine.WebhookTimeout()),
	}
	if len(cfg.Engine.RateLimits) > 0 {
		clientOpts = append(clientOpts, n8n.WithRateLimits(ratePolicy(cfg.Engine.RateLimits)))
	}
	if cfg.Engine.Email != "" && cfg.Engine.Password != "" {
		clientOpts = append(clientOpts, n8n.WithSession(cfg.Engine.Email, cfg.Engine.Password))
	}
	// Observer options attach last so a custom throttling table cannot
	// displace them.
	clientOpts = append(clientOpts, o.clientOpts...)
	client := n8n.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey, clientOpts...)

	cat := catalog.NewCatalog(client,
		catalog.WithLogger(logger.With("component", "catalog")),
		catalog.WithPolicy(catalog.NewPolicy(policyConfig(cfg.Policy))),
		catalog.WithEvents(catalogEvents{listener: listener, logger: logger}),
		catalog.WithRefreshInterval(cfg.Catalog.RefreshInterval()),
		catalog.WithFetchDeadline(cfg.Catalog.FetchDeadline()),
	)

	gwOpts := []validation.GatewayOption{
		validation.WithLogger(logger.With("component", "validation")),
		validation.WithEngine(client),
		validation.WithStore(store),
		validation.WithAdvisor(adv),
		validation.WithDeadline(cfg.Validation.Deadline()),
		validation.WithSemanticDeadline(cfg.Validation.SemanticDeadline()),
		validation.WithDryRunDeadline(cfg.Validation.DryRunDeadline()),
		validation.WithCacheTTL(cfg.Validation.CacheTTL()),
		validation.WithDryRunEnabled(cfg.Validation.DryRun),
	}
	if cfg.Validation.Semantic != nil {
		gwOpts = append(gwOpts, validation.WithSemanticEnabled(*cfg.Validation.Semantic))
	}

	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		listener: listener,
		client:   client,
		catalog:  cat,
		gateway:  validation.NewGateway(cat, gwOpts...),
		router: router.NewRouter(store,
			router.WithLogger(logger.With("component", "router")),
			router.WithMinHistory(cfg.Router.MinHistory),
			router.WithRetention(cfg.Router.Retention()),
		),
		store:  store,
		tracer: observability.NewOpTracer(nil),
	}, nil
}

// Connect verifies the engine is reachable, performs the initial catalog
// sync and starts the periodic refresh loop. A reachable engine with no
// discoverable node types still connects; validation degrades until a later
// refresh finds more.
func (c *Coordinator) Connect(ctx context.Context) error {
	if err := c.catalog.Connect(ctx); err != nil {
		return fmt.Errorf("copilot: connect: %w", err)
	}
	refreshCtx, cancel := context.WithCancel(context.Background())
	c.stopRefresh = cancel
	c.refreshDone = make(chan struct{})
	go func() {
		defer close(c.refreshDone)
		_ = c.catalog.Run(refreshCtx)
	}()
	c.logger.Info("copilot connected",
		"engine", c.cfg.Engine.BaseURL,
		"nodes", c.catalog.Stats().TotalNodes,
	)
	return nil
}

// Close stops the refresh loop and releases the shared store. Safe whether
// or not Connect was called.
func (c *Coordinator) Close() error {
	if c.stopRefresh != nil {
		c.stopRefresh()
		<-c.refreshDone
		c.stopRefresh = nil
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("copilot: close store: %w", err)
	}
	return nil
}

// newStore builds the shared-memory backend named by the config.
func newStore(ctx context.Context, cfg config.Memory) (memstore.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		mc := memstore.DefaultMemoryConfig()
		if cfg.MaxEntries > 0 {
			mc.MaxEntries = cfg.MaxEntries
		}
		return memstore.NewMemory(mc), nil
	case "redis":
		return memstore.NewRedis(ctx, memstore.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

// newAdvisor picks the semantic capability: the messages-API client when a
// key is configured or present in the environment, the offline heuristic
// otherwise.
func newAdvisor(cfg config.Advisor, logger *slog.Logger) advisor.Advisor {
	client, err := llm.NewClient(llm.ClientConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		MaxTokens: cfg.MaxTokens,
		Deadline:  cfg.Deadline(),
	})
	if err != nil {
		logger.Info("no advisor API key configured, using heuristic semantic checks")
		return llm.NewHeuristic()
	}
	return client
}

func ratePolicy(limits map[string]config.RateLimit) n8n.RateLimitPolicy {
	policy := make(n8n.RateLimitPolicy, len(limits))
	for endpoint, rl := range limits {
		policy[endpoint] = n8n.BucketConfig{PerSecond: rl.PerSecond, Burst: rl.Burst}
	}
	return policy
}

func policyConfig(cfg config.Policy) catalog.PolicyConfig {
	return catalog.PolicyConfig{
		OfficialPrefixes: cfg.OfficialPrefixes,
		AllowCommunity:   cfg.AllowCommunity,
		AllowList:        cfg.AllowList,
	}
}

// recordOutcome feeds the router's learning loop. A metric that cannot be
// recorded never affects the operation result.
func (c *Coordinator) recordOutcome(ctx context.Context, path string, success bool, started time.Time) {
	m := router.Metric{
		Path:      path,
		Success:   success,
		LatencyMs: time.Since(started).Milliseconds(),
		At:        time.Now(),
	}
	if err := c.router.Record(ctx, m); err != nil {
		c.logger.Debug("router metric not recorded", "error", err)
	}
}
