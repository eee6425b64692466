// Package catalog maintains the live node-type and credential-type snapshot
// of the connected engine. Refreshes walk the introspection sources in
// priority order, fall back to scanning stored workflows, and atomically
// replace the snapshot; readers never see a partial catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// Acquisition source labels, in ladder order.
const (
	SourceSession      = n8n.SourceSession
	SourceAPI          = n8n.SourceAPI
	SourceREST         = n8n.SourceREST
	SourceWorkflowScan = "workflow-scan"
	SourceNone         = "none"
)

const (
	defaultRefreshInterval = 5 * time.Minute
	defaultFetchDeadline   = 30 * time.Second
	scanPageSize           = 250
)

// EngineClient is the subset of the engine API the catalog consumes.
// *n8n.Client satisfies it.
type EngineClient interface {
	Health(ctx context.Context) (*n8n.Health, error)
	FetchNodeTypes(ctx context.Context) ([]n8n.NodeTypeDescription, string, error)
	FetchCredentialTypes(ctx context.Context) ([]n8n.CredentialTypeDescription, error)
	ListWorkflows(ctx context.Context, opts n8n.ListWorkflowsOptions) (*n8n.WorkflowPage, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
}

// Events receives catalog lifecycle notifications. Implementations must be
// fast; they are called on the refresh goroutine.
type Events interface {
	CatalogSynced(stats Stats)
	CatalogSyncError(err error)
	EngineConnected(version string)
	EngineDisconnected(err error)
}

type noopEvents struct{}

func (noopEvents) CatalogSynced(Stats)      {}
func (noopEvents) CatalogSyncError(error)   {}
func (noopEvents) EngineConnected(string)   {}
func (noopEvents) EngineDisconnected(error) {}

// Stats summarizes the current snapshot.
type Stats struct {
	TotalNodes           int       `json:"totalNodes"`
	TotalCredentialTypes int       `json:"totalCredentialTypes"`
	Triggers             int       `json:"triggers"`
	Actions              int       `json:"actions"`
	AINodes              int       `json:"aiNodes"`
	LastSync             time.Time `json:"lastSync"`
	EngineVersion        string    `json:"engineVersion,omitempty"`
	SyncSource           string    `json:"syncSource"`
}

// snapshot is an immutable view swapped in whole on refresh.
type snapshot struct {
	nodes         map[string]NodeType
	credentials   map[string]CredentialType
	lastSync      time.Time
	source        string
	engineVersion string
}

var emptySnapshot = &snapshot{
	nodes:       map[string]NodeType{},
	credentials: map[string]CredentialType{},
	source:      SourceNone,
}

// Catalog holds the snapshot and the refresh machinery.
type Catalog struct {
	client    EngineClient
	policy    *Policy
	logger    *slog.Logger
	events    Events
	interval  time.Duration
	deadline  time.Duration
	current   atomic.Pointer[snapshot]
	refreshes singleflight.Group
	connected atomic.Bool
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

func WithLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = logger }
}

func WithPolicy(p *Policy) CatalogOption {
	return func(c *Catalog) { c.policy = p }
}

func WithEvents(e Events) CatalogOption {
	return func(c *Catalog) { c.events = e }
}

// WithRefreshInterval overrides the 5 minute refresh period.
func WithRefreshInterval(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithFetchDeadline bounds each refresh attempt.
func WithFetchDeadline(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d > 0 {
			c.deadline = d
		}
	}
}

// NewCatalog builds a catalog around the engine client. The snapshot starts
// empty; call Connect or Refresh to populate it.
func NewCatalog(client EngineClient, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		client:   client,
		policy:   NewPolicy(DefaultPolicyConfig()),
		logger:   slog.Default(),
		events:   noopEvents{},
		interval: defaultRefreshInterval,
		deadline: defaultFetchDeadline,
	}
	c.current.Store(emptySnapshot)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect verifies engine reachability and performs the initial sync. An
// engine with no discoverable node types still connects; the snapshot stays
// empty with source "none" until a later refresh finds more.
func (c *Catalog) Connect(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("catalog: engine unreachable: %w", err)
	}
	c.connected.Store(true)
	c.events.EngineConnected(health.Version)

	if err := c.Refresh(ctx); err != nil {
		// Reachable but not introspectable; stay connected with an
		// empty snapshot rather than failing the whole boot.
		c.logger.Warn("initial catalog sync failed", "error", err)
	}
	return nil
}

// Refresh forces a sync now. Concurrent calls share one in-flight refresh.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

// Run refreshes on the configured interval until ctx is cancelled. Callers
// normally run it on its own goroutine after Connect.
func (c *Catalog) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("scheduled catalog refresh failed", "error", err)
			}
		}
	}
}

func (c *Catalog) doRefresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()
	started := time.Now()

	types, source, directErr := c.client.FetchNodeTypes(ctx)
	if directErr != nil {
		c.logger.Debug("direct node-type sources failed, scanning workflows", "error", directErr)
	}

	nodes := make(map[string]NodeType, len(types))
	rejected := 0
	for _, d := range types {
		if !c.policy.Check(d.Name).Allowed {
			rejected++
			continue
		}
		nodes[d.Name] = fromDescriptor(d)
	}

	if len(nodes) == 0 {
		scanned, scanErr := c.scanWorkflows(ctx)
		switch {
		case scanErr == nil && len(scanned) > 0:
			nodes = scanned
			source = SourceWorkflowScan
		case scanErr != nil && directErr != nil:
			err := fmt.Errorf("catalog: refresh failed: %w", errors.Join(directErr, scanErr))
			c.markSyncError(err)
			return err
		case scanErr != nil:
			// Direct sources were reachable but empty; a scan failure
			// does not invalidate that answer.
			c.logger.Debug("workflow scan failed", "error", scanErr)
			source = SourceNone
		default:
			source = SourceNone
		}
	}

	credentials := map[string]CredentialType{}
	if creds, err := c.client.FetchCredentialTypes(ctx); err != nil {
		c.logger.Debug("credential-type fetch failed, keeping checks soft", "error", err)
	} else {
		for _, d := range creds {
			credentials[d.Name] = CredentialType{
				Name:        d.Name,
				DisplayName: d.DisplayName,
				Extends:     append([]string(nil), d.Extends...),
			}
		}
	}

	version := c.current.Load().engineVersion
	if health, err := c.client.Health(ctx); err == nil && health.Version != "" {
		version = health.Version
	}

	next := &snapshot{
		nodes:         nodes,
		credentials:   credentials,
		lastSync:      time.Now(),
		source:        source,
		engineVersion: version,
	}
	c.current.Store(next)

	if !c.connected.Swap(true) {
		c.events.EngineConnected(version)
	}
	stats := statsOf(next)
	c.events.CatalogSynced(stats)
	c.logger.Info("catalog synced",
		"nodes", stats.TotalNodes,
		"credentialTypes", stats.TotalCredentialTypes,
		"rejected", rejected,
		"source", source,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// markSyncError keeps the previous snapshot and reports the failure. A
// network-class failure also flips the connected state.
func (c *Catalog) markSyncError(err error) {
	c.events.CatalogSyncError(err)
	var apiErr *n8n.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == n8n.KindNetwork {
		if c.connected.Swap(false) {
			c.events.EngineDisconnected(err)
		}
	}
	c.logger.Warn("catalog refresh failed, keeping previous snapshot", "error", err)
}

// scanWorkflows pages through stored workflows and synthesizes entries from
// the node types in use. Used when no introspection endpoint yields data.
func (c *Catalog) scanWorkflows(ctx context.Context) (map[string]NodeType, error) {
	versions := map[string]map[float64]struct{}{}
	cursor := ""
	for {
		page, err := c.client.ListWorkflows(ctx, n8n.ListWorkflowsOptions{Limit: scanPageSize, Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("catalog: workflow scan: %w", err)
		}
		for i := range page.Data {
			wf := &page.Data[i]
			if len(wf.Nodes) == 0 && wf.ID != "" {
				// List responses may omit node payloads.
				detail, err := c.client.GetWorkflow(ctx, wf.ID)
				if err != nil {
					c.logger.Debug("scan skipping workflow", "id", wf.ID, "error", err)
					continue
				}
				wf = detail
			}
			for _, node := range wf.Nodes {
				if node.Type == "" || !c.policy.Check(node.Type).Allowed {
					continue
				}
				if versions[node.Type] == nil {
					versions[node.Type] = map[float64]struct{}{}
				}
				versions[node.Type][node.TypeVersion] = struct{}{}
			}
		}
		if page.NextCursor == nil || *page.NextCursor == "" {
			break
		}
		cursor = *page.NextCursor
	}

	entries := make(map[string]NodeType, len(versions))
	for typeID, seen := range versions {
		vs := make([]float64, 0, len(seen))
		for v := range seen {
			vs = append(vs, v)
		}
		entries[typeID] = synthesizeEntry(typeID, vs)
	}
	return entries, nil
}

// Lookup returns the entry for the exact type identifier.
func (c *Catalog) Lookup(typeID string) (NodeType, bool) {
	entry, ok := c.current.Load().nodes[typeID]
	return entry, ok
}

// CredentialType returns the credential-type descriptor by name.
func (c *Catalog) CredentialType(name string) (CredentialType, bool) {
	entry, ok := c.current.Load().credentials[name]
	return entry, ok
}

// Ready reports whether the snapshot holds any node types.
func (c *Catalog) Ready() bool {
	return len(c.current.Load().nodes) > 0
}

// HasCredentialTypes reports whether credential descriptors were fetched.
func (c *Catalog) HasCredentialTypes() bool {
	return len(c.current.Load().credentials) > 0
}

// Policy returns the node restriction filter.
func (c *Catalog) Policy() *Policy {
	return c.policy
}

// Stats summarizes the current snapshot.
func (c *Catalog) Stats() Stats {
	return statsOf(c.current.Load())
}

func statsOf(s *snapshot) Stats {
	stats := Stats{
		TotalNodes:           len(s.nodes),
		TotalCredentialTypes: len(s.credentials),
		LastSync:             s.lastSync,
		EngineVersion:        s.engineVersion,
		SyncSource:           s.source,
	}
	for _, entry := range s.nodes {
		if entry.IsTrigger {
			stats.Triggers++
		} else {
			stats.Actions++
		}
		if entry.IsAI {
			stats.AINodes++
		}
	}
	return stats
}
