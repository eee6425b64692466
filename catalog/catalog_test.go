package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// fakeEngine scripts the EngineClient surface for catalog tests.
type fakeEngine struct {
	mu         sync.Mutex
	fetchCalls int32

	health     *n8n.Health
	healthErr  error
	types      []n8n.NodeTypeDescription
	typeSource string
	typesErr   error
	creds      []n8n.CredentialTypeDescription
	credsErr   error
	pages      []*n8n.WorkflowPage
	listErr    error
	details    map[string]*workflow.Workflow
	fetchHook  func()
}

func (f *fakeEngine) Health(context.Context) (*n8n.Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	if f.health != nil {
		return f.health, nil
	}
	return &n8n.Health{OK: true, Version: "1.64.0"}, nil
}

func (f *fakeEngine) FetchNodeTypes(context.Context) ([]n8n.NodeTypeDescription, string, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchHook != nil {
		f.fetchHook()
	}
	if f.typesErr != nil {
		return nil, "", f.typesErr
	}
	return f.types, f.typeSource, nil
}

func (f *fakeEngine) FetchCredentialTypes(context.Context) ([]n8n.CredentialTypeDescription, error) {
	return f.creds, f.credsErr
}

func (f *fakeEngine) ListWorkflows(_ context.Context, opts n8n.ListWorkflowsOptions) (*n8n.WorkflowPage, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := 0
	if opts.Cursor != "" {
		idx = 1
	}
	if idx >= len(f.pages) {
		return &n8n.WorkflowPage{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeEngine) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	if wf, ok := f.details[id]; ok {
		return wf, nil
	}
	return nil, errors.New("not found")
}

type recordingEvents struct {
	mu           sync.Mutex
	synced       []Stats
	syncErrors   []error
	connected    []string
	disconnected []error
}

func (r *recordingEvents) CatalogSynced(s Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, s)
}

func (r *recordingEvents) CatalogSyncError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncErrors = append(r.syncErrors, err)
}

func (r *recordingEvents) EngineConnected(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, v)
}

func (r *recordingEvents) EngineDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, err)
}

func descriptor(name, display string, groups ...string) n8n.NodeTypeDescription {
	return n8n.NodeTypeDescription{Name: name, DisplayName: display, Group: groups}
}

func TestConnectAndRefreshPopulatesSnapshot(t *testing.T) {
	engine := &fakeEngine{
		types: []n8n.NodeTypeDescription{
			descriptor("pkg-base.webhook", "Webhook", "trigger"),
			descriptor("pkg-base.set", "Set"),
			descriptor("@org/langchain.agent", "AI Agent", "ai"),
			descriptor("community-pkg.fancy", "Fancy"), // policy-rejected
		},
		typeSource: SourceSession,
		creds: []n8n.CredentialTypeDescription{
			{Name: "httpBasicAuth", DisplayName: "Basic Auth"},
		},
	}
	events := &recordingEvents{}
	cat := NewCatalog(engine, WithEvents(events))

	if cat.Ready() {
		t.Fatal("catalog ready before first sync")
	}
	if err := cat.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if !cat.Ready() {
		t.Fatal("catalog not ready after sync")
	}
	if _, ok := cat.Lookup("pkg-base.webhook"); !ok {
		t.Error("webhook entry missing")
	}
	if _, ok := cat.Lookup("community-pkg.fancy"); ok {
		t.Error("policy-rejected entry admitted into snapshot")
	}
	if _, ok := cat.CredentialType("httpBasicAuth"); !ok {
		t.Error("credential type missing")
	}

	stats := cat.Stats()
	if stats.TotalNodes != 3 || stats.Triggers != 1 || stats.Actions != 2 || stats.AINodes != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SyncSource != SourceSession {
		t.Errorf("source = %q", stats.SyncSource)
	}
	if stats.EngineVersion != "1.64.0" {
		t.Errorf("engine version = %q", stats.EngineVersion)
	}
	if stats.LastSync.IsZero() {
		t.Error("last sync not recorded")
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.connected) == 0 {
		t.Error("connected event not emitted")
	}
	if len(events.synced) != 1 {
		t.Errorf("synced events = %d, want 1", len(events.synced))
	}
}

func TestRefreshScanFallback(t *testing.T) {
	next := "page2"
	engine := &fakeEngine{
		typesErr: errors.New("introspection blocked"),
		pages: []*n8n.WorkflowPage{
			{
				Data:       []workflow.Workflow{{ID: "wf-1"}},
				NextCursor: &next,
			},
			{
				Data: []workflow.Workflow{{ID: "wf-2", Nodes: []workflow.Node{
					{Name: "Set", Type: "pkg-base.set", TypeVersion: 2},
				}}},
			},
		},
		details: map[string]*workflow.Workflow{
			"wf-1": {ID: "wf-1", Nodes: []workflow.Node{
				{Name: "Hook", Type: "pkg-base.webhook", TypeVersion: 1},
				{Name: "Set", Type: "pkg-base.set", TypeVersion: 1},
			}},
		},
	}
	cat := NewCatalog(engine)

	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	stats := cat.Stats()
	if stats.SyncSource != SourceWorkflowScan {
		t.Fatalf("source = %q, want workflow-scan", stats.SyncSource)
	}
	set, ok := cat.Lookup("pkg-base.set")
	if !ok {
		t.Fatal("scanned entry missing")
	}
	if len(set.Versions) != 2 || !set.SupportsVersion(1) || !set.SupportsVersion(2) {
		t.Errorf("versions = %v", set.Versions)
	}
	if len(set.Properties) != 0 {
		t.Error("synthesized entry should have no property descriptors")
	}
	if len(set.Inputs) != 1 || set.Inputs[0] != workflow.ChannelMain {
		t.Errorf("inputs = %v", set.Inputs)
	}
	hook, _ := cat.Lookup("pkg-base.webhook")
	if !hook.IsTrigger {
		t.Error("webhook entry should be trigger-like")
	}
}

func TestRefreshEmptyEngineSucceedsWithSourceNone(t *testing.T) {
	engine := &fakeEngine{types: nil, typeSource: ""}
	events := &recordingEvents{}
	cat := NewCatalog(engine, WithEvents(events))

	if err := cat.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if cat.Ready() {
		t.Error("empty engine should leave the catalog not ready")
	}
	stats := cat.Stats()
	if stats.SyncSource != SourceNone || stats.TotalNodes != 0 {
		t.Errorf("stats = %+v", stats)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.syncErrors) != 0 {
		t.Errorf("empty engine must not be a sync error: %v", events.syncErrors)
	}
	if len(events.synced) != 1 {
		t.Errorf("synced events = %d, want 1", len(events.synced))
	}
}

func TestRefreshFailurePreservesSnapshot(t *testing.T) {
	engine := &fakeEngine{
		types:      []n8n.NodeTypeDescription{descriptor("pkg-base.webhook", "Webhook", "trigger")},
		typeSource: SourceREST,
	}
	events := &recordingEvents{}
	cat := NewCatalog(engine, WithEvents(events))
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	engine.typesErr = errors.New("introspection broke")
	engine.listErr = errors.New("list broke")
	if err := cat.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	if _, ok := cat.Lookup("pkg-base.webhook"); !ok {
		t.Error("previous snapshot lost after failed refresh")
	}
	if got := cat.Stats().SyncSource; got != SourceREST {
		t.Errorf("source = %q, want value from last good sync", got)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.syncErrors) != 1 {
		t.Errorf("sync error events = %d, want 1", len(events.syncErrors))
	}
}

func TestRefreshCoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{
		types:      []n8n.NodeTypeDescription{descriptor("pkg-base.set", "Set")},
		typeSource: SourceAPI,
		fetchHook:  func() { <-release },
	}
	cat := NewCatalog(engine)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cat.Refresh(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond) // let the goroutines pile onto the flight
	close(release)
	wg.Wait()

	if calls := atomic.LoadInt32(&engine.fetchCalls); calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (coalesced)", calls)
	}
}

func TestConnectFailsWhenEngineUnreachable(t *testing.T) {
	engine := &fakeEngine{healthErr: errors.New("connection refused")}
	cat := NewCatalog(engine)

	if err := cat.Connect(context.Background()); err == nil {
		t.Fatal("expected connect failure")
	}
}
