package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor/llm"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/config"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/observability"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

// The metrics collector must keep satisfying the listener contract, and the
// events bridge must keep satisfying the catalog's.
var (
	_ Listener       = (*observability.Collector)(nil)
	_ catalog.Events = catalogEvents{}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine is an httptest server speaking the engine wire shapes the
// coordinator exercises end to end.
type fakeEngine struct {
	srv *httptest.Server

	mu           sync.Mutex
	nodeTypes    []n8n.NodeTypeDescription
	workflows    map[string]map[string]any
	nextID       int
	creates      int
	updates      int
	deletes      int
	rejectCreate string
}

func defaultNodeTypes() []n8n.NodeTypeDescription {
	return []n8n.NodeTypeDescription{
		{Name: "pkg-base.webhook", DisplayName: "Webhook", Group: []string{"trigger"}},
		{Name: "pkg-base.set", DisplayName: "Set", Group: []string{"transform"}},
		{Name: "pkg-base.httpRequest", DisplayName: "HTTP Request", Group: []string{"output"}},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{
		nodeTypes: defaultNodeTypes(),
		workflows: map[string]map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "version": "1.99.1"})
	})
	mux.HandleFunc("GET /types/nodes.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.nodeTypes)
	})
	mux.HandleFunc("GET /types/credentials.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []any{})
	})
	mux.HandleFunc("POST /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectCreate != "" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"message": f.rejectCreate})
			return
		}
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"message": "malformed body"})
			return
		}
		f.nextID++
		id := fmt.Sprintf("wf-%d", f.nextID)
		doc["id"] = id
		f.workflows[id] = doc
		f.creates++
		writeJSON(w, doc)
	})
	mux.HandleFunc("GET /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := make([]map[string]any, 0, len(f.workflows))
		for _, wf := range f.workflows {
			list = append(list, wf)
		}
		writeJSON(w, map[string]any{"data": list, "nextCursor": nil})
	})
	mux.HandleFunc("GET /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		wf, ok := f.workflows[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"message": "workflow not found"})
			return
		}
		writeJSON(w, wf)
	})
	update := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"message": "malformed body"})
			return
		}
		merged := map[string]any{}
		for k, v := range f.workflows[id] {
			merged[k] = v
		}
		for k, v := range doc {
			merged[k] = v
		}
		merged["id"] = id
		f.workflows[id] = merged
		f.updates++
		writeJSON(w, merged)
	}
	mux.HandleFunc("PUT /api/v1/workflows/{id}", update)
	mux.HandleFunc("PATCH /api/v1/workflows/{id}", update)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.workflows[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"message": "workflow not found"})
			return
		}
		delete(f.workflows, id)
		f.deletes++
		writeJSON(w, map[string]any{})
	})
	mux.HandleFunc("POST /api/v1/workflows/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id": "exec-1", "workflowId": r.PathValue("id"),
			"status": "running", "mode": "manual",
		})
	})
	mux.HandleFunc("GET /api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []any{map[string]any{
				"id": "exec-1", "workflowId": "wf-1",
				"status": "success", "finished": true,
			}},
			"nextCursor": nil,
		})
	})
	mux.HandleFunc("GET /api/v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id": r.PathValue("id"), "status": "success", "finished": true,
		})
	})
	mux.HandleFunc("POST /api/v1/executions/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id": r.PathValue("id"), "status": "canceled", "finished": true,
		})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEngine) url() string { return f.srv.URL + "/api/v1" }

func (f *fakeEngine) counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.updates, f.deletes
}

func (f *fakeEngine) seedWorkflow(id string, doc map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc["id"] = id
	f.workflows[id] = doc
}

func (f *fakeEngine) setRejectCreate(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectCreate = msg
}

func (f *fakeEngine) setNodeTypes(types []n8n.NodeTypeDescription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodeTypes = types
}

// listenerState is a copyable view of everything a recordingListener saw.
type listenerState struct {
	synced    []catalog.Stats
	catErrs   []error
	passed    int
	failed    int
	created   []string
	deleted   []string
	decisions []router.Decision
}

// recordingListener captures every notification for assertions.
type recordingListener struct {
	mu sync.Mutex
	listenerState
}

func (l *recordingListener) OnCatalogSynced(stats catalog.Stats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.synced = append(l.synced, stats)
}

func (l *recordingListener) OnCatalogError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catErrs = append(l.catErrs, err)
}

func (l *recordingListener) OnValidationPassed(*validation.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.passed++
}

func (l *recordingListener) OnValidationFailed(*validation.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed++
}

func (l *recordingListener) OnWorkflowCreated(id, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, id)
}

func (l *recordingListener) OnWorkflowDeleted(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted = append(l.deleted, id)
}

func (l *recordingListener) OnRouteDecided(d router.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *recordingListener) snapshot() listenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return listenerState{
		synced:    append([]catalog.Stats(nil), l.synced...),
		catErrs:   append([]error(nil), l.catErrs...),
		passed:    l.passed,
		failed:    l.failed,
		created:   append([]string(nil), l.created...),
		deleted:   append([]string(nil), l.deleted...),
		decisions: append([]router.Decision(nil), l.decisions...),
	}
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Engine.BaseURL = baseURL
	cfg.Engine.APIKey = "test-key"
	cfg.Engine.RetryBaseMs = 1
	// Most tests exercise the static pipeline; the dry-run test flips this
	// back on.
	cfg.Validation.DryRun = false
	return cfg
}

func newCoordinator(t *testing.T, f *fakeEngine, mutate func(*config.Config), opts ...Option) *Coordinator {
	t.Helper()
	cfg := testConfig(f.url())
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithLogger(testLogger()), WithAdvisor(llm.NewHeuristic())}, opts...)
	c, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newConnected(t *testing.T, f *fakeEngine, mutate func(*config.Config), opts ...Option) *Coordinator {
	t.Helper()
	c := newCoordinator(t, f, mutate, opts...)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestNewUnknownBackend(t *testing.T) {
	f := newFakeEngine(t)
	cfg := testConfig(f.url())
	cfg.Memory.Backend = "etcd"

	_, err := New(context.Background(), cfg, WithLogger(testLogger()))
	if err == nil || !strings.Contains(err.Error(), "unknown memory backend") {
		t.Fatalf("err = %v, want unknown memory backend", err)
	}
}

func TestConnectSyncsCatalog(t *testing.T) {
	f := newFakeEngine(t)
	rec := &recordingListener{}
	c := newConnected(t, f, nil, WithListener(rec))

	stats := c.CatalogStats(context.Background())
	if stats.TotalNodes != len(defaultNodeTypes()) {
		t.Errorf("TotalNodes = %d, want %d", stats.TotalNodes, len(defaultNodeTypes()))
	}
	if stats.SyncSource != catalog.SourceAPI {
		t.Errorf("SyncSource = %q, want %q", stats.SyncSource, catalog.SourceAPI)
	}
	if stats.Triggers != 1 {
		t.Errorf("Triggers = %d, want 1", stats.Triggers)
	}

	got := rec.snapshot()
	if len(got.synced) != 1 {
		t.Fatalf("OnCatalogSynced calls = %d, want 1", len(got.synced))
	}
	if got.synced[0].TotalNodes != stats.TotalNodes {
		t.Errorf("listener saw %d nodes, stats report %d", got.synced[0].TotalNodes, stats.TotalNodes)
	}
}

func TestConnectEngineUnreachable(t *testing.T) {
	f := newFakeEngine(t)
	c := newCoordinator(t, f, nil)
	f.srv.Close()

	err := c.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connect") {
		t.Fatalf("err = %v, want connect failure", err)
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	f := newFakeEngine(t)
	cfg := testConfig(f.url())
	c, err := New(context.Background(), cfg, WithLogger(testLogger()), WithAdvisor(llm.NewHeuristic()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWithCollectorFeedsEngineMetrics(t *testing.T) {
	f := newFakeEngine(t)
	col := observability.NewCollector()
	c := newConnected(t, f, nil, WithCollector(col))

	if _, err := c.EngineHealth(context.Background()); err != nil {
		t.Fatalf("EngineHealth: %v", err)
	}

	// The health probe and the connect traffic all pass through the request
	// observer; serving the metrics page proves the families are populated.
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	col.Handler().ServeHTTP(rr, req)
	body := rr.Body.String()
	if !strings.Contains(body, "copilot_engine_requests_total") {
		t.Error("metrics page missing engine request counter")
	}
	if !strings.Contains(body, "copilot_catalog_nodes") {
		t.Error("metrics page missing catalog gauge")
	}
}
