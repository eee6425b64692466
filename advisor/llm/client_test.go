package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/advisor"
)

func messagesServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": reply}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAnalysisClient(t *testing.T, reply string) *Client {
	t.Helper()
	srv := messagesServer(t, reply)
	client, err := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func sampleSummary() advisor.WorkflowSummary {
	return advisor.WorkflowSummary{
		Name: "greeter",
		Nodes: []advisor.NodeSummary{
			{Name: "Hook", Type: "pkg-base.webhook", ParameterCount: 2},
			{Name: "Set", Type: "pkg-base.set", ParameterCount: 1},
		},
		Edges: []advisor.Edge{{Source: "Hook", Target: "Set", Channel: "main"}},
	}
}

func TestAnalyzeWorkflowLogic(t *testing.T) {
	client := testAnalysisClient(t, `{"valid": true, "confidence": 0.85,
		"issues": [{"severity": "warning", "message": "no error handling", "path": "nodes.Set"}],
		"suggestions": ["add an error branch"], "summary": "looks plausible"}`)

	analysis, err := client.AnalyzeWorkflowLogic(context.Background(), sampleSummary())
	if err != nil {
		t.Fatalf("AnalyzeWorkflowLogic: %v", err)
	}
	if !analysis.Valid || analysis.Confidence != 0.85 {
		t.Errorf("analysis = %+v", analysis)
	}
	if len(analysis.Issues) != 1 || analysis.Issues[0].Severity != advisor.SeverityWarning {
		t.Errorf("issues = %+v", analysis.Issues)
	}
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	client := testAnalysisClient(t, "Here is my review:\n```json\n{\"valid\": false, \"confidence\": 0.7, \"summary\": \"broken\"}\n```\nDone.")

	analysis, err := client.AnalyzeWorkflowLogic(context.Background(), sampleSummary())
	if err != nil {
		t.Fatalf("AnalyzeWorkflowLogic: %v", err)
	}
	if analysis.Valid || analysis.Summary != "broken" {
		t.Errorf("analysis = %+v", analysis)
	}
}

func TestAnalyzeFailsWithoutJSON(t *testing.T) {
	client := testAnalysisClient(t, "I cannot review this workflow.")

	if _, err := client.AnalyzeWorkflowLogic(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error for prose-only response")
	}
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error"}}`))
	}))
	defer srv.Close()
	client, _ := NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL})

	if _, err := client.AnalyzeWorkflowLogic(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected API error")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestRecommendNodes(t *testing.T) {
	client := testAnalysisClient(t, `["pkg-base.httpRequest", "pkg-base.set"]`)

	picks, err := client.RecommendNodes(context.Background(), "call an API", []string{"pkg-base.httpRequest", "pkg-base.set", "pkg-base.code"})
	if err != nil {
		t.Fatalf("RecommendNodes: %v", err)
	}
	if len(picks) != 2 || picks[0] != "pkg-base.httpRequest" {
		t.Errorf("picks = %v", picks)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"prefix {\"a\": {\"b\": 2}} suffix", `{"a": {"b": 2}}`},
		{"```json\n[1,2]\n```", "[1,2]"},
		{`text with {"s": "brace } in string"} here`, `{"s": "brace } in string"}`},
		{"no json here", ""},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
