package workflow

import "testing"

func TestReduceWellFormedDocument(t *testing.T) {
	red, ok := Reduce(validDoc())
	if !ok {
		t.Fatal("expected reduction of a well-formed document")
	}
	if len(red.Nodes) != 2 {
		t.Fatalf("node refs = %d, want 2", len(red.Nodes))
	}
	if red.Nodes[0].Name != "Webhook" || red.Nodes[0].Type != "pkg-base.webhook" {
		t.Errorf("first ref = %+v", red.Nodes[0])
	}
	if red.Nodes[1].Index != 1 {
		t.Errorf("second ref index = %d, want 1", red.Nodes[1].Index)
	}
	if red.ConnectionCount != 1 {
		t.Errorf("ConnectionCount = %d, want 1", red.ConnectionCount)
	}
}

func TestReduceMalformedContent(t *testing.T) {
	// Broken nodes and connections must not stop the reduction; the pairs
	// keep their positions with whatever fields were readable.
	doc := map[string]any{
		"nodes": []any{
			"not an object",
			map[string]any{"name": "Set"},
			map[string]any{"type": "pkg-base.code"},
		},
		"connections": map[string]any{
			"Set":    "not channels",
			"Orphan": map[string]any{"main": []any{[]any{map[string]any{"node": "X"}, map[string]any{"node": "Y"}}, nil}},
		},
	}
	red, ok := Reduce(doc)
	if !ok {
		t.Fatal("expected reduction despite malformed content")
	}
	if len(red.Nodes) != 3 {
		t.Fatalf("node refs = %d, want 3", len(red.Nodes))
	}
	if red.Nodes[0].Name != "" || red.Nodes[0].Type != "" {
		t.Errorf("non-object entry should reduce to an empty ref, got %+v", red.Nodes[0])
	}
	if red.Nodes[1].Name != "Set" || red.Nodes[2].Type != "pkg-base.code" {
		t.Errorf("partial refs not preserved: %+v", red.Nodes)
	}
	if red.ConnectionCount != 2 {
		t.Errorf("ConnectionCount = %d, want 2", red.ConnectionCount)
	}
}

func TestReduceRejectsNonObjects(t *testing.T) {
	for _, doc := range []any{nil, "[]", []any{}, 42} {
		if _, ok := Reduce(doc); ok {
			t.Errorf("Reduce(%v) accepted a non-object", doc)
		}
	}
}

func TestReduceAcceptsCanonicalForm(t *testing.T) {
	wf, report := Parse(validDoc())
	if !report.OK() {
		t.Fatalf("parse problems: %v", report.Problems)
	}
	red, ok := Reduce(wf)
	if !ok {
		t.Fatal("expected reduction of a canonical workflow")
	}
	if len(red.Nodes) != len(wf.Nodes) || red.ConnectionCount != wf.ConnectionCount() {
		t.Errorf("reduction disagrees with canonical form: %+v", red)
	}
}
