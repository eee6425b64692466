package catalog

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
)

func catalogWith(t *testing.T, descriptors ...n8n.NodeTypeDescription) *Catalog {
	t.Helper()
	cat := NewCatalog(&fakeEngine{types: descriptors, typeSource: SourceSession})
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}
	return cat
}

func TestSearchOrdersByMatchPosition(t *testing.T) {
	cat := catalogWith(t,
		descriptor("pkg-base.httpRequest", "HTTP Request"),
		descriptor("pkg-base.webhook", "Webhook", "trigger"),
		descriptor("pkg-base.respondToWebhook", "Respond to Webhook"),
	)

	results := cat.Search("webhook", 0)
	if len(results) != 2 {
		t.Fatalf("results = %v", names(results))
	}
	// "Webhook" matches its display name at position 0; "Respond to
	// Webhook" only at position 11.
	if results[0].Name != "pkg-base.webhook" {
		t.Errorf("order = %v", names(results))
	}
}

func TestSearchMatchesDisplayAndDescription(t *testing.T) {
	cat := catalogWith(t,
		n8n.NodeTypeDescription{Name: "pkg-base.set", DisplayName: "Edit Fields", Description: "Modify item fields"},
		n8n.NodeTypeDescription{Name: "pkg-base.code", DisplayName: "Code", Description: "Run custom code"},
	)

	byDisplay := cat.Search("edit fields", 0)
	if len(byDisplay) != 1 || byDisplay[0].Name != "pkg-base.set" {
		t.Errorf("display match = %v", names(byDisplay))
	}
	byDescription := cat.Search("custom code", 0)
	if len(byDescription) != 1 || byDescription[0].Name != "pkg-base.code" {
		t.Errorf("description match = %v", names(byDescription))
	}
	if got := cat.Search("WEBHOOK", 0); len(got) != 0 {
		t.Errorf("unexpected matches: %v", names(got))
	}
}

func TestSearchLimitAndEmptyQuery(t *testing.T) {
	cat := catalogWith(t,
		descriptor("pkg-base.a", "A"),
		descriptor("pkg-base.b", "B"),
		descriptor("pkg-base.c", "C"),
	)

	if got := cat.Search("pkg-base", 2); len(got) != 2 {
		t.Errorf("limit ignored: %v", names(got))
	}
	if got := cat.Search("   ", 0); got != nil {
		t.Errorf("blank query should return nothing, got %v", names(got))
	}
}

func TestTriggerAndAIFilters(t *testing.T) {
	cat := catalogWith(t,
		descriptor("pkg-base.webhook", "Webhook", "trigger"),
		descriptor("pkg-base.cron", "Cron", "trigger"),
		descriptor("pkg-base.set", "Set"),
		descriptor("@org/langchain.agent", "AI Agent", "ai"),
	)

	triggers := cat.Triggers()
	if len(triggers) != 2 {
		t.Errorf("triggers = %v", names(triggers))
	}
	if !sort.SliceIsSorted(triggers, func(i, j int) bool {
		return triggers[i].DisplayName < triggers[j].DisplayName
	}) {
		t.Error("triggers not ordered by display name")
	}

	ai := cat.AINodes()
	if len(ai) != 1 || ai[0].Name != "@org/langchain.agent" {
		t.Errorf("ai nodes = %v", names(ai))
	}
}

func names(entries []NodeType) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// Search output must be deterministically ordered by match position, then
// display name, for any snapshot contents.
func TestSearchOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genShort := gen.RegexMatch(`[a-z]{2,8}`)

	properties.Property("results ordered by (match position, display name)", prop.ForAll(
		func(shorts []string) bool {
			descriptors := make([]n8n.NodeTypeDescription, 0, len(shorts))
			seen := map[string]bool{}
			for _, s := range shorts {
				name := "pkg-base." + s
				if seen[name] {
					continue
				}
				seen[name] = true
				descriptors = append(descriptors, descriptor(name, strings.ToUpper(s[:1])+s[1:]))
			}
			cat := NewCatalog(&fakeEngine{types: descriptors, typeSource: SourceAPI})
			if err := cat.Refresh(context.Background()); err != nil {
				return false
			}

			results := cat.Search("e", 0)
			for i := 1; i < len(results); i++ {
				prev := matchPosition(results[i-1], "e")
				cur := matchPosition(results[i], "e")
				if prev > cur {
					return false
				}
				if prev == cur && results[i-1].DisplayName > results[i].DisplayName {
					return false
				}
			}
			// Every result actually matches.
			for _, r := range results {
				if matchPosition(r, "e") < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genShort),
	))

	properties.TestingRun(t)
}
