package catalog

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/n8n"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// NodeType is one catalog entry, keyed by the full type identifier
// ("pkg-base.httpRequest"). Entries are immutable once published in a
// snapshot.
type NodeType struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"displayName"`
	Description string               `json:"description,omitempty"`
	Versions    []float64            `json:"versions,omitempty"`
	Inputs      []string             `json:"inputs,omitempty"`
	Outputs     []string             `json:"outputs,omitempty"`
	Properties  []n8n.NodeProperty   `json:"properties,omitempty"`
	Credentials []n8n.CredentialSlot `json:"credentials,omitempty"`
	Groups      []string             `json:"groups,omitempty"`
	Categories  []string             `json:"categories,omitempty"`
	IsTrigger   bool                 `json:"isTrigger"`
	IsAI        bool                 `json:"isAI"`
}

// CredentialType is one credential-type descriptor from the engine.
type CredentialType struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Extends     []string `json:"extends,omitempty"`
}

// SupportsVersion reports whether v is a published version of the type.
// Entries with no version information accept anything.
func (n NodeType) SupportsVersion(v float64) bool {
	if len(n.Versions) == 0 {
		return true
	}
	for _, have := range n.Versions {
		if have == v {
			return true
		}
	}
	return false
}

// ShortName returns the identifier's last dotted segment.
func (n NodeType) ShortName() string {
	return workflow.ShortName(n.Name)
}

// fromDescriptor converts an engine node-type descriptor to a catalog entry.
func fromDescriptor(d n8n.NodeTypeDescription) NodeType {
	entry := NodeType{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Description: d.Description,
		Versions:    append([]float64(nil), d.Version...),
		Inputs:      append([]string(nil), d.Inputs...),
		Outputs:     append([]string(nil), d.Outputs...),
		Properties:  d.Properties,
		Credentials: d.Credentials,
		Groups:      append([]string(nil), d.Group...),
	}
	if d.Codex != nil {
		entry.Categories = append([]string(nil), d.Codex.Categories...)
	}
	if entry.DisplayName == "" {
		entry.DisplayName = humanize(workflow.ShortName(d.Name))
	}
	sort.Float64s(entry.Versions)
	entry.IsTrigger = isTrigger(entry)
	entry.IsAI = isAI(entry)
	return entry
}

// synthesizeEntry builds a minimal entry for a type discovered only through
// the workflow scan: identifier, display name, observed versions, and main
// channels. Property descriptors stay empty.
func synthesizeEntry(typeID string, versions []float64) NodeType {
	sort.Float64s(versions)
	entry := NodeType{
		Name:        typeID,
		DisplayName: humanize(workflow.ShortName(typeID)),
		Versions:    versions,
		Inputs:      []string{workflow.ChannelMain},
		Outputs:     []string{workflow.ChannelMain},
	}
	entry.IsTrigger = isTrigger(entry)
	entry.IsAI = isAI(entry)
	return entry
}

func isTrigger(n NodeType) bool {
	for _, g := range n.Groups {
		if strings.EqualFold(g, "trigger") {
			return true
		}
	}
	return workflow.IsTriggerType(n.Name)
}

func isAI(n NodeType) bool {
	for _, g := range n.Groups {
		if strings.EqualFold(g, "ai") {
			return true
		}
	}
	for _, c := range n.Categories {
		if strings.Contains(c, "AI") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(n.Name), "langchain")
}

// humanize turns a camelCase short name into a display label
// ("httpRequest" -> "Http Request").
func humanize(short string) string {
	var b strings.Builder
	for i, r := range short {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteByte(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
