package n8n

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// Health reports the outcome of an engine liveness probe.
type Health struct {
	OK      bool   `json:"ok"`
	Version string `json:"version,omitempty"`
}

// WorkflowPage is one page of a workflow listing.
type WorkflowPage struct {
	Data       []workflow.Workflow `json:"data"`
	NextCursor *string             `json:"nextCursor"`
}

// ListWorkflowsOptions filters a workflow listing. Zero values are omitted
// from the query string.
type ListWorkflowsOptions struct {
	Active *bool
	Name   string
	Tags   string
	Limit  int
	Cursor string
}

// Execution is the engine's record of one workflow run.
type Execution struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Finished   bool           `json:"finished,omitempty"`
	StartedAt  string         `json:"startedAt,omitempty"`
	StoppedAt  string         `json:"stoppedAt,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// UnmarshalJSON tolerates numeric execution IDs, which older engines emit.
func (e *Execution) UnmarshalJSON(data []byte) error {
	type execution Execution
	aux := struct {
		ID json.RawMessage `json:"id"`
		*execution
	}{execution: (*execution)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.ID) > 0 {
		var s string
		if err := json.Unmarshal(aux.ID, &s); err == nil {
			e.ID = s
		} else {
			var n json.Number
			if err := json.Unmarshal(aux.ID, &n); err != nil {
				return fmt.Errorf("execution id must be a string or number")
			}
			e.ID = n.String()
		}
	}
	return nil
}

// ExecutionPage is one page of an execution listing.
type ExecutionPage struct {
	Data       []Execution `json:"data"`
	NextCursor *string     `json:"nextCursor"`
}

// ListExecutionsOptions filters an execution listing.
type ListExecutionsOptions struct {
	WorkflowID  string
	Status      string // success | error | waiting
	IncludeData bool
	Limit       int
	Cursor      string
}

// Credential is a stored engine credential (metadata only; secrets never
// leave the engine).
type Credential struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// CredentialPage is one page of a credential listing.
type CredentialPage struct {
	Data       []Credential `json:"data"`
	NextCursor *string      `json:"nextCursor"`
}

// ListCredentialsOptions filters a credential listing.
type ListCredentialsOptions struct {
	Limit  int
	Cursor string
}

// WebhookResult carries the raw outcome of a webhook trigger call.
type WebhookResult struct {
	Status int
	Body   []byte
}

// NodeTypeDescription is the engine's wire shape for one node type as served
// by the introspection endpoints. Several fields vary across engine versions,
// so the lenient list types below absorb both encodings.
type NodeTypeDescription struct {
	Name        string           `json:"name"`
	DisplayName string           `json:"displayName"`
	Description string           `json:"description,omitempty"`
	Version     VersionList      `json:"version,omitempty"`
	Defaults    map[string]any   `json:"defaults,omitempty"`
	Inputs      ChannelList      `json:"inputs,omitempty"`
	Outputs     ChannelList      `json:"outputs,omitempty"`
	Properties  []NodeProperty   `json:"properties,omitempty"`
	Credentials []CredentialSlot `json:"credentials,omitempty"`
	Group       []string         `json:"group,omitempty"`
	Codex       *Codex           `json:"codex,omitempty"`
}

// VersionList holds the supported type versions. The engine emits a bare
// number for single-version nodes and an array for multi-version ones.
type VersionList []float64

// UnmarshalJSON accepts 1, 1.1 or [1, 1.1, 2].
func (v *VersionList) UnmarshalJSON(data []byte) error {
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		*v = VersionList{single}
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("version must be a number or an array of numbers")
	}
	*v = VersionList(list)
	return nil
}

// Contains reports whether the list includes the given version. An empty
// list means the supported range is unknown and anything passes.
func (v VersionList) Contains(version float64) bool {
	if len(v) == 0 {
		return true
	}
	for _, x := range v {
		if x == version {
			return true
		}
	}
	return false
}

// ChannelList holds input/output channel names. Modern engines emit
// ["main"] or [{"type": "main", ...}]; both collapse to the channel name.
type ChannelList []string

// UnmarshalJSON accepts string elements, {type} objects, or a bare string.
func (c *ChannelList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.HasPrefix(single, "=") {
			// Expression-valued ports (version-dependent) cannot be
			// resolved statically; record them as dynamic.
			*c = ChannelList{"dynamic"}
			return nil
		}
		*c = ChannelList{single}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("channel list must be a string or array")
	}
	out := make(ChannelList, 0, len(raw))
	for _, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(el, &obj); err == nil && obj.Type != "" {
			out = append(out, obj.Type)
			continue
		}
		out = append(out, "dynamic")
	}
	*c = out
	return nil
}

// NodeProperty describes one configurable parameter of a node type.
type NodeProperty struct {
	Name           string           `json:"name"`
	DisplayName    string           `json:"displayName,omitempty"`
	Type           string           `json:"type,omitempty"`
	Default        any              `json:"default,omitempty"`
	Required       bool             `json:"required,omitempty"`
	Options        []PropertyOption `json:"options,omitempty"`
	DisplayOptions map[string]any   `json:"displayOptions,omitempty"`
}

// PropertyOption is one enumerated choice for a select-style property.
type PropertyOption struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// CredentialSlot names a credential requirement declared by a node type.
type CredentialSlot struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// Codex carries the engine's categorization metadata for a node type.
type Codex struct {
	Categories []string `json:"categories,omitempty"`
}

// CredentialTypeDescription is the wire shape for one credential type.
type CredentialTypeDescription struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"displayName"`
	Properties   []NodeProperty `json:"properties,omitempty"`
	Extends      []string       `json:"extends,omitempty"`
	Authenticate map[string]any `json:"authenticate,omitempty"`
}
