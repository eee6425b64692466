// Package workflow defines the canonical in-memory representation of an n8n
// workflow document: a set of named, typed nodes plus a connections map keyed
// by source node name. Arbitrary agent input is converted into this form by
// Parse; everything downstream (validation layers, the engine client, the
// router) operates on the canonical form only.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Connection channel names supported by the engine. "main" carries item data;
// the ai_* channels attach sub-nodes (tools, memory, models) to AI roots.
const (
	ChannelMain          = "main"
	ChannelAITool        = "ai_tool"
	ChannelAIAgent       = "ai_agent"
	ChannelAIMemory      = "ai_memory"
	ChannelAIOutputParse = "ai_outputParser"
	ChannelAILanguage    = "ai_languageModel"
	ChannelAIDocument    = "ai_document"
	ChannelAIEmbedding   = "ai_embedding"
	ChannelAIRetriever   = "ai_retriever"
	ChannelAISplitter    = "ai_textSplitter"
	ChannelAIVectorStore = "ai_vectorStore"
)

// Execution ordering policies accepted in workflow settings.
const (
	ExecutionOrderV0 = "v0"
	ExecutionOrderV1 = "v1"
)

var validChannels = map[string]bool{
	ChannelMain:          true,
	ChannelAITool:        true,
	ChannelAIAgent:       true,
	ChannelAIMemory:      true,
	ChannelAIOutputParse: true,
	ChannelAILanguage:    true,
	ChannelAIDocument:    true,
	ChannelAIEmbedding:   true,
	ChannelAIRetriever:   true,
	ChannelAISplitter:    true,
	ChannelAIVectorStore: true,
}

// ValidChannel reports whether name is one of the enumerated connection
// channels.
func ValidChannel(name string) bool { return validChannels[name] }

// Channels returns the enumerated connection channel names.
func Channels() []string {
	return []string{
		ChannelMain, ChannelAITool, ChannelAIAgent, ChannelAIMemory,
		ChannelAIOutputParse, ChannelAILanguage, ChannelAIDocument,
		ChannelAIEmbedding, ChannelAIRetriever, ChannelAISplitter,
		ChannelAIVectorStore,
	}
}

// Workflow is the canonical workflow document. The engine assigns ID,
// VersionID and the timestamps; they are read-only from this side.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Active      bool           `json:"active,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Connections Connections    `json:"connections"`
	Settings    *Settings      `json:"settings,omitempty"`
	Tags        []Tag          `json:"tags,omitempty"`
	StaticData  map[string]any `json:"staticData,omitempty"`
	PinData     map[string]any `json:"pinData,omitempty"`
	VersionID   string         `json:"versionId,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// Node is one step in a workflow. Name is unique within the document; Type is
// the dotted node-type identifier resolved against the live catalog.
type Node struct {
	ID             string                   `json:"id,omitempty"`
	Name           string                   `json:"name"`
	Type           string                   `json:"type"`
	TypeVersion    float64                  `json:"typeVersion,omitempty"`
	Position       Position                 `json:"position"`
	Parameters     map[string]any           `json:"parameters"`
	Credentials    map[string]CredentialRef `json:"credentials,omitempty"`
	Disabled       bool                     `json:"disabled,omitempty"`
	ContinueOnFail bool                     `json:"continueOnFail,omitempty"`
	RetryOnFail    bool                     `json:"retryOnFail,omitempty"`
	MaxTries       int                      `json:"maxTries,omitempty"`
	ExecuteOnce    bool                     `json:"executeOnce,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
}

// Position is a node's 2D canvas location. It marshals as the engine's
// two-element array form; unmarshaling also accepts an {x,y} object.
type Position struct {
	X float64
	Y float64
}

// MarshalJSON encodes the position as [x, y].
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON accepts either [x, y] or {"x": ..., "y": ...}.
func (p *Position) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("position must have exactly 2 elements, got %d", len(arr))
		}
		p.X, p.Y = arr[0], arr[1]
		return nil
	}
	var obj struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("position must be a [x,y] pair or {x,y} object")
	}
	if obj.X == nil || obj.Y == nil {
		return fmt.Errorf("position object requires both x and y")
	}
	p.X, p.Y = *obj.X, *obj.Y
	return nil
}

// CredentialRef points a credential slot at a stored engine credential.
// Older engine versions send a bare name string; newer ones an {id, name}
// object. Both unmarshal; marshaling always emits the object form.
type CredentialRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts "name" or {"id": ..., "name": ...}.
func (c *CredentialRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.ID, c.Name = "", s
		return nil
	}
	type ref CredentialRef
	var r ref
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("credential reference must be a string or {id, name} object")
	}
	*c = CredentialRef(r)
	return nil
}

// Empty reports whether the reference carries neither an ID nor a name.
func (c CredentialRef) Empty() bool { return c.ID == "" && c.Name == "" }

// Tag labels a workflow. The engine sends tag objects; agents may supply bare
// strings.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts "name" or {"id": ..., "name": ...}.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.ID, t.Name = "", s
		return nil
	}
	type tag Tag
	var raw tag
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tag must be a string or {id, name} object")
	}
	*t = Tag(raw)
	return nil
}

// Endpoint is one side of a directed edge: the target node plus the channel
// and input index it connects into.
type Endpoint struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// ChannelConnections maps a channel name to its output slots; each slot holds
// the endpoints fed by that output index.
type ChannelConnections map[string][][]Endpoint

// Connections maps a source node name to its outgoing edges per channel.
type Connections map[string]ChannelConnections

// Settings holds workflow-level execution options.
type Settings struct {
	ExecutionOrder           string `json:"executionOrder,omitempty"`
	Timezone                 string `json:"timezone,omitempty"`
	ExecutionTimeout         int    `json:"executionTimeout,omitempty"`
	ErrorWorkflow            string `json:"errorWorkflow,omitempty"`
	SaveDataErrorExecution   string `json:"saveDataErrorExecution,omitempty"`
	SaveDataSuccessExecution string `json:"saveDataSuccessExecution,omitempty"`
	SaveManualExecutions     bool   `json:"saveManualExecutions,omitempty"`
	SaveExecutionProgress    bool   `json:"saveExecutionProgress,omitempty"`
}

// NodeByName returns the node with the given name, or nil.
func (w *Workflow) NodeByName(name string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i]
		}
	}
	return nil
}

// NodeNames returns node names in document order.
func (w *Workflow) NodeNames() []string {
	names := make([]string, len(w.Nodes))
	for i := range w.Nodes {
		names[i] = w.Nodes[i].Name
	}
	return names
}

// ConnectionCount returns the total number of directed edges (endpoints)
// across all channels.
func (w *Workflow) ConnectionCount() int {
	n := 0
	for _, chans := range w.Connections {
		for _, slots := range chans {
			for _, endpoints := range slots {
				n += len(endpoints)
			}
		}
	}
	return n
}

// Clone returns a deep copy. Parameter and static-data maps are copied via a
// JSON round-trip so the copy shares no mutable state with the original.
func (w *Workflow) Clone() *Workflow {
	data, err := json.Marshal(w)
	if err != nil {
		// The canonical form is always marshalable; a failure here means
		// a caller smuggled in an unserializable parameter value.
		panic(fmt.Sprintf("workflow: clone marshal: %v", err))
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("workflow: clone unmarshal: %v", err))
	}
	return &out
}

// IsTriggerType reports whether a node-type identifier looks like an entry
// point: the identifier mentions trigger or webhook. Catalog group tags give
// a stronger answer when a snapshot is available.
func IsTriggerType(nodeType string) bool {
	lower := strings.ToLower(nodeType)
	return strings.Contains(lower, "trigger") || strings.Contains(lower, "webhook")
}

// HasTrigger reports whether any node in the workflow looks like a trigger.
func (w *Workflow) HasTrigger() bool {
	for i := range w.Nodes {
		if IsTriggerType(w.Nodes[i].Type) {
			return true
		}
	}
	return false
}

// ShortName returns the last dotted segment of a node-type identifier
// ("pkg-base.httpRequest" -> "httpRequest"). Used for catalog suggestion
// searches on unknown types.
func ShortName(nodeType string) string {
	if i := strings.LastIndex(nodeType, "."); i >= 0 {
		return nodeType[i+1:]
	}
	return nodeType
}
