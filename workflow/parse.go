package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Problem records a single structural defect with the path to the offending
// field and a human-readable message.
type Problem struct {
	Path    string // dot-separated path (e.g. "nodes.HTTP Request.position")
	Message string
}

func (p Problem) String() string {
	if p.Path != "" {
		return fmt.Sprintf("%s: %s", p.Path, p.Message)
	}
	return p.Message
}

// ParseReport collects the blocking problems and advisory warnings found
// while converting a document into canonical form.
type ParseReport struct {
	Problems []Problem
	Warnings []Problem
}

// OK reports whether the document parsed without blocking problems.
func (r *ParseReport) OK() bool { return len(r.Problems) == 0 }

func (r *ParseReport) problem(path, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ParseReport) warn(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Parse converts an arbitrary document into the canonical Workflow form,
// accumulating every structural defect rather than stopping at the first.
// Accepted inputs: *Workflow, Workflow, map[string]any, []byte,
// json.RawMessage, or a JSON string. The returned workflow is the best-effort
// canonical form; it is only meaningful when report.OK().
func Parse(doc any) (*Workflow, *ParseReport) {
	report := &ParseReport{}

	m, ok := toMap(doc)
	if !ok {
		report.problem("", "workflow must be a JSON object")
		return nil, report
	}

	wf := &Workflow{}
	parseTop(m, wf, report)
	parseNodes(m, wf, report)
	parseConnections(m, wf, report)
	parseSettings(m, wf, report)

	if report.OK() {
		structuralWarnings(wf, report)
	}
	return wf, report
}

// toMap normalizes the accepted input types to a generic JSON object. Typed
// inputs round-trip through encoding/json so the one lenient path below
// handles every case.
func toMap(doc any) (map[string]any, bool) {
	switch v := doc.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case *Workflow:
		return remarshal(v)
	case Workflow:
		return remarshal(&v)
	case json.RawMessage:
		return unmarshalMap([]byte(v))
	case []byte:
		return unmarshalMap(v)
	case string:
		return unmarshalMap([]byte(v))
	default:
		return remarshal(v)
	}
}

func remarshal(v any) (map[string]any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return unmarshalMap(data)
}

func unmarshalMap(data []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func parseTop(m map[string]any, wf *Workflow, report *ParseReport) {
	name, _ := asString(m["name"])
	if strings.TrimSpace(name) == "" {
		report.problem("name", "workflow name is required")
	}
	wf.Name = name

	if id, ok := asString(m["id"]); ok {
		wf.ID = id
	}
	if active, ok := m["active"].(bool); ok {
		wf.Active = active
	}
	if sd, ok := m["staticData"].(map[string]any); ok {
		wf.StaticData = sd
	}
	if pd, ok := m["pinData"].(map[string]any); ok {
		wf.PinData = pd
	}
	if rawTags, ok := m["tags"].([]any); ok {
		for i, rt := range rawTags {
			switch t := rt.(type) {
			case string:
				wf.Tags = append(wf.Tags, Tag{Name: t})
			case map[string]any:
				tag := Tag{}
				tag.ID, _ = asString(t["id"])
				tag.Name, _ = asString(t["name"])
				wf.Tags = append(wf.Tags, tag)
			default:
				report.problem(fmt.Sprintf("tags[%d]", i), "tag must be a string or {id, name} object")
			}
		}
	}
}

func parseNodes(m map[string]any, wf *Workflow, report *ParseReport) {
	rawNodes, ok := m["nodes"].([]any)
	if !ok || len(rawNodes) == 0 {
		report.problem("nodes", "workflow requires at least one node")
		return
	}

	seen := make(map[string]int) // name -> index of first occurrence
	for i, rn := range rawNodes {
		nm, ok := rn.(map[string]any)
		if !ok {
			report.problem(fmt.Sprintf("nodes[%d]", i), "node must be an object")
			continue
		}

		node := Node{TypeVersion: 1, Parameters: map[string]any{}}
		prefix := fmt.Sprintf("nodes[%d]", i)

		// name is required and unique within the document
		name, _ := asString(nm["name"])
		if strings.TrimSpace(name) == "" {
			report.problem(prefix+".name", "node name is required")
		} else {
			prefix = "nodes." + name
			if firstIdx, exists := seen[name]; exists {
				report.problem(prefix+".name",
					fmt.Sprintf("duplicate node name %q (first defined at nodes[%d])", name, firstIdx))
			} else {
				seen[name] = i
			}
		}
		node.Name = name

		// type is required; existence against the catalog is a later concern
		typ, _ := asString(nm["type"])
		if strings.TrimSpace(typ) == "" {
			report.problem(prefix+".type", "node type is required")
		}
		node.Type = typ

		if tv, ok := asNumber(nm["typeVersion"]); ok {
			node.TypeVersion = tv
		}
		if id, ok := asString(nm["id"]); ok {
			node.ID = id
		}
		if params, ok := nm["parameters"].(map[string]any); ok {
			node.Parameters = params
		}
		if raw, exists := nm["position"]; exists {
			pos, ok := asPosition(raw)
			if !ok {
				report.problem(prefix+".position", "position must be a [x,y] pair or {x,y} object")
			} else {
				node.Position = pos
			}
		}
		if rawCreds, ok := nm["credentials"].(map[string]any); ok {
			node.Credentials = make(map[string]CredentialRef, len(rawCreds))
			for slot, rc := range rawCreds {
				switch c := rc.(type) {
				case string:
					node.Credentials[slot] = CredentialRef{Name: c}
				case map[string]any:
					ref := CredentialRef{}
					ref.ID, _ = asString(c["id"])
					ref.Name, _ = asString(c["name"])
					node.Credentials[slot] = ref
				case nil:
					node.Credentials[slot] = CredentialRef{}
				default:
					report.problem(fmt.Sprintf("%s.credentials.%s", prefix, slot),
						"credential reference must be a string or {id, name} object")
				}
			}
		}
		if b, ok := nm["disabled"].(bool); ok {
			node.Disabled = b
		}
		if b, ok := nm["continueOnFail"].(bool); ok {
			node.ContinueOnFail = b
		}
		if b, ok := nm["retryOnFail"].(bool); ok {
			node.RetryOnFail = b
		}
		if n, ok := asNumber(nm["maxTries"]); ok {
			node.MaxTries = int(n)
		}
		if b, ok := nm["executeOnce"].(bool); ok {
			node.ExecuteOnce = b
		}
		if s, ok := asString(nm["notes"]); ok {
			node.Notes = s
		}

		wf.Nodes = append(wf.Nodes, node)
	}
}

func parseConnections(m map[string]any, wf *Workflow, report *ParseReport) {
	wf.Connections = Connections{}
	raw, exists := m["connections"]
	if !exists || raw == nil {
		return
	}
	rawConns, ok := raw.(map[string]any)
	if !ok {
		report.problem("connections", "connections must be an object keyed by source node name")
		return
	}

	for src, rawChans := range rawConns {
		chansMap, ok := rawChans.(map[string]any)
		if !ok {
			report.problem("connections."+src, "node connections must be an object keyed by channel")
			continue
		}
		channels := ChannelConnections{}
		for channel, rawSlots := range chansMap {
			if !ValidChannel(channel) {
				report.problem(fmt.Sprintf("connections.%s.%s", src, channel),
					fmt.Sprintf("unknown connection channel %q", channel))
				continue
			}
			slots, ok := rawSlots.([]any)
			if !ok {
				report.problem(fmt.Sprintf("connections.%s.%s", src, channel),
					"channel value must be a list of endpoint lists")
				continue
			}
			parsed := make([][]Endpoint, 0, len(slots))
			for si, rawSlot := range slots {
				slotList, ok := rawSlot.([]any)
				if !ok {
					// A slot with no fan-out may be encoded as null.
					if rawSlot == nil {
						parsed = append(parsed, nil)
						continue
					}
					report.problem(fmt.Sprintf("connections.%s.%s[%d]", src, channel, si),
						"output slot must be a list of {node, type?, index?} endpoints")
					continue
				}
				endpoints := make([]Endpoint, 0, len(slotList))
				for ei, rawEP := range slotList {
					epm, ok := rawEP.(map[string]any)
					if !ok {
						report.problem(fmt.Sprintf("connections.%s.%s[%d][%d]", src, channel, si, ei),
							"endpoint must be a {node, type?, index?} object")
						continue
					}
					ep := Endpoint{Type: ChannelMain}
					target, _ := asString(epm["node"])
					if strings.TrimSpace(target) == "" {
						report.problem(fmt.Sprintf("connections.%s.%s[%d][%d].node", src, channel, si, ei),
							"endpoint node name is required")
						continue
					}
					ep.Node = target
					if t, ok := asString(epm["type"]); ok && t != "" {
						ep.Type = t
					}
					if idx, ok := asNumber(epm["index"]); ok {
						ep.Index = int(idx)
					}
					endpoints = append(endpoints, ep)
				}
				parsed = append(parsed, endpoints)
			}
			channels[channel] = parsed
		}
		if len(channels) > 0 {
			wf.Connections[src] = channels
		}
	}
}

func parseSettings(m map[string]any, wf *Workflow, report *ParseReport) {
	raw, exists := m["settings"]
	if !exists || raw == nil {
		return
	}
	sm, ok := raw.(map[string]any)
	if !ok {
		report.problem("settings", "settings must be an object")
		return
	}
	s := &Settings{}
	if order, ok := asString(sm["executionOrder"]); ok && order != "" {
		if order != ExecutionOrderV0 && order != ExecutionOrderV1 {
			report.problem("settings.executionOrder",
				fmt.Sprintf("execution order must be %q or %q, got %q", ExecutionOrderV0, ExecutionOrderV1, order))
		}
		s.ExecutionOrder = order
	}
	if tz, ok := asString(sm["timezone"]); ok {
		s.Timezone = tz
	}
	if n, ok := asNumber(sm["executionTimeout"]); ok {
		s.ExecutionTimeout = int(n)
	}
	if ew, ok := asString(sm["errorWorkflow"]); ok {
		s.ErrorWorkflow = ew
	}
	if v, ok := asString(sm["saveDataErrorExecution"]); ok {
		s.SaveDataErrorExecution = v
	}
	if v, ok := asString(sm["saveDataSuccessExecution"]); ok {
		s.SaveDataSuccessExecution = v
	}
	if b, ok := sm["saveManualExecutions"].(bool); ok {
		s.SaveManualExecutions = b
	}
	if b, ok := sm["saveExecutionProgress"].(bool); ok {
		s.SaveExecutionProgress = b
	}
	wf.Settings = s
}

// structuralWarnings flags suspicious-but-legal shapes: a workflow without
// any trigger-like node cannot start on its own, and a single non-webhook
// node is usually an unfinished draft.
func structuralWarnings(wf *Workflow, report *ParseReport) {
	if !wf.HasTrigger() {
		report.warn("nodes", "workflow has no trigger node; it can only be started manually")
	}
	if len(wf.Nodes) == 1 && !strings.Contains(strings.ToLower(wf.Nodes[0].Type), "webhook") {
		report.warn("nodes."+wf.Nodes[0].Name, "workflow contains a single non-webhook node; it likely does nothing useful yet")
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asPosition(v any) (Position, bool) {
	switch pos := v.(type) {
	case []any:
		if len(pos) != 2 {
			return Position{}, false
		}
		x, okX := asNumber(pos[0])
		y, okY := asNumber(pos[1])
		if !okX || !okY {
			return Position{}, false
		}
		return Position{X: x, Y: y}, true
	case map[string]any:
		x, okX := asNumber(pos["x"])
		y, okY := asNumber(pos["y"])
		if !okX || !okY {
			return Position{}, false
		}
		return Position{X: x, Y: y}, true
	default:
		return Position{}, false
	}
}
