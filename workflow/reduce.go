package workflow

// NodeRef identifies one node mentioned by a document that has not passed
// structural validation yet. Name and Type may be empty when the document is
// malformed; Index is the position in the nodes array.
type NodeRef struct {
	Index int
	Name  string
	Type  string
}

// Reduction is a stable digest of a workflow document: the (name, type) pair
// of every node in document order plus the raw endpoint count. It is
// computable for malformed documents, so restriction checks and cache keys
// work before structural validation has run.
type Reduction struct {
	Nodes           []NodeRef
	ConnectionCount int
}

// Reduce extracts the reduction from an arbitrary document. It accepts the
// same inputs as Parse and tolerates any malformed content; ok is false only
// when the document is not a JSON object at all.
func Reduce(doc any) (*Reduction, bool) {
	m, ok := toMap(doc)
	if !ok {
		return nil, false
	}
	r := &Reduction{}
	if rawNodes, ok := m["nodes"].([]any); ok {
		r.Nodes = make([]NodeRef, 0, len(rawNodes))
		for i, rn := range rawNodes {
			ref := NodeRef{Index: i}
			if nm, ok := rn.(map[string]any); ok {
				ref.Name, _ = asString(nm["name"])
				ref.Type, _ = asString(nm["type"])
			}
			r.Nodes = append(r.Nodes, ref)
		}
	}
	rawConns, ok := m["connections"].(map[string]any)
	if !ok {
		return r, true
	}
	for _, rawChans := range rawConns {
		chans, ok := rawChans.(map[string]any)
		if !ok {
			continue
		}
		for _, rawSlots := range chans {
			slots, ok := rawSlots.([]any)
			if !ok {
				continue
			}
			for _, rawSlot := range slots {
				if endpoints, ok := rawSlot.([]any); ok {
					r.ConnectionCount += len(endpoints)
				}
			}
		}
	}
	return r, true
}
