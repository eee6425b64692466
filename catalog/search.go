package catalog

import (
	"sort"
	"strings"
)

// Search finds entries whose identifier, display name, or description
// contains the query, case-insensitively. Results are ordered by earliest
// match position, then display name; limit <= 0 means no limit.
func (c *Catalog) Search(query string, limit int) []NodeType {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	type hit struct {
		entry NodeType
		pos   int
	}
	snap := c.current.Load()
	hits := make([]hit, 0, 16)
	for _, entry := range snap.nodes {
		pos := matchPosition(entry, q)
		if pos < 0 {
			continue
		}
		hits = append(hits, hit{entry: entry, pos: pos})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].entry.DisplayName < hits[j].entry.DisplayName
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]NodeType, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out
}

// matchPosition returns the earliest index of q across the searchable
// fields, or -1 when absent from all of them.
func matchPosition(entry NodeType, q string) int {
	best := -1
	for _, field := range []string{entry.Name, entry.DisplayName, entry.Description} {
		if i := strings.Index(strings.ToLower(field), q); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// Triggers returns every trigger-like entry, ordered by display name.
func (c *Catalog) Triggers() []NodeType {
	return c.filter(func(n NodeType) bool { return n.IsTrigger })
}

// AINodes returns every AI-capable entry, ordered by display name.
func (c *Catalog) AINodes() []NodeType {
	return c.filter(func(n NodeType) bool { return n.IsAI })
}

func (c *Catalog) filter(keep func(NodeType) bool) []NodeType {
	snap := c.current.Load()
	out := make([]NodeType, 0, 16)
	for _, entry := range snap.nodes {
		if keep(entry) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}
