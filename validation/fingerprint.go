package validation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/workflow"
)

// DefaultProfile labels validation runs that pass no explicit profile.
const DefaultProfile = "default"

// cacheKeyPrefix namespaces validation results in shared memory.
const cacheKeyPrefix = "validation-cache:"

// Fingerprint hashes the stable reduction of a document under a profile
// label: the (name, type) pair sequence in document order, the node count and
// the connection count. Node parameters do not participate in the hash.
func Fingerprint(profile string, r *workflow.Reduction) string {
	h := sha256.New()
	io.WriteString(h, profile)
	h.Write([]byte{0})
	for _, ref := range r.Nodes {
		io.WriteString(h, ref.Name)
		h.Write([]byte{1})
		io.WriteString(h, ref.Type)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d/%d", len(r.Nodes), r.ConnectionCount)
	return hex.EncodeToString(h.Sum(nil))
}

func cacheKey(fingerprint string) string {
	return cacheKeyPrefix + fingerprint
}
