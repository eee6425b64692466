package validation

import "fmt"

// Layer identifiers, in pipeline order. Every issue names the layer that
// produced it.
const (
	LayerNodeRestrictions = "nodeRestrictions"
	LayerSchema           = "schema"
	LayerNodeExistence    = "nodeExistence"
	LayerConnections      = "connections"
	LayerCredentials      = "credentials"
	LayerSemantic         = "semantic"
	LayerDryRun           = "dryRun"
)

// Machine codes carried by blocking errors.
const (
	CodeNodeNotAllowed          = "NODE_NOT_ALLOWED"
	CodeSchemaError             = "SCHEMA_ERROR"
	CodeNodeNotFound            = "NODE_NOT_FOUND"
	CodeConnectionSourceMissing = "CONNECTION_SOURCE_MISSING"
	CodeConnectionTargetMissing = "CONNECTION_TARGET_MISSING"
	CodeCredentialMissing       = "CREDENTIAL_MISSING"
	CodeN8nRejected             = "N8N_REJECTED"
	CodeDryRunError             = "DRY_RUN_ERROR"
	CodeValidationException     = "VALIDATION_EXCEPTION"
)

// Machine codes carried by warnings.
const (
	CodeSchemaWarning         = "SCHEMA_WARNING"
	CodeCatalogNotReady       = "CATALOG_NOT_READY"
	CodeOrphanNode            = "ORPHAN_NODE"
	CodeCredentialTypeUnknown = "CREDENTIAL_TYPE_UNKNOWN"
	CodeSemanticIssue         = "SEMANTIC_ISSUE"
	CodeSemanticError         = "SEMANTIC_ERROR"
	CodeCleanupFailed         = "CLEANUP_FAILED"
)

// Issue is one validation finding. Errors and warnings share the shape; the
// list an issue appears in decides which one it is.
type Issue struct {
	Layer      string `json:"layer"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (i Issue) String() string {
	if i.Path != "" {
		return fmt.Sprintf("[%s] %s at %s: %s", i.Layer, i.Code, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Layer, i.Code, i.Message)
}

// Result is the outcome of one validation run. Valid implies every layer in
// PassedLayers ran and found no errors; warnings never affect Valid.
type Result struct {
	Valid        bool     `json:"valid"`
	Errors       []Issue  `json:"errors"`
	Warnings     []Issue  `json:"warnings"`
	PassedLayers []string `json:"passedLayers"`
	FailedLayer  string   `json:"failedLayer,omitempty"`
	DryRunID     string   `json:"dryRunID,omitempty"`
	ElapsedMs    int64    `json:"elapsedMs"`
	Cached       bool     `json:"cached"`
}

// Admissible reports whether the result clears admission for deployment.
// Strict mode refuses results that carry warnings even when they are valid.
func (r *Result) Admissible(strict bool) bool {
	if !r.Valid {
		return false
	}
	return !strict || len(r.Warnings) == 0
}
