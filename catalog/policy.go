package catalog

import (
	"fmt"
	"strings"
)

// PolicyConfig controls which node types are admitted into the catalog and
// accepted by validation.
type PolicyConfig struct {
	// OfficialPrefixes are identifier prefixes always admitted.
	OfficialPrefixes []string `yaml:"officialPrefixes" json:"officialPrefixes"`
	// AllowCommunity admits every identifier regardless of prefix.
	AllowCommunity bool `yaml:"allowCommunity" json:"allowCommunity"`
	// AllowList admits specific identifiers even when not official.
	AllowList []string `yaml:"allowList" json:"allowList"`
}

// DefaultPolicyConfig admits only the official packages.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		OfficialPrefixes: []string{"pkg-base.", "@org/langchain.", "pkg-langchain."},
	}
}

// Policy is the node restriction filter. Checks are pure and safe for
// concurrent use.
type Policy struct {
	prefixes  []string
	community bool
	allow     map[string]struct{}
}

// Decision is the outcome of one policy check.
type Decision struct {
	Allowed      bool
	Reason       string
	Alternatives []string
}

// blockedAlternatives suggests official replacements for known community
// packages, keyed by the package segment of the identifier.
var blockedAlternatives = map[string][]string{
	"community-pkg":    {"pkg-base.httpRequest", "pkg-base.code", "pkg-base.webhook"},
	"custom-browser":   {"pkg-base.httpRequest", "pkg-base.html"},
	"custom-scraper":   {"pkg-base.httpRequest", "pkg-base.html", "pkg-base.xml"},
	"custom-pdf":       {"pkg-base.extractFromFile", "pkg-base.httpRequest"},
	"custom-firecrawl": {"pkg-base.httpRequest", "pkg-base.html"},
}

var defaultAlternatives = []string{"pkg-base.httpRequest", "pkg-base.code"}

// NewPolicy builds the filter. A zero config falls back to the defaults.
func NewPolicy(cfg PolicyConfig) *Policy {
	if len(cfg.OfficialPrefixes) == 0 {
		cfg.OfficialPrefixes = DefaultPolicyConfig().OfficialPrefixes
	}
	allow := make(map[string]struct{}, len(cfg.AllowList))
	for _, id := range cfg.AllowList {
		allow[id] = struct{}{}
	}
	return &Policy{
		prefixes:  cfg.OfficialPrefixes,
		community: cfg.AllowCommunity,
		allow:     allow,
	}
}

// Check decides whether typeID may be used. Rejections carry a reason and
// suggested official alternatives.
func (p *Policy) Check(typeID string) Decision {
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(typeID, prefix) {
			return Decision{Allowed: true}
		}
	}
	if p.community {
		return Decision{Allowed: true}
	}
	if _, ok := p.allow[typeID]; ok {
		return Decision{Allowed: true}
	}
	return Decision{
		Allowed:      false,
		Reason:       fmt.Sprintf("node type %q is not an official node; community nodes are disabled and it is not on the allow-list", typeID),
		Alternatives: alternativesFor(typeID),
	}
}

func alternativesFor(typeID string) []string {
	pkg := typeID
	if i := strings.IndexByte(typeID, '.'); i >= 0 {
		pkg = typeID[:i]
	}
	if alts, ok := blockedAlternatives[pkg]; ok {
		return append([]string(nil), alts...)
	}
	return append([]string(nil), defaultAlternatives...)
}
