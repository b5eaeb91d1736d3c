package daemon

import (
	"path/filepath"
	"strings"
)

// PrivacyPolicy decides which commands are never recorded. Exclusion is
// silent: the client receives a normal ok response so the presence of a
// sensitive directory cannot be probed through the protocol.
type PrivacyPolicy struct {
	excluded []string
}

// NewPrivacyPolicy builds a policy from cleaned directory prefixes.
func NewPrivacyPolicy(dirs []string) *PrivacyPolicy {
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(d))
	}
	return &PrivacyPolicy{excluded: cleaned}
}

// IsExcluded reports whether cwd is inside any excluded directory.
func (p *PrivacyPolicy) IsExcluded(cwd string) bool {
	if cwd == "" {
		return false
	}
	cwd = filepath.Clean(cwd)
	for _, dir := range p.excluded {
		if cwd == dir || strings.HasPrefix(cwd, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
