// Package policy defines the stored sandbox policy model: named profiles,
// their ordered rule sets, and violation audit records. Profiles and rules
// are authored elsewhere; this core only reads them and writes violations.
package policy

import (
	"encoding/json"
	"time"
)

// OperationType identifies the primitive permission a rule grants.
type OperationType string

const (
	OpFileReadAll      OperationType = "file_read_all"
	OpFileReadMetadata OperationType = "file_read_metadata"
	OpNetworkOutbound  OperationType = "network_outbound"
	OpSystemInfoRead   OperationType = "system_info_read"
)

// PatternType describes how a rule's PatternValue is interpreted.
type PatternType string

const (
	// PatternLiteral matches one exact path.
	PatternLiteral PatternType = "literal"
	// PatternSubpath matches a path and everything beneath it.
	PatternSubpath PatternType = "subpath"
	// PatternAddress is a network address pattern: "all", "tcp:<port>",
	// or "local_socket:<path>".
	PatternAddress PatternType = "address"
	// PatternNone is used by operations that take no pattern.
	PatternNone PatternType = "none"
)

// Profile is a named, ordered set of sandbox rules. At most one profile is
// the default and at most one is active for new executions.
type Profile struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rule is a single stored policy statement. Each rule compiles into zero or
// one operation.
type Rule struct {
	ID            int64
	ProfileID     int64
	OperationType OperationType
	PatternType   PatternType
	PatternValue  string
	Enabled       bool
	// PlatformSupport is a JSON array of GOOS names the rule applies to.
	// Empty means all platforms.
	PlatformSupport string
	CreatedAt       time.Time
}

// SupportsPlatform reports whether the rule applies on the given GOOS.
// A missing or malformed platform list is treated as all-platforms: a rule
// must never be widened, and restricting on every platform is the narrow
// reading of an unparseable filter.
func (r Rule) SupportsPlatform(goos string) bool {
	if r.PlatformSupport == "" {
		return true
	}
	var platforms []string
	if err := json.Unmarshal([]byte(r.PlatformSupport), &platforms); err != nil {
		return true
	}
	if len(platforms) == 0 {
		return true
	}
	for _, p := range platforms {
		if p == goos {
			return true
		}
	}
	return false
}

// Violation is an audit record for an operation the OS primitive denied.
// The core never generates these itself; the audit sink records them with
// the context the executor preserved.
type Violation struct {
	ID            int64
	ProfileID     *int64
	AgentID       *int64
	RunID         *string
	OperationType string
	PatternValue  *string
	ProcessName   *string
	PID           *int64
	DeniedAt      time.Time
}
