// Package profile compiles stored sandbox rules into the ordered operation
// list the executor and the OS primitive understand, and provides the wire
// representation that carries a compiled profile across a spawn boundary.
package profile

import "fmt"

// AddressKind classifies a network address pattern.
type AddressKind string

const (
	// AddressAll permits outbound connections to any address.
	AddressAll AddressKind = "all"
	// AddressTCP permits outbound TCP connections to one port.
	AddressTCP AddressKind = "tcp"
	// AddressLocalSocket permits connecting to one local socket path.
	AddressLocalSocket AddressKind = "local_socket"
)

// AddressPattern is the target of a network outbound operation.
type AddressPattern struct {
	Kind AddressKind
	Port uint16 // set for AddressTCP
	Path string // set for AddressLocalSocket
}

func (a AddressPattern) String() string {
	switch a.Kind {
	case AddressTCP:
		return fmt.Sprintf("tcp:%d", a.Port)
	case AddressLocalSocket:
		return "local_socket:" + a.Path
	default:
		return "all"
	}
}

// Operation is a single enforceable permission. The set of implementations
// is closed; rules compile into these and nothing else.
type Operation interface {
	isOperation()
	String() string
}

// FileReadAll grants read access to a path, or to the whole subtree when
// IsSubpath is set.
type FileReadAll struct {
	Path      string
	IsSubpath bool
}

// FileReadMetadata grants metadata (stat) access to a path or subtree.
type FileReadMetadata struct {
	Path      string
	IsSubpath bool
}

// NetworkOutbound grants outbound network access matching Pattern.
type NetworkOutbound struct {
	Pattern AddressPattern
}

// SystemInfoRead grants read access to basic system information.
type SystemInfoRead struct{}

func (FileReadAll) isOperation()      {}
func (FileReadMetadata) isOperation() {}
func (NetworkOutbound) isOperation()  {}
func (SystemInfoRead) isOperation()   {}

func (o FileReadAll) String() string {
	return fmt.Sprintf("file_read_all(%s, subpath=%t)", o.Path, o.IsSubpath)
}

func (o FileReadMetadata) String() string {
	return fmt.Sprintf("file_read_metadata(%s, subpath=%t)", o.Path, o.IsSubpath)
}

func (o NetworkOutbound) String() string {
	return "network_outbound(" + o.Pattern.String() + ")"
}

func (SystemInfoRead) String() string {
	return "system_info_read"
}

// CompiledProfile is an ordered operation list plus the project root that
// must always remain readable. Order is preserved end to end because some
// primitives evaluate rules first-match-wins.
type CompiledProfile struct {
	Operations  []Operation
	ProjectPath string
}

// HasProjectRead reports whether the operation list already grants subpath
// read access to the project root.
func (p CompiledProfile) HasProjectRead() bool {
	for _, op := range p.Operations {
		if fr, ok := op.(FileReadAll); ok && fr.IsSubpath && fr.Path == p.ProjectPath {
			return true
		}
	}
	return false
}

// ensureProjectRead appends the project-root read grant when missing. Every
// compiled profile that authorizes any file access must include it.
func (p CompiledProfile) ensureProjectRead() CompiledProfile {
	if p.HasProjectRead() {
		return p
	}
	p.Operations = append(p.Operations, FileReadAll{Path: p.ProjectPath, IsSubpath: true})
	return p
}

// Minimal returns the safe-degradation fallback profile: subpath read on the
// project root plus unrestricted outbound network. Used when transported
// policy cannot be parsed.
func Minimal(projectPath string) CompiledProfile {
	return CompiledProfile{
		ProjectPath: projectPath,
		Operations: []Operation{
			FileReadAll{Path: projectPath, IsSubpath: true},
			NetworkOutbound{Pattern: AddressPattern{Kind: AddressAll}},
		},
	}
}
