package profile

import (
	"encoding/json"
	"fmt"

	"github.com/codefionn/sandkasten/internal/logger"
)

// ProtocolError reports a serialized profile that could not be decoded.
// The receiving side reacts by falling back to the minimal profile; it never
// applies part of a broken payload.
type ProtocolError struct {
	msg string
	err error
}

func (e *ProtocolError) Error() string {
	if e.err != nil {
		return "sandbox protocol: " + e.msg + ": " + e.err.Error()
	}
	return "sandbox protocol: " + e.msg
}

func (e *ProtocolError) Unwrap() error { return e.err }

// Wire operation type tags. The format is versionless: receivers skip tags
// they do not recognize, so future senders can add variants without breaking
// older children.
const (
	wireFileReadAll        = "file_read_all"
	wireFileReadMetadata   = "file_read_metadata"
	wireNetworkOutbound    = "network_outbound"
	wireNetworkTCP         = "network_tcp"
	wireNetworkLocalSocket = "network_local_socket"
	wireSystemInfoRead     = "system_info_read"
)

type serializedOperation struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	IsSubpath bool   `json:"is_subpath,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Port      uint16 `json:"port,omitempty"`
}

type serializedProfile struct {
	Operations []serializedOperation `json:"operations"`
}

// Serialize encodes a compiled profile for transport across the spawn
// boundary. The project path travels separately in its own environment
// variable.
func Serialize(p CompiledProfile) ([]byte, error) {
	wire := serializedProfile{Operations: make([]serializedOperation, 0, len(p.Operations))}
	for _, op := range p.Operations {
		switch o := op.(type) {
		case FileReadAll:
			wire.Operations = append(wire.Operations, serializedOperation{
				Type: wireFileReadAll, Path: o.Path, IsSubpath: o.IsSubpath,
			})
		case FileReadMetadata:
			wire.Operations = append(wire.Operations, serializedOperation{
				Type: wireFileReadMetadata, Path: o.Path, IsSubpath: o.IsSubpath,
			})
		case NetworkOutbound:
			wire.Operations = append(wire.Operations, serializeNetwork(o))
		case SystemInfoRead:
			wire.Operations = append(wire.Operations, serializedOperation{Type: wireSystemInfoRead})
		default:
			return nil, fmt.Errorf("serialize profile: unsupported operation %T", op)
		}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("serialize profile: %w", err)
	}
	return data, nil
}

func serializeNetwork(o NetworkOutbound) serializedOperation {
	switch o.Pattern.Kind {
	case AddressTCP:
		return serializedOperation{Type: wireNetworkTCP, Port: o.Pattern.Port}
	case AddressLocalSocket:
		return serializedOperation{Type: wireNetworkLocalSocket, Path: o.Pattern.Path}
	default:
		return serializedOperation{Type: wireNetworkOutbound, Pattern: "all"}
	}
}

// Deserialize decodes a transported profile for the given project root.
// Structurally invalid input yields a *ProtocolError and no profile at all.
// Unknown operation tags are skipped: an extension this build cannot parse
// must degrade to less privilege, not abort the whole profile. The result
// always satisfies the project-root read invariant.
func Deserialize(data []byte, projectPath string) (CompiledProfile, error) {
	var wire serializedProfile
	if err := json.Unmarshal(data, &wire); err != nil {
		return CompiledProfile{}, &ProtocolError{msg: "malformed profile payload", err: err}
	}

	compiled := CompiledProfile{ProjectPath: projectPath}
	for _, op := range wire.Operations {
		switch op.Type {
		case wireFileReadAll:
			compiled.Operations = append(compiled.Operations,
				FileReadAll{Path: op.Path, IsSubpath: op.IsSubpath})
		case wireFileReadMetadata:
			compiled.Operations = append(compiled.Operations,
				FileReadMetadata{Path: op.Path, IsSubpath: op.IsSubpath})
		case wireNetworkOutbound:
			if op.Pattern != "all" {
				logger.Warn("unknown network pattern %q, defaulting to all", op.Pattern)
			}
			compiled.Operations = append(compiled.Operations,
				NetworkOutbound{Pattern: AddressPattern{Kind: AddressAll}})
		case wireNetworkTCP:
			compiled.Operations = append(compiled.Operations,
				NetworkOutbound{Pattern: AddressPattern{Kind: AddressTCP, Port: op.Port}})
		case wireNetworkLocalSocket:
			compiled.Operations = append(compiled.Operations,
				NetworkOutbound{Pattern: AddressPattern{Kind: AddressLocalSocket, Path: op.Path}})
		case wireSystemInfoRead:
			compiled.Operations = append(compiled.Operations, SystemInfoRead{})
		default:
			logger.Warn("skipping unknown operation tag %q in serialized profile", op.Type)
		}
	}

	return compiled.ensureProjectRead(), nil
}
