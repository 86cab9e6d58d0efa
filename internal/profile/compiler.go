package profile

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/codefionn/sandkasten/internal/logger"
	"github.com/codefionn/sandkasten/internal/policy"
)

// projectPathPlaceholder in a stored pattern value expands to the project
// root of the current execution. Seeded default profiles use it so one rule
// set serves every project.
const projectPathPlaceholder = "{{PROJECT_PATH}}"

// Compile turns stored rules into a compiled profile for the given project
// root. Disabled and platform-unsupported rules are filtered; each remaining
// rule maps to zero or one operation. A malformed rule never widens access:
// it is logged at warning level and produces nothing. The result always
// grants subpath read on the project root.
//
// Compile is pure and idempotent; it performs no I/O beyond its inputs and
// is safe to call concurrently.
func Compile(rules []policy.Rule, projectPath string) CompiledProfile {
	return compileFor(rules, projectPath, runtime.GOOS)
}

func compileFor(rules []policy.Rule, projectPath, goos string) CompiledProfile {
	compiled := CompiledProfile{ProjectPath: projectPath}
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !rule.SupportsPlatform(goos) {
			logger.Debug("rule %d skipped: not supported on %s", rule.ID, goos)
			continue
		}
		op, ok := compileRule(rule, projectPath)
		if !ok {
			continue
		}
		compiled.Operations = append(compiled.Operations, op)
	}
	return compiled.ensureProjectRead()
}

// compileRule maps one rule to its operation. Returns false when the rule is
// malformed; the caller drops it after it has been logged.
func compileRule(rule policy.Rule, projectPath string) (Operation, bool) {
	value := strings.ReplaceAll(rule.PatternValue, projectPathPlaceholder, projectPath)

	switch rule.OperationType {
	case policy.OpFileReadAll:
		pattern, ok := filePattern(rule, value)
		if !ok {
			return nil, false
		}
		return FileReadAll{Path: pattern.path, IsSubpath: pattern.subpath}, true

	case policy.OpFileReadMetadata:
		pattern, ok := filePattern(rule, value)
		if !ok {
			return nil, false
		}
		return FileReadMetadata{Path: pattern.path, IsSubpath: pattern.subpath}, true

	case policy.OpNetworkOutbound:
		if rule.PatternType != policy.PatternAddress {
			logger.Warn("rule %d skipped: network_outbound requires an address pattern, got %q",
				rule.ID, rule.PatternType)
			return nil, false
		}
		pattern, ok := parseAddressPattern(value)
		if !ok {
			logger.Warn("rule %d skipped: unrecognized address pattern %q", rule.ID, value)
			return nil, false
		}
		return NetworkOutbound{Pattern: pattern}, true

	case policy.OpSystemInfoRead:
		// Pattern value is ignored for system info reads.
		return SystemInfoRead{}, true

	default:
		logger.Warn("rule %d skipped: unknown operation type %q", rule.ID, rule.OperationType)
		return nil, false
	}
}

type compiledPattern struct {
	path    string
	subpath bool
}

func filePattern(rule policy.Rule, value string) (compiledPattern, bool) {
	switch rule.PatternType {
	case policy.PatternLiteral:
		return compiledPattern{path: value}, true
	case policy.PatternSubpath:
		return compiledPattern{path: value, subpath: true}, true
	default:
		logger.Warn("rule %d skipped: unknown pattern type %q for %s",
			rule.ID, rule.PatternType, rule.OperationType)
		return compiledPattern{}, false
	}
}

func parseAddressPattern(value string) (AddressPattern, bool) {
	switch {
	case value == "all":
		return AddressPattern{Kind: AddressAll}, true
	case strings.HasPrefix(value, "tcp:"):
		port, err := strconv.ParseUint(strings.TrimPrefix(value, "tcp:"), 10, 16)
		if err != nil {
			return AddressPattern{}, false
		}
		return AddressPattern{Kind: AddressTCP, Port: uint16(port)}, true
	case strings.HasPrefix(value, "local_socket:"):
		path := strings.TrimPrefix(value, "local_socket:")
		if path == "" {
			return AddressPattern{}, false
		}
		return AddressPattern{Kind: AddressLocalSocket, Path: path}, true
	default:
		return AddressPattern{}, false
	}
}
