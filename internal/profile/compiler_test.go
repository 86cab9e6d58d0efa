package profile

import (
	"reflect"
	"testing"

	"github.com/codefionn/sandkasten/internal/policy"
)

func enabledRule(op policy.OperationType, pt policy.PatternType, value string) policy.Rule {
	return policy.Rule{OperationType: op, PatternType: pt, PatternValue: value, Enabled: true}
}

func TestCompileProjectRules(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpFileReadAll, policy.PatternSubpath, "/proj"),
		enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "all"),
	}
	compiled := compileFor(rules, "/proj", "linux")

	want := []Operation{
		FileReadAll{Path: "/proj", IsSubpath: true},
		NetworkOutbound{Pattern: AddressPattern{Kind: AddressAll}},
	}
	if !reflect.DeepEqual(compiled.Operations, want) {
		t.Errorf("operations = %v, want %v", compiled.Operations, want)
	}
}

func TestCompileEmptyRulesGrantsProjectRead(t *testing.T) {
	compiled := compileFor(nil, "/proj", "linux")

	want := []Operation{FileReadAll{Path: "/proj", IsSubpath: true}}
	if !reflect.DeepEqual(compiled.Operations, want) {
		t.Errorf("operations = %v, want %v", compiled.Operations, want)
	}
}

func TestCompileDoesNotDuplicateProjectRead(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpFileReadAll, policy.PatternSubpath, "/proj"),
	}
	compiled := compileFor(rules, "/proj", "linux")
	if len(compiled.Operations) != 1 {
		t.Errorf("expected 1 operation, got %d: %v", len(compiled.Operations), compiled.Operations)
	}
}

func TestCompileSkipsDisabledRules(t *testing.T) {
	rule := enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "all")
	rule.Enabled = false
	compiled := compileFor([]policy.Rule{rule}, "/proj", "linux")

	for _, op := range compiled.Operations {
		if _, ok := op.(NetworkOutbound); ok {
			t.Errorf("disabled rule compiled into %v", op)
		}
	}
}

func TestCompileSkipsUnsupportedPlatform(t *testing.T) {
	rule := enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "all")
	rule.PlatformSupport = `["darwin"]`
	compiled := compileFor([]policy.Rule{rule}, "/proj", "linux")

	for _, op := range compiled.Operations {
		if _, ok := op.(NetworkOutbound); ok {
			t.Errorf("platform-filtered rule compiled into %v", op)
		}
	}
}

func TestCompileMalformedRuleNeverWidens(t *testing.T) {
	t.Run("unknown pattern type produces nothing", func(t *testing.T) {
		rule := enabledRule(policy.OpFileReadAll, policy.PatternType("glob"), "/etc/**")
		compiled := compileFor([]policy.Rule{rule}, "/proj", "linux")

		want := []Operation{FileReadAll{Path: "/proj", IsSubpath: true}}
		if !reflect.DeepEqual(compiled.Operations, want) {
			t.Errorf("operations = %v, want only project read", compiled.Operations)
		}
	})

	t.Run("unknown operation type produces nothing", func(t *testing.T) {
		rule := enabledRule(policy.OperationType("file_write_all"), policy.PatternSubpath, "/")
		compiled := compileFor([]policy.Rule{rule}, "/proj", "linux")
		if len(compiled.Operations) != 1 {
			t.Errorf("expected only project read, got %v", compiled.Operations)
		}
	})

	t.Run("bad tcp port produces nothing", func(t *testing.T) {
		rule := enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "tcp:notaport")
		compiled := compileFor([]policy.Rule{rule}, "/proj", "linux")
		for _, op := range compiled.Operations {
			if _, ok := op.(NetworkOutbound); ok {
				t.Errorf("malformed network rule compiled into %v", op)
			}
		}
	})
}

func TestCompileAddressPatterns(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "tcp:443"),
		enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "local_socket:/run/api.sock"),
	}
	compiled := compileFor(rules, "/proj", "linux")

	want := []Operation{
		NetworkOutbound{Pattern: AddressPattern{Kind: AddressTCP, Port: 443}},
		NetworkOutbound{Pattern: AddressPattern{Kind: AddressLocalSocket, Path: "/run/api.sock"}},
		FileReadAll{Path: "/proj", IsSubpath: true},
	}
	if !reflect.DeepEqual(compiled.Operations, want) {
		t.Errorf("operations = %v, want %v", compiled.Operations, want)
	}
}

func TestCompileLiteralAndMetadata(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpFileReadAll, policy.PatternLiteral, "/etc/hosts"),
		enabledRule(policy.OpFileReadMetadata, policy.PatternSubpath, "/usr/share"),
		enabledRule(policy.OpSystemInfoRead, policy.PatternNone, "ignored entirely"),
	}
	compiled := compileFor(rules, "/proj", "linux")

	want := []Operation{
		FileReadAll{Path: "/etc/hosts", IsSubpath: false},
		FileReadMetadata{Path: "/usr/share", IsSubpath: true},
		SystemInfoRead{},
		FileReadAll{Path: "/proj", IsSubpath: true},
	}
	if !reflect.DeepEqual(compiled.Operations, want) {
		t.Errorf("operations = %v, want %v", compiled.Operations, want)
	}
}

func TestCompileExpandsProjectPathPlaceholder(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpFileReadAll, policy.PatternSubpath, "{{PROJECT_PATH}}"),
	}
	compiled := compileFor(rules, "/work/demo", "linux")

	want := []Operation{FileReadAll{Path: "/work/demo", IsSubpath: true}}
	if !reflect.DeepEqual(compiled.Operations, want) {
		t.Errorf("operations = %v, want %v", compiled.Operations, want)
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	rules := []policy.Rule{
		enabledRule(policy.OpFileReadAll, policy.PatternSubpath, "/proj"),
		enabledRule(policy.OpNetworkOutbound, policy.PatternAddress, "tcp:8080"),
	}
	first := compileFor(rules, "/proj", "linux")
	second := compileFor(rules, "/proj", "linux")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("compile not idempotent: %v vs %v", first, second)
	}
}
