//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	landlock "github.com/landlock-lsm/go-landlock/landlock"

	"github.com/codefionn/sandkasten/internal/logger"
	"github.com/codefionn/sandkasten/internal/profile"
)

// landlockPrimitive enforces compiled profiles with the Linux Landlock LSM
// (kernel 5.13+).
type landlockPrimitive struct {
	bestEffort     bool
	readOnlyPaths  []string
	readWritePaths []string
}

// newPrimitive returns the platform sandbox primitive. With bestEffort set,
// the highest Landlock ABI the running kernel supports is used instead of
// failing outright on older kernels. The path lists are config-granted
// extras applied on top of every profile.
func newPrimitive(bestEffort bool, readOnlyPaths, readWritePaths []string) Primitive {
	return &landlockPrimitive{
		bestEffort:     bestEffort,
		readOnlyPaths:  readOnlyPaths,
		readWritePaths: readWritePaths,
	}
}

func (l *landlockPrimitive) Available() bool { return true }

// Start cannot work with Landlock: the LSM restricts the calling process and
// everything it later spawns, so there is no way to confine only the child
// and keep an unrestricted, supervising parent holding its handle. Nothing
// is spawned here, so there is no process to release before falling back.
func (l *landlockPrimitive) Start(p profile.CompiledProfile, cmd *exec.Cmd) error {
	return ErrNoChildHandle
}

// Activate translates the compiled profile into Landlock rules and restricts
// the current process. Must run before any application logic; the
// restriction is irreversible and inherited by all descendants.
func (l *landlockPrimitive) Activate(p profile.CompiledProfile) error {
	pathRules := baselinePathRules()
	for _, extra := range l.readOnlyPaths {
		if rule, ok := readRule(extra, true); ok {
			pathRules = append(pathRules, rule)
		}
	}
	for _, extra := range l.readWritePaths {
		if rule, ok := writeRule(extra); ok {
			pathRules = append(pathRules, rule)
		}
	}
	var netRules []landlock.Rule
	allowAllNet := false

	for _, op := range p.Operations {
		switch o := op.(type) {
		case profile.FileReadAll:
			if rule, ok := readRule(o.Path, o.IsSubpath); ok {
				pathRules = append(pathRules, rule)
			}
		case profile.FileReadMetadata:
			// Landlock does not mediate stat on visible paths; granting
			// nothing here keeps the mapping at most-restrictive.
		case profile.NetworkOutbound:
			switch o.Pattern.Kind {
			case profile.AddressAll:
				allowAllNet = true
			case profile.AddressTCP:
				netRules = append(netRules, landlock.ConnectTCP(o.Pattern.Port))
			case profile.AddressLocalSocket:
				if _, err := os.Stat(o.Pattern.Path); err == nil {
					pathRules = append(pathRules, landlock.RWFiles(o.Pattern.Path))
				}
			}
		case profile.SystemInfoRead:
			for _, dir := range []string{"/proc", "/sys"} {
				if rule, ok := readRule(dir, true); ok {
					pathRules = append(pathRules, rule)
				}
			}
		}
	}

	cfg := landlock.V6
	if l.bestEffort {
		cfg = cfg.BestEffort()
	}

	if err := cfg.RestrictPaths(pathRules...); err != nil {
		return fmt.Errorf("landlock path restriction: %w", err)
	}

	if !allowAllNet {
		if err := cfg.RestrictNet(netRules...); err != nil {
			return fmt.Errorf("landlock network restriction: %w", err)
		}
	}

	logger.Debug("landlock restrictions applied: %d path rules, %d tcp rules, all_net=%t",
		len(pathRules), len(netRules), allowAllNet)
	return nil
}

// readRule builds the read-only rule for a path, choosing the file or
// directory variant; Landlock rejects directory access rights on regular
// files. Directory grants always cover the subtree, so a literal directory
// pattern and a subpath pattern translate to the same rule. Missing paths
// yield no rule.
func readRule(path string, subtree bool) (landlock.Rule, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if info.IsDir() {
		return landlock.RODirs(path), true
	}
	return landlock.ROFiles(path), true
}

// writeRule is the read/write counterpart of readRule.
func writeRule(path string) (landlock.Rule, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if info.IsDir() {
		return landlock.RWDirs(path), true
	}
	return landlock.RWFiles(path), true
}

// baselinePathRules grants read access to the system locations any target
// binary needs to load and run (loader, shared libraries, terminfo). Without
// these every exec inside the sandbox fails before reaching user code.
func baselinePathRules() []landlock.Rule {
	var rules []landlock.Rule

	systemPaths := []string{
		"/usr", "/bin", "/sbin", "/lib", "/lib64", "/etc",
		"/usr/local/bin", "/usr/local/lib",
		"/run/current-system/sw", "/nix/store",
	}
	for _, p := range systemPaths {
		if rule, ok := readRule(p, true); ok {
			rules = append(rules, rule)
		}
	}

	devFiles := []string{
		"/dev/null", "/dev/zero", "/dev/random", "/dev/urandom", "/dev/tty",
	}
	for _, p := range devFiles {
		if _, err := os.Stat(p); err == nil {
			rules = append(rules, landlock.RWFiles(p))
		}
	}

	for _, p := range []string{os.TempDir(), "/tmp", "/var/tmp"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			rules = append(rules, landlock.RWDirs(p))
		}
	}

	return rules
}
