package sandbox

import (
	"os/exec"

	"github.com/codefionn/sandkasten/internal/profile"
)

// Environment variables of the cross-process activation protocol. This is
// the only wire surface between parent and child; after spawn the two never
// communicate about sandbox state again.
const (
	// EnvSandboxActive set to "1" tells the child to self-activate before
	// doing anything else.
	EnvSandboxActive = "SANDBOX_ACTIVE"
	// EnvProjectPath is the absolute path that must always remain
	// read-accessible.
	EnvProjectPath = "SANDBOX_PROJECT_PATH"
	// EnvRules carries the JSON-serialized profile.
	EnvRules = "SANDBOX_RULES"
	// EnvProfileID and EnvRunID carry attribution context for the
	// violation audit sink. Optional; activation does not read them.
	EnvProfileID = "SANDBOX_PROFILE_ID"
	EnvRunID     = "SANDBOX_RUN_ID"
	// EnvOptions carries JSON activationOptions: primitive strictness,
	// logging destination, and config-granted extra paths. Optional; a
	// child without it activates strictly and logs nowhere.
	EnvOptions = "SANDBOX_OPTIONS"
)

// Primitive abstracts the OS sandbox mechanism (Landlock on Linux). The
// split between Start and Activate mirrors the two spawn strategies: an
// atomic sandbox+spawn in the parent versus self-activation in the child.
type Primitive interface {
	// Available reports whether the primitive can be used at all on this
	// platform.
	Available() bool
	// Start creates the sandbox and spawns cmd inside it atomically,
	// leaving the caller with a supervisable handle. Returns
	// ErrNoChildHandle when the primitive cannot do that without
	// orphaning the process, ErrNativeStartUnavailable when the platform
	// has no such path.
	Start(p profile.CompiledProfile, cmd *exec.Cmd) error
	// Activate applies the sandbox to the current process. Irreversible.
	Activate(p profile.CompiledProfile) error
}
