package sandbox

import (
	"os"

	"github.com/codefionn/sandkasten/internal/logger"
	"github.com/codefionn/sandkasten/internal/profile"
)

// ActivationRequested reports whether this process has been asked to
// self-activate.
func ActivationRequested() bool {
	return os.Getenv(EnvSandboxActive) == "1"
}

// ActivateIfRequested applies the sandbox to the current process when the
// activation marker is present in the environment. It must be the first
// call after process start, before any file or network use.
//
// A process without the marker returns immediately and behaves exactly like
// an unsandboxed process. With the marker set, a missing project path or a
// failing primitive returns an *ActivationError; the caller must abort the
// process on it rather than continue unsandboxed. A corrupt rules payload is
// NOT fatal: activation proceeds with the minimal profile and logs a
// warning.
//
// The primitive is configured from transported options, not from any local
// config: this runs before the process may read files, and the parent's
// strictness setting must carry over. Absent options mean strict mode, so a
// kernel that cannot enforce the profile aborts instead of silently running
// unrestricted.
func ActivateIfRequested() error {
	return activateWith(os.Getenv, nil)
}

// activateWith is the testable core of ActivateIfRequested. A nil prim is
// built from the transported options.
func activateWith(getenv func(string) string, prim Primitive) error {
	if getenv(EnvSandboxActive) != "1" {
		return nil
	}

	opts := parseActivationOptions(getenv(EnvOptions))
	if opts.LogFile != "" {
		// Install the transported log destination before anything can
		// warn. Failure to open it must not block activation.
		_ = logger.Init(logger.ParseLevel(opts.LogLevel), opts.LogFile)
	}

	logger.Info("activating sandbox in child process")

	projectPath := getenv(EnvProjectPath)
	if projectPath == "" {
		return &ActivationError{Reason: ReasonMissingProjectPath}
	}

	compiled := transportedProfile(getenv, projectPath)

	if prim == nil {
		prim = primitiveFromOptions(opts)
	}
	if err := prim.Activate(compiled); err != nil {
		logger.Error("sandbox activation failed: %v", err)
		return &ActivationError{Reason: ReasonPrimitiveFailed, Err: err}
	}

	logger.Info("sandbox activated with %d operations", len(compiled.Operations))
	return nil
}

// transportedProfile reconstructs the compiled profile from the environment.
// Undeserializable rules degrade to the minimal profile so the tool stays
// usable when policy transport is corrupted; the warning makes that rare
// path observable.
func transportedProfile(getenv func(string) string, projectPath string) profile.CompiledProfile {
	raw := getenv(EnvRules)
	if raw == "" {
		logger.Debug("no sandbox rules in environment, using minimal profile")
		return profile.Minimal(projectPath)
	}

	compiled, err := profile.Deserialize([]byte(raw), projectPath)
	if err != nil {
		logger.Warn("failed to deserialize sandbox rules: %v; falling back to minimal profile", err)
		return profile.Minimal(projectPath)
	}

	logger.Debug("deserialized %d sandbox operations", len(compiled.Operations))
	return compiled
}
