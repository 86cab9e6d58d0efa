//go:build !linux

package sandbox

import (
	"os/exec"

	"github.com/codefionn/sandkasten/internal/profile"
)

// unsupportedPrimitive is the no-op primitive for platforms without
// Landlock. It reports itself unavailable; the executor then spawns without
// sandbox markers instead of condemning the child to a guaranteed-fatal
// activation attempt.
type unsupportedPrimitive struct{}

func newPrimitive(bestEffort bool, readOnlyPaths, readWritePaths []string) Primitive {
	return unsupportedPrimitive{}
}

func (unsupportedPrimitive) Available() bool { return false }

func (unsupportedPrimitive) Start(p profile.CompiledProfile, cmd *exec.Cmd) error {
	return ErrNativeStartUnavailable
}

func (unsupportedPrimitive) Activate(p profile.CompiledProfile) error {
	return ErrNativeStartUnavailable
}
