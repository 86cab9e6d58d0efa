package sandbox

import (
	"os/exec"

	"github.com/codefionn/sandkasten/internal/profile"
)

// spyPrimitive records every primitive call so tests can assert exactly
// which spawn strategy ran.
type spyPrimitive struct {
	available bool

	startCalls    int
	startErr      error
	startProfiles []profile.CompiledProfile

	activateCalls    int
	activateErr      error
	activateProfiles []profile.CompiledProfile
}

func (s *spyPrimitive) Available() bool { return s.available }

func (s *spyPrimitive) Start(p profile.CompiledProfile, cmd *exec.Cmd) error {
	s.startCalls++
	s.startProfiles = append(s.startProfiles, p)
	if s.startErr != nil {
		return s.startErr
	}
	return cmd.Start()
}

func (s *spyPrimitive) Activate(p profile.CompiledProfile) error {
	s.activateCalls++
	s.activateProfiles = append(s.activateProfiles, p)
	return s.activateErr
}

// envMap builds a getenv func over a fixed map.
func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func hasEnv(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}

func envValue(env []string, key string) string {
	for _, e := range env {
		if len(e) > len(key) && e[:len(key)+1] == key+"=" {
			return e[len(key)+1:]
		}
	}
	return ""
}

func hasEnvKey(env []string, prefix string) bool {
	for _, e := range env {
		if len(e) > len(prefix) && e[:len(prefix)+1] == prefix+"=" {
			return true
		}
	}
	return false
}
