package sandbox

import (
	"os"
	"strings"
)

// sanitizedEnv returns a minimal environment for the sandboxed process. Only
// allowlisted variables pass through so parent secrets (API keys, tokens) do
// not leak into the sandbox. Node toolchain variables are kept because
// node-based tools resolve their own installation through them.
func sanitizedEnv() []string {
	var env []string
	for _, key := range safeEnvKeys {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "LC_") {
			env = append(env, kv)
		}
	}
	return env
}

var safeEnvKeys = []string{
	"PATH", "HOME", "USER", "SHELL", "LANG", "TERM", "TMPDIR", "TZ",
	"NODE_PATH", "NODE_VERSION", "NVM_DIR", "NVM_BIN",
}
