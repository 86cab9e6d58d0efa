package sandbox

import "encoding/json"

// activationOptions ride alongside the serialized profile so the child's
// self-activation honors the parent's configuration: primitive strictness,
// the logging destination, and config-granted extra paths.
type activationOptions struct {
	BestEffort     bool     `json:"best_effort,omitempty"`
	LogLevel       string   `json:"log_level,omitempty"`
	LogFile        string   `json:"log_file,omitempty"`
	ReadOnlyPaths  []string `json:"read_only_paths,omitempty"`
	ReadWritePaths []string `json:"read_write_paths,omitempty"`
}

func (o activationOptions) encode() (string, bool) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// parseActivationOptions decodes the options env var. Missing or malformed
// input yields the zero value, and the zero value is strict: best-effort
// off, so a kernel that cannot enforce the profile aborts activation
// instead of silently running unrestricted.
func parseActivationOptions(raw string) activationOptions {
	var opts activationOptions
	if raw == "" {
		return opts
	}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return activationOptions{}
	}
	return opts
}

// primitiveFromOptions builds the child-side primitive from transported
// options.
func primitiveFromOptions(o activationOptions) Primitive {
	return newPrimitive(o.BestEffort, o.ReadOnlyPaths, o.ReadWritePaths)
}
