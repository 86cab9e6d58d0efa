// Package sandbox enforces least-privilege execution for spawned processes.
// The executor orchestrates two spawn strategies: an atomic native sandbox
// start, and a fallback where the serialized profile travels through the
// child's environment and the child applies the sandbox to itself before
// running anything else.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/google/uuid"

	"github.com/codefionn/sandkasten/internal/config"
	"github.com/codefionn/sandkasten/internal/logger"
	"github.com/codefionn/sandkasten/internal/policy"
	"github.com/codefionn/sandkasten/internal/profile"
)

// Strategy records which spawn path produced a process. Exactly one strategy
// wins per spawn attempt.
type Strategy int

const (
	// StrategyNative: the primitive created the sandbox and spawned the
	// child atomically.
	StrategyNative Strategy = iota
	// StrategyChildActivation: spawned unrestricted with the serialized
	// profile in its environment; the child activates on itself.
	StrategyChildActivation
	// StrategyUnsandboxed: no primitive available or sandboxing disabled;
	// spawned without restrictions and without activation markers.
	StrategyUnsandboxed
	// StrategyBypass: the trivial-binary escape hatch matched.
	StrategyBypass
)

func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyChildActivation:
		return "child_activation"
	case StrategyUnsandboxed:
		return "unsandboxed"
	case StrategyBypass:
		return "bypass"
	default:
		return "unknown"
	}
}

// Process is a spawned, supervisable child with its stdio pipes. The caller
// owns the lifecycle: waiting, killing, and stream handling all happen
// outside this package.
type Process struct {
	Cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	Stderr   io.ReadCloser
	RunID    string
	Strategy Strategy
}

// closePipes releases the parent ends of an abandoned process's pipes.
func (p *Process) closePipes() {
	if p.Stdin != nil {
		_ = p.Stdin.Close()
	}
	if p.Stdout != nil {
		_ = p.Stdout.Close()
	}
	if p.Stderr != nil {
		_ = p.Stderr.Close()
	}
}

// Executor spawns commands under a compiled profile.
type Executor struct {
	compiled       profile.CompiledProfile
	primitive      Primitive
	runID          string
	profileID      *int64
	disabled       bool
	trivialBypass  bool
	bestEffort     bool
	readOnlyPaths  []string
	readWritePaths []string
	logLevel       string
	logFile        string
}

// Option configures an Executor.
type Option func(*Executor)

// WithPrimitive overrides the OS primitive. Tests use this to observe
// primitive calls.
func WithPrimitive(p Primitive) Option {
	return func(e *Executor) { e.primitive = p }
}

// WithProfileID attaches the stored profile id so violation records can be
// attributed to the policy that was in force.
func WithProfileID(id int64) Option {
	return func(e *Executor) { e.profileID = &id }
}

// WithTrivialBypass toggles the exact-match escape hatch for trivial test
// binaries. Off unless explicitly enabled.
func WithTrivialBypass(enabled bool) Option {
	return func(e *Executor) { e.trivialBypass = enabled }
}

// WithDisabled turns sandboxing off entirely; spawns proceed unrestricted.
func WithDisabled(disabled bool) Option {
	return func(e *Executor) { e.disabled = disabled }
}

// WithBestEffort controls whether the primitive degrades to the highest
// sandbox ABI the kernel supports instead of failing on older kernels.
func WithBestEffort(enabled bool) Option {
	return func(e *Executor) { e.bestEffort = enabled }
}

// WithExtraPaths grants read and read/write access to paths outside the
// profile. The grants apply on both spawn strategies: the primitive adds
// them natively, and the activation options carry them to the child.
func WithExtraPaths(readOnly, readWrite []string) Option {
	return func(e *Executor) {
		e.readOnlyPaths = readOnly
		e.readWritePaths = readWrite
	}
}

// WithChildLogging tells the child where to log during self-activation. The
// child restricts itself before it can read any config file, so the log
// destination has to travel through the environment.
func WithChildLogging(level, file string) Option {
	return func(e *Executor) {
		e.logLevel = level
		e.logFile = file
	}
}

// New creates an executor for one execution of the given compiled profile.
// Each executor carries a fresh run id for violation attribution.
func New(compiled profile.CompiledProfile, opts ...Option) *Executor {
	e := &Executor{
		compiled:   compiled,
		runID:      uuid.NewString(),
		bestEffort: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.primitive == nil {
		e.primitive = newPrimitive(e.bestEffort, e.readOnlyPaths, e.readWritePaths)
	}
	return e
}

// FromConfig creates an executor honoring the sandbox and logging settings
// of cfg.
func FromConfig(compiled profile.CompiledProfile, cfg *config.Config, opts ...Option) *Executor {
	base := []Option{
		WithBestEffort(cfg.Sandbox.BestEffort),
		WithDisabled(cfg.Sandbox.Disable),
		WithTrivialBypass(cfg.Sandbox.AllowTrivialBypass),
		WithExtraPaths(cfg.Sandbox.AdditionalReadOnlyPaths, cfg.Sandbox.AdditionalReadWritePaths),
		WithChildLogging(cfg.LogLevel, cfg.LogFile),
	}
	return New(compiled, append(base, opts...)...)
}

// RunID returns the run identifier attached to this execution.
func (e *Executor) RunID() string { return e.runID }

// trivialBinaries is the escape-hatch allowlist. Exact names only; a pattern
// match here would be an accidental privilege bypass.
var trivialBinaries = map[string]struct{}{
	"echo":      {},
	"/bin/echo": {},
}

func isTrivialBinary(command string) bool {
	_, ok := trivialBinaries[command]
	return ok
}

// SpawnSandboxed runs command under the compiled profile. It first attempts
// the native atomic sandbox+spawn; when the primitive cannot hand back a
// supervisable child, it discards whatever the primitive did and falls back
// to spawning with activation markers in the child environment. The returned
// process has started; the caller owns it from here.
func (e *Executor) SpawnSandboxed(command string, args []string, cwd string) (*Process, error) {
	logger.Info("executing sandboxed command: %s %v (run %s)", command, args, e.runID)

	if e.trivialBypass && isTrivialBinary(command) {
		logger.Debug("trivial binary %q bypasses sandbox construction", command)
		return e.spawn(command, args, cwd, nil, StrategyBypass)
	}

	if e.disabled || !e.primitive.Available() {
		logger.Warn("sandboxing unavailable (disabled=%t, primitive=%t); spawning without restrictions",
			e.disabled, e.primitive.Available())
		return e.spawn(command, args, cwd, nil, StrategyUnsandboxed)
	}

	// Strategy 1: native atomic start. The full activation environment is
	// set even here: if the sandboxed child re-activates on itself it
	// applies the transported rules instead of the minimal profile.
	native, err := e.newProcess(command, args, cwd, e.activationEnv())
	if err != nil {
		return nil, err
	}
	startErr := e.primitive.Start(e.compiled, native.Cmd)
	switch {
	case startErr == nil:
		native.Strategy = StrategyNative
		logger.Debug("native sandbox start succeeded (pid %d)", native.Cmd.Process.Pid)
		return native, nil
	case errors.Is(startErr, ErrNoChildHandle):
		// The primitive may have gotten as far as spawning. A process the
		// caller cannot supervise must not survive the fallback.
		if native.Cmd.Process != nil {
			_ = native.Cmd.Process.Kill()
			_ = native.Cmd.Process.Release()
		}
		native.closePipes()
		logger.Warn("primitive cannot return a child handle; using child-side activation")
	default:
		native.closePipes()
		logger.Warn("native sandbox start failed: %v; using child-side activation", startErr)
	}

	// Strategy 2: child self-activation.
	return e.spawn(command, args, cwd, e.activationEnv(), StrategyChildActivation)
}

// PrepareAsyncCommand returns a configured, not-yet-started command with the
// activation environment already set. Callers that manage their own process
// lifecycle (stdio piping, streaming, termination) perform the spawn
// themselves and own the handle.
func (e *Executor) PrepareAsyncCommand(ctx context.Context, command string, args []string, cwd string) *exec.Cmd {
	logger.Info("preparing sandboxed command: %s %v (run %s)", command, args, e.runID)

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = cwd
	env := sanitizedEnv()
	switch {
	case e.trivialBypass && isTrivialBinary(command):
		logger.Debug("trivial binary %q prepared without sandbox markers", command)
	case e.disabled || !e.primitive.Available():
		logger.Warn("sandboxing unavailable; command prepared without restrictions")
	default:
		env = append(env, e.activationEnv()...)
	}
	cmd.Env = env
	return cmd
}

// activationEnv is everything the child needs to self-activate: marker,
// project root, attribution ids, transported options, and the serialized
// profile. A serialization failure drops only the rules variable: the child
// then activates with the minimal profile, degrading toward less privilege
// rather than none.
func (e *Executor) activationEnv() []string {
	env := []string{
		EnvSandboxActive + "=1",
		EnvProjectPath + "=" + e.compiled.ProjectPath,
		EnvRunID + "=" + e.runID,
	}
	if e.profileID != nil {
		env = append(env, EnvProfileID+"="+strconv.FormatInt(*e.profileID, 10))
	}
	opts := activationOptions{
		BestEffort:     e.bestEffort,
		LogLevel:       e.logLevel,
		LogFile:        e.logFile,
		ReadOnlyPaths:  e.readOnlyPaths,
		ReadWritePaths: e.readWritePaths,
	}
	if encoded, ok := opts.encode(); ok {
		env = append(env, EnvOptions+"="+encoded)
	}
	data, err := profile.Serialize(e.compiled)
	if err != nil {
		logger.Warn("failed to serialize sandbox rules: %v; child will use the minimal profile", err)
		return env
	}
	logger.Debug("serialized sandbox profile with %d operations", len(e.compiled.Operations))
	return append(env, EnvRules+"="+string(data))
}

// newProcess builds a not-yet-started process with stdio pipes and the
// sanitized environment.
func (e *Executor) newProcess(command string, args []string, cwd string, extraEnv []string) (*Process, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	cmd.Env = append(sanitizedEnv(), extraEnv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	return &Process{
		Cmd:    cmd,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		RunID:  e.runID,
	}, nil
}

func (e *Executor) spawn(command string, args []string, cwd string, extraEnv []string, strategy Strategy) (*Process, error) {
	proc, err := e.newProcess(command, args, cwd, extraEnv)
	if err != nil {
		return nil, err
	}
	if err := proc.Cmd.Start(); err != nil {
		proc.closePipes()
		return nil, fmt.Errorf("spawn %s: %w", command, err)
	}
	proc.Strategy = strategy
	logger.Debug("spawned %s (pid %d, strategy %s)", command, proc.Cmd.Process.Pid, strategy)
	return proc, nil
}

// NewViolation builds a violation record carrying this execution's
// attribution context. The OS primitive detects denials out of band; the
// audit sink stores what this returns.
func (e *Executor) NewViolation(operationType string, patternValue, processName string, pid int64) policy.Violation {
	runID := e.runID
	v := policy.Violation{
		ProfileID:     e.profileID,
		RunID:         &runID,
		OperationType: operationType,
	}
	if patternValue != "" {
		v.PatternValue = &patternValue
	}
	if processName != "" {
		v.ProcessName = &processName
	}
	if pid > 0 {
		v.PID = &pid
	}
	return v
}
