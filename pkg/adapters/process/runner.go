package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// EnvPrefix prefixes the environment variables carrying step inputs.
const EnvPrefix = "PIPETREE_ARG_"

// DefaultGracePeriod is how long a cancelled process may take to exit after an interrupt.
const DefaultGracePeriod = 5 * time.Second

var unsafeEnvChars = regexp.MustCompile(`[^A-Z0-9_]`)

// Runner executes step functions as local processes.
// It follows a strict registry pattern (allow-listing): only registered commands run.
// It implements ports.FuncExecutor.
type Runner struct {
	mu          sync.RWMutex
	registry    map[string]RegisteredProcess
	baseDir     string
	gracePeriod time.Duration
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(functions map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, fn := range functions {
			r.registry[name] = RegisteredProcess{Command: fn.Command, Args: fn.Args, Env: fn.Environment}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.gracePeriod = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:    make(map[string]RegisteredProcess),
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted script/command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Has reports whether name is in the allow-list.
func (r *Runner) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registry[name]
	return ok
}

// Execute runs the registered command for nqName.
//
// Inputs are passed as environment variables (PIPETREE_ARG_<NAME>), never as
// command-line flags. A JSON object on stdout becomes the outputs; any other
// output is returned under the "result" key.
func (r *Runner) Execute(ctx context.Context, nqName string, inputs map[string]any) (map[string]any, error) {
	r.mu.RLock()
	proc, ok := r.registry[nqName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("process function not registered: %s", nqName)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	// Interrupt first and only kill once the grace period elapsed.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.gracePeriod

	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range inputs {
		env = append(env, EnvPrefix+envName(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("execution of %s cancelled: %w", nqName, ctxErr)
		}
		return nil, fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseOutput(stdout.String()), nil
}

func envName(key string) string {
	return unsafeEnvChars.ReplaceAllString(strings.ToUpper(key), "_")
}

func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		// Complex types: Try JSON
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

func parseOutput(output string) map[string]any {
	trimmed := strings.TrimSpace(output)

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return obj
		}
	}
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var arr []any
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			return map[string]any{"result": arr}
		}
	}
	return map[string]any{"result": trimmed}
}
