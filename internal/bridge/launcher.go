package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultModule is the engine entry point passed after "-m".
const DefaultModule = "command_center.tauri_api"

// LauncherEnv, when set, names a launcher tried before all configured ones.
// The value is split on whitespace: program first, then prefix arguments.
const LauncherEnv = "CCBRIDGE_LAUNCHER"

// waitDelay bounds how long Wait blocks on inherited pipes after the engine exits.
const waitDelay = 5 * time.Second

// Launcher is a program plus fixed leading arguments able to run the engine.
type Launcher struct {
	Name    string   `yaml:"name" json:"name"`
	Program string   `yaml:"program" json:"program"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
}

func (l Launcher) String() string {
	return strings.Join(append([]string{l.Program}, l.Args...), " ")
}

// DefaultLaunchers returns the launchers tried when none are configured.
func DefaultLaunchers() []Launcher {
	return []Launcher{
		{Name: "python3", Program: "python3"},
		{Name: "python", Program: "python"},
		{Name: "uv", Program: "uv", Args: []string{"run", "python"}},
	}
}

// envLauncher parses LauncherEnv. It is read on every call.
func envLauncher() (Launcher, bool) {
	fields := strings.Fields(os.Getenv(LauncherEnv))
	if len(fields) == 0 {
		return Launcher{}, false
	}
	return Launcher{Name: "env", Program: fields[0], Args: fields[1:]}, true
}

// Invocation is the outcome of a call whose engine process started.
type Invocation struct {
	Launcher Launcher
	Attempts []Attempt
	Result   InvocationResult
	Duration time.Duration
}

// Resolver starts the engine with the first launcher that can create a process.
// It keeps no state between runs.
type Resolver struct {
	Launchers []Launcher
	Module    string
	Dir       string
	Env       []string // extra KEY=VALUE pairs appended to the host environment
}

// Run tries each launcher in order. Only a failure to start moves on to the
// next launcher; once a process exists its result is final.
//
// On an interpreter_unavailable error the returned Invocation is nil. On an
// engine that started but could not be waited for, the Invocation is returned
// along with the error.
func (r *Resolver) Run(ctx context.Context, command Command) (*Invocation, error) {
	module := r.Module
	if module == "" {
		module = DefaultModule
	}

	var attempts []Attempt
	for _, l := range r.Launchers {
		cmd := r.command(ctx, l, module, command)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		start := time.Now()
		if err := cmd.Start(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, terminatedError(ctxErr)
			}
			attempts = append(attempts, Attempt{Launcher: l, Err: err})
			continue
		}

		inv := &Invocation{Launcher: l, Attempts: attempts}
		err := cmd.Wait()
		inv.Duration = time.Since(start)
		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		inv.Result = InvocationResult{
			ExitCode: exitCode,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return inv, terminatedError(ctxErr)
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return inv, &Error{
				Kind:    KindEngine,
				Message: fmt.Sprintf("waiting for engine: %v", err),
				Err:     err,
			}
		}
		return inv, nil
	}

	return nil, unavailableError(attempts)
}

func (r *Resolver) command(ctx context.Context, l Launcher, module string, command Command) *exec.Cmd {
	argv := make([]string, 0, len(l.Args)+2+len(command.Args)+1)
	argv = append(argv, l.Args...)
	argv = append(argv, "-m", module)
	argv = append(argv, command.Argv()...)

	cmd := exec.CommandContext(ctx, l.Program, argv...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	setupProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}
