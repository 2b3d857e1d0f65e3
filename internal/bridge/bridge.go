// Package bridge runs the analytics engine on behalf of the desktop shell.
//
// A call encodes a typed Request into argv, starts the engine with the first
// launcher that can create a process, and classifies the engine's exit status
// and output into a JSON payload or an *Error. Calls share no state.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"phobos.org.uk/ccbridge/internal/logging"
)

// Options configures a Bridge.
type Options struct {
	Launchers []Launcher // default: DefaultLaunchers()
	Module    string     // default: DefaultModule
	Dir       string     // engine working directory; empty means inherit
	Env       []string   // extra KEY=VALUE pairs for the engine
	Log       *logging.Logger
}

// Bridge exposes the engine's operations. It is safe for concurrent use.
type Bridge struct {
	launchers []Launcher
	module    string
	dir       string
	env       []string
	log       *logging.Logger
}

// New creates a Bridge.
func New(opts Options) *Bridge {
	launchers := opts.Launchers
	if len(launchers) == 0 {
		launchers = DefaultLaunchers()
	}
	module := opts.Module
	if module == "" {
		module = DefaultModule
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Bridge{
		launchers: append([]Launcher(nil), launchers...),
		module:    module,
		dir:       opts.Dir,
		env:       append([]string(nil), opts.Env...),
		log:       log,
	}
}

// Launchers returns the configured launchers in priority order,
// not including one supplied through LauncherEnv.
func (b *Bridge) Launchers() []Launcher {
	return append([]Launcher(nil), b.launchers...)
}

// Module returns the engine module path.
func (b *Bridge) Module() string { return b.module }

// resolver builds a fresh resolver per call so environment changes between
// calls are honoured.
func (b *Bridge) resolver() *Resolver {
	launchers := b.launchers
	if l, ok := envLauncher(); ok {
		launchers = append([]Launcher{l}, launchers...)
	}
	return &Resolver{
		Launchers: dedupeLaunchers(launchers),
		Module:    b.module,
		Dir:       b.dir,
		Env:       b.env,
	}
}

// dedupeLaunchers drops launchers that run the same program with the same
// prefix arguments as an earlier one, keeping the first occurrence.
func dedupeLaunchers(launchers []Launcher) []Launcher {
	seen := make(map[string]bool, len(launchers))
	out := make([]Launcher, 0, len(launchers))
	for _, l := range launchers {
		key := strings.Join(append([]string{l.Program}, l.Args...), "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

type callIDKey struct{}

// WithCallID makes the next Call on ctx log under id instead of a fresh UUID.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

// Call runs any request through the engine.
func (b *Bridge) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	op, ok := Lookup(req.Operation())
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", req.Operation())
	}

	callID, ok := ctx.Value(callIDKey{}).(string)
	if !ok || callID == "" {
		callID = uuid.New().String()
	}
	callLog := b.log.WithCall(callID, op.Name)
	command := req.Encode()
	callLog.Debug("invoking engine", map[string]any{"argv": command.Argv()})

	inv, err := b.resolver().Run(ctx, command)
	var attempts []Attempt
	var be *Error
	if inv != nil {
		attempts = inv.Attempts
	} else if errors.As(err, &be) {
		attempts = be.Attempts
	}
	for _, a := range attempts {
		callLog.Warn("launcher unavailable", map[string]any{
			"launcher": a.Launcher.Name,
			"error":    a.Err.Error(),
		})
	}
	if err != nil {
		b.logFailure(callLog, inv, err)
		return nil, err
	}

	payload, err := Classify(inv.Result)
	if err == nil {
		err = checkShape(payload, op.Shape)
	}
	if err != nil {
		b.logFailure(callLog, inv, err)
		return nil, err
	}

	callLog.Info("call completed", map[string]any{
		"launcher":         inv.Launcher.Name,
		"duration_seconds": inv.Duration.Seconds(),
		"bytes":            len(payload),
	})
	return payload, nil
}

func (b *Bridge) logFailure(callLog *logging.CallLogger, inv *Invocation, err error) {
	fields := map[string]any{
		"error_type": string(KindOf(err)),
		"error":      err.Error(),
	}
	var be *Error
	if inv != nil {
		fields["launcher"] = inv.Launcher.Name
		fields["exit_code"] = inv.Result.ExitCode
		fields["duration_seconds"] = inv.Duration.Seconds()
	} else if errors.As(err, &be) && be.Kind == KindInterpreterUnavailable {
		fields["attempts"] = len(be.Attempts)
	}
	callLog.Error("call failed", fields)
}

// Dashboard returns the dashboard bundle.
func (b *Bridge) Dashboard(ctx context.Context, req DashboardRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// Day returns the details of one day.
func (b *Bridge) Day(ctx context.Context, req DayRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// Model returns the details of one model.
func (b *Bridge) Model(ctx context.Context, req ModelRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// Session returns the details of one session.
func (b *Bridge) Session(ctx context.Context, req SessionRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// LimitResets returns the limit-reset events in a range.
func (b *Bridge) LimitResets(ctx context.Context, req LimitResetsRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// PNGExport renders the PNG summary.
func (b *Bridge) PNGExport(ctx context.Context, req PNGExportRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// ListProjects lists discovered projects.
func (b *Bridge) ListProjects(ctx context.Context) (json.RawMessage, error) {
	return b.Call(ctx, ListProjectsRequest{})
}

// UpdateProject updates project metadata and returns the updated project.
func (b *Bridge) UpdateProject(ctx context.Context, req UpdateProjectRequest) (json.RawMessage, error) {
	return b.Call(ctx, req)
}

// UsageAccounts returns the latest usage snapshot per account.
func (b *Bridge) UsageAccounts(ctx context.Context) (json.RawMessage, error) {
	return b.Call(ctx, UsageAccountsRequest{})
}
