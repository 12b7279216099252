// Package gateway is the thin, transport-agnostic front exposing sandbox
// lifecycle operations. Every method here maps 1:1 onto an entry in the
// illustrative HTTP surface (POST /v1/sandboxes/run, .../exec, .../status,
// DELETE .../{id}, .../snapshot, POST /v1/sandboxes/resume, GET
// /v1/runtimes) so a future HTTP layer is a thin adapter over this facade;
// HTTP parsing itself stays out of scope. Grounded stylistically on
// Siryoos-tartarus's cmd/olympus-api/main.go handler bodies (minus the
// net/http plumbing) and pkg/hypnos/manager.go's orchestration style.
package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sandstormio/gateway/internal/runtimeselector"
	"github.com/sandstormio/gateway/internal/sandbox"
)

// languageCommands maps a request's language field to argv, resolving the
// spec's Open Question about "go run" being a single token: every entry is
// pre-split so no caller has to post-process it.
var languageCommands = map[string][]string{
	"python": {"python3"},
	"js":     {"node"},
	"ts":     {"node"},
	"go":     {"go", "run"},
	"rust":   {"cargo", "run"},
	"java":   {"java"},
	"cpp":    {"./a.out"},
	"shell":  {"sh"},
}

func commandFor(language string) []string {
	if cmd, ok := languageCommands[strings.ToLower(language)]; ok {
		out := make([]string, len(cmd))
		copy(out, cmd)
		return out
	}
	return []string{"sh"}
}

// RunRequest is the facade's entry point for materializing a new sandbox
// from source code rather than a pre-built Config.
type RunRequest struct {
	Code              string
	Language          string
	IsolationLevel    sandbox.IsolationLevel
	RuntimePreference *sandbox.RuntimeType
	CPULimit          *float64
	MemoryLimit       *int64
	TimeoutMillis     *int64
	Environment       map[string]string
	Mounts            []sandbox.Mount
}

// Facade fans requests out to whichever driver owns a sandbox id, since
// sandboxes are owned by exactly one driver but the facade does not track
// that ownership centrally — trading one extra registry probe for reduced
// central state.
type Facade struct {
	Logger    *slog.Logger
	Selector  *runtimeselector.Registry
	installed []sandbox.Runtime
}

func New(logger *slog.Logger, selector *runtimeselector.Registry, drivers ...sandbox.Runtime) *Facade {
	return &Facade{Logger: logger, Selector: selector, installed: drivers}
}

// RunSandbox translates language into a concrete command, selects a driver
// for the requested isolation level, and creates the sandbox.
func (f *Facade) RunSandbox(ctx context.Context, req RunRequest) (sandbox.ID, error) {
	driver, err := f.Selector.Select(req.IsolationLevel, req.RuntimePreference)
	if err != nil {
		return "", err
	}

	command := commandFor(req.Language)
	if req.Code != "" {
		command = append(command, "-c", req.Code)
	}

	cfg := sandbox.Config{
		ID:                sandbox.ID(uuid.NewString()),
		Command:           command,
		Environment:       req.Environment,
		CPULimit:          req.CPULimit,
		MemoryLimit:       req.MemoryLimit,
		TimeoutMillis:     req.TimeoutMillis,
		IsolationLevel:    req.IsolationLevel,
		RuntimePreference: req.RuntimePreference,
		Mounts:            req.Mounts,
	}

	id, err := driver.Create(ctx, cfg)
	if err != nil {
		f.Logger.Error("sandbox create failed", "runtime", driver.RuntimeType(), "error", err)
		return "", err
	}
	return id, nil
}

// ownershipProbe is implemented by every concrete driver alongside
// sandbox.Runtime. It is kept separate from the Runtime contract itself
// (C1) so the public capability surface stays exactly what the component
// design specifies; the facade uses it purely to avoid a subprocess-backed
// Status() call just to find which driver owns an id.
type ownershipProbe interface {
	Owns(id sandbox.ID) bool
}

// findOwner probes each installed driver's registry for id, returning the
// first that has it.
func (f *Facade) findOwner(id sandbox.ID) sandbox.Runtime {
	for _, d := range f.installed {
		if p, ok := d.(ownershipProbe); ok && p.Owns(id) {
			return d
		}
	}
	return nil
}

func (f *Facade) Exec(ctx context.Context, id sandbox.ID, command []string, env map[string]string) (sandbox.Result, error) {
	driver := f.findOwner(id)
	if driver == nil {
		return sandbox.Result{}, sandbox.NewNotFoundError(id)
	}
	return driver.Exec(ctx, id, command, env)
}

func (f *Facade) Status(ctx context.Context, id sandbox.ID) (sandbox.Status, error) {
	driver := f.findOwner(id)
	if driver == nil {
		return sandbox.Status{}, sandbox.NewNotFoundError(id)
	}
	return driver.Status(ctx, id)
}

func (f *Facade) Destroy(ctx context.Context, id sandbox.ID) error {
	driver := f.findOwner(id)
	if driver == nil {
		return nil // NotFound on destroy is success
	}
	return driver.Destroy(ctx, id)
}

func (f *Facade) Snapshot(ctx context.Context, id sandbox.ID) (sandbox.Snapshot, error) {
	driver := f.findOwner(id)
	if driver == nil {
		return sandbox.Snapshot{}, sandbox.NewNotFoundError(id)
	}
	return driver.Snapshot(ctx, id)
}

// Resume dispatches by the snapshot's own RuntimeType rather than fanning
// out, since a snapshot is only restorable by the runtime that produced it.
func (f *Facade) Resume(ctx context.Context, snap sandbox.Snapshot) (sandbox.ID, error) {
	driver, err := f.Selector.Get(snap.RuntimeType)
	if err != nil {
		return "", err
	}
	return driver.Resume(ctx, snap)
}

// RuntimeInfo describes one installed backend for ListRuntimes.
type RuntimeInfo struct {
	Type              sandbox.RuntimeType
	SupportedLevels   []sandbox.IsolationLevel
}

func (f *Facade) ListRuntimes() []RuntimeInfo {
	levels := []sandbox.IsolationLevel{sandbox.Standard, sandbox.Strong, sandbox.Maximum}
	out := make([]RuntimeInfo, 0, len(f.installed))
	for _, d := range f.installed {
		var supported []sandbox.IsolationLevel
		for _, l := range levels {
			if d.Supports(l) {
				supported = append(supported, l)
			}
		}
		out = append(out, RuntimeInfo{Type: d.RuntimeType(), SupportedLevels: supported})
	}
	return out
}
