// Package kata drives the kata-runtime CLI. Structurally a twin of the
// gVisor driver (internal/drivers/gvisor), grounded on the same
// Siryoos-tartarus subprocess-orchestration style but following
// original_source/runtime/kata.rs for the exact kata-runtime argument
// sequences and the "snapshot is metadata-only" behavior the real Kata
// runtime imposes.
package kata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sandstormio/gateway/internal/ocispec"
	"github.com/sandstormio/gateway/internal/sandbox"
)

type Driver struct {
	Logger  *slog.Logger
	KataBin string
	BaseDir string
	RootDir string

	registry *sandbox.Registry
}

func New(logger *slog.Logger, kataBin, baseDir string) *Driver {
	return &Driver{
		Logger:   logger,
		KataBin:  kataBin,
		BaseDir:  baseDir,
		RootDir:  filepath.Join(baseDir, "runtime"),
		registry: sandbox.NewRegistry(),
	}
}

func (d *Driver) RuntimeType() sandbox.RuntimeType { return sandbox.Kata }

// Owns reports whether this driver's registry holds id, used by the gateway
// facade's fan-out lookup.
func (d *Driver) Owns(id sandbox.ID) bool { return d.registry.Has(id) }

func (d *Driver) Supports(level sandbox.IsolationLevel) bool {
	return level == sandbox.Strong || level == sandbox.Maximum
}

func containerID(id sandbox.ID) string { return fmt.Sprintf("kata-%s", id) }

func (d *Driver) Create(ctx context.Context, cfg sandbox.Config) (sandbox.ID, error) {
	if d.registry.Has(cfg.ID) {
		return "", sandbox.NewConflictError(cfg.ID)
	}
	if cfg.CPULimit != nil && *cfg.CPULimit <= 0 {
		return "", sandbox.NewResourceLimitInvalidError("cpu_limit", *cfg.CPULimit)
	}
	if cfg.MemoryLimit != nil && *cfg.MemoryLimit <= 0 {
		return "", sandbox.NewResourceLimitInvalidError("memory_limit", float64(*cfg.MemoryLimit))
	}

	cid := containerID(cfg.ID)
	bundlePath, err := ocispec.WriteBundle(d.BaseDir, cfg, ocispec.VariantKata)
	if err != nil {
		return "", sandbox.NewBundlePrepFailedError(cfg.ID, err)
	}

	if err := d.run(ctx, cfg.ID, "create", "--bundle", bundlePath, cid); err != nil {
		os.RemoveAll(bundlePath)
		return "", err
	}
	if err := d.run(ctx, cfg.ID, "start", cid); err != nil {
		_ = d.runBestEffort(context.Background(), "delete", cid)
		os.RemoveAll(bundlePath)
		return "", err
	}

	now := time.Now()
	info := &sandbox.Info{
		ID:         cfg.ID,
		BackendID:  cid,
		BundlePath: bundlePath,
		State:      sandbox.Running,
		Config:     cfg,
		CreatedAt:  now,
		StartedAt:  now,
	}
	if err := d.registry.Insert(info); err != nil {
		return "", err
	}
	d.Logger.Info("created kata sandbox", "id", cfg.ID, "cid", cid)
	return cfg.ID, nil
}

func (d *Driver) Exec(ctx context.Context, id sandbox.ID, command []string, env map[string]string) (sandbox.Result, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Result{}, sandbox.NewNotFoundError(id)
	}
	if info.State != sandbox.Running {
		return sandbox.Result{}, sandbox.NewInvalidStateError(id, info.State, sandbox.Running)
	}

	args := []string{"--root", d.RootDir, "exec"}
	for k, v := range env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, info.BackendID)
	args = append(args, command...)

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.KataBin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() != nil {
		return sandbox.Result{}, sandbox.NewTimeoutError(id)
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return sandbox.Result{}, sandbox.NewExecFailedError(id, stderr.String(), runErr)
		}
	}

	usage := d.getResourceUsage(info.BackendID)
	if usage == nil {
		usage = &sandbox.ResourceUsage{CPUUsageSeconds: float64(duration.Milliseconds()) / 1000.0}
	}

	return sandbox.Result{
		ID:            id,
		ExitCode:      exitCode,
		Stdout:        stdout.Bytes(),
		Stderr:        stderr.Bytes(),
		DurationMs:    duration.Milliseconds(),
		ResourceUsage: *usage,
	}, nil
}

// getResourceUsage is the hook for VM-level metrics of a running Kata
// sandbox. It has no metrics source and always returns nil (unknown), so
// Exec falls back to the duration-derived estimate.
func (d *Driver) getResourceUsage(containerID string) *sandbox.ResourceUsage {
	return nil
}

func (d *Driver) Destroy(ctx context.Context, id sandbox.ID) error {
	info, ok := d.registry.Get(id)
	if !ok {
		return nil
	}

	var firstErr error
	if err := d.runBestEffort(ctx, "kill", info.BackendID, "KILL"); err != nil {
		firstErr = err
	}
	if err := d.runBestEffort(ctx, "delete", info.BackendID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := os.RemoveAll(info.BundlePath); err != nil {
		d.Logger.Warn("failed to remove bundle directory", "id", id, "error", err)
	}

	d.registry.Remove(id)
	d.Logger.Info("destroyed kata sandbox", "id", id)
	if firstErr != nil {
		d.Logger.Warn("kata destroy had non-fatal cleanup errors", "id", id, "error", firstErr)
	}
	return nil
}

// Snapshot is not fully supported: Kata has no stable live-snapshot
// contract, so this returns a metadata-only record (container id and
// bundle path) with empty byte fields and no memory state.
func (d *Driver) Snapshot(ctx context.Context, id sandbox.ID) (sandbox.Snapshot, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Snapshot{}, sandbox.NewNotFoundError(id)
	}
	d.Logger.Warn("kata snapshot not fully implemented, creating metadata snapshot only", "id", id)
	return sandbox.Snapshot{
		ID:          sandbox.SnapshotID(fmt.Sprintf("snap-%s-%d", id, time.Now().UnixNano())),
		SandboxID:   id,
		RuntimeType: sandbox.Kata,
		Timestamp:   time.Now(),
		Metadata: map[string]string{
			"container_id": info.BackendID,
			"bundle_path":  info.BundlePath,
		},
	}, nil
}

// Resume allocates a new id and logs a not-implemented warning, per the
// component design: true live migration is not available for Kata, but
// resume itself still succeeds with a fresh id rather than failing.
func (d *Driver) Resume(ctx context.Context, snap sandbox.Snapshot) (sandbox.ID, error) {
	if snap.RuntimeType != sandbox.Kata {
		return "", sandbox.NewSnapshotUnsupportedError(snap.RuntimeType)
	}
	newID := sandbox.ID(fmt.Sprintf("%s-resumed-%d", snap.SandboxID, time.Now().UnixNano()))
	d.Logger.Warn("kata resume not fully implemented; no VM state actually restored", "snapshot", snap.ID, "new_id", newID)
	return newID, nil
}

func (d *Driver) Status(ctx context.Context, id sandbox.ID) (sandbox.Status, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Status{}, sandbox.NewNotFoundError(id)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, d.KataBin, "--root", d.RootDir, "state", info.BackendID)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err == nil {
		var parsed struct {
			Status string `json:"status"`
		}
		if jsonErr := json.Unmarshal(stdout.Bytes(), &parsed); jsonErr == nil {
			switch parsed.Status {
			case "running":
				info.State = sandbox.Running
			case "paused":
				info.State = sandbox.Paused
			case "stopped":
				info.State = sandbox.Stopped
			default:
				info.State = sandbox.Failed
			}
		}
	}

	return sandbox.Status{
		ID:        info.ID,
		State:     info.State,
		CreatedAt: info.CreatedAt,
		StartedAt: info.StartedAt,
		ExitCode:  info.ExitCode,
	}, nil
}

func (d *Driver) Logs(ctx context.Context, id sandbox.ID, follow bool) (io.ReadCloser, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return nil, sandbox.NewNotFoundError(id)
	}

	args := []string{"--root", d.RootDir, "logs"}
	if follow {
		args = append(args, "-f")
	}
	args = append(args, info.BackendID)

	cmd := exec.CommandContext(ctx, d.KataBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, sandbox.NewExecFailedError(id, "", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, sandbox.NewExecFailedError(id, "", err)
	}
	return &procReadCloser{ReadCloser: stdout, cmd: cmd}, nil
}

type procReadCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *procReadCloser) Close() error {
	err := p.ReadCloser.Close()
	_ = p.cmd.Wait()
	return err
}

func (d *Driver) run(ctx context.Context, id sandbox.ID, args ...string) error {
	fullArgs := append([]string{"--root", d.RootDir}, args...)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.KataBin, fullArgs...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sandbox.NewExecFailedError(id, stderr.String(), err)
	}
	return nil
}

func (d *Driver) runBestEffort(ctx context.Context, args ...string) error {
	fullArgs := append([]string{"--root", d.RootDir}, args...)
	cmd := exec.CommandContext(ctx, d.KataBin, fullArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		d.Logger.Warn("kata-runtime cleanup step failed", "args", args, "stderr", stderr.String())
		return err
	}
	return nil
}
