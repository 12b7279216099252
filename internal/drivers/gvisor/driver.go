// Package gvisor drives the runsc CLI to materialize, control, and tear down
// gVisor sandboxes. It is grounded on Siryoos-tartarus's
// pkg/tartarus/gvisor_runtime.go for subprocess orchestration style, adapted
// to the sandbox.Runtime contract and the exact CLI argument sequences
// required by the component design (create/start/exec/kill/delete/pause/
// checkpoint/restore/state/logs).
package gvisor

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

// Driver drives runsc(8) against one root directory.
type Driver struct {
	Logger   *slog.Logger
	RunscBin string
	BaseDir  string // e.g. /var/lib/sandstorm/gvisor
	RootDir  string // runsc --root

	registry *sandbox.Registry
}

func New(logger *slog.Logger, runscBin, baseDir string) *Driver {
	return &Driver{
		Logger:   logger,
		RunscBin: runscBin,
		BaseDir:  baseDir,
		RootDir:  filepath.Join(baseDir, "runtime"),
		registry: sandbox.NewRegistry(),
	}
}

func (d *Driver) RuntimeType() sandbox.RuntimeType { return sandbox.Gvisor }

// Owns reports whether this driver's registry holds id, used by the gateway
// facade's fan-out lookup.
func (d *Driver) Owns(id sandbox.ID) bool { return d.registry.Has(id) }

func (d *Driver) Supports(level sandbox.IsolationLevel) bool {
	return level == sandbox.Standard || level == sandbox.Strong
}

func containerID(id sandbox.ID) string { return fmt.Sprintf("gvisor-%s", id) }

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
	bundlePath, err := ocispec.WriteBundle(d.BaseDir, cfg, ocispec.VariantGvisor)
	if err != nil {
		return "", sandbox.NewBundlePrepFailedError(cfg.ID, err)
	}

	if err := d.run(ctx, cfg.ID, "create", "--bundle", bundlePath, cid); err != nil {
		os.RemoveAll(bundlePath)
		return "", err
	}
	if err := d.run(ctx, cfg.ID, "start", cid); err != nil {
		_ = d.runBestEffort(context.Background(), "delete", "--force", cid)
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
	d.Logger.Info("created gvisor sandbox", "id", cfg.ID, "cid", cid)
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
	cmd := exec.CommandContext(ctx, d.RunscBin, args...)
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

	return sandbox.Result{
		ID:         id,
		ExitCode:   exitCode,
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		DurationMs: duration.Milliseconds(),
		ResourceUsage: sandbox.ResourceUsage{
			CPUUsageSeconds: float64(duration.Milliseconds()) / 1000.0,
		},
	}, nil
}

func (d *Driver) Destroy(ctx context.Context, id sandbox.ID) error {
	info, ok := d.registry.Get(id)
	if !ok {
		return nil // idempotent
	}

	var firstErr error
	if err := d.runBestEffort(ctx, "kill", info.BackendID, "KILL"); err != nil {
		firstErr = err
	}
	if err := d.runBestEffort(ctx, "delete", "--force", info.BackendID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := os.RemoveAll(info.BundlePath); err != nil {
		d.Logger.Warn("failed to remove bundle directory", "id", id, "error", err)
	}

	d.registry.Remove(id)
	d.Logger.Info("destroyed gvisor sandbox", "id", id)
	if firstErr != nil {
		d.Logger.Warn("gvisor destroy had non-fatal cleanup errors", "id", id, "error", firstErr)
	}
	return nil
}

func (d *Driver) Snapshot(ctx context.Context, id sandbox.ID) (sandbox.Snapshot, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Snapshot{}, sandbox.NewNotFoundError(id)
	}

	if err := d.run(ctx, id, "pause", info.BackendID); err != nil {
		return sandbox.Snapshot{}, err
	}

	checkpointDir := filepath.Join(d.BaseDir, "checkpoints", string(id))
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return sandbox.Snapshot{}, sandbox.NewBundlePrepFailedError(id, err)
	}
	if err := d.run(ctx, id, "checkpoint", "--image-path", checkpointDir, info.BackendID); err != nil {
		return sandbox.Snapshot{}, err
	}

	return sandbox.Snapshot{
		ID:          sandbox.SnapshotID(fmt.Sprintf("snap-%s-%d", id, time.Now().UnixNano())),
		SandboxID:   id,
		RuntimeType: sandbox.Gvisor,
		Timestamp:   time.Now(),
		Metadata:    map[string]string{"checkpoint_path": checkpointDir},
	}, nil
}

func (d *Driver) Resume(ctx context.Context, snap sandbox.Snapshot) (sandbox.ID, error) {
	if snap.RuntimeType != sandbox.Gvisor {
		return "", sandbox.NewSnapshotUnsupportedError(snap.RuntimeType)
	}
	checkpointPath, ok := snap.Metadata["checkpoint_path"]
	if !ok {
		return "", sandbox.NewBundlePrepFailedError(snap.SandboxID, fmt.Errorf("snapshot missing checkpoint_path"))
	}

	newID := sandbox.ID(fmt.Sprintf("%s-resumed-%d", snap.SandboxID, time.Now().UnixNano()))
	cid := containerID(newID)
	bundlePath := filepath.Join(d.BaseDir, string(newID))
	if err := os.MkdirAll(filepath.Join(bundlePath, "rootfs"), 0o755); err != nil {
		return "", sandbox.NewBundlePrepFailedError(newID, err)
	}

	if err := d.run(ctx, newID, "restore", "--image-path", checkpointPath, "--bundle", bundlePath, cid); err != nil {
		return "", err
	}

	now := time.Now()
	info := &sandbox.Info{
		ID:         newID,
		BackendID:  cid,
		BundlePath: bundlePath,
		State:      sandbox.Running,
		CreatedAt:  now,
		StartedAt:  now,
	}
	if err := d.registry.Insert(info); err != nil {
		return "", err
	}
	return newID, nil
}

func (d *Driver) Status(ctx context.Context, id sandbox.ID) (sandbox.Status, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Status{}, sandbox.NewNotFoundError(id)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, d.RunscBin, "--root", d.RootDir, "state", info.BackendID)
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

	cmd := exec.CommandContext(ctx, d.RunscBin, args...)
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

// run invokes runsc against RootDir and maps a nonzero exit to ExecFailedError.
func (d *Driver) run(ctx context.Context, id sandbox.ID, args ...string) error {
	fullArgs := append([]string{"--root", d.RootDir}, args...)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.RunscBin, fullArgs...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return sandbox.NewExecFailedError(id, stderr.String(), err)
	}
	return nil
}

// runBestEffort invokes runsc, logs any failure with its stderr, and also
// returns it so the caller can record it under the destroy partial-failure
// policy.
func (d *Driver) runBestEffort(ctx context.Context, args ...string) error {
	fullArgs := append([]string{"--root", d.RootDir}, args...)
	cmd := exec.CommandContext(ctx, d.RunscBin, fullArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		d.Logger.Warn("runsc cleanup step failed", "args", args, "stderr", stderr.String())
		return err
	}
	return nil
}
