// Package firecracker drives Firecracker microVMs via the jailer chroot
// helper and its UNIX-socket API, per the component design: this
// deliberately diverges from Siryoos-tartarus's own firecracker_runtime.go
// (which manages the VM through firecracker-go-sdk's high-level Machine
// abstraction and a kernel-cmdline-injected shell script). Grounded instead
// on original_source/runtime/firecracker.rs for the jailer argv and VM
// config shape, and on pkg/styx/host_gateway.go for the TAP/bridge netlink
// calls (see networking.go).
package firecracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sandstormio/gateway/internal/sandbox"
)

type Driver struct {
	Logger         *slog.Logger
	JailerBin      string
	FirecrackerBin string
	BaseDir        string
	KernelImage    string
	RootFSImage    string
	BridgeName     string

	net      *network
	registry *sandbox.Registry
}

func New(logger *slog.Logger, jailerBin, firecrackerBin, baseDir, kernelImage, rootfsImage, bridgeName string) (*Driver, error) {
	n, err := newNetwork(bridgeName)
	if err != nil {
		return nil, fmt.Errorf("init firecracker networking: %w", err)
	}
	return &Driver{
		Logger:         logger,
		JailerBin:      jailerBin,
		FirecrackerBin: firecrackerBin,
		BaseDir:        baseDir,
		KernelImage:    kernelImage,
		RootFSImage:    rootfsImage,
		BridgeName:     bridgeName,
		net:            n,
		registry:       sandbox.NewRegistry(),
	}, nil
}

func (d *Driver) RuntimeType() sandbox.RuntimeType { return sandbox.Firecracker }

// Owns reports whether this driver's registry holds id, used by the gateway
// facade's fan-out lookup.
func (d *Driver) Owns(id sandbox.ID) bool { return d.registry.Has(id) }

func (d *Driver) Supports(level sandbox.IsolationLevel) bool {
	return level == sandbox.Strong || level == sandbox.Maximum
}

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

	sandboxDir := filepath.Join(d.BaseDir, string(cfg.ID))
	if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
		return "", sandbox.NewBundlePrepFailedError(cfg.ID, err)
	}

	tap, err := d.net.attach(cfg.ID)
	if err != nil {
		os.RemoveAll(sandboxDir)
		return "", sandbox.NewNetworkSetupFailedError(cfg.ID, err)
	}

	socketPath := filepath.Join(sandboxDir, "firecracker.sock")
	configPath := filepath.Join(sandboxDir, "config.json")
	doc := buildVMConfig(cfg, d.KernelImage, d.RootFSImage, tap)
	if err := writeVMConfig(configPath, doc); err != nil {
		_ = d.net.detach(cfg.ID)
		os.RemoveAll(sandboxDir)
		return "", sandbox.NewBundlePrepFailedError(cfg.ID, err)
	}

	args := []string{
		"--id", string(cfg.ID),
		"--exec-file", d.FirecrackerBin,
		"--uid", "1000",
		"--gid", "1000",
		"--chroot-base-dir", d.BaseDir,
		"--",
		"--api-sock", socketPath,
		"--config-file", configPath,
	}
	cmd := exec.CommandContext(ctx, d.JailerBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		_ = d.net.detach(cfg.ID)
		os.RemoveAll(sandboxDir)
		return "", sandbox.NewBackendUnavailableError(sandbox.Firecracker, err)
	}

	now := time.Now()
	info := &sandbox.Info{
		ID:         cfg.ID,
		BackendID:  tap,
		BundlePath: sandboxDir,
		SocketPath: socketPath,
		PID:        cmd.Process.Pid,
		State:      sandbox.Running,
		Config:     cfg,
		CreatedAt:  now,
		StartedAt:  now,
	}
	if err := d.registry.Insert(info); err != nil {
		_ = cmd.Process.Kill()
		_ = d.net.detach(cfg.ID)
		return "", err
	}

	go func() { _ = cmd.Wait() }()

	d.Logger.Info("created firecracker sandbox", "id", cfg.ID, "pid", info.PID, "tap", tap)
	return cfg.ID, nil
}

// Exec is intentionally unimplemented: the microVM has no host-visible
// syscall boundary to invoke commands inside it. A guest-agent protocol
// addressed over the API socket is the documented extension point;
// implementations must not paper over this with a placeholder result.
func (d *Driver) Exec(ctx context.Context, id sandbox.ID, command []string, env map[string]string) (sandbox.Result, error) {
	if !d.registry.Has(id) {
		return sandbox.Result{}, sandbox.NewNotFoundError(id)
	}
	return sandbox.Result{}, sandbox.NewExecNotSupportedError(id)
}

func (d *Driver) Destroy(ctx context.Context, id sandbox.ID) error {
	info, ok := d.registry.Get(id)
	if !ok {
		return nil
	}

	if info.PID > 0 {
		if err := syscall.Kill(info.PID, syscall.SIGKILL); err != nil {
			d.Logger.Warn("failed to kill firecracker process", "id", id, "pid", info.PID, "error", err)
		}
	}
	if err := d.net.detach(id); err != nil {
		d.Logger.Warn("failed to detach tap device", "id", id, "error", err)
	}
	if err := os.RemoveAll(info.BundlePath); err != nil {
		d.Logger.Warn("failed to remove sandbox directory", "id", id, "error", err)
	}

	d.registry.Remove(id)
	d.Logger.Info("destroyed firecracker sandbox", "id", id)
	return nil
}

// Snapshot returns a metadata-only record: a conforming implementation
// would pause the VM and call Firecracker's CreateSnapshot API over the
// socket to obtain real memory/filesystem blobs; that API integration is
// not present here, so this is the permissive fallback the component design
// allows.
func (d *Driver) Snapshot(ctx context.Context, id sandbox.ID) (sandbox.Snapshot, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Snapshot{}, sandbox.NewNotFoundError(id)
	}
	return sandbox.Snapshot{
		ID:          sandbox.SnapshotID(fmt.Sprintf("snap-%s-%d", id, time.Now().UnixNano())),
		SandboxID:   id,
		RuntimeType: sandbox.Firecracker,
		Timestamp:   time.Now(),
		Metadata:    map[string]string{"vm_state": "paused", "socket_path": info.SocketPath},
	}, nil
}

func (d *Driver) Resume(ctx context.Context, snap sandbox.Snapshot) (sandbox.ID, error) {
	if snap.RuntimeType != sandbox.Firecracker {
		return "", sandbox.NewSnapshotUnsupportedError(snap.RuntimeType)
	}
	newID := sandbox.ID(fmt.Sprintf("%s-resumed-%d", snap.SandboxID, time.Now().UnixNano()))
	d.Logger.Warn("firecracker resume is metadata-only; no VM state actually restored", "snapshot", snap.ID, "new_id", newID)
	return newID, nil
}

func (d *Driver) Status(ctx context.Context, id sandbox.ID) (sandbox.Status, error) {
	info, ok := d.registry.Get(id)
	if !ok {
		return sandbox.Status{}, sandbox.NewNotFoundError(id)
	}
	if info.PID > 0 && syscall.Kill(info.PID, 0) != nil {
		info.State = sandbox.Stopped
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
	logPath := filepath.Join(info.BundlePath, "console.log")
	f, err := os.Open(logPath)
	if err != nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return f, nil
}
