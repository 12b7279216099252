// Package ocispec builds OCI runtime bundles (config.json plus a rootfs
// skeleton) from a neutral sandbox.Config, for the two container-style
// backends (gVisor, Kata). It is grounded on Siryoos-tartarus's
// gvisor_runtime.go createOCISpec/Launch bundle logic, generalized to also
// produce the Kata variant's broader capability set, extra mounts, cgroup
// namespace, and hypervisor annotations.
package ocispec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/sandstormio/gateway/internal/sandbox"
)

// Variant selects which backend's fixed choices to apply.
type Variant int

const (
	VariantGvisor Variant = iota
	VariantKata
)

// StandardSyscallAllowlist is the seccomp whitelist applied to gVisor
// sandboxes: the syscalls required to run typical interpreters.
var StandardSyscallAllowlist = []string{
	"accept", "accept4", "access", "arch_prctl", "bind", "brk", "capget", "capset",
	"clone", "close", "connect", "dup", "dup2", "epoll_create", "epoll_create1",
	"epoll_ctl", "epoll_wait", "execve", "exit", "exit_group", "fcntl", "fstat",
	"futex", "getcwd", "getdents", "getdents64", "getegid", "geteuid", "getgid",
	"getpgrp", "getpid", "getppid", "getrlimit", "getsockname", "getsockopt",
	"gettid", "getuid", "ioctl", "lseek", "madvise", "mmap", "mprotect", "munmap",
	"nanosleep", "open", "openat", "pipe", "pipe2", "poll", "pread64", "prlimit64",
	"pwrite64", "read", "readv", "recvfrom", "recvmsg", "rt_sigaction",
	"rt_sigprocmask", "rt_sigreturn", "sched_getaffinity", "sched_yield",
	"sendmsg", "sendto", "set_robust_list", "set_tid_address", "setsockopt",
	"sigaltstack", "socket", "stat", "statfs", "sysinfo", "tgkill", "uname",
	"unlink", "wait4", "write", "writev",
}

var gvisorCapabilities = []string{
	"CAP_AUDIT_WRITE", "CAP_KILL", "CAP_NET_BIND_SERVICE",
}

var kataCapabilities = []string{
	"CAP_AUDIT_WRITE", "CAP_KILL", "CAP_NET_BIND_SERVICE",
	"CAP_CHOWN", "CAP_DAC_OVERRIDE", "CAP_FSETID", "CAP_FOWNER", "CAP_MKNOD",
	"CAP_NET_RAW", "CAP_SETGID", "CAP_SETUID", "CAP_SETFCAP", "CAP_SETPCAP",
	"CAP_SYS_CHROOT",
}

var rootfsSkeleton = []string{
	"bin", "dev", "etc", "home", "lib", "lib64", "proc", "root", "sys", "tmp", "usr", "var",
}

// Build produces the OCI runtime spec document for cfg under the given
// variant, applying the fixed choices from the component design: uid/gid
// 1000, noNewPrivileges, seeded PATH/TERM env, standard mounts plus the
// Kata-only devpts/shm mounts, cgroup cpu/memory limits, and (gVisor only)
// the default-deny seccomp profile.
func Build(cfg sandbox.Config, variant Variant) *specs.Spec {
	env := []string{
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"TERM=xterm",
	}
	for k, v := range cfg.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	caps := gvisorCapabilities
	hostname := fmt.Sprintf("sandbox-%s", cfg.ID)
	namespaces := []specs.LinuxNamespace{
		{Type: specs.PIDNamespace},
		{Type: specs.NetworkNamespace},
		{Type: specs.IPCNamespace},
		{Type: specs.UTSNamespace},
		{Type: specs.MountNamespace},
	}
	if variant == VariantKata {
		caps = kataCapabilities
		hostname = fmt.Sprintf("kata-%s", cfg.ID)
		namespaces = append(namespaces, specs.LinuxNamespace{Type: specs.CgroupNamespace})
	}

	mounts := []specs.Mount{
		{Destination: "/proc", Type: "proc", Source: "proc"},
		{Destination: "/dev", Type: "tmpfs", Source: "tmpfs",
			Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
		{Destination: "/sys", Type: "sysfs", Source: "sysfs",
			Options: []string{"nosuid", "noexec", "nodev", "ro"}},
	}
	if variant == VariantKata {
		mounts = append(mounts,
			specs.Mount{Destination: "/dev/pts", Type: "devpts", Source: "devpts",
				Options: []string{"nosuid", "noexec", "newinstance", "ptmxmode=0666", "mode=0620"}},
			specs.Mount{Destination: "/dev/shm", Type: "tmpfs", Source: "shm",
				Options: []string{"nosuid", "noexec", "nodev", "mode=1777", "size=65536k"}},
		)
	}
	for _, m := range cfg.Mounts {
		opt := "rw"
		if m.ReadOnly {
			opt = "ro"
		}
		mounts = append(mounts, specs.Mount{
			Destination: m.Destination,
			Source:      m.Source,
			Options:     []string{opt},
		})
	}

	var cpuQuota *int64
	if cfg.CPULimit != nil {
		q := int64(*cfg.CPULimit * 100000)
		cpuQuota = &q
	}
	cpuPeriod := uint64(100000)

	allowDevices := false
	no := true

	spec := &specs.Spec{
		Version:  "1.0.2",
		Hostname: hostname,
		Root:     &specs.Root{Path: "rootfs", Readonly: false},
		Process: &specs.Process{
			Terminal:        false,
			User:            specs.User{UID: 1000, GID: 1000},
			Args:            cfg.Command,
			Env:             env,
			Cwd:             cfg.WorkDir(),
			NoNewPrivileges: no,
			Capabilities: &specs.LinuxCapabilities{
				Bounding:    caps,
				Effective:   caps,
				Inheritable: caps,
				Permitted:   caps,
				Ambient:     caps,
			},
			Rlimits: []specs.POSIXRlimit{
				{Type: "RLIMIT_NOFILE", Hard: 1024, Soft: 1024},
			},
		},
		Mounts: mounts,
		Linux: &specs.Linux{
			Namespaces: namespaces,
			Resources: &specs.LinuxResources{
				Devices: []specs.LinuxDeviceCgroup{{Allow: allowDevices, Access: "rwm"}},
				CPU:     &specs.LinuxCPU{Quota: cpuQuota, Period: &cpuPeriod},
				Memory:  &specs.LinuxMemory{Limit: cfg.MemoryLimit},
			},
		},
	}

	if variant == VariantGvisor {
		spec.Linux.Seccomp = &specs.LinuxSeccomp{
			DefaultAction: specs.ActErrno,
			Architectures: []specs.Arch{specs.ArchX86_64},
			Syscalls: []specs.LinuxSyscall{
				{Names: append([]string{}, StandardSyscallAllowlist...), Action: specs.ActAllow},
			},
		}
	}

	if variant == VariantKata {
		annotations := map[string]string{
			"io.katacontainers.config.runtime.enable_sandbox_sharing": "true",
		}
		if cfg.CPULimit != nil {
			annotations["io.katacontainers.config.hypervisor.default_vcpus"] = fmt.Sprintf("%d", ceilInt(*cfg.CPULimit))
		}
		if cfg.MemoryLimit != nil {
			annotations["io.katacontainers.config.hypervisor.default_memory"] = fmt.Sprintf("%d", *cfg.MemoryLimit/(1024*1024))
		}
		spec.Annotations = annotations
	}

	return spec
}

func ceilInt(f float64) int64 {
	i := int64(f)
	if float64(i) < f {
		i++
	}
	return i
}

// WriteBundle creates <baseDir>/<id>/{config.json, rootfs/<skeleton>} for
// cfg and returns the bundle path. Real image extraction into rootfs/ is an
// external step; WriteBundle only guarantees the skeleton exists.
func WriteBundle(baseDir string, cfg sandbox.Config, variant Variant) (string, error) {
	bundlePath := filepath.Join(baseDir, string(cfg.ID))
	rootfsPath := filepath.Join(bundlePath, "rootfs")
	if err := os.MkdirAll(rootfsPath, 0o755); err != nil {
		return "", fmt.Errorf("create bundle dirs: %w", err)
	}
	for _, dir := range rootfsSkeleton {
		if err := os.MkdirAll(filepath.Join(rootfsPath, dir), 0o755); err != nil {
			return "", fmt.Errorf("create rootfs skeleton %s: %w", dir, err)
		}
	}

	spec := Build(cfg, variant)
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal oci spec: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundlePath, "config.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write config.json: %w", err)
	}
	return bundlePath, nil
}
