package ocispec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstormio/gateway/internal/sandbox"
)

func cpuLimit(v float64) *float64 { return &v }
func memLimit(v int64) *int64     { return &v }

func TestBuild_GvisorHasSeccompAndMinimalCapabilities(t *testing.T) {
	cfg := sandbox.Config{ID: "box-1", Command: []string{"sh", "-c", "true"}}
	spec := Build(cfg, VariantGvisor)

	assert.Equal(t, "sandbox-box-1", spec.Hostname)
	require.NotNil(t, spec.Linux.Seccomp)
	assert.Equal(t, specs.ActErrno, spec.Linux.Seccomp.DefaultAction)
	assert.ElementsMatch(t, gvisorCapabilities, spec.Process.Capabilities.Bounding)
	assert.True(t, spec.Process.NoNewPrivileges)
}

func TestBuild_KataHasBroaderCapabilitiesAndNoSeccomp(t *testing.T) {
	cfg := sandbox.Config{ID: "box-1", Command: []string{"sh"}}
	spec := Build(cfg, VariantKata)

	assert.Equal(t, "kata-box-1", spec.Hostname)
	assert.Nil(t, spec.Linux.Seccomp)
	assert.ElementsMatch(t, kataCapabilities, spec.Process.Capabilities.Bounding)

	var hasCgroupNS bool
	for _, ns := range spec.Linux.Namespaces {
		if ns.Type == specs.CgroupNamespace {
			hasCgroupNS = true
		}
	}
	assert.True(t, hasCgroupNS)
}

func TestBuild_CPULimitTranslatesToCgroupQuota(t *testing.T) {
	cfg := sandbox.Config{ID: "box-1", Command: []string{"sh"}, CPULimit: cpuLimit(0.5)}
	spec := Build(cfg, VariantGvisor)

	require.NotNil(t, spec.Linux.Resources.CPU.Quota)
	assert.Equal(t, int64(50000), *spec.Linux.Resources.CPU.Quota)
	assert.Equal(t, uint64(100000), *spec.Linux.Resources.CPU.Period)
}

func TestBuild_MemoryLimitPassthrough(t *testing.T) {
	cfg := sandbox.Config{ID: "box-1", Command: []string{"sh"}, MemoryLimit: memLimit(256 * 1024 * 1024)}
	spec := Build(cfg, VariantGvisor)

	require.NotNil(t, spec.Linux.Resources.Memory.Limit)
	assert.Equal(t, int64(256*1024*1024), *spec.Linux.Resources.Memory.Limit)
}

func TestBuild_UserMountsAppendWithReadOnlyOption(t *testing.T) {
	cfg := sandbox.Config{
		ID:      "box-1",
		Command: []string{"sh"},
		Mounts:  []sandbox.Mount{{Source: "/host/data", Destination: "/data", ReadOnly: true}},
	}
	spec := Build(cfg, VariantGvisor)

	var found bool
	for _, m := range spec.Mounts {
		if m.Destination == "/data" {
			found = true
			assert.Equal(t, []string{"ro"}, m.Options)
		}
	}
	assert.True(t, found)
}

func TestWriteBundle_CreatesRootfsSkeletonAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := sandbox.Config{ID: "box-1", Command: []string{"sh"}}

	bundlePath, err := WriteBundle(dir, cfg, VariantGvisor)
	require.NoError(t, err)

	for _, d := range rootfsSkeleton {
		assert.DirExists(t, filepath.Join(bundlePath, "rootfs", d))
	}

	data, err := os.ReadFile(filepath.Join(bundlePath, "config.json"))
	require.NoError(t, err)

	var spec specs.Spec
	require.NoError(t, json.Unmarshal(data, &spec))
	assert.Equal(t, "sandbox-box-1", spec.Hostname)
}

func TestCeilInt(t *testing.T) {
	assert.Equal(t, int64(1), ceilInt(0.5))
	assert.Equal(t, int64(2), ceilInt(2.0))
	assert.Equal(t, int64(3), ceilInt(2.1))
}
