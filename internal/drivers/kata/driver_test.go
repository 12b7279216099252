package kata

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstormio/gateway/internal/sandbox"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, "kata-runtime", t.TempDir())
}

func TestSupports_StrongAndMaximumOnly(t *testing.T) {
	d := newTestDriver(t)
	assert.False(t, d.Supports(sandbox.Standard))
	assert.True(t, d.Supports(sandbox.Strong))
	assert.True(t, d.Supports(sandbox.Maximum))
}

func TestCreate_RejectsInvalidResourceLimits(t *testing.T) {
	d := newTestDriver(t)
	cpu := -0.5
	_, err := d.Create(context.Background(), sandbox.Config{ID: "box-1", CPULimit: &cpu})
	var invalid *sandbox.ResourceLimitInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestDestroy_IsIdempotentOnUnknownID(t *testing.T) {
	d := newTestDriver(t)
	assert.NoError(t, d.Destroy(context.Background(), "never-created"))
}

func TestResume_SucceedsWithNewIDForMatchingRuntimeType(t *testing.T) {
	d := newTestDriver(t)
	id, err := d.Resume(context.Background(), sandbox.Snapshot{SandboxID: "box-1", RuntimeType: sandbox.Kata})
	require.NoError(t, err)
	assert.NotEqual(t, sandbox.ID("box-1"), id)
}

func TestResume_RejectsForeignSnapshotRuntimeType(t *testing.T) {
	d := newTestDriver(t)
	_, err := d.Resume(context.Background(), sandbox.Snapshot{RuntimeType: sandbox.Gvisor})
	var unsupported *sandbox.SnapshotUnsupportedError
	require.ErrorAs(t, err, &unsupported)
}

func TestGetResourceUsage_AlwaysUnknown(t *testing.T) {
	d := newTestDriver(t)
	assert.Nil(t, d.getResourceUsage("kata-box-1"))
}
