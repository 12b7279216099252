package gvisor

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
	return New(logger, "runsc", t.TempDir())
}

func TestSupports_StandardAndStrongOnly(t *testing.T) {
	d := newTestDriver(t)
	assert.True(t, d.Supports(sandbox.Standard))
	assert.True(t, d.Supports(sandbox.Strong))
	assert.False(t, d.Supports(sandbox.Maximum))
}

func TestCreate_RejectsNonPositiveCPULimit(t *testing.T) {
	d := newTestDriver(t)
	cpu := 0.0
	_, err := d.Create(context.Background(), sandbox.Config{ID: "box-1", CPULimit: &cpu})
	var invalid *sandbox.ResourceLimitInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestCreate_RejectsNonPositiveMemoryLimit(t *testing.T) {
	d := newTestDriver(t)
	mem := int64(-1)
	_, err := d.Create(context.Background(), sandbox.Config{ID: "box-1", MemoryLimit: &mem})
	var invalid *sandbox.ResourceLimitInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestDestroy_IsIdempotentOnUnknownID(t *testing.T) {
	d := newTestDriver(t)
	assert.NoError(t, d.Destroy(context.Background(), "never-created"))
}

func TestOwns_FalseForUnknownID(t *testing.T) {
	d := newTestDriver(t)
	assert.False(t, d.Owns("box-1"))
}

func TestExec_NotFoundForUnknownID(t *testing.T) {
	d := newTestDriver(t)
	_, err := d.Exec(context.Background(), "box-1", []string{"true"}, nil)
	var notFound *sandbox.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestContainerID_IsPrefixed(t *testing.T) {
	assert.Equal(t, "gvisor-box-1", containerID("box-1"))
}
