package runtimeselector

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstormio/gateway/internal/sandbox"
)

// fakeRuntime is a minimal stub satisfying sandbox.Runtime for selection
// tests; Select only calls RuntimeType and Supports, so the lifecycle
// methods do no real work.
type fakeRuntime struct {
	rt       sandbox.RuntimeType
	levels   map[sandbox.IsolationLevel]bool
}

func newFake(rt sandbox.RuntimeType, levels ...sandbox.IsolationLevel) *fakeRuntime {
	m := make(map[sandbox.IsolationLevel]bool, len(levels))
	for _, l := range levels {
		m[l] = true
	}
	return &fakeRuntime{rt: rt, levels: m}
}

func (f *fakeRuntime) RuntimeType() sandbox.RuntimeType           { return f.rt }
func (f *fakeRuntime) Supports(l sandbox.IsolationLevel) bool     { return f.levels[l] }
func (f *fakeRuntime) Create(context.Context, sandbox.Config) (sandbox.ID, error) {
	return "", nil
}
func (f *fakeRuntime) Exec(context.Context, sandbox.ID, []string, map[string]string) (sandbox.Result, error) {
	return sandbox.Result{}, nil
}
func (f *fakeRuntime) Destroy(context.Context, sandbox.ID) error { return nil }
func (f *fakeRuntime) Snapshot(context.Context, sandbox.ID) (sandbox.Snapshot, error) {
	return sandbox.Snapshot{}, nil
}
func (f *fakeRuntime) Resume(context.Context, sandbox.Snapshot) (sandbox.ID, error) {
	return "", nil
}
func (f *fakeRuntime) Status(context.Context, sandbox.ID) (sandbox.Status, error) {
	return sandbox.Status{}, nil
}
func (f *fakeRuntime) Logs(context.Context, sandbox.ID, bool) (io.ReadCloser, error) {
	return nil, nil
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard)))

	err := r.Register(newFake(sandbox.Gvisor, sandbox.Standard))
	require.Error(t, err)
	var already *sandbox.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}

func TestRegistry_GetNotInstalled(t *testing.T) {
	r := New()
	_, err := r.Get(sandbox.Firecracker)
	require.Error(t, err)
	var notInstalled *sandbox.NotInstalledError
	assert.ErrorAs(t, err, &notInstalled)
}

func TestSelect_PreferredRuntimeWinsWhenItSupportsLevel(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard, sandbox.Strong)))
	require.NoError(t, r.Register(newFake(sandbox.Kata, sandbox.Strong)))

	pref := sandbox.Gvisor
	rt, err := r.Select(sandbox.Strong, &pref)
	require.NoError(t, err)
	assert.Equal(t, sandbox.Gvisor, rt.RuntimeType())
}

func TestSelect_FallsBackToDefaultMappingWhenPreferenceUnsupported(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard)))
	require.NoError(t, r.Register(newFake(sandbox.Kata, sandbox.Strong)))

	pref := sandbox.Gvisor
	rt, err := r.Select(sandbox.Strong, &pref)
	require.NoError(t, err)
	assert.Equal(t, sandbox.Kata, rt.RuntimeType())
}

func TestSelect_NoPreferenceUsesDefaultMapping(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Firecracker, sandbox.Maximum)))

	rt, err := r.Select(sandbox.Maximum, nil)
	require.NoError(t, err)
	assert.Equal(t, sandbox.Firecracker, rt.RuntimeType())
}

func TestSelect_NoSuitableRuntimeWhenDefaultNotInstalled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard)))

	_, err := r.Select(sandbox.Maximum, nil)
	require.Error(t, err)
	var noSuitable *sandbox.NoSuitableRuntimeError
	assert.ErrorAs(t, err, &noSuitable)
}

func TestSelect_NeverFallsBackToNonDefaultInstalledRuntime(t *testing.T) {
	// Even though gvisor is installed and advertises "strong", Select must
	// not pick it without a preference because Kata is the documented
	// default for Strong and Kata is not installed.
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard, sandbox.Strong)))

	_, err := r.Select(sandbox.Strong, nil)
	require.Error(t, err)
	var noSuitable *sandbox.NoSuitableRuntimeError
	assert.ErrorAs(t, err, &noSuitable)
}

func TestList_ReturnsEveryInstalledType(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newFake(sandbox.Gvisor, sandbox.Standard)))
	require.NoError(t, r.Register(newFake(sandbox.Kata, sandbox.Strong)))

	assert.ElementsMatch(t, []sandbox.RuntimeType{sandbox.Gvisor, sandbox.Kata}, r.List())
}
