package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InsertAndGet(t *testing.T) {
	r := NewRegistry()
	info := &Info{ID: "box-1", State: Running, CreatedAt: time.Now()}

	require.NoError(t, r.Insert(info))

	got, ok := r.Get("box-1")
	require.True(t, ok)
	assert.Equal(t, ID("box-1"), got.ID)
	assert.Equal(t, Running, got.State)
}

func TestRegistry_InsertDuplicateConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(&Info{ID: "box-1"}))

	err := r.Insert(&Info{ID: "box-1"})
	require.Error(t, err)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Mutate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(&Info{ID: "box-1", State: Creating}))

	ok := r.Mutate("box-1", func(info *Info) { info.State = Running })
	assert.True(t, ok)

	got, _ := r.Get("box-1")
	assert.Equal(t, Running, got.State)

	assert.False(t, r.Mutate("missing", func(info *Info) {}))
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(&Info{ID: "box-1"}))

	assert.True(t, r.Remove("box-1"))
	assert.False(t, r.Remove("box-1"))
	assert.False(t, r.Has("box-1"))
}

func TestRegistry_ListSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(&Info{ID: "box-1"}))
	require.NoError(t, r.Insert(&Info{ID: "box-2"}))

	all := r.List()
	assert.Len(t, all, 2)
}
