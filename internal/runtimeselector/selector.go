// Package runtimeselector tracks which drivers initialized successfully and
// picks one for a given isolation level and optional caller preference.
// Grounded on original_source/services/gateway/src/runtime/mod.rs's
// RuntimeRegistry (register/get/select_runtime/list), reimplemented with a
// sync.RWMutex in the idiom of the rest of this module's registries.
package runtimeselector

import (
	"sync"

	"github.com/sandstormio/gateway/internal/sandbox"
)

type Registry struct {
	mu       sync.RWMutex
	runtimes map[sandbox.RuntimeType]sandbox.Runtime
}

func New() *Registry {
	return &Registry{runtimes: make(map[sandbox.RuntimeType]sandbox.Runtime)}
}

// Register adds a driver for its RuntimeType. Fails with
// AlreadyRegisteredError if that type is already present.
func (r *Registry) Register(rt sandbox.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := rt.RuntimeType()
	if _, ok := r.runtimes[t]; ok {
		return sandbox.NewAlreadyRegisteredError(t)
	}
	r.runtimes[t] = rt
	return nil
}

// Get returns the driver for t, or NotInstalledError.
func (r *Registry) Get(t sandbox.RuntimeType) (sandbox.Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[t]
	if !ok {
		return nil, sandbox.NewNotInstalledError(t)
	}
	return rt, nil
}

// List returns a snapshot of every installed RuntimeType.
func (r *Registry) List() []sandbox.RuntimeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sandbox.RuntimeType, 0, len(r.runtimes))
	for t := range r.runtimes {
		out = append(out, t)
	}
	return out
}

// Select implements the selection rule in order:
//  1. If preference is set, installed, and supports level, return it.
//  2. Otherwise look up level's default mapping; if that driver is
//     installed, return it.
//  3. Otherwise fail with NoSuitableRuntimeError.
//
// This fails fast rather than iterating every installed driver looking for
// any that advertises the level — matching original_source's
// select_runtime, which never falls back past the exact default mapping.
func (r *Registry) Select(level sandbox.IsolationLevel, preference *sandbox.RuntimeType) (sandbox.Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preference != nil {
		if rt, ok := r.runtimes[*preference]; ok && rt.Supports(level) {
			return rt, nil
		}
	}

	defaultType, ok := sandbox.DefaultRuntime[level]
	if ok {
		if rt, ok := r.runtimes[defaultType]; ok {
			return rt, nil
		}
	}

	return nil, sandbox.NewNoSuitableRuntimeError(level)
}
