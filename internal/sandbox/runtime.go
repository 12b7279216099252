package sandbox

import (
	"context"
	"io"
)

// Runtime is the uniform capability surface every isolation backend
// implements. Every operation is asynchronous and cancellation-safe:
// cancelling a pending Create must not leave a zombie sandbox — it is either
// fully rolled back or fully registered, never half of either.
type Runtime interface {
	// RuntimeType identifies which backend this is. Pure.
	RuntimeType() RuntimeType

	// Supports reports whether this backend can serve the given isolation
	// level.
	Supports(level IsolationLevel) bool

	// Create materializes a sandbox from cfg and registers it. Fails with
	// BackendUnavailableError, BundlePrepFailedError, ResourceLimitInvalidError,
	// or ConflictError if cfg.ID is already live.
	Create(ctx context.Context, cfg Config) (ID, error)

	// Exec runs command inside a Running sandbox, optionally overriding its
	// environment. Fails with NotFoundError, InvalidStateError, ExecFailedError,
	// or TimeoutError.
	Exec(ctx context.Context, id ID, command []string, env map[string]string) (Result, error)

	// Destroy tears a sandbox down and releases every host resource it held
	// (TAP interfaces, chroot trees, bundle directories, child processes).
	// Idempotent: destroying an absent id succeeds. Partial-failure policy
	// is best-effort — every cleanup step runs regardless of earlier
	// failures; cleanup failures are logged, not returned, and the registry
	// entry is removed either way.
	Destroy(ctx context.Context, id ID) error

	// Snapshot captures a sandbox's state. May pause the sandbox; must leave
	// it resumable afterward. Fails with NotFoundError or
	// SnapshotUnsupportedError.
	Snapshot(ctx context.Context, id ID) (Snapshot, error)

	// Resume restores a sandbox from a snapshot produced by this same
	// RuntimeType, returning a newly allocated id.
	Resume(ctx context.Context, snap Snapshot) (ID, error)

	// Status reports the current lifecycle state and resource usage.
	Status(ctx context.Context, id ID) (Status, error)

	// Logs streams a sandbox's captured output. When follow is false the
	// stream ends at EOF of current content.
	Logs(ctx context.Context, id ID, follow bool) (io.ReadCloser, error)
}
