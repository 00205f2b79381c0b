package fterm

import "github.com/ftermdev/fterm/internal/errors"

// Re-export error types from internal package

// ToolNotFoundError indicates the Flutter tool binary was not found.
type ToolNotFoundError = errors.ToolNotFoundError

// SpawnError indicates the tool process failed to start.
type SpawnError = errors.SpawnError

// ProjectDirError indicates the working directory is not a valid project.
type ProjectDirError = errors.ProjectDirError

// RPCError is a JSON-RPC error object returned in place of a result.
type RPCError = errors.RPCError

// ExtensionUnavailableError indicates a service extension is missing on
// the target isolate.
type ExtensionUnavailableError = errors.ExtensionUnavailableError

// FtermError is the base interface for all fterm errors.
type FtermError = errors.FtermError

// Re-export sentinel errors from internal package.
var (
	// ErrDaemonStopped indicates the supervised tool process has exited.
	ErrDaemonStopped = errors.ErrDaemonStopped

	// ErrCommandQueueClosed indicates the outbound command queue was closed.
	ErrCommandQueueClosed = errors.ErrCommandQueueClosed

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout

	// ErrNotConnected indicates the VM service client is not connected.
	ErrNotConnected = errors.ErrNotConnected

	// ErrClientClosed indicates the VM service client has been closed.
	ErrClientClosed = errors.ErrClientClosed
)
