package errors

import (
	"errors"
	"fmt"
)

// FtermError is the base interface for all fterm errors.
type FtermError interface {
	error
	IsFtermError() bool
}

// Compile-time verification that all error types implement FtermError.
var (
	_ FtermError = (*ToolNotFoundError)(nil)
	_ FtermError = (*SpawnError)(nil)
	_ FtermError = (*ProjectDirError)(nil)
	_ FtermError = (*RPCError)(nil)
	_ FtermError = (*ExtensionUnavailableError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrDaemonStopped indicates the supervised tool process has exited.
	ErrDaemonStopped = errors.New("daemon process stopped")

	// ErrCommandQueueClosed indicates the outbound command queue was closed.
	ErrCommandQueueClosed = errors.New("command queue closed")

	// ErrRequestTimeout indicates a request timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrNotConnected indicates the VM service client is not connected.
	ErrNotConnected = errors.New("vm service not connected")

	// ErrClientClosed indicates the VM service client has been closed.
	ErrClientClosed = errors.New("vm service client closed")
)

// ToolNotFoundError indicates the Flutter tool binary was not found.
type ToolNotFoundError struct {
	SearchedPaths []string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("flutter tool not found in: %v", e.SearchedPaths)
}

// IsFtermError implements FtermError.
func (e *ToolNotFoundError) IsFtermError() bool { return true }

// SpawnError indicates the tool process failed to start.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn flutter tool: %v", e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsFtermError implements FtermError.
func (e *SpawnError) IsFtermError() bool { return true }

// ProjectDirError indicates the working directory is not a valid project.
type ProjectDirError struct {
	Dir    string
	Reason string
}

func (e *ProjectDirError) Error() string {
	return fmt.Sprintf("invalid project directory %q: %s", e.Dir, e.Reason)
}

// IsFtermError implements FtermError.
func (e *ProjectDirError) IsFtermError() bool { return true }

// RPCError is a JSON-RPC error object returned by the daemon or the
// VM service in place of a result.
type RPCError struct {
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}

	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsFtermError implements FtermError.
func (e *RPCError) IsFtermError() bool { return true }

// CodeMethodNotFound is the JSON-RPC error code the VM service returns
// when a service extension is not registered.
const CodeMethodNotFound = -32601

// ExtensionUnavailableError indicates a service extension is not
// available on the target isolate, e.g. a build without the widget
// inspector. Callers may fall back to an older API on this error;
// transport failures never produce it.
type ExtensionUnavailableError struct {
	Method string
}

func (e *ExtensionUnavailableError) Error() string {
	return fmt.Sprintf("service extension not available: %s", e.Method)
}

// IsFtermError implements FtermError.
func (e *ExtensionUnavailableError) IsFtermError() bool { return true }
