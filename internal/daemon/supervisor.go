// Package daemon supervises the Flutter tool's machine-mode process:
// spawning, stdin/stdout/stderr pumps, graceful shutdown, forced
// termination, and exit-code capture. It speaks the daemon stdio
// protocol (newline-delimited JSON, one-element array frames) and
// correlates request/response pairs through a tracker.
package daemon

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ftermdev/fterm/internal/errors"
	"github.com/ftermdev/fterm/internal/protocol"
	"github.com/ftermdev/fterm/internal/tracker"
)

const (
	// maxScanTokenSize is the maximum buffer size for reading tool output lines.
	maxScanTokenSize = 1024 * 1024 // 1MB

	// commandQueueSize bounds the outbound command queue.
	commandQueueSize = 16

	// eventQueueSize bounds the emitted event stream.
	eventQueueSize = 256

	// stopAppTimeout bounds the best-effort app.stop during Shutdown.
	stopAppTimeout = 2 * time.Second

	// shutdownRequestTimeout bounds the best-effort daemon.shutdown.
	shutdownRequestTimeout = 2 * time.Second

	// gracefulExitTimeout is how long Shutdown waits for a natural exit
	// before escalating to ForceKill.
	gracefulExitTimeout = 5 * time.Second

	// reapTimeout is how long Shutdown waits for the exit status after
	// a force kill.
	reapTimeout = 5 * time.Second

	// waitDelay is the grace period between context cancellation killing
	// the process and the pipes being forcibly closed. Last-resort guard
	// against leaked processes when the pump set vanishes with its context.
	waitDelay = 10 * time.Second
)

// Config configures a supervised run.
type Config struct {
	// ToolPath is an explicit tool binary path. Empty means search PATH
	// and common install locations.
	ToolPath string

	// ProjectDir is the working directory; it must contain pubspec.yaml.
	ProjectDir string

	// DeviceID selects the target device (-d flag). Optional.
	DeviceID string

	// ExtraArgs are appended to the run invocation.
	ExtraArgs []string
}

// Handle owns one supervised process. Exactly one goroutine, the
// waiter, ever touches the raw OS process; everything else communicates
// through the command queue, the event stream, and the atomic liveness
// flag.
type Handle struct {
	log     *slog.Logger
	pid     int
	tracker *tracker.Tracker[*protocol.Response]
	events  chan protocol.DomainEvent

	commandsMu     sync.Mutex
	commands       chan []byte
	commandsClosed bool

	// kill is the single-use kill signal, consumed by the waiter.
	kill     chan struct{}
	killOnce sync.Once

	// exited transitions false -> true exactly once, strictly before
	// exitNotify closes and the ExitedEvent is emitted.
	exited     atomic.Bool
	exitNotify chan struct{}
}

// Spawn validates the project directory, locates the tool binary, and
// starts `<tool> run --machine` with its three I/O pumps and waiter.
//
// Returns ProjectDirError, ToolNotFoundError, or SpawnError without any
// process state having been created. On success the returned Handle's
// event stream stays open until the process has exited and both output
// pumps have drained.
func Spawn(ctx context.Context, log *slog.Logger, cfg Config) (*Handle, error) {
	log = log.With("component", "supervisor", "session", ulid.Make().String())

	if err := ValidateProjectDir(cfg.ProjectDir); err != nil {
		log.Error("Project directory validation failed", "dir", cfg.ProjectDir, "error", err)

		return nil, err
	}

	toolPath, err := findTool(cfg.ToolPath)
	if err != nil {
		log.Error("Tool binary not found", "error", err)

		return nil, err
	}

	args := BuildRunArgs(cfg)
	log.Info("Starting flutter tool", "tool", toolPath, "args", args, "dir", cfg.ProjectDir)

	return spawnProcess(ctx, log, toolPath, args, cfg.ProjectDir)
}

// spawnProcess starts an arbitrary command under full supervision. Split
// from Spawn so tests can supervise plain shell processes.
func spawnProcess(
	ctx context.Context,
	log *slog.Logger,
	path string,
	args []string,
	dir string,
) (*Handle, error) {
	//nolint:gosec // G204: spawning the discovered tool binary is the point
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	// Context cancellation kills the process; WaitDelay bounds the reap.
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &errors.SpawnError{Err: fmt.Errorf("start process: %w", err)}
	}

	h := &Handle{
		log:        log,
		pid:        cmd.Process.Pid,
		tracker:    tracker.New[*protocol.Response](),
		events:     make(chan protocol.DomainEvent, eventQueueSize),
		commands:   make(chan []byte, commandQueueSize),
		kill:       make(chan struct{}),
		exitNotify: make(chan struct{}),
	}

	h.log.Info("Tool process started", "pid", h.pid)

	go h.stdinPump(stdin)

	var g errgroup.Group

	g.Go(func() error { h.stdoutPump(ctx, stdout); return nil })
	g.Go(func() error { h.stderrPump(ctx, stderr); return nil })
	g.Go(func() error { h.waiter(ctx, cmd); return nil })

	go func() {
		_ = g.Wait()

		close(h.events)
	}()

	return h, nil
}

// Events returns the single ordered event stream: classified daemon
// messages, raw stdout/stderr lines, and the final ExitedEvent. The
// channel closes after the exit event once both output pumps drain.
func (h *Handle) Events() <-chan protocol.DomainEvent {
	return h.events
}

// PID returns the supervised process id.
func (h *Handle) PID() int {
	return h.pid
}

// HasExited reports whether the process has exited. Lock-free and safe
// from any goroutine. Once an ExitedEvent has been observed this always
// reads true; the reverse implication does not hold.
func (h *Handle) HasExited() bool {
	return h.exited.Load()
}

// IsRunning is the complement of HasExited.
func (h *Handle) IsRunning() bool {
	return !h.exited.Load()
}

// ExitNotify returns a channel closed when the process has exited. The
// liveness flag is already true by the time it closes.
func (h *Handle) ExitNotify() <-chan struct{} {
	return h.exitNotify
}

// Send enqueues one outbound command frame for the stdin pump. The
// frame is written newline-terminated and flushed.
func (h *Handle) Send(ctx context.Context, data []byte) error {
	if h.exited.Load() {
		return errors.ErrDaemonStopped
	}

	h.commandsMu.Lock()
	defer h.commandsMu.Unlock()

	if h.commandsClosed {
		return errors.ErrCommandQueueClosed
	}

	select {
	case h.commands <- data:
		return nil
	case <-h.exitNotify:
		return errors.ErrDaemonStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseCommands closes the outbound queue, letting the stdin pump drain
// and exit. Safe to call multiple times.
func (h *Handle) CloseCommands() {
	h.commandsMu.Lock()
	defer h.commandsMu.Unlock()

	if !h.commandsClosed {
		h.commandsClosed = true

		close(h.commands)
	}
}

// ForceKill consumes the single-use kill signal. The waiter kills the
// process and still reaps the real exit status. Repeated calls are
// no-ops because the signal is already consumed.
func (h *Handle) ForceKill() {
	h.killOnce.Do(func() {
		h.log.Debug("Kill signal sent", "pid", h.pid)

		close(h.kill)
	})
}

// Close is the teardown safety net for a handle discarded while still
// running: it sends the kill signal and closes the command queue. Safe
// on an already-exited handle.
func (h *Handle) Close() error {
	if h.IsRunning() {
		h.ForceKill()
	}

	h.CloseCommands()

	return nil
}

// Shutdown tears the process down gracefully within a bounded total
// time. It is a no-op on an exited handle. Otherwise it best-effort
// stops the app, best-effort asks the daemon to shut down, waits
// briefly for a natural exit, and escalates to ForceKill on timeout.
// It never hangs, even when every best-effort step fails.
func (h *Handle) Shutdown(ctx context.Context, appID string) error {
	if h.HasExited() {
		h.log.Debug("Shutdown: process already exited")

		return nil
	}

	if appID != "" {
		if _, err := h.Request(ctx, "app.stop", map[string]any{"appId": appID}, stopAppTimeout); err != nil {
			h.log.Debug("Best-effort app.stop failed", "app_id", appID, "error", err)
		}

		// The stop may have brought the whole tool down already.
		if h.HasExited() {
			return nil
		}
	}

	if _, err := h.Request(ctx, "daemon.shutdown", nil, shutdownRequestTimeout); err != nil {
		h.log.Debug("Best-effort daemon.shutdown failed", "error", err)
	}

	// Take the exit waiter before the final liveness re-check so an exit
	// landing between the check and the wait cannot be missed.
	exitCh := h.exitNotify

	if h.HasExited() {
		return nil
	}

	select {
	case <-exitCh:
		h.log.Debug("Process exited gracefully")

		return nil

	case <-ctx.Done():
		h.ForceKill()

		return ctx.Err()

	case <-time.After(gracefulExitTimeout):
	}

	h.log.Warn("Graceful shutdown timed out, force killing", "pid", h.pid)
	h.ForceKill()

	select {
	case <-exitCh:
		return nil
	case <-time.After(reapTimeout):
		return fmt.Errorf("process did not exit within %s of kill", reapTimeout)
	}
}

// stdinPump drains the outbound command queue into the process stdin,
// newline-terminating and flushing each frame. It exits when the queue
// closes, a write fails, or the process exits.
func (h *Handle) stdinPump(stdin io.WriteCloser) {
	defer func() { _ = stdin.Close() }()

	w := bufio.NewWriter(stdin)

	for {
		select {
		case data, ok := <-h.commands:
			if !ok {
				h.log.Debug("Command queue closed, stdin pump stopping")

				return
			}

			if _, err := w.Write(data); err != nil {
				h.log.Debug("Stdin write failed", "error", err)

				return
			}

			if len(data) == 0 || data[len(data)-1] != '\n' {
				if err := w.WriteByte('\n'); err != nil {
					return
				}
			}

			if err := w.Flush(); err != nil {
				h.log.Debug("Stdin flush failed", "error", err)

				return
			}

		case <-h.exitNotify:
			return
		}
	}
}

// stdoutPump reads newline-delimited text from stdout, completing
// responses against the tracker and emitting classified events. EOF
// here only means the pipe closed; the waiter owns exit detection.
func (h *Handle) stdoutPump(ctx context.Context, stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()

		switch msg := protocol.ParseDaemonLine(line).(type) {
		case *protocol.Response:
			if !h.tracker.Complete(msg.ID, msg) {
				h.log.Debug("Response with no pending request", "id", msg.ID)
			}

		case *protocol.Event:
			h.emit(ctx, protocol.ClassifyDaemonEvent(msg))

		case *protocol.Unknown:
			h.emit(ctx, &protocol.StdoutLineEvent{Line: line})
		}
	}

	if err := scanner.Err(); err != nil {
		h.log.Debug("Stdout scanner error", "error", err)
	}
}

// stderrPump emits each stderr line raw.
func (h *Handle) stderrPump(ctx context.Context, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

	for scanner.Scan() {
		h.emit(ctx, &protocol.StderrLineEvent{Line: scanner.Text()})
	}

	if err := scanner.Err(); err != nil {
		h.log.Debug("Stderr scanner error", "error", err)
	}
}

// waiter is the sole goroutine holding the real OS process. It races
// natural exit against the kill signal; on the kill path it still reaps
// the real exit status. Exit publication order is strict: liveness flag,
// then wakeup, then event.
func (h *Handle) waiter(ctx context.Context, cmd *exec.Cmd) {
	waitDone := make(chan error, 1)

	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr error

	select {
	case waitErr = <-waitDone:

	case <-h.kill:
		h.log.Debug("Kill requested, terminating process", "pid", h.pid)

		if err := cmd.Process.Kill(); err != nil {
			h.log.Debug("Kill failed", "pid", h.pid, "error", err)
		}

		waitErr = <-waitDone
	}

	code := exitCode(waitErr)
	h.log.Info("Tool process exited", "pid", h.pid, "exit_code", code)

	// (a) flag, (b) wakeup, (c) event. No consumer may observe the exit
	// event while the flag still reads false.
	h.exited.Store(true)
	close(h.exitNotify)
	h.CloseCommands()
	h.emit(ctx, &protocol.ExitedEvent{Code: code})
}

// emit delivers one event to the stream unless the supervising context
// is gone.
func (h *Handle) emit(ctx context.Context, ev protocol.DomainEvent) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// exitCode extracts the process exit code from cmd.Wait's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
