package vmservice

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ftermdev/fterm/internal/errors"
)

const (
	// groupPrefix plus the manager's counter names each group; the
	// counter is strictly increasing so names never collide and log
	// lines correlate across create/dispose pairs.
	groupPrefix = "fterm-inspector-"

	disposeMethod = "ext.flutter.inspector.disposeGroup"

	disposeTimeout = 5 * time.Second
)

// extensionCaller is the slice of Client the manager needs; tests
// substitute a fake.
type extensionCaller interface {
	CallExtension(
		ctx context.Context,
		method string,
		isolateID string,
		params map[string]any,
		timeout time.Duration,
	) (json.RawMessage, error)
}

// GroupManager scopes server-held inspector object references to a
// named group, with at most one group active at a time. Creating a new
// group disposes the prior one first; a failed disposal leaks the stale
// group server-side but never blocks the new group.
type GroupManager struct {
	log       *slog.Logger
	caller    extensionCaller
	isolateID string

	mu      sync.Mutex
	active  string
	counter uint64
}

// NewGroupManager creates a manager for one isolate.
func NewGroupManager(log *slog.Logger, caller extensionCaller, isolateID string) *GroupManager {
	return &GroupManager{
		log:       log.With("component", "object_groups", "isolate", isolateID),
		caller:    caller,
		isolateID: isolateID,
	}
}

// CreateGroup disposes the active group if any and activates a fresh
// uniquely named one. A dispose failure is logged as a warning and does
// not block creation.
func (g *GroupManager) CreateGroup(ctx context.Context) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != "" {
		if err := g.disposeCall(ctx, g.active); err != nil {
			g.log.Warn("Failed to dispose prior object group, it leaks server-side",
				"group", g.active, "error", err)
		}
	}

	g.counter++
	g.active = groupPrefix + strconv.FormatUint(g.counter, 10)

	g.log.Debug("Created object group", "group", g.active)

	return g.active
}

// DisposeGroup issues the disposal call for name. Disposing the active
// group clears it. A missing inspector extension is benign.
func (g *GroupManager) DisposeGroup(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.disposeCall(ctx, name); err != nil {
		return err
	}

	if g.active == name {
		g.active = ""
	}

	return nil
}

// ActiveGroup returns the active group name, false when none is active.
func (g *GroupManager) ActiveGroup() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.active, g.active != ""
}

// DisposeAll disposes the active group if any and clears it. A failed
// disposal still clears the manager; the client stays usable.
func (g *GroupManager) DisposeAll(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == "" {
		return
	}

	if err := g.disposeCall(ctx, g.active); err != nil {
		g.log.Warn("Failed to dispose object group", "group", g.active, "error", err)
	}

	g.active = ""
}

// disposeCall performs the server-side disposal. An "extension not
// available" outcome is expected on builds without the inspector and is
// logged at debug level only.
func (g *GroupManager) disposeCall(ctx context.Context, name string) error {
	_, err := g.caller.CallExtension(ctx, disposeMethod, g.isolateID,
		map[string]any{"objectGroup": name}, disposeTimeout)
	if err != nil {
		var unavailable *errors.ExtensionUnavailableError
		if stderrors.As(err, &unavailable) {
			g.log.Debug("Inspector extension not available, skipping disposal", "group", name)

			return nil
		}

		return err
	}

	g.log.Debug("Disposed object group", "group", name)

	return nil
}
