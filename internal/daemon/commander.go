package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ftermdev/fterm/internal/errors"
	"github.com/ftermdev/fterm/internal/protocol"
)

// daemonRequest is one outgoing daemon frame before array wrapping.
type daemonRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Request sends one daemon method call and waits for its correlated
// response. Process exit and the timeout both fail the call; the
// tracker itself never times anything out.
func (h *Handle) Request(
	ctx context.Context,
	method string,
	params any,
	timeout time.Duration,
) (*protocol.Response, error) {
	id, responseCh := h.tracker.Register()

	h.log.Debug("Sending daemon request", "id", id, "method", method)

	frame, err := json.Marshal([]daemonRequest{{ID: id, Method: method, Params: params}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := h.Send(ctx, frame); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-responseCh:
		if resp.Error != nil {
			h.log.Debug("Daemon request returned error", "id", id, "method", method, "error", resp.Error)

			return nil, resp.Error
		}

		return resp, nil

	case <-h.exitNotify:
		return nil, errors.ErrDaemonStopped

	case <-time.After(timeout):
		h.log.Warn("Daemon request timed out", "id", id, "method", method, "timeout", timeout)

		return nil, fmt.Errorf("%s: %w after %s", method, errors.ErrRequestTimeout, timeout)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AppStop asks the daemon to stop a running app.
func (h *Handle) AppStop(ctx context.Context, appID string, timeout time.Duration) error {
	_, err := h.Request(ctx, "app.stop", map[string]any{"appId": appID}, timeout)

	return err
}

// AppRestart triggers a hot reload, or a full restart when fullRestart
// is set.
func (h *Handle) AppRestart(
	ctx context.Context,
	appID string,
	fullRestart bool,
	reason string,
	timeout time.Duration,
) error {
	params := map[string]any{
		"appId":       appID,
		"fullRestart": fullRestart,
		"pause":       false,
	}

	if reason != "" {
		params["reason"] = reason
	}

	_, err := h.Request(ctx, "app.restart", params, timeout)

	return err
}
