package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ftermdev/fterm/internal/errors"
)

func TestParseDaemonLine_Response(t *testing.T) {
	msg := ParseDaemonLine(`[{"id":42,"result":{"ok":true}}]`)

	resp, ok := msg.(*Response)
	require.True(t, ok, "expected Response, got %T", msg)
	require.Equal(t, uint64(42), resp.ID)
	require.JSONEq(t, `{"ok":true}`, string(resp.Result))
	require.Nil(t, resp.Error)
}

func TestParseDaemonLine_ErrorResponse(t *testing.T) {
	msg := ParseDaemonLine(`[{"id":3,"error":{"code":-32601,"message":"method not found"}}]`)

	resp, ok := msg.(*Response)
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	require.Equal(t, errors.CodeMethodNotFound, resp.Error.Code)
}

func TestParseDaemonLine_Event(t *testing.T) {
	msg := ParseDaemonLine(`[{"event":"app.started","params":{"appId":"abc"}}]`)

	ev, ok := msg.(*Event)
	require.True(t, ok, "expected Event, got %T", msg)
	require.Equal(t, "app.started", ev.Name)
	require.Equal(t, "abc", ev.Params["appId"])
}

func TestParseDaemonLine_Unknown(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"plain text", "Launching lib/main.dart on macOS in debug mode..."},
		{"bare object", `{"event":"app.started"}`},
		{"two elements", `[{"event":"a"},{"event":"b"}]`},
		{"empty array", `[]`},
		{"malformed json", `[{"event":]`},
		{"no dispatch field", `[{"params":{}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ParseDaemonLine(tt.line)

			unknown, ok := msg.(*Unknown)
			require.True(t, ok, "expected Unknown, got %T", msg)
			require.Equal(t, tt.line, unknown.Raw)
		})
	}
}

func TestParseServiceFrame_Dispatch(t *testing.T) {
	// Non-null id wins over method.
	msg := ParseServiceFrame([]byte(`{"jsonrpc":"2.0","id":7,"method":"x","result":{}}`))
	require.IsType(t, &Response{}, msg)

	// Null id falls through to the method rule.
	msg = ParseServiceFrame([]byte(`{"jsonrpc":"2.0","id":null,"method":"streamNotify","params":{}}`))
	require.IsType(t, &Event{}, msg)

	msg = ParseServiceFrame([]byte(`{"jsonrpc":"2.0"}`))
	require.IsType(t, &Unknown{}, msg)
}

func TestParseID_Forms(t *testing.T) {
	resp := ParseServiceFrame([]byte(`{"id":"15","result":{}}`)).(*Response)
	require.Equal(t, uint64(15), resp.ID)

	// Foreign ids degrade to zero, which never matches a pending request.
	resp = ParseServiceFrame([]byte(`{"id":"abc","result":{}}`)).(*Response)
	require.Equal(t, uint64(0), resp.ID)
}

func TestParseRPCError_Malformed(t *testing.T) {
	resp := ParseServiceFrame([]byte(`{"id":1,"error":"boom"}`)).(*Response)
	require.NotNil(t, resp.Error)
	require.Contains(t, resp.Error.Error(), "boom")
}

func TestClassifyDaemonEvent_Known(t *testing.T) {
	ev := &Event{Name: "app.debugPort", Params: map[string]any{
		"appId": "abc",
		"wsUri": "ws://127.0.0.1:1234/ws",
	}}

	got := ClassifyDaemonEvent(ev)

	port, ok := got.(*AppDebugPortEvent)
	require.True(t, ok, "expected AppDebugPortEvent, got %T", got)
	require.Equal(t, "abc", port.AppID)
	require.Equal(t, "ws://127.0.0.1:1234/ws", port.WSURI)
}

func TestClassifyDaemonEvent_DeviceAdded(t *testing.T) {
	ev := &Event{Name: "device.added", Params: map[string]any{
		"id":       "emulator-5554",
		"name":     "Pixel",
		"platform": "android-arm64",
		"emulator": true,
	}}

	got := ClassifyDaemonEvent(ev)

	added, ok := got.(*DeviceAddedEvent)
	require.True(t, ok)
	require.Equal(t, Device{ID: "emulator-5554", Name: "Pixel", Platform: "android-arm64", Emulator: true}, added.Device)
}

func TestClassifyDaemonEvent_UnknownName(t *testing.T) {
	ev := &Event{Name: "app.webLaunchUrl", Params: map[string]any{"url": "http://x"}}

	got := ClassifyDaemonEvent(ev)

	unknown, ok := got.(*UnknownEvent)
	require.True(t, ok)
	require.Equal(t, "app.webLaunchUrl", unknown.Name)
	require.Equal(t, ev.Params, unknown.Params)
}

func TestClassifyDaemonEvent_FieldMismatchDegrades(t *testing.T) {
	// appId is the wrong type: the single event degrades, nothing fails.
	ev := &Event{Name: "app.started", Params: map[string]any{"appId": 12.0}}

	got := ClassifyDaemonEvent(ev)
	require.IsType(t, &UnknownEvent{}, got)
}

func TestClassifyDaemonEvent_OptionalFieldsAbsent(t *testing.T) {
	ev := &Event{Name: "app.log", Params: map[string]any{"log": "hello"}}

	got := ClassifyDaemonEvent(ev)

	logEv, ok := got.(*AppLogEvent)
	require.True(t, ok)
	require.Equal(t, "hello", logEv.Line)
	require.False(t, logEv.Error)
}

func serviceEvent(raw string) *Event {
	var params map[string]any
	_ = json.Unmarshal([]byte(raw), &params)

	return &Event{Name: "streamNotify", Params: params}
}

func TestClassifyServiceEvent_GC(t *testing.T) {
	ev := serviceEvent(`{
		"streamId": "GC",
		"event": {
			"kind": "GC",
			"isolate": {"id": "isolates/123"},
			"gcType": "MarkSweep",
			"reason": "full"
		}
	}`)

	got := ClassifyServiceEvent(ev)

	gc, ok := got.(*GCEvent)
	require.True(t, ok, "expected GCEvent, got %T", got)
	require.Equal(t, "isolates/123", gc.IsolateID)
	require.Equal(t, "MarkSweep", gc.GCType)
	require.Equal(t, "full", gc.Reason)
}

func TestClassifyServiceEvent_Extension(t *testing.T) {
	ev := serviceEvent(`{
		"streamId": "Extension",
		"event": {
			"kind": "Extension",
			"isolate": {"id": "isolates/7"},
			"extensionKind": "Flutter.Error",
			"extensionData": {"description": "boom", "errorsSinceReload": 0}
		}
	}`)

	got := ClassifyServiceEvent(ev)

	ext, ok := got.(*ExtensionEvent)
	require.True(t, ok)
	require.Equal(t, "Flutter.Error", ext.Kind)
	require.Equal(t, "isolates/7", ext.IsolateID)
	require.JSONEq(t, `{"description":"boom","errorsSinceReload":0}`, string(ext.Data))
}

func TestClassifyServiceEvent_Logging(t *testing.T) {
	ev := serviceEvent(`{
		"streamId": "Logging",
		"event": {
			"kind": "Logging",
			"isolate": {"id": "isolates/9"},
			"logRecord": {
				"level": 900,
				"message": {"type": "@Instance", "valueAsString": "watch out"}
			}
		}
	}`)

	got := ClassifyServiceEvent(ev)

	logEv, ok := got.(*ServiceLogEvent)
	require.True(t, ok)
	require.Equal(t, "watch out", logEv.Message)
	require.Equal(t, int64(900), logEv.Level)
}

func TestClassifyServiceEvent_Degrades(t *testing.T) {
	tests := []struct {
		name string
		ev   *Event
	}{
		{"not streamNotify", &Event{Name: "getVersion", Params: map[string]any{}}},
		{"missing event", &Event{Name: "streamNotify", Params: map[string]any{"streamId": "GC"}}},
		{"missing kind", serviceEvent(`{"event":{"isolate":{"id":"i"}}}`)},
		{"unknown kind", serviceEvent(`{"event":{"kind":"IsolateStart"}}`)},
		{"mismatched gcType", serviceEvent(`{"event":{"kind":"GC","gcType":5}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.IsType(t, &UnknownEvent{}, ClassifyServiceEvent(tt.ev))
		})
	}
}
