package protocol

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ftermdev/fterm/internal/errors"
)

// wireFrame captures the fields both protocols dispatch on. The daemon
// uses "event" for notifications, the VM service uses "method".
type wireFrame struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Event  string          `json:"event"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Params map[string]any  `json:"params"`
}

// ParseDaemonLine classifies one line of daemon stdout. Daemon frames
// are a single-element JSON array wrapping the message object; anything
// else on stdout (build output, diagnostics) comes back as Unknown.
func ParseDaemonLine(line string) Message {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return &Unknown{Raw: line}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil || len(elems) != 1 {
		return &Unknown{Raw: line}
	}

	return parseFrame(elems[0], line)
}

// ParseServiceFrame classifies one VM service WebSocket frame. These are
// bare JSON-RPC 2.0 objects.
func ParseServiceFrame(data []byte) Message {
	return parseFrame(data, string(data))
}

// parseFrame applies the shared dispatch rule: a non-null top-level "id"
// means Response; otherwise a "method" or "event" field means Event;
// otherwise Unknown.
func parseFrame(data json.RawMessage, raw string) Message {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return &Unknown{Raw: raw}
	}

	if frame.ID != nil {
		return &Response{
			ID:     parseID(frame.ID),
			Result: frame.Result,
			Error:  parseRPCError(frame.Error),
		}
	}

	name := frame.Event
	if name == "" {
		name = frame.Method
	}

	if name != "" {
		return &Event{Name: name, Params: frame.Params}
	}

	return &Unknown{Raw: raw}
}

// parseID converts a wire id to the tracker's numeric form. All ids
// fterm sends are numeric; a foreign id yields zero, which no pending
// request ever matches.
func parseID(id any) uint64 {
	switch v := id.(type) {
	case float64:
		if v >= 0 {
			return uint64(v)
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	case json.Number:
		if n, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
			return n
		}
	}

	return 0
}

// parseRPCError decodes a JSON-RPC error object. A malformed error
// object still produces an RPCError carrying the raw text, so a failed
// call never masquerades as success.
func parseRPCError(raw json.RawMessage) *errors.RPCError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var wire struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return &errors.RPCError{Message: string(raw)}
	}

	data := string(wire.Data)
	if unquoted, err := strconv.Unquote(data); err == nil {
		data = unquoted
	}

	if data == "null" {
		data = ""
	}

	return &errors.RPCError{Code: wire.Code, Message: wire.Message, Data: data}
}

// ClassifyDaemonEvent converts a daemon Event into a typed DomainEvent.
// Unrecognized names and per-field type mismatches degrade to
// UnknownEvent carrying the raw name and payload.
func ClassifyDaemonEvent(ev *Event) DomainEvent {
	p := ev.Params

	switch ev.Name {
	case "daemon.connected":
		version, ok1 := optString(p, "version")
		pid, ok2 := optInt(p, "pid")

		if !ok1 || !ok2 {
			break
		}

		return &ConnectedEvent{Version: version, PID: pid}

	case "daemon.logMessage":
		level, ok1 := optString(p, "level")
		message, ok2 := optString(p, "message")

		if !ok1 || !ok2 {
			break
		}

		return &DaemonLogEvent{Level: level, Message: message}

	case "app.start":
		appID, ok1 := reqString(p, "appId")
		deviceID, ok2 := optString(p, "deviceId")
		directory, ok3 := optString(p, "directory")
		mode, ok4 := optString(p, "launchMode")

		if !ok1 || !ok2 || !ok3 || !ok4 {
			break
		}

		return &AppStartingEvent{AppID: appID, DeviceID: deviceID, Directory: directory, LaunchMode: mode}

	case "app.started":
		appID, ok := reqString(p, "appId")
		if !ok {
			break
		}

		return &AppStartedEvent{AppID: appID}

	case "app.stop":
		appID, ok := reqString(p, "appId")
		if !ok {
			break
		}

		return &AppStoppedEvent{AppID: appID}

	case "app.debugPort":
		appID, ok1 := reqString(p, "appId")
		wsURI, ok2 := reqString(p, "wsUri")

		if !ok1 || !ok2 {
			break
		}

		return &AppDebugPortEvent{AppID: appID, WSURI: wsURI}

	case "app.progress":
		appID, ok1 := optString(p, "appId")
		progressID, ok2 := optString(p, "progressId")
		message, ok3 := optString(p, "message")
		finished, ok4 := optBool(p, "finished")

		if !ok1 || !ok2 || !ok3 || !ok4 {
			break
		}

		return &AppProgressEvent{AppID: appID, ProgressID: progressID, Message: message, Finished: finished}

	case "app.log":
		appID, ok1 := optString(p, "appId")
		line, ok2 := reqString(p, "log")
		isErr, ok3 := optBool(p, "error")

		if !ok1 || !ok2 || !ok3 {
			break
		}

		return &AppLogEvent{AppID: appID, Line: line, Error: isErr}

	case "device.added":
		device, ok := parseDevice(p)
		if !ok {
			break
		}

		return &DeviceAddedEvent{Device: device}

	case "device.removed":
		device, ok := parseDevice(p)
		if !ok {
			break
		}

		return &DeviceRemovedEvent{Device: device}
	}

	return &UnknownEvent{Name: ev.Name, Params: ev.Params}
}

// ClassifyServiceEvent converts a VM service notification into a typed
// DomainEvent. Only streamNotify is recognized; its nested event is
// dispatched by kind with the same per-field degradation rule.
func ClassifyServiceEvent(ev *Event) DomainEvent {
	if ev.Name != "streamNotify" {
		return &UnknownEvent{Name: ev.Name, Params: ev.Params}
	}

	inner, ok := optMap(ev.Params, "event")
	if !ok || inner == nil {
		return &UnknownEvent{Name: ev.Name, Params: ev.Params}
	}

	kind, ok := reqString(inner, "kind")
	if !ok {
		return &UnknownEvent{Name: ev.Name, Params: ev.Params}
	}

	isolateID := isolateIDOf(inner)

	switch kind {
	case "Logging":
		record, ok := optMap(inner, "logRecord")
		if !ok || record == nil {
			break
		}

		level, ok := optInt(record, "level")
		if !ok {
			break
		}

		return &ServiceLogEvent{
			IsolateID:  isolateID,
			Message:    instanceString(record, "message"),
			Level:      level,
			Error:      instanceString(record, "error"),
			StackTrace: instanceString(record, "stackTrace"),
		}

	case "GC":
		gcType, ok1 := optString(inner, "gcType")
		reason, ok2 := optString(inner, "reason")

		if !ok1 || !ok2 {
			break
		}

		return &GCEvent{IsolateID: isolateID, GCType: gcType, Reason: reason}

	case "Extension":
		extKind, ok := reqString(inner, "extensionKind")
		if !ok {
			break
		}

		data, err := json.Marshal(inner["extensionData"])
		if err != nil {
			break
		}

		return &ExtensionEvent{IsolateID: isolateID, Kind: extKind, Data: data}
	}

	return &UnknownEvent{Name: ev.Name, Params: ev.Params}
}

// parseDevice extracts a Device from device.added/device.removed params.
func parseDevice(p map[string]any) (Device, bool) {
	id, ok1 := reqString(p, "id")
	name, ok2 := optString(p, "name")
	platform, ok3 := optString(p, "platform")
	emulator, ok4 := optBool(p, "emulator")

	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Device{}, false
	}

	return Device{ID: id, Name: name, Platform: platform, Emulator: emulator}, true
}

// isolateIDOf pulls the isolate reference id out of a service event,
// empty when absent.
func isolateIDOf(inner map[string]any) string {
	isolate, ok := optMap(inner, "isolate")
	if !ok || isolate == nil {
		return ""
	}

	id, _ := optString(isolate, "id")

	return id
}

// instanceString unwraps the valueAsString of an InstanceRef field.
// Truncated or missing refs yield the empty string.
func instanceString(m map[string]any, key string) string {
	ref, ok := optMap(m, key)
	if !ok || ref == nil {
		return ""
	}

	s, _ := optString(ref, "valueAsString")

	return s
}

// optString reads a string field. Absent is fine (zero value); a value
// of the wrong type is a mismatch.
func optString(m map[string]any, key string) (string, bool) {
	v, present := m[key]
	if !present || v == nil {
		return "", true
	}

	s, ok := v.(string)

	return s, ok
}

// reqString reads a string field that must be present.
func reqString(m map[string]any, key string) (string, bool) {
	v, present := m[key]
	if !present {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// optBool reads a bool field, absent meaning false.
func optBool(m map[string]any, key string) (bool, bool) {
	v, present := m[key]
	if !present || v == nil {
		return false, true
	}

	b, ok := v.(bool)

	return b, ok
}

// optInt reads a numeric field, absent meaning zero. JSON numbers
// decode as float64.
func optInt(m map[string]any, key string) (int64, bool) {
	v, present := m[key]
	if !present || v == nil {
		return 0, true
	}

	f, ok := v.(float64)
	if !ok {
		return 0, false
	}

	return int64(f), true
}

// optMap reads a nested object field, absent meaning nil.
func optMap(m map[string]any, key string) (map[string]any, bool) {
	v, present := m[key]
	if !present || v == nil {
		return nil, true
	}

	nested, ok := v.(map[string]any)

	return nested, ok
}
