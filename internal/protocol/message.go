// Package protocol parses the two wire protocols fterm speaks: the
// daemon stdio protocol (newline-delimited JSON, each line a one-element
// array) and the VM service WebSocket protocol (bare JSON-RPC 2.0).
//
// Both protocols classify into the same closed Message set: a frame with
// a non-null top-level "id" is a Response, a frame with a "method" or
// "event" field is an Event, and anything else is Unknown. Event payloads
// are further classified into DomainEvent variants; unrecognized event
// names and per-field type mismatches degrade to UnknownEvent rather
// than failing the message.
package protocol

import (
	"encoding/json"

	"github.com/ftermdev/fterm/internal/errors"
)

// Message is a classified protocol frame.
type Message interface {
	isMessage()
}

// Response is a reply to an outgoing request, matched by id.
type Response struct {
	ID     uint64
	Result json.RawMessage
	Error  *errors.RPCError
}

func (*Response) isMessage() {}

// Event is an unsolicited notification from the daemon or the VM service.
type Event struct {
	Name   string
	Params map[string]any
}

func (*Event) isMessage() {}

// Unknown is a frame that matched neither dispatch rule, kept raw for
// forward compatibility.
type Unknown struct {
	Raw string
}

func (*Unknown) isMessage() {}

// DomainEvent is a classified event from either protocol. The supervisor
// and the VM service client both emit these on a single ordered stream.
type DomainEvent interface {
	isDomainEvent()
}

// ConnectedEvent reports the daemon protocol handshake.
type ConnectedEvent struct {
	Version string
	PID     int64
}

// AppStartingEvent reports that an app launch has begun.
type AppStartingEvent struct {
	AppID      string
	DeviceID   string
	Directory  string
	LaunchMode string
}

// AppStartedEvent reports that the app is up and running.
type AppStartedEvent struct {
	AppID string
}

// AppStoppedEvent reports that the app has stopped.
type AppStoppedEvent struct {
	AppID string
}

// AppDebugPortEvent carries the VM service WebSocket URI for a running app.
type AppDebugPortEvent struct {
	AppID string
	WSURI string
}

// AppProgressEvent reports tool progress (build phases, hot reload).
type AppProgressEvent struct {
	AppID      string
	ProgressID string
	Message    string
	Finished   bool
}

// AppLogEvent is an application log line forwarded by the daemon.
type AppLogEvent struct {
	AppID string
	Line  string
	Error bool
}

// DaemonLogEvent is a log message from the daemon itself.
type DaemonLogEvent struct {
	Level   string
	Message string
}

// Device describes an attached device or emulator.
type Device struct {
	ID       string
	Name     string
	Platform string
	Emulator bool
}

// DeviceAddedEvent reports a device becoming available.
type DeviceAddedEvent struct {
	Device Device
}

// DeviceRemovedEvent reports a device going away.
type DeviceRemovedEvent struct {
	Device Device
}

// StdoutLineEvent is a raw line from the tool's stdout that did not
// classify as a daemon frame.
type StdoutLineEvent struct {
	Line string
}

// StderrLineEvent is a raw line from the tool's stderr.
type StderrLineEvent struct {
	Line string
}

// ExitedEvent reports the supervised process exiting. It is emitted
// exactly once, strictly after the liveness flag reads exited.
type ExitedEvent struct {
	Code int
}

// SpawnFailedEvent reports a failed launch attempt. Spawn failures are
// returned synchronously by the supervisor; this variant exists so
// consumers of a merged stream can observe them in order.
type SpawnFailedEvent struct {
	Err error
}

// ServiceConnectedEvent reports the VM service WebSocket coming up.
type ServiceConnectedEvent struct {
	URI string
}

// ServiceDisconnectedEvent reports the VM service WebSocket going away.
type ServiceDisconnectedEvent struct {
	Err error
}

// ServiceLogEvent is a record from the VM service Logging stream.
type ServiceLogEvent struct {
	IsolateID  string
	Message    string
	Level      int64
	Error      string
	StackTrace string
}

// GCEvent is a garbage collection notification from the GC stream.
type GCEvent struct {
	IsolateID string
	GCType    string
	Reason    string
}

// ExtensionEvent is a stream notification carrying application-defined
// structured data, e.g. a structured error report. Data is kept raw so
// interpreters can extract fields tolerantly.
type ExtensionEvent struct {
	IsolateID string
	Kind      string
	Data      json.RawMessage
}

// UnknownEvent is the per-event degradation target: an unrecognized
// event name, or a recognized name whose payload did not have the
// expected field types.
type UnknownEvent struct {
	Name   string
	Params map[string]any
}

func (*ConnectedEvent) isDomainEvent()           {}
func (*AppStartingEvent) isDomainEvent()         {}
func (*AppStartedEvent) isDomainEvent()          {}
func (*AppStoppedEvent) isDomainEvent()          {}
func (*AppDebugPortEvent) isDomainEvent()        {}
func (*AppProgressEvent) isDomainEvent()         {}
func (*AppLogEvent) isDomainEvent()              {}
func (*DaemonLogEvent) isDomainEvent()           {}
func (*DeviceAddedEvent) isDomainEvent()         {}
func (*DeviceRemovedEvent) isDomainEvent()       {}
func (*StdoutLineEvent) isDomainEvent()          {}
func (*StderrLineEvent) isDomainEvent()          {}
func (*ExitedEvent) isDomainEvent()              {}
func (*SpawnFailedEvent) isDomainEvent()         {}
func (*ServiceConnectedEvent) isDomainEvent()    {}
func (*ServiceDisconnectedEvent) isDomainEvent() {}
func (*ServiceLogEvent) isDomainEvent()          {}
func (*GCEvent) isDomainEvent()                  {}
func (*ExtensionEvent) isDomainEvent()           {}
func (*UnknownEvent) isDomainEvent()             {}
