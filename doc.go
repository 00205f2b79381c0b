// Package fterm drives iterative development of a Flutter application
// from the terminal. It supervises the Flutter tool in machine mode,
// exchanging commands and events over its line-oriented JSON-RPC
// protocol, and connects to the app's Dart VM service over WebSocket
// for logging, error reports, widget inspection, and GC telemetry.
//
// The root package is a thin public surface; the working pieces live in
// the internal packages:
//
//   - internal/daemon supervises the tool process: spawn, I/O pumps,
//     graceful shutdown, forced termination, exit-code capture.
//   - internal/protocol parses and classifies both wire protocols into
//     typed messages and domain events.
//   - internal/tracker correlates outgoing request ids with responses.
//   - internal/events interprets events into leveled log entries,
//     structured error reports, and GC history.
//   - internal/vmservice is the VM service JSON-RPC client and the
//     inspector object-group lifecycle manager.
//
// The cmd/fterm binary wires these together and prints the interpreted
// event stream.
package fterm
