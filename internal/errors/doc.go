// Package errors defines error types for fterm.
//
// This package provides structured error types that wrap the different
// failure scenarios of supervising the Flutter tool and talking to the
// Dart VM service. All error types support error unwrapping and can be
// checked using errors.Is, errors.As, and errors.AsType.
package errors
