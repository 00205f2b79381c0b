package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ftermdev/fterm/internal/protocol"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		line string
		want Severity
	}{
		// Glyphs.
		{"🔥 something burned down", SeverityError},
		{"⛔ blocked", SeverityError},
		{"⚠ careful now", SeverityWarning},
		{"💡 did you know", SeverityInfo},
		{"🐛 stepping through", SeverityDebug},

		// Colon-style logging prefixes, case-insensitive.
		{"ERROR: connection refused", SeverityError},
		{"error: lowercase too", SeverityError},
		{"Warning: might be slow", SeverityWarning},
		{"debug: entering loop", SeverityDebug},
		{"trace: deep detail", SeverityDebug},

		// Bracket-style prefixes.
		{"[ERROR] it broke", SeverityError},
		{"[warning] deprecated call site", SeverityWarning},
		{"[debug] internals", SeverityDebug},
		{"[verbose] chatty", SeverityDebug},
		{"[trace] chattier", SeverityDebug},

		// Exception-type shape.
		{"StateError (Bad state: no element)", SeverityError},
		{"FormatException (unexpected token)", SeverityError},

		// Whole-word keywords.
		{"build failed after 3s", SeverityError},
		{"fatal signal received", SeverityError},
		{"the app is crashing", SeverityError},
		{"process crashed", SeverityError},
		{"this API is deprecated", SeverityWarning},
		{"proceed with caution", SeverityWarning},
		{"verbose logging enabled", SeverityDebug},
		{"debug session started", SeverityDebug},

		// Word boundaries: identifiers must not classify.
		{"handleError() returned", SeverityInfo},
		{"calling debugPrint helper", SeverityInfo},

		// Default.
		{"Syncing files to device", SeverityInfo},
		{"", SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifySeverity(tt.line, false))
		})
	}
}

func TestClassifySeverity_ExplicitFlagWins(t *testing.T) {
	require.Equal(t, SeverityError, ClassifySeverity("all fine here", true))
}

func TestClassifySeverity_StripsANSI(t *testing.T) {
	require.Equal(t, SeverityError, ClassifySeverity("\x1b[31mERROR:\x1b[0m boom", false))
}

func TestCleanLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"echo prefix", "flutter: hello world", "hello world"},
		{"logcat prefix", "I/flutter ( 5123): hello", "hello"},
		{"ansi codes", "\x1b[32mgreen\x1b[0m", "green"},
		{"plain", "untouched", "untouched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CleanLine(tt.line))
		})
	}
}

func TestInterpretAppLog(t *testing.T) {
	entry := InterpretAppLog(&protocol.AppLogEvent{Line: "flutter: ERROR: oh no"})
	require.Equal(t, SeverityError, entry.Severity)
	require.Equal(t, "ERROR: oh no", entry.Message)

	entry = InterpretAppLog(&protocol.AppLogEvent{Line: "fine", Error: true})
	require.Equal(t, SeverityError, entry.Severity)
}

func TestInterpretDaemonLog(t *testing.T) {
	tests := []struct {
		level string
		want  Severity
	}{
		{"error", SeverityError},
		{"warning", SeverityWarning},
		{"status", SeverityInfo},
		{"trace", SeverityDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			entry := InterpretDaemonLog(&protocol.DaemonLogEvent{Level: tt.level, Message: "m"})
			require.Equal(t, tt.want, entry.Severity)
		})
	}

	// Unknown level falls back to textual classification.
	entry := InterpretDaemonLog(&protocol.DaemonLogEvent{Level: "wat", Message: "build failed"})
	require.Equal(t, SeverityError, entry.Severity)
}

func TestInterpretServiceLog(t *testing.T) {
	entry := InterpretServiceLog(&protocol.ServiceLogEvent{Message: "m", Error: "thrown"})
	require.Equal(t, SeverityError, entry.Severity)

	entry = InterpretServiceLog(&protocol.ServiceLogEvent{Message: "m", Level: 1000})
	require.Equal(t, SeverityError, entry.Severity)

	entry = InterpretServiceLog(&protocol.ServiceLogEvent{Message: "m", Level: 900})
	require.Equal(t, SeverityWarning, entry.Severity)

	entry = InterpretServiceLog(&protocol.ServiceLogEvent{Message: "m", Level: 800})
	require.Equal(t, SeverityInfo, entry.Severity)

	entry = InterpretServiceLog(&protocol.ServiceLogEvent{Message: "m", Level: 500})
	require.Equal(t, SeverityDebug, entry.Severity)

	entry = InterpretServiceLog(&protocol.ServiceLogEvent{Message: "ERROR: x"})
	require.Equal(t, SeverityError, entry.Severity)
}
