package events

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// StackFrame is one parsed frame of a Dart-style stack trace.
type StackFrame struct {
	Index    int
	Member   string
	Location string
	Line     int
	Column   int
}

// framePattern matches frames of the form
//
//	#0      Widget.build (package:app/main.dart:42:7)
//
// Line and column are optional.
var framePattern = regexp.MustCompile(`(?m)^#(\d+)\s+(.+?)\s+\((\S+?)(?::(\d+))?(?::(\d+))?\)\s*$`)

// ParseStackTrace structurally parses a raw stack-trace string. When no
// frame is recognizable the result is nil, and the caller should treat
// the entry as carrying no stack trace.
func ParseStackTrace(trace string) []StackFrame {
	matches := framePattern.FindAllStringSubmatch(trace, -1)
	if len(matches) == 0 {
		return nil
	}

	frames := make([]StackFrame, 0, len(matches))

	for _, m := range matches {
		frame := StackFrame{
			Member:   m[2],
			Location: m[3],
		}

		frame.Index, _ = strconv.Atoi(m[1])

		if m[4] != "" {
			frame.Line, _ = strconv.Atoi(m[4])
		}

		if m[5] != "" {
			frame.Column, _ = strconv.Atoi(m[5])
		}

		frames = append(frames, frame)
	}

	return frames
}

// InterpretFlutterError converts a Flutter.Error extension payload into
// a leveled entry. The first error after a reload cycle carries the
// full rendered multi-line block, used verbatim; every subsequent error
// in the cycle carries only a short description, rendered as
// "[<library>] <description>".
func InterpretFlutterError(data json.RawMessage) Entry {
	rendered := gjson.GetBytes(data, "renderedErrorText").String()
	description := gjson.GetBytes(data, "description").String()
	library := gjson.GetBytes(data, "library").String()
	first := gjson.GetBytes(data, "errorsSinceReload").Int() == 0

	if library == "" {
		library = "unknown library"
	}

	var message string

	switch {
	case first && rendered != "":
		message = rendered
	case first:
		message = description
	default:
		message = "[" + library + "] " + description
	}

	return Entry{
		Severity: SeverityError,
		Message:  message,
		Frames:   ParseStackTrace(gjson.GetBytes(data, "stackTrace").String()),
	}
}
