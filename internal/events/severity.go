// Package events interprets classified protocol events into leveled,
// structured domain records: log severity classification, structured
// runtime error reports, and GC telemetry.
package events

import (
	"regexp"
	"strings"

	"github.com/ftermdev/fterm/internal/protocol"
)

// Severity is the level of an interpreted log entry.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one interpreted log record.
type Entry struct {
	Severity Severity
	Message  string
	Frames   []StackFrame
}

// ansiPattern matches terminal escape sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// echoPrefixPattern matches the tool's echo-style line prefixes: the
// plain "flutter:" print prefix and the logcat-forwarded form.
var echoPrefixPattern = regexp.MustCompile(`^(?:I/flutter\s*\(\s*\d+\):\s*|flutter:\s*)`)

// Status glyphs some frameworks and loggers put at the front of lines.
// Each group maps to one severity; error wins over warning and so on.
var (
	errorGlyphs   = []string{"🔥", "⛔", "❌", "🚨"}
	warningGlyphs = []string{"⚠", "🚧"}
	infoGlyphs    = []string{"💡", "ℹ"}
	debugGlyphs   = []string{"🐛", "🔍"}
)

// Textual conventions from common logging packages. Word-boundary
// matching is mandatory: identifiers that merely contain these words
// ("handleError") must not classify.
var (
	errorPrefixPattern   = regexp.MustCompile(`(?i)(?:\berror:|\[error\])`)
	warningPrefixPattern = regexp.MustCompile(`(?i)(?:\bwarning:|\[warning\])`)
	debugPrefixPattern   = regexp.MustCompile(`(?i)(?:\b(?:debug|trace):|\[(?:debug|verbose|trace)\])`)

	// "SomethingError (" / "SomethingException (" shapes.
	exceptionShapePattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*(?:Error|Exception)\s*\(`)

	errorWordPattern   = regexp.MustCompile(`(?i)\b(?:error|exception|failed|failure|fatal|crash(?:ing|ed)?)\b`)
	warningWordPattern = regexp.MustCompile(`(?i)\b(?:warning|deprecated|caution)\b`)
	debugLeadPattern   = regexp.MustCompile(`(?i)^debug\b`)
	verboseWordPattern = regexp.MustCompile(`(?i)\bverbose\b`)
)

// CleanLine strips terminal color codes and known echo-style prefixes.
func CleanLine(line string) string {
	line = ansiPattern.ReplaceAllString(line, "")
	line = echoPrefixPattern.ReplaceAllString(line, "")

	return strings.TrimSpace(line)
}

// ClassifySeverity determines the severity of a log line. Priority:
// explicit error flag, status glyphs, logging-convention prefixes,
// exception-type shape, whole-word keywords, then info.
func ClassifySeverity(line string, explicitError bool) Severity {
	if explicitError {
		return SeverityError
	}

	clean := CleanLine(line)

	if containsAnyGlyph(clean, errorGlyphs) {
		return SeverityError
	}

	if containsAnyGlyph(clean, warningGlyphs) {
		return SeverityWarning
	}

	if containsAnyGlyph(clean, infoGlyphs) {
		return SeverityInfo
	}

	if containsAnyGlyph(clean, debugGlyphs) {
		return SeverityDebug
	}

	if errorPrefixPattern.MatchString(clean) {
		return SeverityError
	}

	if warningPrefixPattern.MatchString(clean) {
		return SeverityWarning
	}

	if debugPrefixPattern.MatchString(clean) {
		return SeverityDebug
	}

	if exceptionShapePattern.MatchString(clean) {
		return SeverityError
	}

	if errorWordPattern.MatchString(clean) {
		return SeverityError
	}

	if warningWordPattern.MatchString(clean) {
		return SeverityWarning
	}

	if debugLeadPattern.MatchString(clean) || verboseWordPattern.MatchString(clean) {
		return SeverityDebug
	}

	return SeverityInfo
}

func containsAnyGlyph(s string, glyphs []string) bool {
	for _, g := range glyphs {
		if strings.Contains(s, g) {
			return true
		}
	}

	return false
}

// InterpretAppLog converts a forwarded application log line.
func InterpretAppLog(ev *protocol.AppLogEvent) Entry {
	return Entry{
		Severity: ClassifySeverity(ev.Line, ev.Error),
		Message:  CleanLine(ev.Line),
	}
}

// InterpretDaemonLog converts a daemon self-log message. The daemon
// carries an explicit level; unknown levels fall back to textual
// classification.
func InterpretDaemonLog(ev *protocol.DaemonLogEvent) Entry {
	var severity Severity

	switch strings.ToLower(ev.Level) {
	case "error":
		severity = SeverityError
	case "warning":
		severity = SeverityWarning
	case "status", "info":
		severity = SeverityInfo
	case "trace", "debug":
		severity = SeverityDebug
	default:
		severity = ClassifySeverity(ev.Message, false)
	}

	return Entry{Severity: severity, Message: CleanLine(ev.Message)}
}

// Dart logging level thresholds, package:logging convention.
const (
	dartLevelSevere  = 1000
	dartLevelWarning = 900
	dartLevelInfo    = 800
)

// InterpretServiceLog converts a VM service Logging stream record.
func InterpretServiceLog(ev *protocol.ServiceLogEvent) Entry {
	entry := Entry{Message: CleanLine(ev.Message)}

	switch {
	case ev.Error != "":
		entry.Severity = SeverityError
	case ev.Level >= dartLevelSevere:
		entry.Severity = SeverityError
	case ev.Level >= dartLevelWarning:
		entry.Severity = SeverityWarning
	case ev.Level >= dartLevelInfo:
		entry.Severity = SeverityInfo
	case ev.Level > 0:
		entry.Severity = SeverityDebug
	default:
		entry.Severity = ClassifySeverity(ev.Message, false)
	}

	if ev.StackTrace != "" {
		entry.Frames = ParseStackTrace(ev.StackTrace)
	}

	return entry
}
