package xmlvalidate

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Stage names the pipeline stage that produced a diagnostic
type Stage string

const (
	StageParse   Stage = "parse"
	StageSchema  Stage = "schema"
	StageExtract Stage = "extract"
	StageRunner  Stage = "runner"
)

// Problem is a raw finding of the parser or the schema validator, before it
// is attributed to a file
type Problem struct {
	Line    int
	Message string
}

// Diagnostic is one problem found in one file
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Stage    Stage    `json:"stage"`
}

var linePrefix = regexp.MustCompile(`^Line \d+:\s`)

// Normalize converts parser or validator problems of one file into error
// diagnostics. Messages lose trailing newlines and any "Line N:" prefix the
// producer already added, then get exactly one "Line N: " prefix.
func Normalize(file string, stage Stage, problems []Problem) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(problems))
	for _, p := range problems {
		line := p.Line
		if line < 0 {
			line = 0
		}
		msg := strings.TrimRight(p.Message, "\r\n")
		for linePrefix.MatchString(msg) {
			msg = linePrefix.ReplaceAllString(msg, "")
		}
		diagnostics = append(diagnostics, Diagnostic{
			File:     file,
			Line:     line,
			Message:  fmt.Sprintf("Line %d: %s", line, msg),
			Severity: SeverityError,
			Stage:    stage,
		})
	}
	return diagnostics
}

// Warning creates a file level warning
func Warning(file string, stage Stage, message string) Diagnostic {
	return Diagnostic{File: file, Message: message, Severity: SeverityWarning, Stage: stage}
}

// Failure creates a file level error
func Failure(file string, stage Stage, message string) Diagnostic {
	return Diagnostic{File: file, Message: message, Severity: SeverityError, Stage: stage}
}

// Bare returns the message without its "Line N: " prefix
func (d Diagnostic) Bare() string {
	return linePrefix.ReplaceAllString(d.Message, "")
}

// Annotation returns the message in the single line form used by CI
// annotations. Schema violations are records terminated by a newline, which
// is kept, escaped like every other newline as %0A.
func (d Diagnostic) Annotation() string {
	msg := d.Bare()
	if d.Stage == StageSchema {
		msg += "\n"
	}
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	return strings.ReplaceAll(msg, "\n", "%0A")
}
