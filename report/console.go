package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/text/message"

	"github.com/agentflare-ai/go-xmlvalidate"
)

// DefaultWidth is the line width used when the terminal size is unknown
const DefaultWidth = 120

// Reporter is what the command needs from an output backend
type Reporter interface {
	xmlvalidate.Reporter
	Title()
	Excluded(name string)
	Summary(summary xmlvalidate.BatchSummary)
}

type blockStyle struct {
	label string
	color *color.Color
}

// Console writes outcomes as titled blocks for people reading a terminal
type Console struct {
	w       io.Writer
	printer *message.Printer
	width   int

	title   *color.Color
	ok      blockStyle
	warning blockStyle
	error   blockStyle

	mu sync.Mutex
}

// NewConsole creates a console reporter writing to w. Lines are wrapped to
// width; colors are only written when colored is set.
func NewConsole(w io.Writer, printer *message.Printer, width int, colored bool) *Console {
	if width <= 0 {
		width = DefaultWidth
	}
	c := &Console{
		w:       w,
		printer: printer,
		width:   width,
		title:   color.New(color.FgYellow),
		ok:      blockStyle{label: "OK", color: color.New(color.FgBlack, color.BgGreen)},
		warning: blockStyle{label: "WARNING", color: color.New(color.FgBlack, color.BgYellow)},
		error:   blockStyle{label: "ERROR", color: color.New(color.FgWhite, color.BgRed)},
	}
	for _, col := range []*color.Color{c.title, c.ok.color, c.warning.color, c.error.color} {
		if colored {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Title writes the underlined command title
func (c *Console) Title() {
	c.mu.Lock()
	defer c.mu.Unlock()
	title := c.printer.Sprintf(msgTitle)
	fmt.Fprintf(c.w, "\n%s\n%s\n\n", c.title.Sprint(title), c.title.Sprint(strings.Repeat("=", len([]rune(title)))))
}

// Report implements xmlvalidate.Reporter
func (c *Console) Report(out xmlvalidate.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out.Schema != "" {
		c.text(c.printer.Sprintf(msgValidating, out.File, out.Schema))
	}

	var errs, warnings []string
	for _, d := range out.Diagnostics {
		msg := d.Message
		if d.Stage == xmlvalidate.StageSchema {
			msg += "\n"
		}
		if d.Severity == xmlvalidate.SeverityError {
			errs = append(errs, msg)
		} else {
			warnings = append(warnings, msg)
		}
	}

	if len(warnings) > 0 {
		c.block(c.warning, warnings)
	}
	if len(errs) > 0 {
		c.block(c.error, append([]string{c.printer.Sprintf(msgInvalid)}, errs...))
	}
	if len(errs) == 0 && len(warnings) == 0 && out.Valid {
		c.block(c.ok, []string{c.printer.Sprintf(msgValid)})
	}
}

// Excluded warns about a file argument on the exclusion list
func (c *Console) Excluded(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block(c.warning, []string{c.printer.Sprintf(msgExcluded, name)})
}

// Summary writes the final tally
func (c *Console) Summary(summary xmlvalidate.BatchSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, c.printer.Sprintf(msgSummary, summary.Valid, summary.Total))
}

// block writes messages behind a " [LABEL] " prefix, continuation lines
// indented to the same column and messages separated by an empty line
func (c *Console) block(style blockStyle, messages []string) {
	prefix := " [" + style.label + "] "
	indent := strings.Repeat(" ", len(prefix))

	var lines []string
	for i, msg := range messages {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.Split(c.wrap(msg, len(prefix)), "\n")...)
	}

	for i, line := range lines {
		lead := indent
		if i == 0 {
			lead = prefix
		}
		text := strings.TrimRight(lead+line, " ")
		if i == 0 {
			text = style.color.Sprint(text)
		}
		fmt.Fprintln(c.w, text)
	}
	fmt.Fprintln(c.w)
}

// text writes an indented paragraph followed by an empty line
func (c *Console) text(msg string) {
	for _, line := range strings.Split(c.wrap(msg, 1), "\n") {
		fmt.Fprintln(c.w, strings.TrimRight(" "+line, " "))
	}
	fmt.Fprintln(c.w)
}

// wrap breaks text so that lines fit the width after indent columns
func (c *Console) wrap(text string, indent int) string {
	limit := c.width - indent
	if limit < 20 {
		limit = 20
	}
	return wordwrap.WrapString(text, uint(limit))
}
