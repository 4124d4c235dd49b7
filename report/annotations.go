package report

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/text/message"

	"github.com/agentflare-ai/go-xmlvalidate"
)

// Annotations writes one workflow command per diagnostic, the format CI
// runners such as GitHub Actions turn into inline annotations. Everything
// but the diagnostics and the summary is left out.
type Annotations struct {
	w       io.Writer
	printer *message.Printer
	mu      sync.Mutex
}

// NewAnnotations creates an annotation reporter writing to w
func NewAnnotations(w io.Writer, printer *message.Printer) *Annotations {
	return &Annotations{w: w, printer: printer}
}

// Title writes nothing
func (a *Annotations) Title() {}

// Report implements xmlvalidate.Reporter
func (a *Annotations) Report(out xmlvalidate.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range out.Diagnostics {
		a.annotate(string(d.Severity), d.File, d.Line, d.Annotation())
	}
}

// Excluded warns about a file argument on the exclusion list
func (a *Annotations) Excluded(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.annotate("warning", name, 0, a.printer.Sprintf(msgExcluded, name))
}

// Summary writes the final tally
func (a *Annotations) Summary(summary xmlvalidate.BatchSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.w, a.printer.Sprintf(msgSummary, summary.Valid, summary.Total))
}

func (a *Annotations) annotate(level, file string, line int, msg string) {
	fmt.Fprintf(a.w, "::%s file=%s,line=%d,col=0::%s\n", level, file, line, msg)
}
