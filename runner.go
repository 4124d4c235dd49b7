package xmlvalidate

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Reporter receives the outcome of every file, in request order
type Reporter interface {
	Report(Outcome)
}

// FileValidator validates one document. *Pipeline implements it.
type FileValidator interface {
	Validate(name string, content []byte) (Outcome, error)
}

// Request is one file to validate
type Request struct {
	// Name is the display name used in every diagnostic of the file
	Name    string
	Content []byte
	// Load reads the content when Content is nil
	Load func() ([]byte, error)
}

// BatchSummary counts the files of a run
type BatchSummary struct {
	Total int
	Valid int
}

// Add returns the sum of two summaries
func (s BatchSummary) Add(other BatchSummary) BatchSummary {
	return BatchSummary{Total: s.Total + other.Total, Valid: s.Valid + other.Valid}
}

// Success reports whether every file was valid. An empty batch succeeds.
func (s BatchSummary) Success() bool {
	return s.Valid == s.Total
}

// ExitCode is 0 for a successful batch and 1 otherwise
func (s BatchSummary) ExitCode() int {
	if s.Success() {
		return 0
	}
	return 1
}

// Runner drives a FileValidator over a batch of requests
type Runner struct {
	validator   FileValidator
	reporter    Reporter
	concurrency int
	logger      log.Logger
}

// NewRunner creates a runner. With a concurrency above 1 files are
// validated in parallel; the reporter still sees outcomes in request order.
func NewRunner(validator FileValidator, reporter Reporter, concurrency int, logger log.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{validator: validator, reporter: reporter, concurrency: concurrency, logger: logger}
}

// Process validates every request and reports each outcome. A failure in
// one file never stops the batch: it becomes a diagnostic of that file.
func (r *Runner) Process(ctx context.Context, requests []Request) BatchSummary {
	total, valid := atomic.NewInt64(0), atomic.NewInt64(0)
	count := func(out Outcome) {
		total.Inc()
		if out.Valid {
			valid.Inc()
		}
	}

	if r.concurrency == 1 {
		for _, req := range requests {
			out := r.process(ctx, req)
			count(out)
			r.reporter.Report(out)
		}
	} else {
		replay := &orderedReplay{reporter: r.reporter, pending: map[int]Outcome{}}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i, req := range requests {
			g.Go(func() error {
				out := r.process(gctx, req)
				count(out)
				replay.done(i, out)
				return nil
			})
		}
		_ = g.Wait()
	}

	summary := BatchSummary{Total: int(total.Load()), Valid: int(valid.Load())}
	level.Debug(r.logger).Log("msg", "batch finished", "files", summary.Total, "valid", summary.Valid)
	return summary
}

func (r *Runner) process(ctx context.Context, req Request) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = r.failed(req.Name, "", errors.Errorf("%v", p))
		}
	}()

	if err := ctx.Err(); err != nil {
		return r.failed(req.Name, "", err)
	}
	content := req.Content
	if content == nil && req.Load != nil {
		var err error
		if content, err = req.Load(); err != nil {
			return r.failed(req.Name, "", err)
		}
	}

	out, err := r.validator.Validate(req.Name, content)
	if err != nil {
		return r.failed(req.Name, out.Schema, err)
	}
	return out
}

func (r *Runner) failed(name, schema string, err error) Outcome {
	level.Warn(r.logger).Log("msg", "could not process file", "file", name, "err", err)
	return Outcome{
		File:   name,
		Schema: schema,
		Diagnostics: []Diagnostic{
			Failure(name, StageRunner, fmt.Sprintf("Could not process %s. Error: %s", name, err)),
		},
	}
}

// orderedReplay buffers outcomes that finish early and reports them once
// every earlier request has been reported
type orderedReplay struct {
	mu       sync.Mutex
	next     int
	pending  map[int]Outcome
	reporter Reporter
}

func (o *orderedReplay) done(i int, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[i] = out
	for {
		ready, ok := o.pending[o.next]
		if !ok {
			return
		}
		delete(o.pending, o.next)
		o.reporter.Report(ready)
		o.next++
	}
}
