package xmlvalidate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects reported outcomes
type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recorder) Report(out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
}

func (r *recorder) files() []string {
	var names []string
	for _, out := range r.outcomes {
		names = append(names, out.File)
	}
	return names
}

// scriptedValidator decides outcomes by the content of a request
type scriptedValidator struct{}

func (scriptedValidator) Validate(name string, content []byte) (Outcome, error) {
	text := string(content)
	switch {
	case strings.HasPrefix(text, "panic"):
		panic("unexpected document")
	case strings.HasPrefix(text, "error"):
		return Outcome{File: name, Schema: "vendor/x.xsd"}, errors.New("failed to load schema")
	case strings.HasPrefix(text, "sleep"):
		time.Sleep(20 * time.Millisecond)
	}
	if strings.HasSuffix(text, "invalid") {
		return Outcome{File: name, Diagnostics: []Diagnostic{Failure(name, StageSchema, "Line 1: invalid")}}, nil
	}
	return Outcome{File: name, Valid: true}, nil
}

func TestRunnerSummary(t *testing.T) {
	tests := []struct {
		name     string
		contents []string
		want     BatchSummary
		exitCode int
	}{
		{name: "empty batch", want: BatchSummary{}, exitCode: 0},
		{name: "one valid", contents: []string{"ok"}, want: BatchSummary{Total: 1, Valid: 1}, exitCode: 0},
		{name: "one invalid", contents: []string{"invalid"}, want: BatchSummary{Total: 1, Valid: 0}, exitCode: 1},
		{name: "valid and invalid", contents: []string{"ok", "invalid"}, want: BatchSummary{Total: 2, Valid: 1}, exitCode: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests []Request
			for i, content := range tt.contents {
				requests = append(requests, Request{Name: fmt.Sprintf("%d.xml", i), Content: []byte(content)})
			}
			reporter := &recorder{}

			summary := NewRunner(scriptedValidator{}, reporter, 1, nil).Process(context.Background(), requests)
			assert.Equal(t, tt.want, summary)
			assert.Equal(t, tt.exitCode, summary.ExitCode())
			assert.LessOrEqual(t, summary.Valid, summary.Total)
			assert.Len(t, reporter.outcomes, len(tt.contents))
		})
	}
}

func TestRunnerIsolatesFailures(t *testing.T) {
	requests := []Request{
		{Name: "panics.xml", Content: []byte("panic")},
		{Name: "unloadable.xml", Content: []byte("error")},
		{Name: "unreadable.xml", Load: func() ([]byte, error) {
			return nil, errors.New("open unreadable.xml: permission denied")
		}},
		{Name: "loaded.xml", Load: func() ([]byte, error) { return []byte("ok"), nil }},
	}
	reporter := &recorder{}

	summary := NewRunner(scriptedValidator{}, reporter, 1, nil).Process(context.Background(), requests)
	assert.Equal(t, BatchSummary{Total: 4, Valid: 1}, summary)

	want := []Outcome{
		{File: "panics.xml", Diagnostics: []Diagnostic{
			Failure("panics.xml", StageRunner, "Could not process panics.xml. Error: unexpected document"),
		}},
		{File: "unloadable.xml", Schema: "vendor/x.xsd", Diagnostics: []Diagnostic{
			Failure("unloadable.xml", StageRunner, "Could not process unloadable.xml. Error: failed to load schema"),
		}},
		{File: "unreadable.xml", Diagnostics: []Diagnostic{
			Failure("unreadable.xml", StageRunner, "Could not process unreadable.xml. Error: open unreadable.xml: permission denied"),
		}},
		{File: "loaded.xml", Valid: true},
	}
	if diff := cmp.Diff(want, reporter.outcomes); diff != "" {
		t.Errorf("unexpected outcomes (-want +got):\n%s", diff)
	}
}

func TestRunnerConcurrentKeepsOrder(t *testing.T) {
	var requests []Request
	for i := 0; i < 24; i++ {
		content := "ok"
		switch i % 4 {
		case 0:
			content = "sleep"
		case 1:
			content = "invalid"
		case 2:
			content = "panic"
		}
		requests = append(requests, Request{Name: fmt.Sprintf("%02d.xml", i), Content: []byte(content)})
	}

	sequential := &recorder{}
	want := NewRunner(scriptedValidator{}, sequential, 1, nil).Process(context.Background(), requests)

	concurrent := &recorder{}
	got := NewRunner(scriptedValidator{}, concurrent, 8, nil).Process(context.Background(), requests)

	assert.Equal(t, want, got)
	assert.Equal(t, BatchSummary{Total: 24, Valid: 12}, got)
	require.Len(t, concurrent.outcomes, len(requests))
	assert.Equal(t, sequential.files(), concurrent.files())
	if diff := cmp.Diff(sequential.outcomes, concurrent.outcomes); diff != "" {
		t.Errorf("concurrent outcomes differ (-sequential +concurrent):\n%s", diff)
	}
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reporter := &recorder{}

	summary := NewRunner(scriptedValidator{}, reporter, 1, nil).Process(ctx, []Request{{Name: "a.xml", Content: []byte("ok")}})
	assert.Equal(t, BatchSummary{Total: 1, Valid: 0}, summary)
	require.Len(t, reporter.outcomes, 1)
	assert.Equal(t, "Could not process a.xml. Error: context canceled", reporter.outcomes[0].Diagnostics[0].Message)
}

func TestBatchSummaryAdd(t *testing.T) {
	sum := BatchSummary{Total: 2, Valid: 1}.Add(BatchSummary{Total: 3, Valid: 3})
	assert.Equal(t, BatchSummary{Total: 5, Valid: 4}, sum)
	assert.False(t, sum.Success())
	assert.True(t, BatchSummary{}.Success())
}
