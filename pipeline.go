// Package xmlvalidate validates XML documents against the schemas they
// declare and aggregates the results of a batch of files.
package xmlvalidate

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Locator maps schema identifiers to schema files
type Locator interface {
	Resolve(identifier string) (string, error)
	// Rel renders a resolved path for output, relative to the project root
	Rel(path string) string
}

// SchemaValidator validates a parsed document against the schema file at
// schemaPath. A schema that cannot be loaded is an error; violations are
// problems.
type SchemaValidator interface {
	Validate(doc xmldom.Document, schemaPath string) ([]Problem, error)
}

// Status summarizes an outcome for reporters
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

// Outcome is the result of validating one file
type Outcome struct {
	File string
	// Schema is the project relative schema path, empty when none was
	// resolved
	Schema      string
	Valid       bool
	Diagnostics []Diagnostic
}

// Status returns StatusError when any diagnostic is an error,
// StatusWarning when there are only warnings and StatusOK otherwise
func (o Outcome) Status() Status {
	status := StatusOK
	for _, d := range o.Diagnostics {
		if d.Severity == SeverityError {
			return StatusError
		}
		status = StatusWarning
	}
	return status
}

// Pipeline validates single documents. It is safe for concurrent use when
// its parser, locator and validator are.
type Pipeline struct {
	parser        Parser
	locator       Locator
	validator     SchemaValidator
	requireSchema bool
	logger        log.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithRequireSchema makes documents without a schema declaration invalid.
// By default they are reported with a warning and count as valid.
func WithRequireSchema(require bool) PipelineOption {
	return func(p *Pipeline) { p.requireSchema = require }
}

// WithLogger sets the logger for debug output
func WithLogger(logger log.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a pipeline from its stages
func NewPipeline(parser Parser, locator Locator, validator SchemaValidator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		parser:    parser,
		locator:   locator,
		validator: validator,
		logger:    log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs one document through the pipeline. Parse errors end the
// run for a document, so its schema declaration only matters once it is
// well-formed. A missing declaration and schema violations are reported in
// the outcome. The returned error is set when the schema cannot be resolved
// or loaded; the outcome then holds what was known before the failure.
func (p *Pipeline) Validate(name string, content []byte) (Outcome, error) {
	out := Outcome{File: name}
	identifier, declared := ExtractSchemaIdentifier(content)

	doc, problems := p.parser.Parse(content)
	if len(problems) > 0 || doc == nil {
		out.Diagnostics = Normalize(name, StageParse, problems)
		if len(out.Diagnostics) == 0 {
			out.Diagnostics = append(out.Diagnostics, Failure(name, StageParse, "Document could not be parsed"))
		}
		return out, nil
	}

	if !declared {
		out.Diagnostics = []Diagnostic{p.undeclared(name)}
		out.Valid = !p.requireSchema
		return out, nil
	}

	schemaPath, err := p.locator.Resolve(identifier)
	if err != nil {
		return out, err
	}
	out.Schema = p.locator.Rel(schemaPath)
	level.Debug(p.logger).Log("msg", "validating", "file", name, "schema", identifier, "path", schemaPath)

	problems, err = p.validator.Validate(doc, schemaPath)
	if err != nil {
		return out, err
	}
	out.Diagnostics = Normalize(name, StageSchema, problems)
	out.Valid = len(out.Diagnostics) == 0
	return out, nil
}

func (p *Pipeline) undeclared(name string) Diagnostic {
	d := Warning(name, StageExtract, fmt.Sprintf(`XML file "%s" does not have a schema defined`, name))
	if p.requireSchema {
		d.Severity = SeverityError
	}
	return d
}
