package xmlvalidate

import (
	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/go-xmlvalidate/xsd"
)

// XSDValidator validates documents with the xsd engine, compiling each
// schema once through a cache
type XSDValidator struct {
	cache *xsd.Cache
}

// NewXSDValidator creates a validator backed by cache
func NewXSDValidator(cache *xsd.Cache) *XSDValidator {
	return &XSDValidator{cache: cache}
}

// Validate implements SchemaValidator. Load failures are *xsd.LoadError.
func (v *XSDValidator) Validate(doc xmldom.Document, schemaPath string) ([]Problem, error) {
	schema, err := v.cache.Get(schemaPath)
	if err != nil {
		return nil, err
	}
	violations := xsd.NewValidator(schema).Validate(doc)
	problems := make([]Problem, 0, len(violations))
	for _, violation := range violations {
		problems = append(problems, Problem{Line: violation.Line, Message: violation.Message})
	}
	return problems, nil
}
