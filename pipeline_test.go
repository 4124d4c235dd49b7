package xmlvalidate

import (
	"testing"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/go-xmlvalidate/xsd"
)

const moduleSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="config">
        <xs:complexType>
            <xs:sequence>
                <xs:element name="module">
                    <xs:complexType>
                        <xs:attribute name="name" type="xs:string" use="required"/>
                    </xs:complexType>
                </xs:element>
            </xs:sequence>
        </xs:complexType>
    </xs:element>
</xs:schema>`

const (
	moduleURN = "urn:magento:framework:Module/etc/module.xsd"

	validModule = `<?xml version="1.0"?>
<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="urn:magento:framework:Module/etc/module.xsd">
    <module name="Vendor_A"/>
</config>
`
	invalidModule = `<?xml version="1.0"?>
<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="urn:magento:framework:Module/etc/module.xsd">
    <module name="Vendor_A"/>
    <module name="Vendor_B"/>
</config>
`
)

// mapLocator resolves identifiers from a fixed table and counts lookups
type mapLocator struct {
	paths map[string]string
	calls int
}

func (m *mapLocator) Resolve(identifier string) (string, error) {
	m.calls++
	if path, ok := m.paths[identifier]; ok {
		return path, nil
	}
	return "", errors.Errorf("unable to resolve %s", identifier)
}

func (m *mapLocator) Rel(path string) string {
	return path[1:]
}

// countingValidator records calls and delegates to next
type countingValidator struct {
	next  SchemaValidator
	calls int
}

func (c *countingValidator) Validate(doc xmldom.Document, schemaPath string) ([]Problem, error) {
	c.calls++
	return c.next.Validate(doc, schemaPath)
}

type fixture struct {
	locator   *mapLocator
	validator *countingValidator
}

func newPipeline(t *testing.T, opts ...PipelineOption) (*Pipeline, *fixture) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/vendor/magento/framework/Module/etc/module.xsd", []byte(moduleSchema), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/vendor/broken.xsd", []byte("<xs:schema"), 0o644))

	f := &fixture{
		locator: &mapLocator{paths: map[string]string{
			moduleURN:            "/vendor/magento/framework/Module/etc/module.xsd",
			"urn:broken:x:b.xsd": "/vendor/broken.xsd",
		}},
		validator: &countingValidator{next: NewXSDValidator(xsd.NewCache(xsd.NewLoader(fs, nil, nil), 0, nil))},
	}
	return NewPipeline(TolerantParser{}, f.locator, f.validator, opts...), f
}

func TestPipelineValidDocument(t *testing.T) {
	p, _ := newPipeline(t)

	out, err := p.Validate("app/etc/module.xml", []byte(validModule))
	require.NoError(t, err)
	assert.True(t, out.Valid)
	assert.Empty(t, out.Diagnostics)
	assert.Equal(t, "vendor/magento/framework/Module/etc/module.xsd", out.Schema)
	assert.Equal(t, StatusOK, out.Status())
}

func TestPipelineSchemaViolation(t *testing.T) {
	p, _ := newPipeline(t)

	out, err := p.Validate("app/etc/module.xml", []byte(invalidModule))
	require.NoError(t, err)
	assert.False(t, out.Valid)
	assert.Equal(t, StatusError, out.Status())
	assert.Equal(t, []Diagnostic{{
		File:     "app/etc/module.xml",
		Line:     4,
		Message:  "Line 4: Element 'module': This element is not expected.",
		Severity: SeverityError,
		Stage:    StageSchema,
	}}, out.Diagnostics)
}

func TestPipelineMalformedDocument(t *testing.T) {
	p, f := newPipeline(t)

	out, err := p.Validate("bad.xml", []byte("<config xsi:noNamespaceSchemaLocation=\"urn:magento:framework:Module/etc/module.xsd\">\n<module>\n</config>"))
	require.NoError(t, err)
	assert.False(t, out.Valid)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, 3, out.Diagnostics[0].Line)
	assert.Equal(t, StageParse, out.Diagnostics[0].Stage)
	assert.Zero(t, f.locator.calls)
	assert.Zero(t, f.validator.calls)

	// without a declaration only the parse error is reported
	out, err = p.Validate("bad.xml", []byte("<config>"))
	require.NoError(t, err)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, SeverityError, out.Diagnostics[0].Severity)

	// one diagnostic per well-formedness error
	out, err = p.Validate("entities.xml", []byte("<config xsi:noNamespaceSchemaLocation=\"urn:magento:framework:Module/etc/module.xsd\">&foo;\n&bar;\n</config>"))
	require.NoError(t, err)
	assert.False(t, out.Valid)
	require.Len(t, out.Diagnostics, 2)
	assert.Equal(t, "Line 1: Entity 'foo' not defined", out.Diagnostics[0].Message)
	assert.Equal(t, "Line 2: Entity 'bar' not defined", out.Diagnostics[1].Message)
	assert.Zero(t, f.locator.calls)
	assert.Zero(t, f.validator.calls)
}

func TestPipelineUndeclaredSchema(t *testing.T) {
	tests := []struct {
		name      string
		opts      []PipelineOption
		wantValid bool
		wantSev   Severity
	}{
		{name: "warning by default", wantValid: true, wantSev: SeverityWarning},
		{name: "required", opts: []PipelineOption{WithRequireSchema(true)}, wantValid: false, wantSev: SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := newPipeline(t, tt.opts...)

			out, err := p.Validate("etc/config.xml", []byte("<config><default/></config>"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, out.Valid)
			require.Len(t, out.Diagnostics, 1)
			assert.Equal(t, Diagnostic{
				File:     "etc/config.xml",
				Message:  `XML file "etc/config.xml" does not have a schema defined`,
				Severity: tt.wantSev,
				Stage:    StageExtract,
			}, out.Diagnostics[0])
			assert.Zero(t, f.locator.calls)
			assert.Zero(t, f.validator.calls)
		})
	}
}

func TestPipelineSchemaFailures(t *testing.T) {
	p, _ := newPipeline(t)

	_, err := p.Validate("a.xml", []byte(`<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="urn:unknown:x:y.xsd"/>`))
	assert.EqualError(t, err, "unable to resolve urn:unknown:x:y.xsd")

	out, err := p.Validate("b.xml", []byte(`<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="urn:broken:x:b.xsd"/>`))
	require.Error(t, err)
	var loadErr *xsd.LoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "vendor/broken.xsd", out.Schema)
}

func TestPipelineIsIdempotent(t *testing.T) {
	p, _ := newPipeline(t)
	inputs := []string{validModule, invalidModule, "<config>\n<module>", validModule, invalidModule}

	first := make([]Outcome, len(inputs))
	for i, input := range inputs {
		out, err := p.Validate("module.xml", []byte(input))
		require.NoError(t, err)
		first[i] = out
	}
	for i, input := range inputs {
		out, err := p.Validate("module.xml", []byte(input))
		require.NoError(t, err)
		if diff := cmp.Diff(first[i], out); diff != "" {
			t.Errorf("outcome %d changed on the second run (-first +second):\n%s", i, diff)
		}
	}
	if diff := cmp.Diff(first[0], first[3]); diff != "" {
		t.Errorf("a malformed document changed the next outcome (-want +got):\n%s", diff)
	}
}
