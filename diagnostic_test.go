package xmlvalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		problem Problem
		want    Diagnostic
	}{
		{
			name:    "plain message",
			problem: Problem{Line: 4, Message: "Element 'module': This element is not expected."},
			want: Diagnostic{File: "etc/module.xml", Line: 4, Severity: SeverityError, Stage: StageSchema,
				Message: "Line 4: Element 'module': This element is not expected."},
		},
		{
			name:    "trailing newline",
			problem: Problem{Line: 2, Message: "Opening and ending tag mismatch\n"},
			want: Diagnostic{File: "etc/module.xml", Line: 2, Severity: SeverityError, Stage: StageSchema,
				Message: "Line 2: Opening and ending tag mismatch"},
		},
		{
			name:    "prefix already present",
			problem: Problem{Line: 7, Message: "Line 7: Line 7: duplicated\r\n"},
			want: Diagnostic{File: "etc/module.xml", Line: 7, Severity: SeverityError, Stage: StageSchema,
				Message: "Line 7: duplicated"},
		},
		{
			name:    "no line",
			problem: Problem{Line: -1, Message: "file level"},
			want: Diagnostic{File: "etc/module.xml", Line: 0, Severity: SeverityError, Stage: StageSchema,
				Message: "Line 0: file level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("etc/module.xml", StageSchema, []Problem{tt.problem})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestNormalizeKeepsOrder(t *testing.T) {
	got := Normalize("a.xml", StageParse, []Problem{{Line: 3, Message: "b"}, {Line: 1, Message: "a"}})
	require.Len(t, got, 2)
	assert.Equal(t, "Line 3: b", got[0].Message)
	assert.Equal(t, "Line 1: a", got[1].Message)
	assert.Empty(t, Normalize("a.xml", StageParse, nil))
}

func TestAnnotation(t *testing.T) {
	tests := []struct {
		name string
		diag Diagnostic
		want string
	}{
		{
			name: "schema violation is terminated",
			diag: Normalize("m.xml", StageSchema, []Problem{{Line: 4, Message: "Element 'module': This element is not expected."}})[0],
			want: "Element 'module': This element is not expected.%0A",
		},
		{
			name: "parse error",
			diag: Normalize("m.xml", StageParse, []Problem{{Line: 2, Message: "unexpected EOF"}})[0],
			want: "unexpected EOF",
		},
		{
			name: "embedded newlines",
			diag: Failure("m.xml", StageRunner, "Could not process m.xml. Error: first\nsecond\r\nthird"),
			want: "Could not process m.xml. Error: first%0Asecond%0Athird",
		},
		{
			name: "warning",
			diag: Warning("m.xml", StageExtract, `XML file "m.xml" does not have a schema defined`),
			want: `XML file "m.xml" does not have a schema defined`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.diag.Annotation())
		})
	}
}
