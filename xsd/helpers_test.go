package xsd

import (
	"bytes"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/spf13/afero"
)

// loadFromMemory writes files into an in-memory filesystem and loads path
func loadFromMemory(files map[string]string, path string, resolver LocationResolver) (*Schema, error) {
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return NewLoader(fs, resolver, nil).Load(path)
}

// compileSchema loads /schemas/schema.xsd from files
func compileSchema(t *testing.T, files map[string]string) *Schema {
	t.Helper()
	schema, err := loadFromMemory(files, "/schemas/schema.xsd", nil)
	if err != nil {
		t.Fatalf("Failed to load schema: %v", err)
	}
	return schema
}

func mustSchema(t *testing.T, xsd string) *Schema {
	t.Helper()
	return compileSchema(t, map[string]string{"/schemas/schema.xsd": xsd})
}

func validateString(t *testing.T, schema *Schema, xml string) []Violation {
	t.Helper()
	doc, err := xmldom.Decode(bytes.NewReader([]byte(xml)))
	if err != nil {
		t.Fatalf("Failed to parse XML: %v", err)
	}
	return NewValidator(schema).Validate(doc)
}

func messages(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Message
	}
	return out
}

func assertMessages(t *testing.T, violations []Violation, want ...string) {
	t.Helper()
	got := messages(violations)
	if len(got) != len(want) {
		t.Fatalf("Expected %d violations %q, got %d: %q", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Violation %d:\n got: %s\nwant: %s", i, got[i], want[i])
		}
	}
}

const moduleSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="config">
        <xs:complexType>
            <xs:sequence>
                <xs:element name="module" type="moduleDeclaration"/>
            </xs:sequence>
        </xs:complexType>
    </xs:element>
    <xs:complexType name="moduleDeclaration">
        <xs:sequence>
            <xs:element name="sequence" minOccurs="0">
                <xs:complexType>
                    <xs:sequence>
                        <xs:element name="module" maxOccurs="unbounded">
                            <xs:complexType>
                                <xs:attribute name="name" type="xs:string" use="required"/>
                            </xs:complexType>
                        </xs:element>
                    </xs:sequence>
                </xs:complexType>
            </xs:element>
        </xs:sequence>
        <xs:attribute name="name" type="moduleName" use="required"/>
        <xs:attribute name="setup_version" type="xs:string"/>
    </xs:complexType>
    <xs:simpleType name="moduleName">
        <xs:restriction base="xs:string">
            <xs:pattern value="[A-Z][A-Za-z0-9]*_[A-Z][A-Za-z0-9]*"/>
        </xs:restriction>
    </xs:simpleType>
</xs:schema>`
