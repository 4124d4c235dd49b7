package xsd

import (
	"bytes"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
)

func TestPrefixedSchemaLoads(t *testing.T) {
	schema := mustSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="a" type="xs:string"/>
</xs:schema>`)

	decl, ok := schema.ElementDecls[QName{Local: "a"}]
	if !ok {
		t.Fatalf("Element 'a' is not declared")
	}
	if want := (QName{Namespace: XSDNamespace, Local: "string"}); decl.TypeName != want {
		t.Errorf("Expected type %v, got %v", want, decl.TypeName)
	}
	assertMessages(t, validateString(t, schema, `<a>text</a>`))
}

func TestTargetNamespacePrefix(t *testing.T) {
	schema := mustSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    xmlns:tns="urn:acme:catalog" targetNamespace="urn:acme:catalog" elementFormDefault="qualified">
    <xs:element name="catalog" type="tns:catalogType"/>
    <xs:complexType name="catalogType">
        <xs:sequence>
            <xs:element name="item" type="xs:int" maxOccurs="unbounded"/>
        </xs:sequence>
    </xs:complexType>
</xs:schema>`)

	assertMessages(t, validateString(t, schema, `<c:catalog xmlns:c="urn:acme:catalog"><c:item>1</c:item><c:item>2</c:item></c:catalog>`))
	assertMessages(t, validateString(t, schema, `<catalog xmlns="urn:acme:catalog"><item>x</item></catalog>`),
		"Element '{urn:acme:catalog}item': 'x' is not a valid value of the atomic type 'xs:int'.")
}

func TestNamespaceDeclarationsAreNotAttributes(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{
			name: "prefixed schema",
			schema: `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="config"><xs:complexType/></xs:element>
</xs:schema>`,
		},
		{
			name: "default namespace schema",
			schema: `<schema xmlns="http://www.w3.org/2001/XMLSchema">
    <element name="config"><complexType/></element>
</schema>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := mustSchema(t, tt.schema)
			assertMessages(t, validateString(t, schema, `<config xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:extra="urn:extra" xsi:noNamespaceSchemaLocation="urn:magento:framework:Module/etc/module.xsd"/>`))
		})
	}
}

func TestInScopeNamespaces(t *testing.T) {
	doc, err := xmldom.Decode(bytes.NewReader([]byte(`<root xmlns="urn:default" xmlns:a="urn:a">
    <child xmlns:a="urn:inner" xmlns:b="urn:b"/>
</root>`)))
	if err != nil {
		t.Fatalf("Failed to parse XML: %v", err)
	}
	child := doc.DocumentElement().Children().Item(0)

	got := inScopeNamespaces(child)
	want := map[string]string{
		"xml": XMLNamespace,
		"":    "urn:default",
		"a":   "urn:inner",
		"b":   "urn:b",
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for prefix, ns := range want {
		if got[prefix] != ns {
			t.Errorf("Prefix %q: expected %q, got %q", prefix, ns, got[prefix])
		}
		if resolved, ok := lookupNamespace(child, prefix); !ok || resolved != ns {
			t.Errorf("lookupNamespace(%q) = %q, %v; expected %q", prefix, resolved, ok, ns)
		}
	}
	if _, ok := lookupNamespace(child, "c"); ok {
		t.Errorf("Prefix 'c' should not be bound")
	}
}
