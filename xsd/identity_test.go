package xsd

import (
	"testing"
)

const catalogSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:element name="catalog">
        <xs:complexType>
            <xs:sequence>
                <xs:element name="product" maxOccurs="unbounded">
                    <xs:complexType>
                        <xs:sequence>
                            <xs:element name="sku" type="xs:string" minOccurs="0"/>
                        </xs:sequence>
                        <xs:attribute name="id" type="xs:string"/>
                        <xs:attribute name="name" type="xs:string"/>
                    </xs:complexType>
                </xs:element>
                <xs:element name="link" minOccurs="0" maxOccurs="unbounded">
                    <xs:complexType>
                        <xs:attribute name="product" type="xs:string" use="required"/>
                    </xs:complexType>
                </xs:element>
            </xs:sequence>
        </xs:complexType>
        <xs:key name="productKey">
            <xs:selector xpath="product"/>
            <xs:field xpath="@id"/>
        </xs:key>
        <xs:unique name="productName">
            <xs:selector xpath=".//product"/>
            <xs:field xpath="@name"/>
        </xs:unique>
        <xs:keyref name="linkRef" refer="productKey">
            <xs:selector xpath="link"/>
            <xs:field xpath="@product"/>
        </xs:keyref>
    </xs:element>
</xs:schema>`

func TestIdentityConstraints(t *testing.T) {
	schema := mustSchema(t, catalogSchema)

	tests := []struct {
		name string
		xml  string
		want []string
	}{
		{
			name: "valid",
			xml:  `<catalog><product id="a" name="A"/><product id="b"/><product id="c"/><link product="b"/></catalog>`,
		},
		{
			name: "duplicate key",
			xml:  `<catalog><product id="a"/><product id="a"/></catalog>`,
			want: []string{"Element 'product': Duplicate key-sequence ['a'] in key identity-constraint 'productKey'."},
		},
		{
			name: "missing key field",
			xml:  `<catalog><product/></catalog>`,
			want: []string{"Element 'product': Not all fields of key identity-constraint 'productKey' evaluate to a node."},
		},
		{
			name: "duplicate unique",
			xml:  `<catalog><product id="a" name="X"/><product id="b" name="X"/></catalog>`,
			want: []string{"Element 'product': Duplicate key-sequence ['X'] in unique identity-constraint 'productName'."},
		},
		{
			name: "dangling keyref",
			xml:  `<catalog><product id="a"/><link product="z"/></catalog>`,
			want: []string{"Element 'link': No match found for key-sequence ['z'] of keyref 'linkRef'."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMessages(t, validateString(t, schema, tt.xml), tt.want...)
		})
	}
}

func TestCompileXPath(t *testing.T) {
	namespaces := map[string]string{"m": "urn:m"}

	tests := []struct {
		xpath   string
		field   bool
		wantErr bool
	}{
		{xpath: "product", field: false},
		{xpath: ".//m:item | entry", field: false},
		{xpath: "child::m:*", field: false},
		{xpath: "@id", field: true},
		{xpath: "sku/@code", field: true},
		{xpath: "@id", field: false, wantErr: true},
		{xpath: "@id/sku", field: true, wantErr: true},
		{xpath: "x:item", field: false, wantErr: true},
		{xpath: "a||b", field: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.xpath, func(t *testing.T) {
			_, err := compileXPath(tt.xpath, namespaces, tt.field)
			if (err != nil) != tt.wantErr {
				t.Errorf("compileXPath(%q) error = %v, wantErr %v", tt.xpath, err, tt.wantErr)
			}
		})
	}
}
