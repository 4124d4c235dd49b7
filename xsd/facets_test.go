package xsd

import (
	"testing"
)

func TestSimpleTypeFacets(t *testing.T) {
	schema := mustSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:simpleType name="color">
        <xs:restriction base="xs:string">
            <xs:enumeration value="red"/>
            <xs:enumeration value="green"/>
        </xs:restriction>
    </xs:simpleType>
    <xs:simpleType name="percent">
        <xs:restriction base="xs:decimal">
            <xs:minInclusive value="0"/>
            <xs:maxExclusive value="100"/>
            <xs:fractionDigits value="1"/>
        </xs:restriction>
    </xs:simpleType>
    <xs:simpleType name="code">
        <xs:restriction base="xs:token">
            <xs:minLength value="2"/>
            <xs:maxLength value="4"/>
        </xs:restriction>
    </xs:simpleType>
    <xs:simpleType name="codes">
        <xs:list itemType="code"/>
    </xs:simpleType>
    <xs:simpleType name="shortCodes">
        <xs:restriction base="codes">
            <xs:length value="2"/>
        </xs:restriction>
    </xs:simpleType>
    <xs:simpleType name="sizeOrAuto">
        <xs:union memberTypes="xs:nonNegativeInteger">
            <xs:simpleType>
                <xs:restriction base="xs:string">
                    <xs:enumeration value="auto"/>
                </xs:restriction>
            </xs:simpleType>
        </xs:union>
    </xs:simpleType>
    <xs:simpleType name="identifier">
        <xs:restriction base="xs:string">
            <xs:pattern value="\i\c*"/>
        </xs:restriction>
    </xs:simpleType>
</xs:schema>`)

	lookup := func(name string) *SimpleType {
		st, ok := schema.simpleTypeNamed(QName{Local: name})
		if !ok {
			t.Fatalf("Type %s not found", name)
		}
		return st
	}

	tests := []struct {
		typeName string
		value    string
		want     []string
	}{
		{typeName: "color", value: "red"},
		{typeName: "color", value: "blue", want: []string{
			"[facet 'enumeration'] The value 'blue' is not an element of the set {'red', 'green'}.",
			"'blue' is not a valid value of the atomic type 'color'.",
		}},
		{typeName: "percent", value: "99.5"},
		{typeName: "percent", value: "100", want: []string{
			"[facet 'maxExclusive'] The value '100' must be less than '100'.",
			"'100' is not a valid value of the atomic type 'percent'.",
		}},
		{typeName: "percent", value: "-1", want: []string{
			"[facet 'minInclusive'] The value '-1' is less than the minimum value allowed ('0').",
			"'-1' is not a valid value of the atomic type 'percent'.",
		}},
		{typeName: "percent", value: "1.25", want: []string{
			"[facet 'fractionDigits'] The value '1.25' has more fractional digits than are allowed ('1').",
			"'1.25' is not a valid value of the atomic type 'percent'.",
		}},
		{typeName: "percent", value: "ten", want: []string{
			"'ten' is not a valid value of the atomic type 'percent'.",
		}},
		{typeName: "code", value: "  AB  "},
		{typeName: "code", value: "ABCDE", want: []string{
			"[facet 'maxLength'] The value 'ABCDE' has a length of '5'; this exceeds the allowed maximum length of '4'.",
			"'ABCDE' is not a valid value of the atomic type 'code'.",
		}},
		{typeName: "codes", value: "AB CD EF"},
		{typeName: "codes", value: "AB C", want: []string{
			"'AB C' is not a valid value of the list type 'codes'.",
		}},
		{typeName: "shortCodes", value: "AB CD"},
		{typeName: "shortCodes", value: "AB", want: []string{
			"[facet 'length'] The value 'AB' has a length of '1'; this differs from the allowed length of '2'.",
			"'AB' is not a valid value of the list type 'shortCodes'.",
		}},
		{typeName: "sizeOrAuto", value: "12"},
		{typeName: "sizeOrAuto", value: "auto"},
		{typeName: "sizeOrAuto", value: "-3", want: []string{
			"'-3' is not a valid value of the union type 'sizeOrAuto'.",
		}},
		{typeName: "identifier", value: "item-1"},
		{typeName: "identifier", value: "1item", want: []string{
			"[facet 'pattern'] The value '1item' is not accepted by the pattern '\\i\\c*'.",
			"'1item' is not a valid value of the atomic type 'identifier'.",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.typeName+"/"+tt.value, func(t *testing.T) {
			got := validateValue(tt.value, lookup(tt.typeName))
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %q, got %q", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Message %d:\n got: %s\nwant: %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuiltinTypes(t *testing.T) {
	tests := []struct {
		typeName string
		value    string
		valid    bool
	}{
		{"boolean", "true", true},
		{"boolean", "yes", false},
		{"int", "2147483647", true},
		{"int", "2147483648", false},
		{"unsignedByte", "255", true},
		{"unsignedByte", "-1", false},
		{"decimal", "-.5", true},
		{"decimal", "1e3", false},
		{"double", "1.5E-3", true},
		{"double", "INF", true},
		{"float", "abc", false},
		{"date", "2024-02-10", true},
		{"date", "2024-13-01", false},
		{"dateTime", "2024-02-10T10:00:00Z", true},
		{"dateTime", "2024-02-10 10:00:00", false},
		{"time", "24:00:00", true},
		{"duration", "P1Y2M3DT4H5M6S", true},
		{"duration", "P", false},
		{"duration", "PT", false},
		{"gYear", "2024", true},
		{"hexBinary", "0fA9", true},
		{"hexBinary", "0fA", false},
		{"base64Binary", "aGVsbG8=", true},
		{"language", "en-US", true},
		{"NCName", "a:b", false},
		{"QName", "xs:string", true},
		{"NMTOKENS", "a b c", true},
		{"anyURI", "urn:magento:framework:Module/etc/module.xsd", true},
	}

	for _, tt := range tests {
		t.Run(tt.typeName+"/"+tt.value, func(t *testing.T) {
			got := len(validateValue(tt.value, builtinType(tt.typeName))) == 0
			if got != tt.valid {
				t.Errorf("validateValue(%q, %s) valid = %v, want %v", tt.value, tt.typeName, got, tt.valid)
			}
		})
	}
}

func TestInvalidPatternIsLoadError(t *testing.T) {
	fsSchema := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
    <xs:simpleType name="broken">
        <xs:restriction base="xs:string">
            <xs:pattern value="[a-"/>
        </xs:restriction>
    </xs:simpleType>
</xs:schema>`
	_, err := loadFromMemory(map[string]string{"/schemas/schema.xsd": fsSchema}, "/schemas/schema.xsd", nil)
	if err == nil {
		t.Fatal("Expected an error for an invalid pattern")
	}
	if _, ok := err.(*LoadError); !ok {
		t.Errorf("Expected *LoadError, got %T", err)
	}
}
