package xmlvalidate

import (
	"github.com/grafana/regexp"
)

var schemaLocation = regexp.MustCompile(`(?s)xsi:noNamespaceSchemaLocation\s*=\s*"(urn:[^"]+)"`)

// ExtractSchemaIdentifier scans raw document text for the first
// xsi:noNamespaceSchemaLocation attribute holding a urn: identifier. It
// works on the bytes as written, so it also finds declarations in documents
// that fail to parse.
func ExtractSchemaIdentifier(content []byte) (string, bool) {
	m := schemaLocation.FindSubmatch(content)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
