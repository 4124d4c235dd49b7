// Package report renders validation outcomes for people and for CI
// runners.
package report

import (
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The keys double as the English text.
const (
	msgTitle      = "XML Schema Validator"
	msgValidating = "Validating %s against %s..."
	msgValid      = "XML is valid."
	msgInvalid    = "Invalid XML. Errors:"
	msgExcluded   = "File \"%s\" is not a schema-bearing document."
	msgSummary    = "%d of %d files are valid"
)

// NewPrinter returns the printer for the command texts in the language
// closest to tag. Only English is bundled.
func NewPrinter(tag language.Tag) *message.Printer {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, key := range []string{msgTitle, msgValidating, msgValid, msgInvalid, msgExcluded} {
		_ = b.SetString(language.English, key, key)
	}
	_ = b.Set(language.English, msgSummary, plural.Selectf(2, "%d",
		"=1", "%[1]d of %[2]d file is valid",
		plural.Other, "%[1]d of %[2]d files are valid",
	))
	return message.NewPrinter(tag, message.Catalog(b))
}
