package xsd

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

// Facet is a constraining facet of a simple type restriction
type Facet interface {
	Name() string
	// check returns the libxml2 style facet message when value violates the facet
	check(value string, st *SimpleType) (string, bool)
}

type enumerationFacet struct {
	values []string
}

func (f *enumerationFacet) Name() string { return "enumeration" }

func (f *enumerationFacet) check(value string, _ *SimpleType) (string, bool) {
	for _, allowed := range f.values {
		if allowed == value {
			return "", true
		}
	}
	quoted := make([]string, len(f.values))
	for i, v := range f.values {
		quoted[i] = "'" + v + "'"
	}
	return fmt.Sprintf("[facet 'enumeration'] The value '%s' is not an element of the set {%s}.",
		value, strings.Join(quoted, ", ")), false
}

// patternFacet holds all xs:pattern children of one restriction step; they
// are alternatives of each other
type patternFacet struct {
	patterns []string
	re       *regexp.Regexp
}

func newPatternFacet(patterns []string) (*patternFacet, error) {
	alternatives := make([]string, len(patterns))
	for i, p := range patterns {
		alternatives[i] = translateXSDRegex(p)
	}
	re, err := regexp.Compile(`^(?:` + strings.Join(alternatives, `|`) + `)$`)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern facet %q", strings.Join(patterns, "|"))
	}
	return &patternFacet{patterns: patterns, re: re}, nil
}

func (f *patternFacet) Name() string { return "pattern" }

func (f *patternFacet) check(value string, _ *SimpleType) (string, bool) {
	if f.re.MatchString(value) {
		return "", true
	}
	return fmt.Sprintf("[facet 'pattern'] The value '%s' is not accepted by the pattern '%s'.",
		value, strings.Join(f.patterns, "|")), false
}

// translateXSDRegex rewrites the XSD-only escapes into RE2 syntax
func translateXSDRegex(pattern string) string {
	replacer := strings.NewReplacer(
		`\i`, `[_:\p{L}]`,
		`\I`, `[^_:\p{L}]`,
		`\c`, `[-._:\p{L}\p{N}]`,
		`\C`, `[^-._:\p{L}\p{N}]`,
	)
	return replacer.Replace(pattern)
}

type lengthFacet struct {
	kind  string // length, minLength or maxLength
	limit int
}

func (f *lengthFacet) Name() string { return f.kind }

func (f *lengthFacet) check(value string, st *SimpleType) (string, bool) {
	n := valueLength(value, st)
	switch f.kind {
	case "length":
		if n != f.limit {
			return fmt.Sprintf("[facet 'length'] The value '%s' has a length of '%d'; this differs from the allowed length of '%d'.",
				value, n, f.limit), false
		}
	case "minLength":
		if n < f.limit {
			return fmt.Sprintf("[facet 'minLength'] The value '%s' has a length of '%d'; this underruns the allowed minimum length of '%d'.",
				value, n, f.limit), false
		}
	case "maxLength":
		if n > f.limit {
			return fmt.Sprintf("[facet 'maxLength'] The value '%s' has a length of '%d'; this exceeds the allowed maximum length of '%d'.",
				value, n, f.limit), false
		}
	}
	return "", true
}

// valueLength measures a value in the units of its type: items for lists,
// octets for binary types, characters otherwise
func valueLength(value string, st *SimpleType) int {
	if st.effectiveVariety() == ListVariety {
		return len(strings.Fields(value))
	}
	switch st.primitive() {
	case "hexBinary":
		return len(value) / 2
	case "base64Binary":
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(value), ""))
		if err != nil {
			return 0
		}
		return len(decoded)
	}
	return utf8.RuneCountInString(value)
}

type boundFacet struct {
	kind  string // minInclusive, maxInclusive, minExclusive or maxExclusive
	limit string
}

func (f *boundFacet) Name() string { return f.kind }

func (f *boundFacet) check(value string, st *SimpleType) (string, bool) {
	cmp, ok := compareValues(value, f.limit, st)
	if !ok {
		return "", true
	}
	switch f.kind {
	case "minInclusive":
		if cmp < 0 {
			return fmt.Sprintf("[facet 'minInclusive'] The value '%s' is less than the minimum value allowed ('%s').", value, f.limit), false
		}
	case "maxInclusive":
		if cmp > 0 {
			return fmt.Sprintf("[facet 'maxInclusive'] The value '%s' is greater than the maximum value allowed ('%s').", value, f.limit), false
		}
	case "minExclusive":
		if cmp <= 0 {
			return fmt.Sprintf("[facet 'minExclusive'] The value '%s' must be greater than '%s'.", value, f.limit), false
		}
	case "maxExclusive":
		if cmp >= 0 {
			return fmt.Sprintf("[facet 'maxExclusive'] The value '%s' must be less than '%s'.", value, f.limit), false
		}
	}
	return "", true
}

// compareValues orders two values in the value space of st; ok is false when
// either value cannot be interpreted
func compareValues(a, b string, st *SimpleType) (int, bool) {
	switch datatypes[st.primitive()].family {
	case decimalFamily:
		x, okA := new(big.Rat).SetString(strings.TrimPrefix(a, "+"))
		y, okB := new(big.Rat).SetString(strings.TrimPrefix(b, "+"))
		if !okA || !okB {
			return 0, false
		}
		return x.Cmp(y), true
	case floatFamily:
		x, errA := strconv.ParseFloat(normalizeInf(a), 64)
		y, errB := strconv.ParseFloat(normalizeInf(b), 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case temporalFamily:
		// lexical order matches value order for values in the same timezone form
		return strings.Compare(a, b), true
	}
	return 0, false
}

func normalizeInf(v string) string {
	switch v {
	case "INF", "+INF":
		return "+Inf"
	case "-INF":
		return "-Inf"
	}
	return v
}

type digitsFacet struct {
	kind  string // totalDigits or fractionDigits
	limit int
}

func (f *digitsFacet) Name() string { return f.kind }

func (f *digitsFacet) check(value string, _ *SimpleType) (string, bool) {
	intPart, fracPart, _ := strings.Cut(strings.TrimLeft(value, "+-"), ".")
	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")

	switch f.kind {
	case "totalDigits":
		if len(intPart)+len(fracPart) > f.limit {
			return fmt.Sprintf("[facet 'totalDigits'] The value '%s' has more digits than are allowed ('%d').", value, f.limit), false
		}
	case "fractionDigits":
		if len(fracPart) > f.limit {
			return fmt.Sprintf("[facet 'fractionDigits'] The value '%s' has more fractional digits than are allowed ('%d').", value, f.limit), false
		}
	}
	return "", true
}

// whiteSpaceFacet only changes normalization, it never rejects a value
type whiteSpaceFacet struct {
	mode string
}

func (f *whiteSpaceFacet) Name() string { return "whiteSpace" }

func (f *whiteSpaceFacet) check(string, *SimpleType) (string, bool) { return "", true }

// parseFacet builds a single-valued facet from its schema element
func parseFacet(name, value string) (Facet, error) {
	switch name {
	case "length", "minLength", "maxLength", "totalDigits", "fractionDigits":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, errors.Errorf("facet '%s': '%s' is not a non-negative integer", name, value)
		}
		if name == "totalDigits" || name == "fractionDigits" {
			return &digitsFacet{kind: name, limit: n}, nil
		}
		return &lengthFacet{kind: name, limit: n}, nil
	case "minInclusive", "maxInclusive", "minExclusive", "maxExclusive":
		return &boundFacet{kind: name, limit: strings.TrimSpace(value)}, nil
	case "whiteSpace":
		switch value {
		case preserveSpace, replaceSpace, collapseSpace:
			return &whiteSpaceFacet{mode: value}, nil
		}
		return nil, errors.Errorf("facet 'whiteSpace': '%s' is not a valid value", value)
	}
	return nil, nil
}
