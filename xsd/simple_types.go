package xsd

import (
	"fmt"
	"strings"
)

// effectiveVariety follows the restriction chain, a restriction of a list
// type is itself a list type
func (st *SimpleType) effectiveVariety() Variety {
	for cur := st; cur != nil; cur = cur.Base {
		if cur.builtin != "" {
			return AtomicVariety
		}
		if cur.Variety != AtomicVariety {
			return cur.Variety
		}
	}
	return AtomicVariety
}

// primitive returns the nearest built-in ancestor, empty for lists and unions
func (st *SimpleType) primitive() string {
	for cur := st; cur != nil; cur = cur.Base {
		if cur.builtin != "" {
			return cur.builtin
		}
		if cur.Variety != AtomicVariety {
			return ""
		}
	}
	return ""
}

func (st *SimpleType) itemType() *SimpleType {
	for cur := st; cur != nil; cur = cur.Base {
		if cur.Item != nil {
			return cur.Item
		}
	}
	return builtinType("anySimpleType")
}

func (st *SimpleType) memberTypes() []*SimpleType {
	for cur := st; cur != nil; cur = cur.Base {
		if len(cur.Members) > 0 {
			return cur.Members
		}
	}
	return nil
}

// whiteSpace returns the whiteSpace facet in effect for st
func (st *SimpleType) whiteSpace() string {
	for cur := st; cur != nil; cur = cur.Base {
		for _, f := range cur.Facets {
			if ws, ok := f.(*whiteSpaceFacet); ok {
				return ws.mode
			}
		}
		if cur.builtin != "" {
			return datatypes[cur.builtin].whitespace
		}
		switch cur.Variety {
		case ListVariety:
			return collapseSpace
		case UnionVariety:
			return preserveSpace
		}
	}
	return preserveSpace
}

// describe renders the type the way libxml2 names it in value errors
func (st *SimpleType) describe() string {
	kind := "atomic type"
	switch st.effectiveVariety() {
	case ListVariety:
		kind = "list type"
	case UnionVariety:
		kind = "union type"
	}
	switch {
	case st.QName.IsZero():
		return "local " + kind
	case st.QName.Namespace == XSDNamespace:
		return fmt.Sprintf("%s 'xs:%s'", kind, st.QName.Local)
	}
	return fmt.Sprintf("%s '%s'", kind, st.QName)
}

// validateValue checks value against st. It returns the messages to report,
// none when the value is valid.
func validateValue(value string, st *SimpleType) []string {
	if st == nil {
		return nil
	}
	normalized := normalizeWhiteSpace(value, st.whiteSpace())
	invalid := fmt.Sprintf("'%s' is not a valid value of the %s.", normalized, st.describe())

	switch st.effectiveVariety() {
	case ListVariety:
		item := st.itemType()
		for _, token := range strings.Fields(normalized) {
			if len(validateValue(token, item)) > 0 {
				return []string{invalid}
			}
		}
	case UnionVariety:
		matched := false
		for _, member := range st.memberTypes() {
			if len(validateValue(normalized, member)) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			return []string{invalid}
		}
	default:
		if !validBuiltin(st.primitive(), normalized) {
			return []string{invalid}
		}
	}

	// facets apply from the most general restriction step down to st
	var chain []*SimpleType
	for cur := st; cur != nil && cur.builtin == ""; cur = cur.Base {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, f := range chain[i].Facets {
			if msg, ok := f.check(normalized, chain[i]); !ok {
				return []string{msg, invalid}
			}
		}
	}
	return nil
}

// valuesEqual compares two values after whitespace normalization, used for
// fixed value constraints
func valuesEqual(a, b string, st *SimpleType) bool {
	ws := preserveSpace
	if st != nil {
		ws = st.whiteSpace()
	}
	na, nb := normalizeWhiteSpace(a, ws), normalizeWhiteSpace(b, ws)
	if na == nb {
		return true
	}
	if st != nil && st.effectiveVariety() == AtomicVariety {
		if cmp, ok := compareValues(na, nb, st); ok && datatypes[st.primitive()].family != temporalFamily {
			return cmp == 0
		}
	}
	return false
}
