package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
)

// ConstraintKind is the kind of an identity constraint
type ConstraintKind string

const (
	UniqueConstraint ConstraintKind = "unique"
	KeyConstraint    ConstraintKind = "key"
	KeyRefConstraint ConstraintKind = "keyref"
)

// IdentityConstraint is an xs:unique, xs:key or xs:keyref declared on an
// element
type IdentityConstraint struct {
	Name     QName
	Kind     ConstraintKind
	Selector string
	Fields   []string
	Refer    QName

	selector *xpath
	fields   []*xpath
	refer    *IdentityConstraint
}

// xpath is the restricted XPath subset allowed in selectors and fields:
// unions of relative child paths, optionally starting with .// and, for
// fields, ending in an attribute step
type xpath struct {
	source string
	paths  []xpathPath
}

type xpathPath struct {
	descendant bool
	steps      []xpathStep
	attribute  *xpathStep
}

type xpathStep struct {
	self      bool
	any       bool // * or prefix:*
	namespace string
	local     string
}

func (s xpathStep) matches(name QName) bool {
	if s.any {
		return s.namespace == "*" || s.namespace == name.Namespace
	}
	return s.namespace == name.Namespace && s.local == name.Local
}

func compileXPath(source string, namespaces map[string]string, field bool) (*xpath, error) {
	x := &xpath{source: source}
	for _, alternative := range strings.Split(source, "|") {
		alternative = strings.TrimSpace(alternative)
		if alternative == "" {
			return nil, errors.Errorf("empty path in xpath '%s'", source)
		}
		var path xpathPath
		if strings.HasPrefix(alternative, ".//") {
			path.descendant = true
			alternative = strings.TrimPrefix(alternative, ".//")
		}
		parts := strings.Split(alternative, "/")
		for i, part := range parts {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "child::"))
			isAttribute := strings.HasPrefix(part, "@") || strings.HasPrefix(part, "attribute::")
			if isAttribute {
				if !field || i != len(parts)-1 {
					return nil, errors.Errorf("attribute step not allowed in xpath '%s'", source)
				}
				part = strings.TrimPrefix(strings.TrimPrefix(part, "@"), "attribute::")
			}
			step, err := parseStep(part, namespaces)
			if err != nil {
				return nil, errors.Wrapf(err, "xpath '%s'", source)
			}
			if isAttribute {
				path.attribute = &step
				continue
			}
			path.steps = append(path.steps, step)
		}
		x.paths = append(x.paths, path)
	}
	return x, nil
}

func parseStep(part string, namespaces map[string]string) (xpathStep, error) {
	switch part {
	case "":
		return xpathStep{}, errors.New("empty step")
	case ".":
		return xpathStep{self: true}, nil
	case "*":
		return xpathStep{any: true, namespace: "*"}, nil
	}
	prefix, local, found := strings.Cut(part, ":")
	if !found {
		// unprefixed names have no namespace in XPath 1.0
		return xpathStep{local: part}, nil
	}
	ns, ok := namespaces[prefix]
	if !ok {
		return xpathStep{}, errors.Errorf("namespace prefix '%s' is not bound", prefix)
	}
	if local == "*" {
		return xpathStep{any: true, namespace: ns}, nil
	}
	return xpathStep{namespace: ns, local: local}, nil
}

// selectNodes evaluates the selector from ctx in document order
func (x *xpath) selectNodes(ctx xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	seen := map[xmldom.Element]bool{}
	for _, path := range x.paths {
		starts := []xmldom.Element{ctx}
		if path.descendant {
			starts = descendantsOrSelf(ctx)
		}
		for _, node := range walkSteps(starts, path.steps) {
			if !seen[node] {
				seen[node] = true
				out = append(out, node)
			}
		}
	}
	return out
}

// fieldValues evaluates a field from a selected node
func (x *xpath) fieldValues(ctx xmldom.Element) []string {
	var values []string
	for _, path := range x.paths {
		starts := []xmldom.Element{ctx}
		if path.descendant {
			starts = descendantsOrSelf(ctx)
		}
		for _, node := range walkSteps(starts, path.steps) {
			if path.attribute == nil {
				values = append(values, strings.TrimSpace(string(node.TextContent())))
				continue
			}
			attrs := node.Attributes()
			for i := uint(0); i < attrs.Length(); i++ {
				a := attrs.Item(i)
				if a == nil {
					continue
				}
				if _, ok := namespaceDeclaration(a); ok {
					continue
				}
				name := QName{Namespace: string(a.NamespaceURI()), Local: string(a.LocalName())}
				if path.attribute.matches(name) {
					values = append(values, strings.TrimSpace(string(a.NodeValue())))
				}
			}
		}
	}
	return values
}

func walkSteps(nodes []xmldom.Element, steps []xpathStep) []xmldom.Element {
	for _, step := range steps {
		if step.self {
			continue
		}
		var next []xmldom.Element
		for _, node := range nodes {
			for _, child := range childElements(node) {
				if step.matches(elementName(child)) {
					next = append(next, child)
				}
			}
		}
		nodes = next
	}
	return nodes
}

func descendantsOrSelf(elem xmldom.Element) []xmldom.Element {
	out := []xmldom.Element{elem}
	for _, child := range childElements(elem) {
		out = append(out, descendantsOrSelf(child)...)
	}
	return out
}

// keyTable is the set of key-sequences a key or unique constraint produced
// within one scope element
type keyTable struct {
	scope  xmldom.Element
	values map[string]bool
}

// checkConstraints evaluates the identity constraints declared on decl for
// the element instance elem
func (v *validation) checkConstraints(elem xmldom.Element, decl *ElementDecl) {
	// keys first so keyrefs on the same element see them
	for _, ic := range decl.Constraints {
		if ic.Kind != KeyRefConstraint && ic.selector != nil {
			v.checkKey(elem, ic)
		}
	}
	for _, ic := range decl.Constraints {
		if ic.Kind == KeyRefConstraint && ic.selector != nil {
			v.checkKeyRef(elem, ic)
		}
	}
}

func (v *validation) checkKey(scope xmldom.Element, ic *IdentityConstraint) {
	table := &keyTable{scope: scope, values: map[string]bool{}}
	for _, node := range ic.selector.selectNodes(scope) {
		sequence, complete, ok := v.keySequence(node, ic)
		if !ok {
			continue
		}
		if !complete {
			if ic.Kind == KeyConstraint {
				v.report(node, "cvc-identity-constraint.4.2.1",
					fmt.Sprintf("Element '%s': Not all fields of key identity-constraint '%s' evaluate to a node.", elementName(node), ic.Name))
			}
			continue
		}
		if table.values[sequence] {
			v.report(node, "cvc-identity-constraint.4.2.2",
				fmt.Sprintf("Element '%s': Duplicate key-sequence %s in %s identity-constraint '%s'.", elementName(node), sequence, ic.Kind, ic.Name))
			continue
		}
		table.values[sequence] = true
	}
	v.tables[ic] = append(v.tables[ic], table)
}

func (v *validation) checkKeyRef(scope xmldom.Element, ic *IdentityConstraint) {
	if ic.refer == nil {
		return
	}
	var tables []*keyTable
	for _, table := range v.tables[ic.refer] {
		if isAncestorOrSelf(scope, table.scope) {
			tables = append(tables, table)
		}
	}
	for _, node := range ic.selector.selectNodes(scope) {
		sequence, complete, ok := v.keySequence(node, ic)
		if !ok || !complete {
			continue
		}
		found := false
		for _, table := range tables {
			if table.values[sequence] {
				found = true
				break
			}
		}
		if !found {
			v.report(node, "cvc-identity-constraint.4.3",
				fmt.Sprintf("Element '%s': No match found for key-sequence %s of keyref '%s'.", elementName(node), sequence, ic.Name))
		}
	}
}

// keySequence renders the field values of node as ['a', 'b']. complete is
// false when a field selects nothing; ok is false after a reported error.
func (v *validation) keySequence(node xmldom.Element, ic *IdentityConstraint) (string, bool, bool) {
	values := make([]string, 0, len(ic.fields))
	complete := true
	for _, field := range ic.fields {
		found := field.fieldValues(node)
		switch len(found) {
		case 0:
			complete = false
		case 1:
			values = append(values, "'"+found[0]+"'")
		default:
			v.report(node, "cvc-identity-constraint.3",
				fmt.Sprintf("Element '%s': The XPath '%s' of a field of %s identity-constraint '%s' evaluates to a node-set with more than one member.",
					elementName(node), field.source, ic.Kind, ic.Name))
			return "", false, false
		}
	}
	return "[" + strings.Join(values, ", ") + "]", complete, true
}

func isAncestorOrSelf(ancestor, node xmldom.Element) bool {
	for cur := node; cur != nil; {
		if cur == ancestor {
			return true
		}
		parent, ok := parentElement(cur)
		if !ok {
			return false
		}
		cur = parent
	}
	return false
}
