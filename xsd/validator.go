package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// Validator validates documents against a compiled schema. It holds no
// per-document state and may be shared between goroutines.
type Validator struct {
	schema *Schema
}

// NewValidator creates a validator for schema
func NewValidator(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// validation is the state of validating one document
type validation struct {
	schema     *Schema
	violations []Violation
	tables     map[*IdentityConstraint][]*keyTable
}

// Validate checks doc and returns the violations in document order
func (v *Validator) Validate(doc xmldom.Document) []Violation {
	if doc == nil {
		return []Violation{{Code: "document", Message: "No document to validate."}}
	}
	root := doc.DocumentElement()
	if root == nil {
		return []Violation{{Code: "document", Message: "The document has no document element."}}
	}

	state := &validation{
		schema: v.schema,
		tables: make(map[*IdentityConstraint][]*keyTable),
	}
	name := elementName(root)
	decl, ok := v.schema.ElementDecls[name]
	if !ok {
		state.report(root, "cvc-elt.1",
			fmt.Sprintf("Element '%s': No matching global declaration available for the validation root.", name))
		return state.violations
	}
	state.element(root, decl)
	return state.violations
}

func (v *validation) report(elem xmldom.Element, code, message string) {
	v.violations = append(v.violations, Violation{
		Element: elem,
		Line:    lineOf(elem),
		Code:    code,
		Message: message,
	})
}

// element validates elem against decl and descends into its children
func (v *validation) element(elem xmldom.Element, decl *ElementDecl) {
	name := elementName(elem)
	if decl.Abstract {
		v.report(elem, "cvc-elt.2", fmt.Sprintf("Element '%s': The element declaration is abstract.", name))
		return
	}

	typ := decl.Type
	if override, ok := v.xsiType(elem, name); ok {
		if override == nil {
			return
		}
		typ = override
	}

	if nilled, ok := v.xsiNil(elem, name, decl); ok {
		if nilled {
			if ct, isComplex := typ.(*ComplexType); isComplex {
				v.attributes(elem, name, ct)
			}
			v.checkConstraints(elem, decl)
			return
		}
	}

	switch t := typ.(type) {
	case *SimpleType:
		v.simpleElement(elem, name, decl, t)
	case *ComplexType:
		v.attributes(elem, name, t)
		v.complexContent(elem, name, decl, t)
	}
	v.checkConstraints(elem, decl)
}

// xsiType resolves an xsi:type override. ok is false without one; a nil
// type with ok set means the override was reported as invalid.
func (v *validation) xsiType(elem xmldom.Element, name QName) (Type, bool) {
	value := strings.TrimSpace(string(elem.GetAttributeNS(XSINamespace, "type")))
	if value == "" {
		return nil, false
	}
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		prefix, local = "", value
	}
	ns, _ := lookupNamespace(elem, prefix)
	t, ok := v.schema.lookupType(QName{Namespace: ns, Local: local})
	if !ok {
		v.report(elem, "cvc-elt.4.2",
			fmt.Sprintf("Element '%s', attribute '{%s}type': The QName value '%s' of the xsi:type attribute does not resolve to a type definition.",
				name, XSINamespace, value))
		return nil, true
	}
	if ct, isComplex := t.(*ComplexType); isComplex && ct.Abstract {
		v.report(elem, "cvc-elt.4.3",
			fmt.Sprintf("Element '%s': The type definition is abstract.", name))
		return nil, true
	}
	return t, true
}

// xsiNil reports whether elem is nilled. ok is false without xsi:nil.
func (v *validation) xsiNil(elem xmldom.Element, name QName, decl *ElementDecl) (bool, bool) {
	value := strings.TrimSpace(string(elem.GetAttributeNS(XSINamespace, "nil")))
	if value == "" {
		return false, false
	}
	if !decl.Nillable {
		v.report(elem, "cvc-elt.3.1",
			fmt.Sprintf("Element '%s', attribute '{%s}nil': The element is not 'nillable'.", name, XSINamespace))
		return false, true
	}
	nilled := value == "true" || value == "1"
	if nilled && (len(childElements(elem)) > 0 || strings.TrimSpace(textContent(elem)) != "") {
		v.report(elem, "cvc-elt.3.2.1",
			fmt.Sprintf("Element '%s': The element cannot have character or element information items, because xsi:nil is 'true'.", name))
	}
	return nilled, true
}

func (v *validation) simpleElement(elem xmldom.Element, name QName, decl *ElementDecl, st *SimpleType) {
	v.attributes(elem, name, nil)
	if len(childElements(elem)) > 0 {
		v.report(elem, "cvc-type.3.1.2",
			fmt.Sprintf("Element '%s': Element content is not allowed, because the type definition is simple.", name))
		return
	}
	v.value(elem, name, decl, st)
}

// value checks the character content of elem against st together with the
// fixed and default value constraints of decl
func (v *validation) value(elem xmldom.Element, name QName, decl *ElementDecl, st *SimpleType) {
	text := textContent(elem)
	if text == "" && decl.Default != nil {
		text = *decl.Default
	}
	if text == "" && decl.Fixed != nil {
		text = *decl.Fixed
	}
	for _, msg := range validateValue(text, st) {
		v.report(elem, "cvc-datatype-valid", fmt.Sprintf("Element '%s': %s", name, msg))
	}
	if decl.Fixed != nil && !valuesEqual(text, *decl.Fixed, st) {
		v.report(elem, "cvc-elt.5.2.2.2.2",
			fmt.Sprintf("Element '%s': The value '%s' does not match the fixed value constraint '%s'.", name, text, *decl.Fixed))
	}
}

// attributes checks the attributes of elem. A nil ct stands for a simple
// type, which allows no attributes.
func (v *validation) attributes(elem xmldom.Element, name QName, ct *ComplexType) {
	seen := map[QName]bool{}
	attrs := elem.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a == nil {
			continue
		}
		if _, ok := namespaceDeclaration(a); ok {
			continue
		}
		attrName := attributeName(elem, string(a.NodeName()), string(a.NamespaceURI()), string(a.LocalName()))
		if attrName.Namespace == XSINamespace {
			continue
		}
		seen[attrName] = true
		value := string(a.NodeValue())

		if ct == nil {
			v.report(elem, "cvc-type.3.1.1",
				fmt.Sprintf("Element '%s', attribute '%s': The attribute '%s' is not allowed.", name, attrName, attrName))
			continue
		}

		if use := ct.attributeUse(attrName); use != nil {
			v.attributeValue(elem, name, attrName, value, use)
			continue
		}

		wildcard := ct.attrAny
		if ct.anyType {
			wildcard = ct.AnyAttribute
		}
		if wildcard == nil || !wildcard.Matches(attrName.Namespace) {
			v.report(elem, "cvc-complex-type.3.2.1",
				fmt.Sprintf("Element '%s', attribute '%s': The attribute '%s' is not allowed.", name, attrName, attrName))
			continue
		}
		if wildcard.Process == SkipProcess {
			continue
		}
		global, ok := v.schema.AttributeDecls[attrName]
		switch {
		case ok:
			v.attributeValue(elem, name, attrName, value, global)
		case wildcard.Process == StrictProcess:
			v.report(elem, "cvc-complex-type.3.2.2",
				fmt.Sprintf("Element '%s', attribute '%s': No matching global attribute declaration available, but demanded by the strict wildcard.", name, attrName))
		}
	}

	if ct == nil {
		return
	}
	for _, use := range ct.attrUses {
		if use.Use == RequiredUse && !seen[use.Name] {
			v.report(elem, "cvc-complex-type.4",
				fmt.Sprintf("Element '%s': The attribute '%s' is required but missing.", name, use.Name))
		}
	}
}

func (v *validation) attributeValue(elem xmldom.Element, name, attrName QName, value string, decl *AttributeDecl) {
	for _, msg := range validateValue(value, decl.Type) {
		v.report(elem, "cvc-attribute.3",
			fmt.Sprintf("Element '%s', attribute '%s': %s", name, attrName, msg))
	}
	if decl.Fixed != nil && !valuesEqual(value, *decl.Fixed, decl.Type) {
		v.report(elem, "cvc-attribute.4",
			fmt.Sprintf("Element '%s', attribute '%s': The value '%s' does not match the fixed value constraint '%s'.", name, attrName, value, *decl.Fixed))
	}
}

func (ct *ComplexType) attributeUse(name QName) *AttributeDecl {
	for _, use := range ct.attrUses {
		if use.Name == name {
			return use
		}
	}
	return nil
}

// complexContent checks the children and character content of elem
func (v *validation) complexContent(elem xmldom.Element, name QName, decl *ElementDecl, ct *ComplexType) {
	children := childElements(elem)

	switch {
	case ct.anyType:
		for _, child := range children {
			v.laxElement(child)
		}
		return
	case ct.valueType != nil:
		if len(children) > 0 {
			v.report(elem, "cvc-complex-type.2.2",
				fmt.Sprintf("Element '%s': Element content is not allowed, because the content type is a simple type definition.", name))
			return
		}
		v.value(elem, name, decl, ct.valueType)
		return
	case ct.automaton == nil && ct.allGroup == nil:
		if len(children) > 0 {
			v.report(elem, "cvc-complex-type.2.1",
				fmt.Sprintf("Element '%s': Element content is not allowed, because the content type is empty.", name))
		} else if !ct.mixed && strings.TrimSpace(textContent(elem)) != "" {
			v.report(elem, "cvc-complex-type.2.1",
				fmt.Sprintf("Element '%s': Character content is not allowed, because the content type is empty.", name))
		}
		return
	}

	if !ct.mixed && strings.TrimSpace(textContent(elem)) != "" {
		v.report(elem, "cvc-complex-type.2.3",
			fmt.Sprintf("Element '%s': Character content other than whitespace is not allowed because the content type is 'element-only'.", name))
	}

	var m contentMatcher
	if ct.allGroup != nil {
		m = newAllMatcher(v.schema, ct.content)
	} else {
		m = ct.automaton.matcher(v.schema)
	}

	for _, child := range children {
		childName := elementName(child)
		expected := m.expected()
		matched, ok := m.step(childName)
		if !ok {
			v.report(child, "cvc-complex-type.2.4",
				fmt.Sprintf("Element '%s': This element is not expected.%s", childName, expectedSuffix(expected)))
			return
		}
		v.child(child, childName, matched)
	}

	if !m.accepting() {
		v.report(elem, "cvc-complex-type.2.4",
			fmt.Sprintf("Element '%s': Missing child element(s).%s", name, expectedSuffix(m.missing())))
	}
}

// child validates a child element against the term it matched
func (v *validation) child(elem xmldom.Element, name QName, matched term) {
	if matched.element != nil {
		v.element(elem, v.schema.declFor(matched.element, name))
		return
	}
	switch matched.wildcard.Process {
	case SkipProcess:
	case LaxProcess:
		v.laxElement(elem)
	default:
		decl, ok := v.schema.ElementDecls[name]
		if !ok {
			v.report(elem, "cvc-complex-type.2.4",
				fmt.Sprintf("Element '%s': No matching global element declaration available, but demanded by the strict wildcard.", name))
			return
		}
		v.element(elem, decl)
	}
}

// laxElement validates elem when a global declaration exists, and otherwise
// looks for declared elements further down
func (v *validation) laxElement(elem xmldom.Element) {
	if decl, ok := v.schema.ElementDecls[elementName(elem)]; ok {
		v.element(elem, decl)
		return
	}
	for _, child := range childElements(elem) {
		v.laxElement(child)
	}
}

// attributeName qualifies an attribute, resolving its prefix itself when
// the DOM left the namespace empty
func attributeName(elem xmldom.Element, nodeName, namespace, local string) QName {
	if namespace == "" {
		if prefix, rest, found := strings.Cut(nodeName, ":"); found {
			if resolved, ok := lookupNamespace(elem, prefix); ok {
				return QName{Namespace: resolved, Local: rest}
			}
		}
	}
	return QName{Namespace: namespace, Local: local}
}

func elementName(elem xmldom.Element) QName {
	return QName{Namespace: string(elem.NamespaceURI()), Local: string(elem.LocalName())}
}

func childElements(elem xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		if child := children.Item(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// textContent concatenates the text and CDATA children of elem
func textContent(elem xmldom.Element) string {
	var b strings.Builder
	nodes := elem.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		node := nodes.Item(i)
		if node == nil {
			continue
		}
		switch node.NodeType() {
		case 3, 4: // text, CDATA section
			b.WriteString(string(node.NodeValue()))
		}
	}
	return b.String()
}
