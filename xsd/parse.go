package xsd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// directive is an xs:include, xs:import or xs:redefine of a schema document
type directive struct {
	kind      string
	namespace string
	location  string
}

// docParser reads the components of one schema document into a Schema.
// Several documents feed the same Schema when includes and imports are
// followed.
type docParser struct {
	schema   *Schema
	location string
	tns      string

	qualifiedElements   bool
	qualifiedAttributes bool

	directives []directive
	errs       error
}

// parseDocument adds the components of doc to s. includerNS is the target
// namespace of the including document, used for chameleon includes.
func parseDocument(s *Schema, doc xmldom.Document, location string, include bool, includerNS string) ([]directive, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, errors.New("no root element")
	}
	if string(root.NamespaceURI()) != XSDNamespace || string(root.LocalName()) != "schema" {
		return nil, errors.Errorf("document element {%s}%s is not xs:schema", root.NamespaceURI(), root.LocalName())
	}

	p := &docParser{
		schema:              s,
		location:            location,
		tns:                 attr(root, "targetNamespace"),
		qualifiedElements:   attr(root, "elementFormDefault") == "qualified",
		qualifiedAttributes: attr(root, "attributeFormDefault") == "qualified",
	}
	if include {
		switch {
		case !root.HasAttribute("targetNamespace"):
			p.tns = includerNS
		case p.tns != includerNS:
			return nil, errors.Errorf("included schema has target namespace %q, expected %q", p.tns, includerNS)
		}
	} else if s.TargetNamespace == "" && len(s.ElementDecls) == 0 && len(s.TypeDefs) == 0 {
		s.TargetNamespace = p.tns
	}

	for _, child := range xsdChildren(root) {
		switch string(child.LocalName()) {
		case "element":
			decl := p.elementDecl(child, true)
			p.register(child, "element", decl.Name, s.ElementDecls[decl.Name] != nil)
			s.ElementDecls[decl.Name] = decl
		case "attribute":
			decl := p.attributeDecl(child, true)
			p.register(child, "attribute", decl.Name, s.AttributeDecls[decl.Name] != nil)
			s.AttributeDecls[decl.Name] = decl
		case "simpleType":
			st := p.simpleType(child, true)
			p.register(child, "type", st.QName, s.TypeDefs[st.QName] != nil)
			s.TypeDefs[st.QName] = st
		case "complexType":
			ct := p.complexType(child, true)
			p.register(child, "type", ct.QName, s.TypeDefs[ct.QName] != nil)
			s.TypeDefs[ct.QName] = ct
		case "group":
			group := p.namedGroup(child)
			if group != nil {
				p.register(child, "group", group.Name, s.Groups[group.Name] != nil)
				s.Groups[group.Name] = group
			}
		case "attributeGroup":
			group := p.attributeGroup(child)
			p.register(child, "attribute group", group.Name, s.AttributeGroups[group.Name] != nil)
			s.AttributeGroups[group.Name] = group
		case "include", "import", "redefine":
			p.directives = append(p.directives, directive{
				kind:      string(child.LocalName()),
				namespace: attr(child, "namespace"),
				location:  attr(child, "schemaLocation"),
			})
		}
	}
	return p.directives, p.errs
}

func (p *docParser) fail(elem xmldom.Element, format string, args ...interface{}) {
	p.errs = multierr.Append(p.errs, errors.Errorf("%s:%d: %s", p.location, lineOf(elem), fmt.Sprintf(format, args...)))
}

func (p *docParser) register(elem xmldom.Element, kind string, name QName, duplicate bool) {
	if name.IsZero() {
		p.fail(elem, "global %s without a name", kind)
		return
	}
	if duplicate {
		p.fail(elem, "%s '%s' is already defined", kind, name)
	}
}

func (p *docParser) elementDecl(elem xmldom.Element, global bool) *ElementDecl {
	qualified := global || p.qualifiedElements
	if form := attr(elem, "form"); form != "" && !global {
		qualified = form == "qualified"
	}
	decl := &ElementDecl{
		Name:     QName{Local: attr(elem, "name")},
		Abstract: attr(elem, "abstract") == "true",
		Nillable: attr(elem, "nillable") == "true",
		Fixed:    optionalAttr(elem, "fixed"),
		Default:  optionalAttr(elem, "default"),
	}
	if qualified {
		decl.Name.Namespace = p.tns
	}
	if typeName := attr(elem, "type"); typeName != "" {
		decl.TypeName = p.qname(elem, typeName)
	}
	if head := attr(elem, "substitutionGroup"); head != "" {
		decl.SubstitutionGroup = p.qname(elem, head)
	}

	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "simpleType":
			decl.Type = p.simpleType(child, false)
		case "complexType":
			decl.Type = p.complexType(child, false)
		case "unique":
			decl.Constraints = append(decl.Constraints, p.identityConstraint(child, UniqueConstraint))
		case "key":
			decl.Constraints = append(decl.Constraints, p.identityConstraint(child, KeyConstraint))
		case "keyref":
			decl.Constraints = append(decl.Constraints, p.identityConstraint(child, KeyRefConstraint))
		}
	}

	for _, ic := range decl.Constraints {
		p.register(elem, "identity constraint", ic.Name, p.schema.Constraints[ic.Name] != nil)
		p.schema.Constraints[ic.Name] = ic
	}
	p.schema.elements = append(p.schema.elements, decl)
	return decl
}

func (p *docParser) attributeDecl(elem xmldom.Element, global bool) *AttributeDecl {
	decl := &AttributeDecl{
		Use:     AttributeUse(attr(elem, "use")),
		Fixed:   optionalAttr(elem, "fixed"),
		Default: optionalAttr(elem, "default"),
	}
	if decl.Use == "" {
		decl.Use = OptionalUse
	}
	if ref := attr(elem, "ref"); ref != "" {
		decl.Ref = p.qname(elem, ref)
		p.schema.attributes = append(p.schema.attributes, decl)
		return decl
	}

	qualified := global || p.qualifiedAttributes
	if form := attr(elem, "form"); form != "" && !global {
		qualified = form == "qualified"
	}
	decl.Name = QName{Local: attr(elem, "name")}
	if qualified {
		decl.Name.Namespace = p.tns
	}
	if typeName := attr(elem, "type"); typeName != "" {
		decl.TypeName = p.qname(elem, typeName)
	}
	for _, child := range xsdChildren(elem) {
		if string(child.LocalName()) == "simpleType" {
			decl.Type = p.simpleType(child, false)
		}
	}
	p.schema.attributes = append(p.schema.attributes, decl)
	return decl
}

func (p *docParser) simpleType(elem xmldom.Element, global bool) *SimpleType {
	st := &SimpleType{}
	if global {
		st.QName = QName{Namespace: p.tns, Local: attr(elem, "name")}
	}

	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "restriction":
			if base := attr(child, "base"); base != "" {
				st.BaseName = p.qname(child, base)
			}
			for _, inner := range xsdChildren(child) {
				if string(inner.LocalName()) == "simpleType" {
					st.Base = p.simpleType(inner, false)
				}
			}
			st.Facets = p.facets(child)
		case "list":
			st.Variety = ListVariety
			if item := attr(child, "itemType"); item != "" {
				st.ItemName = p.qname(child, item)
			}
			for _, inner := range xsdChildren(child) {
				if string(inner.LocalName()) == "simpleType" {
					st.Item = p.simpleType(inner, false)
				}
			}
		case "union":
			st.Variety = UnionVariety
			for _, member := range strings.Fields(attr(child, "memberTypes")) {
				st.MemberNames = append(st.MemberNames, p.qname(child, member))
			}
			for _, inner := range xsdChildren(child) {
				if string(inner.LocalName()) == "simpleType" {
					st.Members = append(st.Members, p.simpleType(inner, false))
				}
			}
		}
	}

	p.schema.simpleTypes = append(p.schema.simpleTypes, st)
	return st
}

// facets reads the facets of a restriction; enumeration and pattern values
// of one step are gathered into a single facet each
func (p *docParser) facets(restriction xmldom.Element) []Facet {
	var (
		facets       []Facet
		enumerations []string
		patterns     []string
	)
	for _, child := range xsdChildren(restriction) {
		name := string(child.LocalName())
		value := attr(child, "value")
		switch name {
		case "enumeration":
			enumerations = append(enumerations, value)
		case "pattern":
			patterns = append(patterns, value)
		default:
			facet, err := parseFacet(name, value)
			if err != nil {
				p.fail(child, "%v", err)
				continue
			}
			if facet != nil {
				facets = append(facets, facet)
			}
		}
	}
	if len(patterns) > 0 {
		facet, err := newPatternFacet(patterns)
		if err != nil {
			p.fail(restriction, "%v", err)
		} else {
			facets = append(facets, facet)
		}
	}
	if len(enumerations) > 0 {
		facets = append(facets, &enumerationFacet{values: enumerations})
	}
	return facets
}

func (p *docParser) complexType(elem xmldom.Element, global bool) *ComplexType {
	ct := &ComplexType{
		Abstract: attr(elem, "abstract") == "true",
		Mixed:    attr(elem, "mixed") == "true",
	}
	if global {
		ct.QName = QName{Namespace: p.tns, Local: attr(elem, "name")}
	}

	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "simpleContent":
			ct.SimpleContent = true
			p.derivation(ct, child)
		case "complexContent":
			if mixed := attr(child, "mixed"); mixed != "" {
				ct.Mixed = mixed == "true"
			}
			p.derivation(ct, child)
		default:
			p.typeContent(ct, child)
		}
	}

	p.schema.complexTypes = append(p.schema.complexTypes, ct)
	return ct
}

// derivation reads the extension or restriction inside simpleContent or complexContent
func (p *docParser) derivation(ct *ComplexType, content xmldom.Element) {
	for _, child := range xsdChildren(content) {
		switch string(child.LocalName()) {
		case "extension":
			ct.Derivation = ExtensionDerivation
		case "restriction":
			ct.Derivation = RestrictionDerivation
			if ct.SimpleContent {
				ct.Facets = p.facets(child)
			}
		default:
			continue
		}
		ct.BaseName = p.qname(child, attr(child, "base"))
		for _, inner := range xsdChildren(child) {
			p.typeContent(ct, inner)
		}
	}
}

// typeContent handles the particle and attribute children shared by complex
// type definitions and their derivations
func (p *docParser) typeContent(ct *ComplexType, child xmldom.Element) {
	switch string(child.LocalName()) {
	case "sequence", "choice", "all", "group":
		ct.Particle = p.particle(child)
	case "attribute":
		ct.Attributes = append(ct.Attributes, p.attributeDecl(child, false))
	case "attributeGroup":
		ct.AttributeGroupRefs = append(ct.AttributeGroupRefs, p.qname(child, attr(child, "ref")))
	case "anyAttribute":
		ct.AnyAttribute = parseWildcard(attr(child, "namespace"), attr(child, "processContents"), p.tns)
	}
}

func (p *docParser) particle(elem xmldom.Element) *Particle {
	particle := &Particle{
		Min: p.occurs(elem, "minOccurs"),
		Max: p.occurs(elem, "maxOccurs"),
	}
	if particle.Max != Unbounded && particle.Max < particle.Min {
		p.fail(elem, "maxOccurs (%d) is less than minOccurs (%d)", particle.Max, particle.Min)
		particle.Max = particle.Min
	}

	switch string(elem.LocalName()) {
	case "element":
		if ref := attr(elem, "ref"); ref != "" {
			particle.Kind = ElementRefParticle
			particle.Ref = p.qname(elem, ref)
		} else {
			particle.Kind = ElementParticle
			particle.Element = p.elementDecl(elem, false)
		}
	case "group":
		particle.Kind = GroupRefParticle
		particle.Ref = p.qname(elem, attr(elem, "ref"))
	case "any":
		particle.Kind = WildcardParticle
		particle.Wildcard = parseWildcard(attr(elem, "namespace"), attr(elem, "processContents"), p.tns)
	default:
		particle.Kind = GroupParticle
		particle.Group = p.modelGroup(elem)
	}

	p.schema.particles = append(p.schema.particles, particle)
	return particle
}

func (p *docParser) modelGroup(elem xmldom.Element) *ModelGroup {
	group := &ModelGroup{Kind: Compositor(elem.LocalName())}
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "element", "group", "sequence", "choice", "all", "any":
			group.Particles = append(group.Particles, p.particle(child))
		}
	}
	return group
}

func (p *docParser) namedGroup(elem xmldom.Element) *ModelGroup {
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "sequence", "choice", "all":
			group := p.modelGroup(child)
			group.Name = QName{Namespace: p.tns, Local: attr(elem, "name")}
			return group
		}
	}
	p.fail(elem, "group '%s' has no model group", attr(elem, "name"))
	return nil
}

func (p *docParser) attributeGroup(elem xmldom.Element) *AttributeGroup {
	group := &AttributeGroup{Name: QName{Namespace: p.tns, Local: attr(elem, "name")}}
	for _, child := range xsdChildren(elem) {
		switch string(child.LocalName()) {
		case "attribute":
			group.Attributes = append(group.Attributes, p.attributeDecl(child, false))
		case "attributeGroup":
			group.Refs = append(group.Refs, p.qname(child, attr(child, "ref")))
		case "anyAttribute":
			group.AnyAttribute = parseWildcard(attr(child, "namespace"), attr(child, "processContents"), p.tns)
		}
	}
	return group
}

func (p *docParser) identityConstraint(elem xmldom.Element, kind ConstraintKind) *IdentityConstraint {
	ic := &IdentityConstraint{
		Name: QName{Namespace: p.tns, Local: attr(elem, "name")},
		Kind: kind,
	}
	if kind == KeyRefConstraint {
		ic.Refer = p.qname(elem, attr(elem, "refer"))
	}
	namespaces := inScopeNamespaces(elem)
	for _, child := range xsdChildren(elem) {
		xpath := attr(child, "xpath")
		switch string(child.LocalName()) {
		case "selector":
			ic.Selector = xpath
			path, err := compileXPath(xpath, namespaces, false)
			if err != nil {
				p.fail(child, "identity constraint '%s': %v", ic.Name, err)
				continue
			}
			ic.selector = path
		case "field":
			ic.Fields = append(ic.Fields, xpath)
			path, err := compileXPath(xpath, namespaces, true)
			if err != nil {
				p.fail(child, "identity constraint '%s': %v", ic.Name, err)
				continue
			}
			ic.fields = append(ic.fields, path)
		}
	}
	if ic.selector == nil || len(ic.fields) == 0 {
		p.fail(elem, "identity constraint '%s' needs a selector and at least one field", ic.Name)
	}
	return ic
}

// occurs parses minOccurs or maxOccurs, both default to 1
func (p *docParser) occurs(elem xmldom.Element, name string) int {
	value := strings.TrimSpace(attr(elem, name))
	switch value {
	case "":
		return 1
	case "unbounded":
		if name == "maxOccurs" {
			return Unbounded
		}
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		p.fail(elem, "invalid %s value '%s'", name, value)
		return 1
	}
	return n
}

// qname resolves a prefixed name against the namespace declarations in
// scope at elem. Unprefixed names without a default namespace belong to the
// target namespace, which also covers chameleon includes.
func (p *docParser) qname(elem xmldom.Element, value string) QName {
	value = strings.TrimSpace(value)
	if value == "" {
		return QName{}
	}
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		if ns, ok := lookupNamespace(elem, ""); ok {
			return QName{Namespace: ns, Local: value}
		}
		return QName{Namespace: p.tns, Local: value}
	}
	ns, ok := lookupNamespace(elem, prefix)
	if !ok {
		p.fail(elem, "namespace prefix '%s' of '%s' is not bound", prefix, value)
		return QName{Local: local}
	}
	return QName{Namespace: ns, Local: local}
}

// lookupNamespace finds the namespace bound to prefix at elem, the empty
// prefix looks up the default namespace
func lookupNamespace(elem xmldom.Element, prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for cur := elem; cur != nil; {
		attrs := cur.Attributes()
		for i := uint(0); i < attrs.Length(); i++ {
			a := attrs.Item(i)
			if a == nil {
				continue
			}
			if declared, ok := namespaceDeclaration(a); ok && declared == prefix {
				return string(a.NodeValue()), true
			}
		}
		parent, ok := parentElement(cur)
		if !ok {
			break
		}
		cur = parent
	}
	return "", false
}

// namespaceDeclaration reports the prefix an xmlns attribute binds, the
// empty prefix for a default namespace. go-xmldom keeps xmlns:p="..." as
// attribute p in the "xmlns" namespace and xmlns="..." under its own name.
func namespaceDeclaration(a xmldom.Node) (string, bool) {
	name := string(a.NodeName())
	switch ns := string(a.NamespaceURI()); {
	case ns == "xmlns" || ns == XMLNSNamespace:
		prefix := string(a.LocalName())
		if prefix == "" {
			prefix = name
		}
		prefix = strings.TrimPrefix(prefix, "xmlns:")
		if prefix == "xmlns" {
			return "", true
		}
		return prefix, true
	case name == "xmlns":
		return "", true
	case strings.HasPrefix(name, "xmlns:"):
		return strings.TrimPrefix(name, "xmlns:"), true
	}
	return "", false
}

// inScopeNamespaces collects every prefix binding visible at elem
func inScopeNamespaces(elem xmldom.Element) map[string]string {
	namespaces := map[string]string{"xml": XMLNamespace}
	var chain []xmldom.Element
	for cur := elem; cur != nil; {
		chain = append(chain, cur)
		parent, ok := parentElement(cur)
		if !ok {
			break
		}
		cur = parent
	}
	// outermost first so inner declarations win
	for i := len(chain) - 1; i >= 0; i-- {
		attrs := chain[i].Attributes()
		for j := uint(0); j < attrs.Length(); j++ {
			a := attrs.Item(j)
			if a == nil {
				continue
			}
			if prefix, ok := namespaceDeclaration(a); ok {
				namespaces[prefix] = string(a.NodeValue())
			}
		}
	}
	return namespaces
}

func parentElement(elem xmldom.Element) (xmldom.Element, bool) {
	node := elem.ParentNode()
	if node == nil {
		return nil, false
	}
	parent, ok := node.(xmldom.Element)
	return parent, ok
}

func attr(elem xmldom.Element, name string) string {
	return string(elem.GetAttribute(xmldom.DOMString(name)))
}

func optionalAttr(elem xmldom.Element, name string) *string {
	if !elem.HasAttribute(xmldom.DOMString(name)) {
		return nil
	}
	value := attr(elem, name)
	return &value
}

// xsdChildren returns the child elements in the XML Schema namespace
func xsdChildren(elem xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	children := elem.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil || string(child.NamespaceURI()) != XSDNamespace {
			continue
		}
		out = append(out, child)
	}
	return out
}

func lineOf(elem xmldom.Element) int {
	if elem == nil {
		return 0
	}
	line, _, _ := elem.Position()
	return line
}
