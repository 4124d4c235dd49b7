// Package xsd compiles W3C XML Schema documents into an in-memory model and
// validates xmldom documents against it, reporting violations with the
// wording libxml2 uses so that existing tooling can consume the messages.
package xsd

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
)

const (
	// XSDNamespace is the XML Schema namespace
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
	// XSINamespace is the XML Schema instance namespace
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	// XMLNamespace is the namespace bound to the reserved xml prefix
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
	// XMLNSNamespace is the namespace of namespace declarations
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"

	// Unbounded is the MaxOccurs value of maxOccurs="unbounded"
	Unbounded = -1
)

// QName represents a qualified XML name
type QName struct {
	Namespace string
	Local     string
}

// String returns the name the way libxml2 prints it in messages
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// IsZero reports whether the name is empty
func (q QName) IsZero() bool {
	return q.Local == ""
}

// Schema is a compiled schema, possibly assembled from several documents
// through xs:include and xs:import. It is immutable once loaded and safe for
// concurrent validation.
type Schema struct {
	TargetNamespace string
	ElementDecls    map[QName]*ElementDecl
	AttributeDecls  map[QName]*AttributeDecl
	TypeDefs        map[QName]Type
	Groups          map[QName]*ModelGroup
	AttributeGroups map[QName]*AttributeGroup
	Constraints     map[QName]*IdentityConstraint

	// head element -> elements declaring it as substitutionGroup
	substitutions map[QName][]*ElementDecl

	// components collected while parsing, linked once loading is complete
	elements     []*ElementDecl
	attributes   []*AttributeDecl
	simpleTypes  []*SimpleType
	complexTypes []*ComplexType
	particles    []*Particle
}

func newSchema() *Schema {
	return &Schema{
		ElementDecls:    make(map[QName]*ElementDecl),
		AttributeDecls:  make(map[QName]*AttributeDecl),
		TypeDefs:        make(map[QName]Type),
		Groups:          make(map[QName]*ModelGroup),
		AttributeGroups: make(map[QName]*AttributeGroup),
		Constraints:     make(map[QName]*IdentityConstraint),
		substitutions:   make(map[QName][]*ElementDecl),
	}
}

// Type is implemented by *SimpleType and *ComplexType
type Type interface {
	Name() QName
}

// ElementDecl represents a global or local element declaration
type ElementDecl struct {
	Name              QName
	TypeName          QName
	Type              Type
	Abstract          bool
	Nillable          bool
	Fixed             *string
	Default           *string
	SubstitutionGroup QName
	Constraints       []*IdentityConstraint
}

// Variety is the variety of a simple type
type Variety int

const (
	AtomicVariety Variety = iota
	ListVariety
	UnionVariety
)

// SimpleType represents an XSD simple type. Built-in types carry the name of
// their datatype in builtin and have no base.
type SimpleType struct {
	QName       QName
	Variety     Variety
	BaseName    QName
	Base        *SimpleType
	Facets      []Facet
	ItemName    QName
	Item        *SimpleType
	MemberNames []QName
	Members     []*SimpleType

	builtin string
}

// Name returns the type name, zero for anonymous types
func (st *SimpleType) Name() QName { return st.QName }

// Derivation tells how a complex type derives from its base
type Derivation int

const (
	NoDerivation Derivation = iota
	ExtensionDerivation
	RestrictionDerivation
)

// ComplexType represents an XSD complex type
type ComplexType struct {
	QName              QName
	Abstract           bool
	Mixed              bool
	SimpleContent      bool
	Derivation         Derivation
	BaseName           QName
	Particle           *Particle
	Facets             []Facet
	Attributes         []*AttributeDecl
	AttributeGroupRefs []QName
	AnyAttribute       *Wildcard

	anyType bool

	// effective content computed by link
	content    *Particle
	attrUses   []*AttributeDecl
	attrAny    *Wildcard
	valueType  *SimpleType
	mixed      bool
	automaton  *automaton
	allGroup   *ModelGroup
	linked     bool
	inProgress bool
}

// Name returns the type name, zero for anonymous types
func (ct *ComplexType) Name() QName { return ct.QName }

// anyType is the ur-type: any attributes, any content
var anyType = &ComplexType{
	QName:        QName{Namespace: XSDNamespace, Local: "anyType"},
	Mixed:        true,
	AnyAttribute: &Wildcard{Any: true, Process: LaxProcess},
	anyType:      true,
	mixed:        true,
	attrAny:      &Wildcard{Any: true, Process: LaxProcess},
	linked:       true,
}

// Compositor is the kind of a model group
type Compositor string

const (
	SequenceGroup Compositor = "sequence"
	ChoiceGroup   Compositor = "choice"
	AllGroup      Compositor = "all"
)

// ModelGroup represents xs:sequence, xs:choice or xs:all
type ModelGroup struct {
	Name      QName
	Kind      Compositor
	Particles []*Particle
}

// ParticleKind tells which term a particle carries
type ParticleKind int

const (
	ElementParticle ParticleKind = iota
	ElementRefParticle
	GroupParticle
	GroupRefParticle
	WildcardParticle
)

// Particle is a term of a content model together with its occurrence range
type Particle struct {
	Kind     ParticleKind
	Min      int
	Max      int
	Element  *ElementDecl
	Ref      QName
	Group    *ModelGroup
	Wildcard *Wildcard
}

// AttributeUse is the use attribute of an attribute declaration
type AttributeUse string

const (
	OptionalUse   AttributeUse = "optional"
	RequiredUse   AttributeUse = "required"
	ProhibitedUse AttributeUse = "prohibited"
)

// AttributeDecl represents an attribute declaration or reference
type AttributeDecl struct {
	Name     QName
	Ref      QName
	TypeName QName
	Type     *SimpleType
	Use      AttributeUse
	Fixed    *string
	Default  *string
}

// AttributeGroup represents a named xs:attributeGroup
type AttributeGroup struct {
	Name         QName
	Attributes   []*AttributeDecl
	Refs         []QName
	AnyAttribute *Wildcard
}

// Violation is a single schema validity error
type Violation struct {
	Element xmldom.Element
	Line    int
	Code    string
	Message string
}

// lookupType finds a named type, including the built-in datatypes
func (s *Schema) lookupType(name QName) (Type, bool) {
	if name.Namespace == XSDNamespace {
		if name.Local == "anyType" {
			return anyType, true
		}
		if st := builtinType(name.Local); st != nil {
			return st, true
		}
		return nil, false
	}
	t, ok := s.TypeDefs[name]
	return t, ok
}

// substitutable reports whether decl may appear where head is expected
func (s *Schema) substitutable(decl, head *ElementDecl) bool {
	seen := map[*ElementDecl]bool{}
	for cur := decl; cur != nil && !seen[cur]; {
		if cur == head {
			return true
		}
		seen[cur] = true
		if cur.SubstitutionGroup.IsZero() {
			return false
		}
		cur = s.ElementDecls[cur.SubstitutionGroup]
	}
	return false
}
