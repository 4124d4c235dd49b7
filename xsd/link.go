package xsd

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// link resolves every reference collected while parsing and computes the
// effective content of each complex type. It runs once, after all schema
// documents of a load have been parsed.
func (s *Schema) link() error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, errors.Errorf(format, args...))
	}

	for _, st := range s.simpleTypes {
		if !st.BaseName.IsZero() {
			if base, ok := s.simpleTypeNamed(st.BaseName); ok {
				st.Base = base
			} else {
				fail("simple type '%s': base type '%s' is not a simple type definition", st.QName, st.BaseName)
			}
		}
		if !st.ItemName.IsZero() {
			if item, ok := s.simpleTypeNamed(st.ItemName); ok {
				st.Item = item
			} else {
				fail("simple type '%s': item type '%s' is not defined", st.QName, st.ItemName)
			}
		}
		for _, name := range st.MemberNames {
			if member, ok := s.simpleTypeNamed(name); ok {
				st.Members = append(st.Members, member)
			} else {
				fail("simple type '%s': member type '%s' is not defined", st.QName, name)
			}
		}
	}
	for _, st := range s.simpleTypes {
		if err := checkDerivationCycle(st); err != nil {
			fail("%v", err)
		}
	}

	for _, decl := range s.attributes {
		if !decl.Ref.IsZero() {
			global, ok := s.AttributeDecls[decl.Ref]
			if !ok {
				fail("attribute reference '%s' does not resolve to a global attribute", decl.Ref)
				continue
			}
			decl.Name = global.Name
			decl.TypeName = global.TypeName
			if decl.Fixed == nil {
				decl.Fixed = global.Fixed
			}
			if decl.Default == nil {
				decl.Default = global.Default
			}
			continue
		}
		if decl.Type == nil && !decl.TypeName.IsZero() {
			st, ok := s.simpleTypeNamed(decl.TypeName)
			if !ok {
				fail("attribute '%s': type '%s' is not a simple type definition", decl.Name, decl.TypeName)
				continue
			}
			decl.Type = st
		}
	}
	// references copy the type once every global attribute has one
	for _, decl := range s.attributes {
		if !decl.Ref.IsZero() {
			if global, ok := s.AttributeDecls[decl.Ref]; ok {
				decl.Type = global.Type
			}
		}
		if decl.Type == nil {
			decl.Type = builtinType("anySimpleType")
		}
	}

	for _, decl := range s.elements {
		if decl.Type != nil || decl.TypeName.IsZero() {
			continue
		}
		t, ok := s.lookupType(decl.TypeName)
		if !ok {
			fail("element '%s': type '%s' is not defined", decl.Name, decl.TypeName)
			continue
		}
		decl.Type = t
	}
	for _, decl := range s.elements {
		if decl.SubstitutionGroup.IsZero() {
			continue
		}
		head, ok := s.ElementDecls[decl.SubstitutionGroup]
		if !ok {
			fail("element '%s': substitution group head '%s' is not declared", decl.Name, decl.SubstitutionGroup)
			continue
		}
		s.substitutions[head.Name] = append(s.substitutions[head.Name], decl)
	}
	for _, decl := range s.elements {
		if decl.Type == nil {
			decl.Type = s.inheritedType(decl)
		}
	}

	for _, particle := range s.particles {
		switch particle.Kind {
		case ElementRefParticle:
			decl, ok := s.ElementDecls[particle.Ref]
			if !ok {
				fail("element reference '%s' does not resolve to a global element", particle.Ref)
				continue
			}
			particle.Element = decl
		case GroupRefParticle:
			group, ok := s.Groups[particle.Ref]
			if !ok {
				fail("group reference '%s' does not resolve to a model group", particle.Ref)
				continue
			}
			particle.Group = group
		}
	}

	for _, ic := range s.Constraints {
		if ic.Kind != KeyRefConstraint {
			continue
		}
		referred, ok := s.Constraints[ic.Refer]
		if !ok || referred.Kind == KeyRefConstraint {
			fail("keyref '%s' refers to '%s', which is not a key or unique constraint", ic.Name, ic.Refer)
			continue
		}
		if len(referred.fields) != len(ic.fields) {
			fail("keyref '%s' has %d fields, '%s' has %d", ic.Name, len(ic.fields), referred.Name, len(referred.fields))
			continue
		}
		ic.refer = referred
	}

	if errs != nil {
		return errs
	}
	for _, ct := range s.complexTypes {
		if err := s.linkComplexType(ct); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Schema) simpleTypeNamed(name QName) (*SimpleType, bool) {
	t, ok := s.lookupType(name)
	if !ok {
		return nil, false
	}
	st, ok := t.(*SimpleType)
	return st, ok
}

// inheritedType returns the type of an element declared without one: the
// type of its substitution group head, or anyType
func (s *Schema) inheritedType(decl *ElementDecl) Type {
	seen := map[*ElementDecl]bool{}
	for cur := decl; cur != nil && !seen[cur]; cur = s.ElementDecls[cur.SubstitutionGroup] {
		seen[cur] = true
		if cur.Type != nil {
			return cur.Type
		}
		if cur.SubstitutionGroup.IsZero() {
			break
		}
	}
	return anyType
}

func checkDerivationCycle(st *SimpleType) error {
	seen := map[*SimpleType]bool{}
	for cur := st; cur != nil; cur = cur.Base {
		if seen[cur] {
			return errors.Errorf("simple type '%s' derives from itself", st.QName)
		}
		seen[cur] = true
	}
	return nil
}

// linkComplexType computes the effective content model, attribute uses and
// value type of ct, linking its base type first
func (s *Schema) linkComplexType(ct *ComplexType) error {
	if ct.linked {
		return nil
	}
	if ct.inProgress {
		return errors.Errorf("complex type '%s' derives from itself", ct.QName)
	}
	ct.inProgress = true
	defer func() { ct.inProgress = false }()

	var base *ComplexType
	if !ct.BaseName.IsZero() {
		t, ok := s.lookupType(ct.BaseName)
		if !ok {
			return errors.Errorf("complex type '%s': base type '%s' is not defined", ct.QName, ct.BaseName)
		}
		switch b := t.(type) {
		case *ComplexType:
			if err := s.linkComplexType(b); err != nil {
				return err
			}
			base = b
		case *SimpleType:
			if !ct.SimpleContent {
				return errors.Errorf("complex type '%s': complex content cannot derive from simple type '%s'", ct.QName, b.QName)
			}
			ct.valueType = b
		}
	}

	uses, wildcard, err := s.ownAttributes(ct)
	if err != nil {
		return errors.Wrapf(err, "complex type '%s'", ct.QName)
	}

	switch {
	case ct.SimpleContent:
		if base != nil {
			if base.valueType == nil && !base.anyType {
				return errors.Errorf("complex type '%s': simple content base '%s' has no simple content", ct.QName, base.QName)
			}
			ct.valueType = base.valueType
			if ct.valueType == nil {
				ct.valueType = builtinType("anySimpleType")
			}
		}
		if ct.Derivation == RestrictionDerivation && len(ct.Facets) > 0 {
			ct.valueType = &SimpleType{Base: ct.valueType, Facets: ct.Facets}
		}
	case ct.Derivation == ExtensionDerivation && base != nil:
		ct.content = appendContent(base.content, ct.Particle)
		ct.mixed = ct.Mixed || base.mixed
	default:
		ct.content = ct.Particle
		ct.mixed = ct.Mixed
	}

	if base != nil {
		uses = mergeAttributeUses(base.attrUses, uses)
		if ct.Derivation == ExtensionDerivation {
			wildcard = wildcard.union(base.attrAny)
		}
	} else {
		uses = mergeAttributeUses(nil, uses)
	}
	ct.attrUses = uses
	ct.attrAny = wildcard

	if ct.content != nil {
		if group := particleGroup(ct.content); group != nil && group.Kind == AllGroup {
			ct.allGroup = group
		} else {
			a, err := compileContent(ct.content)
			if err != nil {
				return errors.Wrapf(err, "complex type '%s'", ct.QName)
			}
			ct.automaton = a
		}
	}
	ct.linked = true
	return nil
}

// ownAttributes expands the attributes and attribute group references of ct
func (s *Schema) ownAttributes(ct *ComplexType) ([]*AttributeDecl, *Wildcard, error) {
	uses := append([]*AttributeDecl(nil), ct.Attributes...)
	wildcard := ct.AnyAttribute
	seen := map[QName]bool{}
	var expand func(refs []QName) error
	expand = func(refs []QName) error {
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			group, ok := s.AttributeGroups[ref]
			if !ok {
				return errors.Errorf("attribute group '%s' is not defined", ref)
			}
			uses = append(uses, group.Attributes...)
			if group.AnyAttribute != nil {
				wildcard = wildcard.union(group.AnyAttribute)
			}
			if err := expand(group.Refs); err != nil {
				return err
			}
		}
		return nil
	}
	if err := expand(ct.AttributeGroupRefs); err != nil {
		return nil, nil, err
	}
	return uses, wildcard, nil
}

// mergeAttributeUses lays derived uses over inherited ones, a prohibited
// use removes the attribute
func mergeAttributeUses(inherited, own []*AttributeDecl) []*AttributeDecl {
	var merged []*AttributeDecl
	index := map[QName]int{}
	for _, use := range inherited {
		index[use.Name] = len(merged)
		merged = append(merged, use)
	}
	for _, use := range own {
		if i, ok := index[use.Name]; ok {
			merged[i] = use
			continue
		}
		index[use.Name] = len(merged)
		merged = append(merged, use)
	}
	out := merged[:0]
	for _, use := range merged {
		if use.Use == ProhibitedUse {
			continue
		}
		out = append(out, use)
	}
	return out
}

// appendContent builds the content of an extension: the base content
// followed by the added particle
func appendContent(base, added *Particle) *Particle {
	switch {
	case base == nil:
		return added
	case added == nil || isEmptyParticle(added):
		return base
	case isEmptyParticle(base):
		return added
	}
	return &Particle{
		Kind:  GroupParticle,
		Min:   1,
		Max:   1,
		Group: &ModelGroup{Kind: SequenceGroup, Particles: []*Particle{base, added}},
	}
}

func isEmptyParticle(p *Particle) bool {
	group := particleGroup(p)
	return p.Max == 0 || (group != nil && len(group.Particles) == 0)
}

func particleGroup(p *Particle) *ModelGroup {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case GroupParticle, GroupRefParticle:
		return p.Group
	}
	return nil
}
