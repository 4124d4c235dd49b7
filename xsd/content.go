package xsd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// maxExpandedOccurs bounds how many copies of a particle the automaton
// expands. Larger bounded counts are treated as unbounded once the minimum
// is reached.
const maxExpandedOccurs = 64

// term is what a labelled transition consumes: an element declaration or a
// wildcard
type term struct {
	element  *ElementDecl
	wildcard *Wildcard
}

func (t term) String() string {
	if t.element != nil {
		return t.element.Name.String()
	}
	return t.wildcard.String()
}

type edge struct {
	term term
	to   int
}

type state struct {
	epsilon []int
	edges   []edge
}

// automaton is a Thompson NFA over child elements compiled from a content
// model. Simulation keeps the set of live states, so ambiguous models still
// validate.
type automaton struct {
	states []state
	start  int
	accept int
}

type compiler struct {
	a      *automaton
	groups map[*ModelGroup]bool
}

func compileContent(p *Particle) (*automaton, error) {
	c := &compiler{a: &automaton{}, groups: map[*ModelGroup]bool{}}
	in, out, err := c.particle(p)
	if err != nil {
		return nil, err
	}
	c.a.start, c.a.accept = in, out
	return c.a, nil
}

func (c *compiler) newState() int {
	c.a.states = append(c.a.states, state{})
	return len(c.a.states) - 1
}

func (c *compiler) link(from, to int) {
	c.a.states[from].epsilon = append(c.a.states[from].epsilon, to)
}

// particle compiles p with its occurrence range into a fragment and returns
// the fragment's entry and exit states
func (c *compiler) particle(p *Particle) (int, int, error) {
	in := c.newState()
	cur := in
	if p.Max == 0 {
		return in, in, nil
	}

	min := p.Min
	if min > maxExpandedOccurs {
		min = maxExpandedOccurs
	}
	max := p.Max
	if max != Unbounded && max > maxExpandedOccurs {
		max = Unbounded
	}

	for i := 0; i < min; i++ {
		tIn, tOut, err := c.term(p)
		if err != nil {
			return 0, 0, err
		}
		c.link(cur, tIn)
		cur = tOut
	}

	if max == Unbounded {
		loop := c.newState()
		c.link(cur, loop)
		tIn, tOut, err := c.term(p)
		if err != nil {
			return 0, 0, err
		}
		c.link(loop, tIn)
		c.link(tOut, loop)
		return in, loop, nil
	}

	out := c.newState()
	for i := min; i < max; i++ {
		c.link(cur, out)
		tIn, tOut, err := c.term(p)
		if err != nil {
			return 0, 0, err
		}
		c.link(cur, tIn)
		cur = tOut
	}
	c.link(cur, out)
	return in, out, nil
}

// term compiles one occurrence of the particle's term
func (c *compiler) term(p *Particle) (int, int, error) {
	switch p.Kind {
	case ElementParticle, ElementRefParticle:
		if p.Element == nil {
			return 0, 0, errors.Errorf("unresolved element reference '%s'", p.Ref)
		}
		in, out := c.newState(), c.newState()
		c.a.states[in].edges = append(c.a.states[in].edges, edge{term: term{element: p.Element}, to: out})
		return in, out, nil
	case WildcardParticle:
		in, out := c.newState(), c.newState()
		c.a.states[in].edges = append(c.a.states[in].edges, edge{term: term{wildcard: p.Wildcard}, to: out})
		return in, out, nil
	}

	group := p.Group
	if group == nil {
		return 0, 0, errors.Errorf("unresolved group reference '%s'", p.Ref)
	}
	if c.groups[group] {
		return 0, 0, errors.Errorf("model group '%s' references itself", group.Name)
	}
	c.groups[group] = true
	defer delete(c.groups, group)

	in, out := c.newState(), c.newState()
	switch group.Kind {
	case ChoiceGroup:
		if len(group.Particles) == 0 {
			// an empty choice matches nothing
			return in, out, nil
		}
		for _, member := range group.Particles {
			mIn, mOut, err := c.particle(member)
			if err != nil {
				return 0, 0, err
			}
			c.link(in, mIn)
			c.link(mOut, out)
		}
	case AllGroup:
		// xs:all below the top level is only approximated: any member, any order
		loop := c.newState()
		c.link(in, loop)
		c.link(loop, out)
		for _, member := range group.Particles {
			mIn, mOut, err := c.particle(member)
			if err != nil {
				return 0, 0, err
			}
			c.link(loop, mIn)
			c.link(mOut, loop)
		}
	default:
		cur := in
		for _, member := range group.Particles {
			mIn, mOut, err := c.particle(member)
			if err != nil {
				return 0, 0, err
			}
			c.link(cur, mIn)
			cur = mOut
		}
		c.link(cur, out)
	}
	return in, out, nil
}

// stateSet is an epsilon-closed set of live automaton states, kept in
// insertion order so expected-element lists are stable
type stateSet struct {
	order  []int
	member map[int]bool
}

func (a *automaton) closure(seeds []int) *stateSet {
	set := &stateSet{member: map[int]bool{}}
	stack := append([]int(nil), seeds...)
	for len(stack) > 0 {
		s := stack[0]
		stack = stack[1:]
		if set.member[s] {
			continue
		}
		set.member[s] = true
		set.order = append(set.order, s)
		stack = append(stack, a.states[s].epsilon...)
	}
	return set
}

// matcher runs a content model over the child elements of one element
type matcher struct {
	a      *automaton
	schema *Schema
	live   *stateSet
}

func (a *automaton) matcher(s *Schema) *matcher {
	return &matcher{a: a, schema: s, live: a.closure([]int{a.start})}
}

// step consumes a child named name and returns the term it matched
func (m *matcher) step(name QName) (term, bool) {
	var (
		next    []int
		matched term
		found   bool
	)
	for _, s := range m.live.order {
		for _, e := range m.a.states[s].edges {
			if !m.schema.termMatches(e.term, name) {
				continue
			}
			if !found {
				matched, found = e.term, true
			}
			next = append(next, e.to)
		}
	}
	if !found {
		return term{}, false
	}
	m.live = m.a.closure(next)
	return matched, true
}

func (m *matcher) accepting() bool {
	return m.live.member[m.a.accept]
}

func (m *matcher) missing() []string {
	return m.expected()
}

// expected lists the terms that could follow, the way libxml2 prints them
func (m *matcher) expected() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range m.live.order {
		for _, e := range m.a.states[s].edges {
			for _, name := range m.schema.termNames(e.term) {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// termMatches reports whether an element named name may appear for t,
// directly or through its substitution group
func (s *Schema) termMatches(t term, name QName) bool {
	if t.wildcard != nil {
		return t.wildcard.Matches(name.Namespace)
	}
	return s.declFor(t.element, name) != nil
}

// declFor returns the declaration governing an element named name matched
// against decl: decl itself or a member of its substitution group
func (s *Schema) declFor(decl *ElementDecl, name QName) *ElementDecl {
	if decl.Name == name {
		return decl
	}
	member, ok := s.ElementDecls[name]
	if !ok || member.SubstitutionGroup.IsZero() || s.ElementDecls[decl.Name] != decl {
		return nil
	}
	if s.substitutable(member, decl) {
		return member
	}
	return nil
}

// termNames renders t for an expected list, abstract heads are replaced by
// their substitution group members
func (s *Schema) termNames(t term) []string {
	if t.wildcard != nil {
		return []string{t.wildcard.String()}
	}
	var names []string
	if !t.element.Abstract {
		names = append(names, t.element.Name.String())
	}
	for _, member := range s.substitutions[t.element.Name] {
		if s.ElementDecls[t.element.Name] == t.element {
			names = append(names, s.termNames(term{element: member})...)
		}
	}
	return names
}

// expectedSuffix formats the "Expected is" clause appended to content model
// errors
func expectedSuffix(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(" Expected is ( %s ).", names[0])
	}
	return fmt.Sprintf(" Expected is one of ( %s ).", strings.Join(names, ", "))
}

// allMatcher validates the children of an xs:all content model by counting
type allMatcher struct {
	schema   *Schema
	group    *ModelGroup
	optional bool
	counts   map[*Particle]int
	total    int
}

func newAllMatcher(s *Schema, content *Particle) *allMatcher {
	return &allMatcher{
		schema:   s,
		group:    content.Group,
		optional: content.Min == 0,
		counts:   map[*Particle]int{},
	}
}

func (m *allMatcher) step(name QName) (term, bool) {
	for _, p := range m.group.Particles {
		if p.Element == nil || m.schema.declFor(p.Element, name) == nil {
			continue
		}
		max := p.Max
		if max == Unbounded {
			max = maxExpandedOccurs
		}
		if m.counts[p] >= max {
			return term{}, false
		}
		m.counts[p]++
		m.total++
		return term{element: p.Element}, true
	}
	return term{}, false
}

func (m *allMatcher) accepting() bool {
	if m.total == 0 && m.optional {
		return true
	}
	return len(m.missing()) == 0
}

func (m *allMatcher) missing() []string {
	var out []string
	for _, p := range m.group.Particles {
		if p.Element != nil && m.counts[p] < p.Min {
			out = append(out, p.Element.Name.String())
		}
	}
	return out
}

func (m *allMatcher) expected() []string {
	var out []string
	for _, p := range m.group.Particles {
		if p.Element != nil && (p.Max == Unbounded || m.counts[p] < p.Max) {
			out = append(out, m.schema.termNames(term{element: p.Element})...)
		}
	}
	return out
}

// contentMatcher is implemented by the automaton and xs:all matchers
type contentMatcher interface {
	step(name QName) (term, bool)
	accepting() bool
	expected() []string
	missing() []string
}
