package xsd

import "strings"

// ProcessContents is the processContents mode of a wildcard
type ProcessContents string

const (
	StrictProcess ProcessContents = "strict"
	LaxProcess    ProcessContents = "lax"
	SkipProcess   ProcessContents = "skip"
)

// Wildcard represents xs:any and xs:anyAttribute
type Wildcard struct {
	Any     bool
	Other   bool // ##other: any namespace except the target namespace and no namespace
	Allowed []string
	Process ProcessContents

	targetNamespace string
}

// parseWildcard builds a wildcard from the namespace and processContents attributes
func parseWildcard(namespace, process, targetNamespace string) *Wildcard {
	w := &Wildcard{Process: ProcessContents(process), targetNamespace: targetNamespace}
	if w.Process == "" {
		w.Process = StrictProcess
	}

	namespace = strings.TrimSpace(namespace)
	switch namespace {
	case "", "##any":
		w.Any = true
	case "##other":
		w.Other = true
	default:
		for _, token := range strings.Fields(namespace) {
			switch token {
			case "##targetNamespace":
				w.Allowed = append(w.Allowed, targetNamespace)
			case "##local":
				w.Allowed = append(w.Allowed, "")
			default:
				w.Allowed = append(w.Allowed, token)
			}
		}
	}
	return w
}

// Matches reports whether a name in namespace is allowed by the wildcard
func (w *Wildcard) Matches(namespace string) bool {
	switch {
	case w.Any:
		return true
	case w.Other:
		return namespace != "" && namespace != w.targetNamespace
	}
	for _, allowed := range w.Allowed {
		if allowed == namespace {
			return true
		}
	}
	return false
}

// String renders the wildcard for "Expected is" lists
func (w *Wildcard) String() string {
	switch {
	case w.Any:
		return "*"
	case w.Other:
		return "##other{" + w.targetNamespace + "}*"
	}
	parts := make([]string, 0, len(w.Allowed))
	for _, ns := range w.Allowed {
		if ns == "" {
			parts = append(parts, "*")
			continue
		}
		parts = append(parts, "{"+ns+"}*")
	}
	return strings.Join(parts, ", ")
}

// union merges two attribute wildcards, used for derived complex types
func (w *Wildcard) union(other *Wildcard) *Wildcard {
	if w == nil {
		return other
	}
	if other == nil || w.Any {
		return w
	}
	if other.Any {
		return other
	}
	merged := &Wildcard{
		Other:           w.Other || other.Other,
		Process:         w.Process,
		targetNamespace: w.targetNamespace,
	}
	merged.Allowed = append(append(merged.Allowed, w.Allowed...), other.Allowed...)
	return merged
}
