package plugin

// SelectorKind discriminates the selector forms. The four wire forms map
// onto three kinds: a single type and a list of types share SelectorTypes.
type SelectorKind int

const (
	SelectorAll SelectorKind = iota
	SelectorTypes             // single type or a list of types
	SelectorIncludeExclude
)

// Selector filters event types for a listener. The wire form is
// JSON-compatible: the string "*", a single type string, an array of
// type strings, or {include, exclude?}.
type Selector struct {
	Kind       SelectorKind
	Types      []string // used when Kind == SelectorTypes
	IncludeAll bool      // used when Kind == SelectorIncludeExclude and include == "*"
	Include    []string  // used when Kind == SelectorIncludeExclude and include is a list
	Exclude    []string  // used when Kind == SelectorIncludeExclude
}

// Wildcard matches every event type.
func Wildcard() Selector { return Selector{Kind: SelectorAll} }

// SingleType matches exactly one event type.
func SingleType(t string) Selector { return Selector{Kind: SelectorTypes, Types: []string{t}} }

// TypeList matches any of the given event types.
func TypeList(ts ...string) Selector { return Selector{Kind: SelectorTypes, Types: ts} }

// IncludeExclude matches (includeAll or type ∈ include) and not
// (type ∈ exclude).
func IncludeExclude(includeAll bool, include, exclude []string) Selector {
	return Selector{Kind: SelectorIncludeExclude, IncludeAll: includeAll, Include: include, Exclude: exclude}
}

// Matches applies the selector's matching rule to an event type.
func (s Selector) Matches(eventType string) bool {
	switch s.Kind {
	case SelectorAll:
		return true
	case SelectorTypes:
		return containsString(s.Types, eventType)
	case SelectorIncludeExclude:
		included := s.IncludeAll || containsString(s.Include, eventType)
		excluded := containsString(s.Exclude, eventType)
		return included && !excluded
	default:
		return false
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
