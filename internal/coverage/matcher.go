package coverage

import "strings"

// NameMatcher decides whether a calendar entry's employee field refers to a
// roster employee. The matching direction matters: the employee name is looked
// up inside the entry text, never the other way around.
type NameMatcher interface {
	Match(entryName, employeeName string) bool
}

// SubstringMatcher matches when the employee name appears case-insensitively
// inside the calendar entry text. This tolerates entry-title variance like
// "Vacations John Smith" or "Vacation: John Smith", at the cost of ambiguity
// when roster names overlap; see Evaluator's diagnostic handling.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(entryName, employeeName string) bool {
	if entryName == "" || employeeName == "" {
		return false
	}
	return strings.Contains(strings.ToLower(entryName), strings.ToLower(employeeName))
}
