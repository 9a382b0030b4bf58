package cosmetic

import "strings"

// dynamicStateSelectors lists pseudo-classes and pseudo-elements whose match
// set depends on page or user state.
var dynamicStateSelectors = []string{
	":active",
	"::after",
	"::before",
	":checked",
	":default",
	":disabled",
	":empty",
	":enabled",
	":first-child",
	"::first-letter",
	"::first-line",
	":first-of-type",
	":focus",
	":hover",
	":last-child",
	":last-of-type",
	":nth-child",
	":nth-last-child",
	":nth-last-of-type",
	":nth-of-type",
}

// IsIdempotent reports whether selector contains any of the dynamic-state
// pseudo selectors. It is a plain substring test, not a CSS parse: a match
// inside an attribute value counts too.
func IsIdempotent(selector string) bool {
	for _, s := range dynamicStateSelectors {
		if strings.Contains(selector, s) {
			return true
		}
	}
	return false
}
