package notify

import (
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render substitutes {variable} placeholders in a template body. Unresolved
// variables render as the empty string; rendering never fails.
func Render(body string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
}
