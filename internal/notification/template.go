package notification

import (
	"fmt"
	"regexp"
)

// A name is any run without braces; surrounding whitespace is trimmed.
var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s](?:[^{}]*[^{}\s])?)\s*\}\}`)

// Render replaces every {{name}} with fmt.Sprint(vars[name]). Unknown names
// render as the empty string. The template is plain text, never executed.
func Render(tmpl string, vars map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}
