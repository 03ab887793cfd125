package challengegen

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips every tag. Challenge text is shown as plain text.
var textPolicy = bluemonday.StrictPolicy()

// sanitizeText removes markup from model output and undoes the entity
// escaping the policy applies, so "a < b" survives unchanged.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// sanitize cleans every text field of c in place.
func sanitize(c *Challenge) {
	c.Question = sanitizeText(c.Question)
	c.Explanation = sanitizeText(c.Explanation)
	for i, o := range c.Options {
		c.Options[i] = sanitizeText(o)
	}
}
