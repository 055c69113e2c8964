package feed

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

const DescriptionLimit = 300

var (
	// The strict policy drops script and style content but writes no space
	// in their place, which would glue the surrounding words together.
	scriptOrStyle = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)

	stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#34;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
	)
)

// StripMarkup turns an HTML fragment into a single line of plain text.
// Script and style blocks are dropped with their content, every other tag is
// replaced by a space and whitespace runs collapse to one space.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}

	s = scriptOrStyle.ReplaceAllString(s, " ")
	s = stripPolicy.Sanitize(s)
	s = entities.Replace(s)
	s = norm.NFC.String(s)

	return strings.Join(strings.Fields(s), " ")
}

// Sanitize strips markup and truncates the result to limit runes, appending
// "..." when anything was cut.
func Sanitize(s string, limit int) string {
	return truncate(StripMarkup(s), limit)
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
