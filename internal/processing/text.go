package processing

import (
	"html"
	"regexp"
	"strings"
)

var (
	titleSeparator = regexp.MustCompile(`\s-\s`)
	titleLead      = regexp.MustCompile(`^([^|•:(+]+)`)
)

// CleanSnippet unescapes HTML entities and squeezes whitespace.
func CleanSnippet(input string) string {
	if input == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(input)), " ")
}

// ShortTitle drops the site name and other trailing decoration from a page
// title: "Best Cheesecake - Food Blog" becomes "Best Cheesecake".
func ShortTitle(title string) string {
	text := titleSeparator.ReplaceAllString(title, "|")
	match := titleLead.FindStringSubmatch(text)
	if match == nil {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(match[1])
}

// GenerateTitleFromText creates a title from the first sentence or first N words of text.
// Returns empty string if text is empty.
func GenerateTitleFromText(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	// Try to find first sentence (ending with . ! ?)
	sentenceEnd := strings.IndexAny(text, ".!?")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(text[:sentenceEnd])
	} else {
		firstSentence = text
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
		return strings.Join(words, " ") + "..."
	}

	return strings.Join(words, " ")
}
