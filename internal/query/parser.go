package query

import (
	"errors"
	"strings"
)

// TopicDelimiter separates the keyword from topic tags, e.g. "cheesecake#Recipe".
const TopicDelimiter = "#"

// ErrMissingKeyword is returned when the input carries no keyword to search for.
var ErrMissingKeyword = errors.New("query has no keyword")

// Query is a parsed user query.
type Query struct {
	Keyword string
	Topics  []string
}

// Parse splits raw into a keyword and topic tags. When no tag is given every
// known topic is searched.
func Parse(raw string, known []string) (Query, error) {
	parts := strings.Split(raw, TopicDelimiter)
	keyword := strings.TrimSpace(parts[0])
	if keyword == "" {
		return Query{}, ErrMissingKeyword
	}

	seen := make(map[string]struct{}, len(parts))
	topics := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		tag := strings.TrimSpace(part)
		if tag == "" || tag == keyword {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		topics = append(topics, tag)
	}

	if len(topics) == 0 {
		topics = append(topics, known...)
	}

	return Query{Keyword: keyword, Topics: topics}, nil
}
