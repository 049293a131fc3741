package models

import "time"

// Variant is one raw, possibly partial attribute set for a topic.
type Variant map[string]any

// TopicData wraps the chosen variant under its topic name: {topic: variant}.
type TopicData map[string]Variant

// RawResult is a single search result as returned by the retrieval layer.
type RawResult struct {
	Link    string               `json:"link"`
	Title   string               `json:"title"`
	Snippet string               `json:"snippet"`
	Pagemap map[string][]Variant `json:"pagemap,omitempty"`
}

// Property is one typed attribute extracted from a result's structured data.
// Value holds either the raw value or a float64 for numeric and duration terms.
type Property struct {
	Domain string `json:"domain"`
	Range  string `json:"range"`
	Name   string `json:"name"`
	Label  string `json:"label"`
	Value  any    `json:"value"`
	Unit   string `json:"unit,omitempty"`
}

// Item is the canonical structure kept in the result store, keyed by URL.
type Item struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Properties  []Property  `json:"properties"`
	TopicData   []TopicData `json:"topic_data"`
	StoredAt    time.Time   `json:"stored_at"`
}

// HasStructuredData reports whether any topic data was recorded for the item.
func (i Item) HasStructuredData() bool {
	return len(i.TopicData) > 0
}

// Facet is a deduplicated, selectable (domain, name, value) triple.
type Facet struct {
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Value    any    `json:"value"`
	Type     string `json:"type"`
	Selected bool   `json:"selected"`
}
