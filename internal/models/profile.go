package models

import (
	"errors"
	"fmt"
)

// Topic lists the terms extracted for one schema topic. Terms, Labels and
// Types are index-aligned.
type Topic struct {
	Name   string   `yaml:"name" json:"name"`
	Terms  []string `yaml:"terms" json:"terms"`
	Labels []string `yaml:"labels" json:"labels"`
	Types  []string `yaml:"dtype" json:"dtype"`
}

// Term is a single configured attribute of a topic.
type Term struct {
	Name  string
	Label string
	Type  string
}

// Entries returns the topic's terms with their labels and declared types.
func (t Topic) Entries() []Term {
	out := make([]Term, 0, len(t.Terms))
	for i, name := range t.Terms {
		out = append(out, Term{Name: name, Label: t.Labels[i], Type: t.Types[i]})
	}
	return out
}

// Profile is the extraction vocabulary: topics in order plus the target unit
// for each term. A term missing from Units is not converted.
type Profile struct {
	Topics []Topic           `yaml:"topics" json:"topics"`
	Units  map[string]string `yaml:"units" json:"units"`
}

// Validate checks that topic names are unique and the parallel lists align.
func (p Profile) Validate() error {
	if len(p.Topics) == 0 {
		return errors.New("profile has no topics")
	}
	seen := make(map[string]struct{}, len(p.Topics))
	for i, t := range p.Topics {
		if t.Name == "" {
			return fmt.Errorf("topic %d has no name", i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("topic %q declared twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		if len(t.Labels) != len(t.Terms) || len(t.Types) != len(t.Terms) {
			return fmt.Errorf("topic %q: terms, labels and dtype must have equal length (%d, %d, %d)",
				t.Name, len(t.Terms), len(t.Labels), len(t.Types))
		}
	}
	return nil
}

// TopicNames returns every configured topic in declaration order.
func (p Profile) TopicNames() []string {
	names := make([]string, 0, len(p.Topics))
	for _, t := range p.Topics {
		names = append(names, t.Name)
	}
	return names
}

// Topic looks up a topic by name.
func (p Profile) Topic(name string) (Topic, bool) {
	for _, t := range p.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}

// Unit returns the target unit for a term, or "" when none is configured.
func (p Profile) Unit(term string) string {
	return p.Units[term]
}
