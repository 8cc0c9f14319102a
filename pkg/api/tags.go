package api

import (
	"sort"
	"strings"
)

// TagSet is a set of caller tags or capabilities. A nil TagSet is empty.
type TagSet map[string]struct{}

// NewTagSet builds a set from tags, skipping blanks.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// ParseTagSet parses a comma or space separated list, as carried in headers.
func ParseTagSet(list string) TagSet {
	return NewTagSet(strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})...)
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Union returns a new set holding the members of s and o.
func (s TagSet) Union(o TagSet) TagSet {
	out := make(TagSet, len(s)+len(o))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range o {
		out[t] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s TagSet) String() string {
	return strings.Join(s.Sorted(), ",")
}
