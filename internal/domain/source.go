package domain

import (
	"encoding/json"
	"sort"
)

// Source is a citation attached to retrieved context.
type Source struct {
	SourceName string `json:"source_name,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
}

// IsZero reports whether neither field is set.
func (s Source) IsZero() bool {
	return s.SourceName == "" && s.SourceURL == ""
}

// Key is the canonical serialization used to compare sources structurally.
func (s Source) Key() string {
	// Struct field order is fixed, so Marshal output is stable.
	b, err := json.Marshal(s)
	if err != nil {
		return s.SourceName + "\x00" + s.SourceURL
	}
	return string(b)
}

// SourceSet is a set of sources keyed by canonical serialization.
type SourceSet struct {
	items map[string]Source
}

// NewSourceSet builds a set from the given sources, dropping duplicates.
func NewSourceSet(sources ...Source) SourceSet {
	set := SourceSet{items: make(map[string]Source, len(sources))}
	for _, s := range sources {
		set.Add(s)
	}
	return set
}

// Add inserts s and reports whether it was new.
func (ss *SourceSet) Add(s Source) bool {
	if ss.items == nil {
		ss.items = make(map[string]Source)
	}
	key := s.Key()
	if _, exists := ss.items[key]; exists {
		return false
	}
	ss.items[key] = s
	return true
}

// Contains reports whether a structurally equal source is in the set.
func (ss SourceSet) Contains(s Source) bool {
	_, ok := ss.items[s.Key()]
	return ok
}

// Len returns the number of distinct sources.
func (ss SourceSet) Len() int {
	return len(ss.items)
}

// Sorted returns the sources ordered by canonical key.
func (ss SourceSet) Sorted() []Source {
	keys := make([]string, 0, len(ss.items))
	for k := range ss.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Source, 0, len(keys))
	for _, k := range keys {
		out = append(out, ss.items[k])
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (ss SourceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ss.Sorted())
}
