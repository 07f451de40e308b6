package store

import (
	"github.com/sahilm/fuzzy"

	"github.com/rashpile/scriptmate/pkg/script"
)

type searchSource []script.Definition

func (s searchSource) String(i int) string { return s[i].ID + " " + s[i].Label }
func (s searchSource) Len() int            { return len(s) }

// Search returns the definitions whose id or label fuzzy-match query,
// best match first. An empty query returns every definition in stored order.
func (r *Registry) Search(query string) []script.Definition {
	defs := r.List()
	if query == "" {
		return defs
	}

	matches := fuzzy.FindFrom(query, searchSource(defs))
	out := make([]script.Definition, 0, len(matches))
	for _, m := range matches {
		out = append(out, defs[m.Index])
	}
	return out
}
