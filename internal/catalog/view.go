// internal/catalog/view.go
package catalog

import (
	"sort"
	"strings"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// recentCount is the fixed size of the recent slice derived from the full
// ordered view.
const recentCount = 4

// kindRank orders equal-timestamp assets: clips before references before
// results. The ordering is part of the view contract, not a display detail.
func kindRank(k model.AssetKind) int {
	switch k {
	case model.AssetKindClip:
		return 0
	case model.AssetKindReference:
		return 1
	default:
		return 2
	}
}

// DeriveView computes the catalog view from the three collections and the
// active filter. It is a pure function: equal inputs always produce equal
// output, and the input slices are never mutated.
//
// The pipeline is category selection, then filename search, then tag filter,
// then ordering. Recent is always the head of the full ordered set under the
// same filter, never an independently filtered list.
func DeriveView(clips, references, results []model.Asset, filter model.CatalogFilter) model.CatalogView {
	var pool []model.Asset
	if filter.Category != nil {
		switch *filter.Category {
		case model.AssetKindClip:
			pool = append(pool, clips...)
		case model.AssetKindReference:
			pool = append(pool, references...)
		case model.AssetKindResult:
			pool = append(pool, results...)
		}
	} else {
		pool = make([]model.Asset, 0, len(clips)+len(references)+len(results))
		pool = append(pool, clips...)
		pool = append(pool, references...)
		pool = append(pool, results...)
	}

	if q := strings.ToLower(strings.TrimSpace(filter.SearchQuery)); q != "" {
		filtered := pool[:0:len(pool)]
		for _, a := range pool {
			if strings.Contains(strings.ToLower(a.Filename), q) {
				filtered = append(filtered, a)
			}
		}
		pool = filtered
	}

	if len(filter.Tags) > 0 {
		filtered := pool[:0:len(pool)]
		for _, a := range pool {
			if matchesAnyTag(a, filter.Tags) {
				filtered = append(filtered, a)
			}
		}
		pool = filtered
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].CreatedAt != pool[j].CreatedAt {
			return pool[i].CreatedAt > pool[j].CreatedAt
		}
		return kindRank(pool[i].Kind) < kindRank(pool[j].Kind)
	})

	recent := pool
	if len(recent) > recentCount {
		recent = recent[:recentCount]
	}
	return model.CatalogView{All: pool, Recent: recent}
}

// matchesAnyTag applies OR semantics across the selected tags. Variants
// without a tag attribute never match once any tag is selected, and a tagless
// clip is excluded the same way.
func matchesAnyTag(a model.Asset, tags []string) bool {
	if !a.HasTags() || len(a.Tags) == 0 {
		return false
	}
	for _, want := range tags {
		for _, have := range a.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
