package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/handy/internal/domain"
)

// RankProviders returns the providers whose business name contains the
// query's characters in order, ignoring case and diacritics. Closer
// matches come first; ties go to the better rated provider.
func RankProviders(query string, providers []domain.Provider) []domain.Provider {
	query = strings.TrimSpace(query)
	if query == "" {
		return byRating(providers)
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.BusinessName
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return providers[ranks[i].OriginalIndex].Rating > providers[ranks[j].OriginalIndex].Rating
	})

	out := make([]domain.Provider, len(ranks))
	for i, r := range ranks {
		out[i] = providers[r.OriginalIndex]
	}
	return out
}

func byRating(providers []domain.Provider) []domain.Provider {
	out := append([]domain.Provider(nil), providers...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rating > out[j].Rating
	})
	return out
}
