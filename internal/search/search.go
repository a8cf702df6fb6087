// Package search filters cached catalog data for the front end. Nothing
// here touches the network: it works on whatever the query cache holds.
package search

import (
	"sort"
	"strings"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/sahilm/fuzzy"
)

// ServiceMatch is one filtered service with match metadata for highlighting
type ServiceMatch struct {
	Service        domain.Service
	MatchedIndexes []int // rune positions in Service.Name
	Score          int   // higher is better
}

// ServiceIndex implements fuzzy.Source over service names. Lowercase names
// are computed once so repeated filtering while typing doesn't allocate.
type ServiceIndex struct {
	services []domain.Service
	lower    []string
}

// NewServiceIndex indexes services in display order
func NewServiceIndex(services []domain.Service) *ServiceIndex {
	idx := &ServiceIndex{
		services: services,
		lower:    make([]string, len(services)),
	}
	for i, s := range services {
		idx.lower[i] = strings.ToLower(s.Name)
	}
	return idx
}

// String returns the lowercase name at i (implements fuzzy.Source)
func (idx *ServiceIndex) String(i int) string { return idx.lower[i] }

// Len returns the number of services (implements fuzzy.Source)
func (idx *ServiceIndex) Len() int { return len(idx.services) }

// Filter returns the services matching query, best first. An empty query
// returns every service in index order.
func (idx *ServiceIndex) Filter(query string) []ServiceMatch {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		out := make([]ServiceMatch, len(idx.services))
		for i, s := range idx.services {
			out[i] = ServiceMatch{Service: s}
		}
		return out
	}

	matches := fuzzy.FindFrom(query, idx)
	out := make([]ServiceMatch, len(matches))
	for i, m := range matches {
		out[i] = ServiceMatch{
			Service:        idx.services[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return out
}

// FilterServices is a one-shot Filter over services
func FilterServices(query string, services []domain.Service) []ServiceMatch {
	return NewServiceIndex(services).Filter(query)
}

// ActiveOnly drops services the provider has deactivated
func ActiveOnly(services []domain.Service) []domain.Service {
	out := make([]domain.Service, 0, len(services))
	for _, s := range services {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// SortByPrice orders services by base price, cheapest first. Equal prices
// keep their relative order.
func SortByPrice(services []domain.Service) []domain.Service {
	out := append([]domain.Service(nil), services...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BasePrice < out[j].BasePrice
	})
	return out
}
