package search

import (
	"reflect"
	"testing"

	"github.com/mmcdole/handy/internal/domain"
)

func serviceNames(matches []ServiceMatch) []string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Service.Name
	}
	return names
}

func TestFilterServices(t *testing.T) {
	services := []domain.Service{
		{ID: "s1", Name: "Deep Clean"},
		{ID: "s2", Name: "Window Wash"},
		{ID: "s3", Name: "Dog Care"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty keeps order", "", []string{"Deep Clean", "Window Wash", "Dog Care"}},
		{"whitespace is empty", "   ", []string{"Deep Clean", "Window Wash", "Dog Care"}},
		{"case insensitive", "WINDOW", []string{"Window Wash"}},
		{"no match", "plumbing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serviceNames(FilterServices(tt.query, services))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterServices(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestFilterServicesSubsequence(t *testing.T) {
	services := []domain.Service{
		{ID: "s1", Name: "Deep Clean"},
		{ID: "s2", Name: "Window Wash"},
		{ID: "s3", Name: "Dog Care"},
	}
	matches := FilterServices("dc", services)
	got := map[string]bool{}
	for _, m := range matches {
		got[m.Service.ID] = true
		if len(m.MatchedIndexes) != 2 || m.MatchedIndexes[0] != 0 {
			t.Errorf("%s matched indexes = %v, want 2 starting at 0", m.Service.Name, m.MatchedIndexes)
		}
	}
	if !got["s1"] || !got["s3"] || got["s2"] {
		t.Errorf("FilterServices(dc) matched %v, want s1 and s3", got)
	}
}

func TestServiceIndexReuse(t *testing.T) {
	idx := NewServiceIndex([]domain.Service{{Name: "Lawn Mowing"}, {Name: "Gutter Cleaning"}})
	if idx.Len() != 2 || idx.String(1) != "gutter cleaning" {
		t.Fatalf("index = %d entries, String(1) = %q", idx.Len(), idx.String(1))
	}
	if got := serviceNames(idx.Filter("lawn")); !reflect.DeepEqual(got, []string{"Lawn Mowing"}) {
		t.Errorf("Filter(lawn) = %v", got)
	}
	if got := serviceNames(idx.Filter("gutter")); !reflect.DeepEqual(got, []string{"Gutter Cleaning"}) {
		t.Errorf("Filter(gutter) = %v", got)
	}
}

func TestActiveOnlyAndSortByPrice(t *testing.T) {
	services := []domain.Service{
		{ID: "a", BasePrice: 90, IsActive: true},
		{ID: "b", BasePrice: 40, IsActive: false},
		{ID: "c", BasePrice: 40, IsActive: true},
		{ID: "d", BasePrice: 60, IsActive: true},
	}
	var ids []string
	for _, s := range SortByPrice(ActiveOnly(services)) {
		ids = append(ids, s.ID)
	}
	if want := []string{"c", "d", "a"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("SortByPrice(ActiveOnly()) = %v, want %v", ids, want)
	}
	if services[0].ID != "a" {
		t.Error("SortByPrice mutated its input")
	}
}

func providerIDs(ps []domain.Provider) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func TestRankProviders(t *testing.T) {
	providers := []domain.Provider{
		{ID: "p1", BusinessName: "Sparkle Co", Rating: 4.1},
		{ID: "p2", BusinessName: "Shine Bright", Rating: 4.7},
		{ID: "p3", BusinessName: "Sparkle Bo", Rating: 4.9},
		{ID: "p4", BusinessName: "Café Crew", Rating: 3.2},
		{ID: "p5", BusinessName: "Sparkle Professionals", Rating: 5.0},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty sorts by rating", "", []string{"p5", "p3", "p2", "p1", "p4"}},
		{"closer names first, ties by rating", "sparkle", []string{"p3", "p1", "p5"}},
		{"diacritics folded", "cafe", []string{"p4"}},
		{"no match", "zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := providerIDs(RankProviders(tt.query, providers))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RankProviders(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
