package api

import (
	"strings"

	"github.com/mmcdole/handy/internal/domain"
)

// MapFavorites resolves raw favorite rows into the Favorite union.
// Rows whose target cannot be determined are dropped.
func MapFavorites(kind domain.FavoriteKind, rows []FavoriteRecord) []domain.Favorite {
	favs := make([]domain.Favorite, 0, len(rows))
	for _, r := range rows {
		if f, ok := mapFavorite(kind, r); ok {
			favs = append(favs, f)
		}
	}
	return favs
}

func mapFavorite(kind domain.FavoriteKind, r FavoriteRecord) (domain.Favorite, bool) {
	f := domain.Favorite{Kind: kind}
	switch kind {
	case domain.FavoriteService:
		switch {
		case r.ServiceID != "":
			f.TargetID, f.RecordID = r.ServiceID, r.ID
		case r.Service != nil && r.Service.ID != "":
			f.TargetID, f.RecordID = r.Service.ID, r.ID
		default:
			// bare row: id is the service id
			f.TargetID = r.ID
		}
		f.Service = r.Service
		f.Name = r.Name
		if f.Name == "" && r.Service != nil {
			f.Name = r.Service.Name
		}
	case domain.FavoriteProvider:
		switch {
		case r.ProviderID != "":
			f.TargetID, f.RecordID = r.ProviderID, r.ID
		case r.Provider != nil && r.Provider.ID != "":
			f.TargetID, f.RecordID = r.Provider.ID, r.ID
		default:
			f.TargetID = r.ID
		}
		f.Provider = r.Provider
		f.Name = r.Business
		if f.Name == "" && r.Provider != nil {
			f.Name = r.Provider.BusinessName
		}
		if f.Name == "" {
			f.Name = r.Name
		}
	}
	return f, f.Validate() == nil
}

// MapSlots converts the availability reply. Times are normalized to HH:MM.
func MapSlots(date string, resp SlotsResponse) domain.Availability {
	out := domain.Availability{Date: date, Message: resp.Message}
	if resp.Date != "" {
		out.Date = resp.Date
	}
	out.Slots = make([]domain.Slot, 0, len(resp.Slots))
	for _, s := range resp.Slots {
		t := normalizeTime(s.Time)
		if t == "" {
			continue
		}
		out.Slots = append(out.Slots, domain.Slot{Time: t, Available: s.Available})
	}
	return out
}

// normalizeTime trims a seconds suffix ("09:00:00" → "09:00")
func normalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if len(t) == len("15:04:05") && strings.Count(t, ":") == 2 {
		return t[:5]
	}
	return t
}
