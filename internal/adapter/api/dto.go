package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mmcdole/handy/internal/domain"
)

// FavoriteRecord is one row of a favorites reply. Service favorites have
// been seen keyed by service_id with a nested service, or by id alone;
// provider favorites the same with provider_id.
type FavoriteRecord struct {
	ID         string           `json:"id"`
	ServiceID  string           `json:"service_id,omitempty"`
	ProviderID string           `json:"provider_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Business   string           `json:"business_name,omitempty"`
	Service    *domain.Service  `json:"service,omitempty"`
	Provider   *domain.Provider `json:"provider,omitempty"`
}

// SlotsResponse is the availability reply
type SlotsResponse struct {
	Date    string      `json:"date,omitempty"`
	Slots   []SlotValue `json:"slots"`
	Message string      `json:"message,omitempty"`
}

// SlotValue decodes a slot sent either as a bare "HH:MM" string (always
// available) or as {"time": "HH:MM", "available": bool}
type SlotValue struct {
	Time      string
	Available bool
}

func (s *SlotValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var t string
		if err := json.Unmarshal(b, &t); err != nil {
			return err
		}
		s.Time, s.Available = t, true
		return nil
	}
	var obj struct {
		Time      string `json:"time"`
		StartTime string `json:"start_time"`
		Available *bool  `json:"available"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("slot: %w", err)
	}
	s.Time = obj.Time
	if s.Time == "" {
		s.Time = obj.StartTime
	}
	s.Available = obj.Available == nil || *obj.Available
	return nil
}

// AuthResponse is the login and register reply
type AuthResponse struct {
	Token       string      `json:"token"`
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

type userEnvelope struct {
	User *domain.User `json:"user"`
}

type countResponse struct {
	Count       *int `json:"count"`
	UnreadCount *int `json:"unread_count"`
}

type toggleResponse struct {
	IsFavorite *bool `json:"is_favorite"`
	Favorited  *bool `json:"favorited"`
}

type statusRequest struct {
	Status domain.BookingStatus `json:"status"`
}
