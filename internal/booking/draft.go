package booking

import (
	"sort"
	"strings"

	"github.com/mmcdole/handy/internal/domain"
)

// Step is a wizard stage. Steps are linear and cannot be skipped.
type Step int

const (
	StepDateTime Step = iota
	StepAddress
	StepAddons
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepDateTime:
		return "datetime"
	case StepAddress:
		return "address"
	case StepAddons:
		return "addons"
	case StepReview:
		return "review"
	}
	return "unknown"
}

// PaymentMethod is the only payment method the client submits
const PaymentMethod = "cash"

// Draft is the ephemeral booking form for one wizard session
type Draft struct {
	ServiceID string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	AddressID string
	Addons    map[string]struct{}
	Notes     string
	Step      Step
}

// HasAddon reports whether addon id is selected
func (d Draft) HasAddon(id string) bool {
	_, ok := d.Addons[id]
	return ok
}

// AddonIDs returns the selected addon ids, sorted
func (d Draft) AddonIDs() []string {
	ids := make([]string, 0, len(d.Addons))
	for id := range d.Addons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d Draft) clone() Draft {
	out := d
	out.Addons = make(map[string]struct{}, len(d.Addons))
	for id := range d.Addons {
		out.Addons[id] = struct{}{}
	}
	return out
}

// BuildRequest converts a draft into the booking-create payload
func BuildRequest(d Draft) domain.CreateBookingRequest {
	req := domain.CreateBookingRequest{
		ServiceID:     d.ServiceID,
		ScheduledDate: d.Date,
		ScheduledTime: wireTime(d.Time),
		AddressID:     d.AddressID,
		CustomerNotes: strings.TrimSpace(d.Notes),
		PaymentMethod: PaymentMethod,
	}
	for _, id := range d.AddonIDs() {
		req.Addons = append(req.Addons, domain.BookingAddon{AddonID: id, Quantity: 1})
	}
	return req
}

// wireTime turns a slot time "HH:MM" into "HH:MM:SS"
func wireTime(t string) string {
	if strings.Count(t, ":") == 1 {
		return t + ":00"
	}
	return t
}

// Pricing is derived from the service and the addon selection; it is
// recomputed on every read and never stored
type Pricing struct {
	Base   float64
	Addons float64
	Total  float64
}

// Price sums the service base price and the price of every selected addon
func Price(service domain.Service, addons []domain.Addon, selected map[string]struct{}) Pricing {
	p := Pricing{Base: service.BasePrice}
	for _, a := range addons {
		if _, ok := selected[a.ID]; ok {
			p.Addons += a.Price
		}
	}
	p.Total = p.Base + p.Addons
	return p
}
