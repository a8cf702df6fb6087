package service

import (
	"time"

	"github.com/mmcdole/handy/internal/query"
)

// Policies holds the freshness rules per class of data
type Policies struct {
	// Default applies to ordinary collections (catalog, addresses, bookings)
	Default query.Policy
	// Providers is short-lived and polled while a provider list is open
	Providers query.Policy
	// Unread is the notifications badge, polled while visible
	Unread query.Policy
	// Reference data that rarely changes (addons)
	Reference query.Policy
}

// DefaultPolicies returns the stock policies
func DefaultPolicies() Policies {
	ref := query.DefaultPolicy()
	ref.StaleTime = 10 * time.Minute
	ref.RefetchOnFocus = false
	return Policies{
		Default:   query.DefaultPolicy(),
		Providers: query.Polling(time.Minute),
		Unread:    query.Polling(30 * time.Second),
		Reference: ref,
	}
}
