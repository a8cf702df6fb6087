package tui

import (
	"github.com/mmcdole/handy/internal/booking"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// ServicesLoadedMsg carries the catalog. Services may be the last good
// list even when Err is set.
type ServicesLoadedMsg struct {
	Services []domain.Service
	Err      error
}

// FavoriteToggledMsg reports a favorite toggle
type FavoriteToggledMsg struct {
	ServiceID string
	On        bool
	Err       error
}

// UnreadCountMsg carries the unread badge count
type UnreadCountMsg struct {
	Count int
	Err   error
}

// CacheChangedMsg signals that a query cache entry changed
type CacheChangedMsg struct {
	Key   query.Key
	Entry query.Entry
}

// SessionEndedMsg signals that the session was torn down
type SessionEndedMsg struct {
	Reason error
}

// WizardOpenedMsg carries a new booking wizard
type WizardOpenedMsg struct {
	Wizard *booking.Wizard
	Err    error
}

// SlotsLoadedMsg signals a slot load finished for the wizard's date
type SlotsLoadedMsg struct {
	Err error
}

// BookingSubmittedMsg reports a booking submission
type BookingSubmittedMsg struct {
	Booking *domain.Booking
	Err     error
}

// BookingsLoadedMsg carries the bookings list
type BookingsLoadedMsg struct {
	Bookings []domain.Booking
	Err      error
}

// BookingCancelledMsg reports a cancellation
type BookingCancelledMsg struct {
	BookingID string
	Err       error
}

// NotificationsLoadedMsg carries the inbox
type NotificationsLoadedMsg struct {
	Notifications []domain.Notification
	Err           error
}

// NotificationsReadMsg reports a mark-read mutation
type NotificationsReadMsg struct {
	Err error
}

// LoggedOutMsg signals a voluntary logout finished
type LoggedOutMsg struct{}
