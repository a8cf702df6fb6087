package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/handy/internal/booking"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/service"
)

// Command factories for async operations

const (
	loadTimeout   = 30 * time.Second
	mutateTimeout = 15 * time.Second
)

// LoadServicesCmd loads the service catalog
func LoadServicesCmd(svc *service.CatalogService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		services, err := svc.Services(ctx, "")
		return ServicesLoadedMsg{Services: services, Err: err}
	}
}

// LoadFavoritesCmd warms the service favorites list. The model reads the
// result back from the cache through CacheChangedMsg.
func LoadFavoritesCmd(svc *service.FavoriteService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if _, err := svc.List(ctx, domain.FavoriteService); err != nil {
			return ErrMsg{Err: err, Context: "loading favorites"}
		}
		return nil
	}
}

// ToggleFavoriteCmd flips the favorite state of a service
func ToggleFavoriteCmd(svc *service.FavoriteService, serviceID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
		defer cancel()

		on, err := svc.Toggle(ctx, domain.ServiceFavorite(serviceID))
		return FavoriteToggledMsg{ServiceID: serviceID, On: on, Err: err}
	}
}

// LoadUnreadCmd loads the unread badge count
func LoadUnreadCmd(svc *service.NotificationService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		n, err := svc.UnreadCount(ctx)
		return UnreadCountMsg{Count: n, Err: err}
	}
}

// OpenWizardCmd opens a booking wizard for a service
func OpenWizardCmd(app *service.App, serviceID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		w, err := app.OpenWizard(ctx, serviceID)
		return WizardOpenedMsg{Wizard: w, Err: err}
	}
}

// LoadSlotsCmd runs a slot loader returned by Wizard.SetDate
func LoadSlotsCmd(load func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		return SlotsLoadedMsg{Err: load(ctx)}
	}
}

// RefreshSlotsCmd re-fetches the wizard's slots for its selected date
func RefreshSlotsCmd(w *booking.Wizard) tea.Cmd {
	return LoadSlotsCmd(w.RefreshSlots)
}

// SubmitBookingCmd submits the wizard draft
func SubmitBookingCmd(w *booking.Wizard) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
		defer cancel()

		b, err := w.Submit(ctx)
		return BookingSubmittedMsg{Booking: b, Err: err}
	}
}

// LoadBookingsCmd loads the unfiltered bookings list
func LoadBookingsCmd(svc *service.BookingService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		list, err := svc.List(ctx, domain.BookingFilter{})
		return BookingsLoadedMsg{Bookings: list, Err: err}
	}
}

// CancelBookingCmd cancels a booking
func CancelBookingCmd(svc *service.BookingService, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
		defer cancel()

		_, err := svc.Cancel(ctx, id)
		return BookingCancelledMsg{BookingID: id, Err: err}
	}
}

// LoadNotificationsCmd loads the inbox
func LoadNotificationsCmd(svc *service.NotificationService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		list, err := svc.List(ctx)
		return NotificationsLoadedMsg{Notifications: list, Err: err}
	}
}

// MarkReadCmd marks one notification read
func MarkReadCmd(svc *service.NotificationService, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
		defer cancel()

		return NotificationsReadMsg{Err: svc.MarkRead(ctx, id)}
	}
}

// MarkAllReadCmd clears the inbox
func MarkAllReadCmd(svc *service.NotificationService) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutateTimeout)
		defer cancel()

		return NotificationsReadMsg{Err: svc.MarkAllRead(ctx)}
	}
}

// LogoutCmd ends the session. The teardown listener delivers the
// SessionEndedMsg; this only reports failures to clear storage.
func LogoutCmd(svc *service.SessionService) tea.Cmd {
	return func() tea.Msg {
		if err := svc.Logout(); err != nil {
			return ErrMsg{Err: err, Context: "logout"}
		}
		return LoggedOutMsg{}
	}
}
