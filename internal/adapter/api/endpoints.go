package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmcdole/handy/internal/domain"
)

// GetServices returns the service catalog, optionally narrowed by category
func (c *Client) GetServices(ctx context.Context, categoryID string) ([]domain.Service, error) {
	var q url.Values
	if categoryID != "" {
		q = url.Values{"category_id": {categoryID}}
	}
	var services []domain.Service
	if err := c.get(ctx, "/services", q, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// GetService returns a single service
func (c *Client) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	var svc domain.Service
	if err := c.get(ctx, "/services/"+url.PathEscape(serviceID), nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// GetAddons returns the addons offered for a service
func (c *Client) GetAddons(ctx context.Context, serviceID string) ([]domain.Addon, error) {
	var addons []domain.Addon
	if err := c.get(ctx, "/addons/service/"+url.PathEscape(serviceID), nil, &addons); err != nil {
		return nil, err
	}
	return addons, nil
}

// GetProviders returns the provider directory
func (c *Client) GetProviders(ctx context.Context) ([]domain.Provider, error) {
	var providers []domain.Provider
	if err := c.get(ctx, "/providers", nil, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// GetProvider returns a single provider
func (c *Client) GetProvider(ctx context.Context, providerID string) (*domain.Provider, error) {
	var p domain.Provider
	if err := c.get(ctx, "/providers/"+url.PathEscape(providerID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetAddresses returns the signed-in user's addresses
func (c *Client) GetAddresses(ctx context.Context) ([]domain.Address, error) {
	var addrs []domain.Address
	if err := c.get(ctx, "/addresses/me", nil, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// CreateAddress adds an address
func (c *Client) CreateAddress(ctx context.Context, in domain.AddressInput) (*domain.Address, error) {
	var a domain.Address
	if err := c.send(ctx, http.MethodPost, "/addresses", in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAddress patches an address
func (c *Client) UpdateAddress(ctx context.Context, addressID string, in domain.AddressInput) (*domain.Address, error) {
	var a domain.Address
	if err := c.send(ctx, http.MethodPatch, "/addresses/"+url.PathEscape(addressID), in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAddress removes an address
func (c *Client) DeleteAddress(ctx context.Context, addressID string) error {
	return c.send(ctx, http.MethodDelete, "/addresses/"+url.PathEscape(addressID), nil, nil)
}

// GetBookings returns the user's bookings
func (c *Client) GetBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	var q url.Values
	if filter.Status != "" {
		q = url.Values{"status": {string(filter.Status)}}
	}
	var bookings []domain.Booking
	if err := c.get(ctx, "/bookings", q, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetBooking returns a single booking
func (c *Client) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := c.get(ctx, "/bookings/"+url.PathEscape(bookingID), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBooking submits a booking. The idempotency key travels in the
// Idempotency-Key header.
func (c *Client) CreateBooking(ctx context.Context, req domain.CreateBookingRequest, idempotencyKey string) (*domain.Booking, error) {
	body, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/bookings",
		body:           req,
		idempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	var b domain.Booking
	if err := decode(body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBookingStatus moves a booking to status
func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID string, status domain.BookingStatus) (*domain.Booking, error) {
	var b domain.Booking
	path := fmt.Sprintf("/bookings/%s/status", url.PathEscape(bookingID))
	if err := c.send(ctx, http.MethodPatch, path, statusRequest{Status: status}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetSlots returns the provider's slots for date and service duration
func (c *Client) GetSlots(ctx context.Context, providerID, date string, durationMinutes int) (domain.Availability, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("serviceDuration", strconv.Itoa(durationMinutes))

	var resp SlotsResponse
	path := fmt.Sprintf("/availability/provider/%s/slots", url.PathEscape(providerID))
	if err := c.get(ctx, path, q, &resp); err != nil {
		return domain.Availability{}, err
	}
	return MapSlots(date, resp), nil
}

// GetNotifications returns the user's notifications
func (c *Client) GetNotifications(ctx context.Context) ([]domain.Notification, error) {
	var list []domain.Notification
	if err := c.get(ctx, "/notifications", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetUnreadCount returns the unread notification count
func (c *Client) GetUnreadCount(ctx context.Context) (int, error) {
	var resp countResponse
	if err := c.get(ctx, "/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.Count != nil:
		return *resp.Count, nil
	case resp.UnreadCount != nil:
		return *resp.UnreadCount, nil
	}
	return 0, fmt.Errorf("failed to parse response: no count")
}

// MarkRead marks a notification read
func (c *Client) MarkRead(ctx context.Context, notificationID string) error {
	path := fmt.Sprintf("/notifications/%s/read", url.PathEscape(notificationID))
	return c.send(ctx, http.MethodPatch, path, nil, nil)
}

// MarkAllRead marks every notification read
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.send(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
}
