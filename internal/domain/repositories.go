package domain

import (
	"context"
)

// CatalogRepository provides read access to services, addons and providers
type CatalogRepository interface {
	// GetServices returns the active service catalog, optionally narrowed by category
	GetServices(ctx context.Context, categoryID string) ([]Service, error)

	// GetService returns a single service
	GetService(ctx context.Context, serviceID string) (*Service, error)

	// GetAddons returns the addons offered for a service
	GetAddons(ctx context.Context, serviceID string) ([]Addon, error)

	// GetProviders returns the provider directory
	GetProviders(ctx context.Context) ([]Provider, error)

	// GetProvider returns a single provider
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
}

// AddressRepository manages the signed-in user's addresses
type AddressRepository interface {
	GetAddresses(ctx context.Context) ([]Address, error)
	CreateAddress(ctx context.Context, in AddressInput) (*Address, error)
	UpdateAddress(ctx context.Context, addressID string, in AddressInput) (*Address, error)
	DeleteAddress(ctx context.Context, addressID string) error
}

// BookingRepository manages bookings
type BookingRepository interface {
	GetBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*Booking, error)

	// CreateBooking submits a booking. idempotencyKey lets the server
	// collapse accidental resubmissions of the same draft.
	CreateBooking(ctx context.Context, req CreateBookingRequest, idempotencyKey string) (*Booking, error)

	UpdateBookingStatus(ctx context.Context, bookingID string, status BookingStatus) (*Booking, error)
}

// AvailabilityRepository computes provider slots on the server
type AvailabilityRepository interface {
	GetSlots(ctx context.Context, providerID, date string, durationMinutes int) (Availability, error)
}

// FavoriteRepository manages favorites of either kind
type FavoriteRepository interface {
	GetFavorites(ctx context.Context, kind FavoriteKind) ([]Favorite, error)
	AddFavorite(ctx context.Context, fav Favorite) error
	RemoveFavorite(ctx context.Context, fav Favorite) error
	// ToggleFavorite flips membership server-side and reports the new state
	ToggleFavorite(ctx context.Context, fav Favorite) (bool, error)
}

// NotificationRepository manages in-app notifications
type NotificationRepository interface {
	GetNotifications(ctx context.Context) ([]Notification, error)
	GetUnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, notificationID string) error
	MarkAllRead(ctx context.Context) error
}

// Credentials are the login form values
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up form
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone,omitempty"`
}

// AuthResult contains the result of a successful authentication
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// AuthRepository talks to the authentication endpoints
type AuthRepository interface {
	Login(ctx context.Context, creds Credentials) (*AuthResult, error)
	Register(ctx context.Context, reg Registration) (*AuthResult, error)
	// Me returns the account behind the current token
	Me(ctx context.Context) (*User, error)
}

// Backend combines every repository the client consumes
type Backend interface {
	CatalogRepository
	AddressRepository
	BookingRepository
	AvailabilityRepository
	FavoriteRepository
	NotificationRepository
	AuthRepository
}
