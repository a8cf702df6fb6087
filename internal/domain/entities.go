package domain

import (
	"fmt"
	"time"
)

// Role values reported by /auth/me
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// User is the signed-in account as returned by the auth endpoints
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role"`
	IsSuspended bool   `json:"is_suspended"`
}

// Category groups services in the catalog
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service is a bookable offering published by a provider
type Service struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	CategoryID      string  `json:"category_id,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	BasePrice       float64 `json:"base_price"`
	DurationMinutes int     `json:"duration_minutes"`
	IsActive        bool    `json:"is_active"`
}

// Addon is an optional extra that can be attached to a service booking
type Addon struct {
	ID        string  `json:"id"`
	ServiceID string  `json:"service_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

// Provider is a business or individual offering services
type Provider struct {
	ID           string  `json:"id"`
	BusinessName string  `json:"business_name"`
	Description  string  `json:"description,omitempty"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	IsVerified   bool    `json:"is_verified"`
}

// Address is a customer service location
type Address struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	IsDefault  bool   `json:"is_default"`
}

// AddressInput is the payload for creating or updating an address
type AddressInput struct {
	Label      string `json:"label,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	IsDefault  *bool  `json:"is_default,omitempty"`
}

// BookingStatus is the server-side lifecycle state of a booking
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// Booking is a reservation of a service at a provider time slot
type Booking struct {
	ID            string         `json:"id"`
	ServiceID     string         `json:"service_id"`
	ProviderID    string         `json:"provider_id,omitempty"`
	AddressID     string         `json:"address_id,omitempty"`
	ScheduledDate string         `json:"scheduled_date"`
	ScheduledTime string         `json:"scheduled_time"`
	Status        BookingStatus  `json:"status"`
	TotalPrice    float64        `json:"total_price"`
	CustomerNotes string         `json:"customer_notes,omitempty"`
	Addons        []BookingAddon `json:"addons,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BookingAddon is one addon line of a booking
type BookingAddon struct {
	AddonID  string `json:"addon_id"`
	Quantity int    `json:"quantity"`
}

// CreateBookingRequest is the POST /bookings payload
type CreateBookingRequest struct {
	ServiceID     string         `json:"service_id"`
	ScheduledDate string         `json:"scheduled_date"`
	ScheduledTime string         `json:"scheduled_time"`
	AddressID     string         `json:"address_id,omitempty"`
	Addons        []BookingAddon `json:"addons,omitempty"`
	CustomerNotes string         `json:"customer_notes,omitempty"`
	PaymentMethod string         `json:"payment_method"`
}

// BookingFilter narrows the bookings list
type BookingFilter struct {
	Status BookingStatus `json:"status,omitempty"`
}

// Notification is an in-app message for the user
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Slot is a bookable start time on a provider's calendar for one date
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Availability is the slot list for one (provider, date, duration) query
type Availability struct {
	Date    string
	Slots   []Slot
	Message string
}

// FavoriteKind discriminates the two shapes of favorite records
type FavoriteKind string

const (
	FavoriteService  FavoriteKind = "service"
	FavoriteProvider FavoriteKind = "provider"
)

// Favorite is a tagged union: either a favorited service or a favorited
// provider. The backend sends both shapes; the API client resolves them
// into this type so callers never inspect raw payload fields.
type Favorite struct {
	Kind     FavoriteKind `json:"kind"`
	TargetID string       `json:"target_id"`
	// RecordID is the favorites row id, when the server sent one
	RecordID string    `json:"record_id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Service  *Service  `json:"service,omitempty"`
	Provider *Provider `json:"provider,omitempty"`
}

// ServiceFavorite builds a service favorite reference
func ServiceFavorite(id string) Favorite {
	return Favorite{Kind: FavoriteService, TargetID: id}
}

// ProviderFavorite builds a provider favorite reference
func ProviderFavorite(id string) Favorite {
	return Favorite{Kind: FavoriteProvider, TargetID: id}
}

// Matches reports whether f refers to the same target as other
func (f Favorite) Matches(other Favorite) bool {
	return f.Kind == other.Kind && f.TargetID == other.TargetID
}

// Validate checks the union is well formed
func (f Favorite) Validate() error {
	switch f.Kind {
	case FavoriteService, FavoriteProvider:
	default:
		return fmt.Errorf("unknown favorite kind %q", f.Kind)
	}
	if f.TargetID == "" {
		return fmt.Errorf("favorite %s has no target id", f.Kind)
	}
	return nil
}
