package service

import (
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// Root segments of the query key space. Lists and details of a resource
// share the root so a root-level invalidation reaches both.
const (
	RootServices      = "services"
	RootAddons        = "addons"
	RootProviders     = "providers"
	RootAddresses     = "addresses"
	RootFavorites     = "favorites"
	RootBookings      = "bookings"
	RootNotifications = "notifications"
	RootAuth          = "auth"
)

// serviceFilter is the services list filter segment
type serviceFilter struct {
	CategoryID string `json:"category_id,omitempty"`
}

// ServicesKey addresses the service catalog, optionally by category
// (services → list → {category})
func ServicesKey(categoryID string) query.Key {
	return query.Key{RootServices, "list", serviceFilter{CategoryID: categoryID}}
}

// ServiceKey addresses one service (services → detail → id)
func ServiceKey(id string) query.Key {
	return query.Key{RootServices, "detail", id}
}

// AddonsKey addresses the addons of one service
func AddonsKey(serviceID string) query.Key {
	return query.Key{RootAddons, "service", serviceID}
}

// ProvidersKey addresses the provider directory
func ProvidersKey() query.Key {
	return query.Key{RootProviders, "list"}
}

// ProviderKey addresses one provider
func ProviderKey(id string) query.Key {
	return query.Key{RootProviders, "detail", id}
}

// AddressesKey addresses the signed-in user's address book
func AddressesKey() query.Key {
	return query.Key{RootAddresses, "me"}
}

// FavoritesPrefix covers every favorites list regardless of kind
func FavoritesPrefix() query.Key {
	return query.Key{RootFavorites}
}

// FavoritesKey addresses the favorites list of one kind
// (favorites → list → kind)
func FavoritesKey(kind domain.FavoriteKind) query.Key {
	return query.Key{RootFavorites, "list", string(kind)}
}

// BookingsKey addresses a bookings list (bookings → list → {filter})
func BookingsKey(filter domain.BookingFilter) query.Key {
	return query.Key{RootBookings, "list", filter}
}

// BookingKey addresses one booking (bookings → detail → id)
func BookingKey(id string) query.Key {
	return query.Key{RootBookings, "detail", id}
}

// NotificationsKey addresses the notifications list
func NotificationsKey() query.Key {
	return query.Key{RootNotifications, "list"}
}

// UnreadCountKey addresses the unread notifications badge
func UnreadCountKey() query.Key {
	return query.Key{RootNotifications, "unread"}
}

// MeKey addresses the signed-in account
func MeKey() query.Key {
	return query.Key{RootAuth, "me"}
}
