package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/handy/internal/availability"
	"github.com/mmcdole/handy/internal/booking"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// Options configures the service layer
type Options struct {
	Policies       Policies
	RequestTimeout time.Duration
	Session        SessionOptions
}

// App wires the query layer and every resource service over one backend
type App struct {
	Coordinator *query.Coordinator
	Mutations   *query.Engine

	Catalog       *CatalogService
	Addresses     *AddressService
	Favorites     *FavoriteService
	Bookings      *BookingService
	Notifications *NotificationService
	Session       *SessionService

	slots  domain.AvailabilityRepository
	logger *slog.Logger
}

// NewApp builds the service layer
func NewApp(backend domain.Backend, store domain.SessionStore, opts Options, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	sched := query.NewScheduler(logger)
	coord := query.NewCoordinator(query.NewCache(),
		query.WithLogger(logger),
		query.WithScheduler(sched),
		query.WithRequestTimeout(opts.RequestTimeout),
	)
	engine := query.NewEngine(coord, logger)
	p := opts.Policies
	if p == (Policies{}) {
		p = DefaultPolicies()
	}

	return &App{
		Coordinator:   coord,
		Mutations:     engine,
		Catalog:       NewCatalogService(backend, coord, p, logger),
		Addresses:     NewAddressService(backend, coord, engine, p, logger),
		Favorites:     NewFavoriteService(backend, coord, engine, p, logger),
		Bookings:      NewBookingService(backend, coord, engine, p, logger),
		Notifications: NewNotificationService(backend, coord, engine, p, logger),
		Session:       NewSessionService(backend, store, coord, opts.Session, logger),
		slots:         backend,
		logger:        logger,
	}
}

// OpenWizard starts a booking wizard for serviceID. Service, addons and
// addresses come from the query cache, fetched if missing.
func (a *App) OpenWizard(ctx context.Context, serviceID string) (*booking.Wizard, error) {
	svc, err := a.Catalog.Service(ctx, serviceID)
	if svc == nil {
		if err == nil {
			err = domain.ErrNotFound
		}
		return nil, fmt.Errorf("open booking for %s: %w", serviceID, err)
	}
	addons, err := a.Catalog.Addons(ctx, serviceID)
	if err != nil && addons == nil {
		a.logger.Warn("booking without addons", "service", serviceID, "error", err)
	}
	addrs, err := a.Addresses.List(ctx)
	if err != nil && addrs == nil {
		a.logger.Warn("booking without addresses", "service", serviceID, "error", err)
	}
	return booking.New(booking.Config{
		Service:   *svc,
		Addons:    addons,
		Addresses: addrs,
		Resolver:  availability.NewResolver(a.slots, a.logger),
		Submitter: a.Bookings,
		Logger:    a.logger,
	}), nil
}

// Foreground is the app-foreground revalidation trigger
func (a *App) Foreground() int {
	return a.Coordinator.Trigger(query.TriggerFocus)
}

// Reconnected is the network-reconnect revalidation trigger
func (a *App) Reconnected() int {
	return a.Coordinator.Trigger(query.TriggerReconnect)
}

// Close stops background work
func (a *App) Close() {
	a.Coordinator.Scheduler().Stop()
	a.Coordinator.Scheduler().Wait()
}
