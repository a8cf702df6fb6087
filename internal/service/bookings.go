package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// BookingService reads and changes bookings
type BookingService struct {
	repo     domain.BookingRepository
	q        *query.Coordinator
	mutate   *query.Engine
	policies Policies
	logger   *slog.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(repo domain.BookingRepository, q *query.Coordinator, mutate *query.Engine, policies Policies, logger *slog.Logger) *BookingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingService{repo: repo, q: q, mutate: mutate, policies: policies, logger: logger}
}

// List returns the bookings matching filter
func (s *BookingService) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	bookings, err := query.Get(ctx, s.q, BookingsKey(filter), s.policies.Default, func(ctx context.Context) ([]domain.Booking, error) {
		return s.repo.GetBookings(ctx, filter)
	})
	if err != nil {
		return bookings, fmt.Errorf("load bookings: %w", err)
	}
	return bookings, nil
}

// Get returns one booking
func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := query.Get(ctx, s.q, BookingKey(id), s.policies.Default, func(ctx context.Context) (*domain.Booking, error) {
		return s.repo.GetBooking(ctx, id)
	})
	if err != nil {
		return b, fmt.Errorf("load booking %s: %w", id, err)
	}
	return b, nil
}

// Create submits a booking. Creation is never optimistic: no list gains
// an entry before the server confirms, then the bookings subtree
// refetches. An empty idempotencyKey gets a fresh one.
func (s *BookingService) Create(ctx context.Context, req domain.CreateBookingRequest, idempotencyKey string) (*domain.Booking, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	res, err := s.mutate.Execute(ctx, query.Mutation{
		Name: "booking.create",
		Keys: []query.Key{{RootBookings}},
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.CreateBooking(ctx, req, idempotencyKey)
		},
		OnSuccess: func(c *query.Cache, result any) {
			if b, ok := result.(*domain.Booking); ok && b != nil && b.ID != "" {
				c.Write(BookingKey(b.ID), b)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	b, _ := res.Value.(*domain.Booking)
	return b, nil
}

// UpdateStatus changes a booking's status. The detail entry and unfiltered
// lists are patched immediately; status-filtered lists are left for the
// refetch because membership in them changes with the status.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	res, err := s.mutate.Execute(ctx, query.Mutation{
		Name:    "booking.status",
		Keys:    []query.Key{{RootBookings}},
		Predict: predictBookingStatus(id, status),
		Commit: func(ctx context.Context) (any, error) {
			return s.repo.UpdateBookingStatus(ctx, id, status)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("update booking %s: %w", id, err)
	}
	b, _ := res.Value.(*domain.Booking)
	return b, nil
}

// Cancel cancels a booking
func (s *BookingService) Cancel(ctx context.Context, id string) (*domain.Booking, error) {
	return s.UpdateStatus(ctx, id, domain.BookingCancelled)
}

func predictBookingStatus(id string, status domain.BookingStatus) query.Predictor {
	return func(key query.Key, data any) (any, bool) {
		switch v := data.(type) {
		case *domain.Booking:
			if v == nil || v.ID != id {
				return nil, false
			}
			next := *v
			next.Status = status
			return &next, true
		case []domain.Booking:
			if len(key) > 2 {
				if f, ok := key[2].(domain.BookingFilter); ok && f.Status != "" {
					return nil, false
				}
			}
			idx := -1
			for i := range v {
				if v[i].ID == id {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, false
			}
			out := make([]domain.Booking, len(v))
			copy(out, v)
			out[idx].Status = status
			return out, true
		}
		return nil, false
	}
}
