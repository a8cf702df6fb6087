// Package availability fetches provider time slots for a single date.
// Results are never cached: every call supersedes the previous one.
package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/handy/internal/domain"
)

// ErrSuperseded is returned when a later Resolve (or Cancel) was issued
// before this response arrived. The response must not be applied.
var ErrSuperseded = errors.New("availability request superseded")

// DefaultEmptyMessage is shown when the server reports no slots without a message
const DefaultEmptyMessage = "No available slots"

// DateLayout is the wire format of scheduled dates
const DateLayout = "2006-01-02"

// Request identifies one availability query
type Request struct {
	ProviderID      string
	Date            string
	DurationMinutes int
}

// Result is the slot list for one request, tagged with its epoch
type Result struct {
	Request
	Epoch   uint64
	Slots   []domain.Slot
	Message string
}

// Empty reports whether the date has no slots at all
func (r Result) Empty() bool { return len(r.Slots) == 0 }

// IsAvailable reports whether t is in the slot list and bookable
func (r Result) IsAvailable(t string) bool {
	for _, s := range r.Slots {
		if s.Time == t {
			return s.Available
		}
	}
	return false
}

// Available returns the bookable slot times in server order
func (r Result) Available() []string {
	var out []string
	for _, s := range r.Slots {
		if s.Available {
			out = append(out, s.Time)
		}
	}
	return out
}

// Resolver is an epoch-guarded slot fetcher. Only the response of the
// latest call is ever returned as a success.
type Resolver struct {
	repo   domain.AvailabilityRepository
	logger *slog.Logger

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
}

// NewResolver creates a resolver backed by repo
func NewResolver(repo domain.AvailabilityRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, logger: logger}
}

// Begin starts a new epoch and cancels the request of the previous one.
// Callers that clear UI state before resolving use the returned epoch to
// recognise their own response.
func (r *Resolver) Begin(parent context.Context) (uint64, context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.epoch++
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	return r.epoch, ctx
}

// Resolve fetches the slots for (providerID, date, durationMinutes)
func (r *Resolver) Resolve(ctx context.Context, providerID, date string, durationMinutes int) (Result, error) {
	epoch, rctx := r.Begin(ctx)
	return r.fetch(rctx, epoch, Request{ProviderID: providerID, Date: date, DurationMinutes: durationMinutes})
}

// ResolveEpoch fetches for an epoch obtained from Begin
func (r *Resolver) ResolveEpoch(ctx context.Context, epoch uint64, req Request) (Result, error) {
	return r.fetch(ctx, epoch, req)
}

func (r *Resolver) fetch(ctx context.Context, epoch uint64, req Request) (Result, error) {
	res := Result{Request: req, Epoch: epoch}
	if err := validate(req); err != nil {
		return res, err
	}

	av, err := r.repo.GetSlots(ctx, req.ProviderID, req.Date, req.DurationMinutes)
	if !r.IsCurrent(epoch) {
		r.logger.Debug("dropped superseded availability", "epoch", epoch, "date", req.Date)
		return res, ErrSuperseded
	}
	if err != nil {
		return res, fmt.Errorf("load slots for %s: %w", req.Date, err)
	}

	res.Slots = av.Slots
	res.Message = av.Message
	if res.Empty() && res.Message == "" {
		res.Message = DefaultEmptyMessage
	}
	r.logger.Debug("resolved availability", "epoch", epoch, "date", req.Date, "slots", len(res.Slots))
	return res, nil
}

// Cancel supersedes any in-flight request without issuing a new one
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.epoch++
}

// Epoch returns the current epoch
func (r *Resolver) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// IsCurrent reports whether epoch is still the latest
func (r *Resolver) IsCurrent(epoch uint64) bool {
	return r.Epoch() == epoch
}

func validate(req Request) error {
	if req.ProviderID == "" {
		return &domain.ValidationError{Field: "provider", Message: "This service has no provider."}
	}
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return &domain.ValidationError{Field: "date", Message: "Please select a date."}
	}
	if req.DurationMinutes <= 0 {
		return &domain.ValidationError{Field: "duration", Message: "This service has no duration."}
	}
	return nil
}
