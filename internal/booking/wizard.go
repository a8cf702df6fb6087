// Package booking implements the multi-step booking wizard
package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mmcdole/handy/internal/availability"
	"github.com/mmcdole/handy/internal/domain"
)

// Validation messages shown when a step cannot be left
const (
	MsgSelectDate   = "Please select a date."
	MsgSelectTime   = "Please select a time."
	MsgTimeTaken    = "Selected time is no longer available. Please choose another time."
	MsgSelectAddr   = "Please select an address."
	MsgUnknownAddr  = "That address is no longer available."
	MsgUnknownAddon = "That add-on is not offered for this service."
)

var (
	// ErrClosed is returned by every action after the wizard exited
	ErrClosed = errors.New("booking wizard closed")

	// ErrNotOnReview is returned when submitting before the review step
	ErrNotOnReview = errors.New("booking can only be submitted from review")

	// ErrSubmitting is returned when a submission is already in flight
	ErrSubmitting = errors.New("booking is already being submitted")
)

// Submitter creates the booking on the server. Implementations must not
// write the booking into any cache before the server confirms it.
type Submitter interface {
	Create(ctx context.Context, req domain.CreateBookingRequest, idempotencyKey string) (*domain.Booking, error)
}

// Config carries the data a wizard session is opened with. The service,
// addons and addresses are read from the query cache by the caller.
type Config struct {
	Service   domain.Service
	Addons    []domain.Addon
	Addresses []domain.Address
	Resolver  *availability.Resolver
	Submitter Submitter
	Logger    *slog.Logger
}

// State is a copy of everything the UI renders for the wizard
type State struct {
	Step         Step
	Draft        Draft
	Slots        []domain.Slot
	SlotsLoading bool
	SlotsMessage string
	SlotsErr     error
	Errors       map[Step]error
	Pricing      Pricing
	Submitting   bool
	Closed       bool
	Booking      *domain.Booking
}

// Wizard is the booking stepper over {datetime, address, addons, review}
type Wizard struct {
	service   domain.Service
	addons    []domain.Addon
	addresses []domain.Address
	resolver  *availability.Resolver
	submitter Submitter
	logger    *slog.Logger

	mu sync.Mutex
	// submission identity; resubmitting the same draft reuses it
	submissionID string
	draft        Draft
	slots        availability.Result
	slotsEpoch   uint64
	slotsLoaded  bool
	slotsLoading bool
	slotsErr     error
	stepErrs     map[Step]error
	submitting   bool
	closed       bool
	booking      *domain.Booking
}

// New opens a wizard session for cfg.Service. The draft's address is
// seeded with the default address when there is one.
func New(cfg Config) *Wizard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Wizard{
		service:      cfg.Service,
		addons:       cfg.Addons,
		addresses:    cfg.Addresses,
		resolver:     cfg.Resolver,
		submitter:    cfg.Submitter,
		logger:       logger,
		submissionID: uuid.NewString(),
		draft: Draft{
			ServiceID: cfg.Service.ID,
			Addons:    make(map[string]struct{}),
			Step:      StepDateTime,
		},
		stepErrs: make(map[Step]error),
	}
	for _, a := range cfg.Addresses {
		if a.IsDefault {
			w.draft.AddressID = a.ID
			break
		}
	}
	return w
}

// State returns a snapshot for rendering
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		Step:         w.draft.Step,
		Draft:        w.draft.clone(),
		SlotsLoading: w.slotsLoading,
		SlotsErr:     w.slotsErr,
		Errors:       make(map[Step]error, len(w.stepErrs)),
		Pricing:      Price(w.service, w.addons, w.draft.Addons),
		Submitting:   w.submitting,
		Closed:       w.closed,
		Booking:      w.booking,
	}
	if w.slotsLoaded {
		st.Slots = append([]domain.Slot(nil), w.slots.Slots...)
		st.SlotsMessage = w.slots.Message
	}
	for s, err := range w.stepErrs {
		st.Errors[s] = err
	}
	return st
}

// Step returns the current step
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.Step
}

// Service returns the service being booked
func (w *Wizard) Service() domain.Service { return w.service }

// Addons returns the addons offered for the service
func (w *Wizard) Addons() []domain.Addon { return w.addons }

// Addresses returns the addresses the user can pick from
func (w *Wizard) Addresses() []domain.Address { return w.addresses }

// Pricing returns the derived price for the current selection
func (w *Wizard) Pricing() Pricing {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Price(w.service, w.addons, w.draft.Addons)
}

// SetDate records date and clears the selected time and the slots of the
// previous date before anything is fetched. The returned func loads the
// new date's slots; its result is applied only if no later date change
// happened in the meantime.
func (w *Wizard) SetDate(date string) func(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return func(context.Context) error { return ErrClosed }
	}
	w.draft.Date = date
	w.draft.Time = ""
	w.slots = availability.Result{}
	w.slotsLoaded = false
	w.slotsErr = nil
	delete(w.stepErrs, StepDateTime)
	epoch, rctx := w.resolver.Begin(context.Background())
	w.slotsEpoch = epoch
	w.slotsLoading = true
	w.mu.Unlock()

	return w.loader(epoch, date, rctx)
}

// SelectDate is SetDate followed by the load
func (w *Wizard) SelectDate(ctx context.Context, date string) error {
	return w.SetDate(date)(ctx)
}

// RefreshSlots re-fetches the slots of the selected date without touching
// the selected time, so Advance can detect a time that was taken meanwhile
func (w *Wizard) RefreshSlots(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	date := w.draft.Date
	if date == "" {
		w.mu.Unlock()
		return &domain.ValidationError{Field: "date", Message: MsgSelectDate}
	}
	epoch, rctx := w.resolver.Begin(context.Background())
	w.slotsEpoch = epoch
	w.slotsLoading = true
	w.mu.Unlock()

	return w.loader(epoch, date, rctx)(ctx)
}

// loader fetches for epoch. The request is aborted when the caller's ctx
// ends or when a later epoch supersedes it (rctx).
func (w *Wizard) loader(epoch uint64, date string, rctx context.Context) func(ctx context.Context) error {
	req := availability.Request{
		ProviderID:      w.service.ProviderID,
		Date:            date,
		DurationMinutes: w.service.DurationMinutes,
	}
	return func(ctx context.Context) error {
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(rctx, cancel)
		defer stop()

		res, err := w.resolver.ResolveEpoch(lctx, epoch, req)

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed || w.slotsEpoch != epoch || !w.resolver.IsCurrent(epoch) {
			return availability.ErrSuperseded
		}
		w.slotsLoading = false
		if err != nil {
			if errors.Is(err, availability.ErrSuperseded) {
				return err
			}
			w.slotsErr = err
			return err
		}
		w.slots = res
		w.slotsLoaded = true
		w.slotsErr = nil
		return nil
	}
}

// SelectTime records a slot time for the selected date
func (w *Wizard) SelectTime(t string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.draft.Time = t
	delete(w.stepErrs, StepDateTime)
	return nil
}

// SelectAddress records the service address
func (w *Wizard) SelectAddress(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	found := false
	for _, a := range w.addresses {
		if a.ID == id {
			found = true
			break
		}
	}
	if !found {
		err := &domain.ValidationError{Field: "address", Message: MsgUnknownAddr}
		w.stepErrs[StepAddress] = err
		return err
	}
	w.draft.AddressID = id
	delete(w.stepErrs, StepAddress)
	return nil
}

// ToggleAddon flips the selection of addon id and reports whether it is
// now selected
func (w *Wizard) ToggleAddon(id string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, ErrClosed
	}
	offered := false
	for _, a := range w.addons {
		if a.ID == id {
			offered = true
			break
		}
	}
	if !offered {
		return false, &domain.ValidationError{Field: "addons", Message: MsgUnknownAddon}
	}
	if _, ok := w.draft.Addons[id]; ok {
		delete(w.draft.Addons, id)
		return false, nil
	}
	w.draft.Addons[id] = struct{}{}
	return true, nil
}

// SetNotes records free-form notes for the provider
func (w *Wizard) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.draft.Notes = notes
	return nil
}

// Advance moves to the next step if the current one validates. On
// failure the step is unchanged and the validation error is recorded.
func (w *Wizard) Advance() (Step, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.draft.Step, ErrClosed
	}
	step := w.draft.Step
	if step == StepReview {
		return step, nil
	}
	if err := w.validate(step); err != nil {
		w.stepErrs[step] = err
		return step, err
	}
	delete(w.stepErrs, step)
	w.draft.Step = step + 1
	w.logger.Debug("booking wizard advanced", "from", step.String(), "to", w.draft.Step.String())
	return w.draft.Step, nil
}

// validate checks the guard for leaving step. Caller holds mu.
func (w *Wizard) validate(step Step) error {
	switch step {
	case StepDateTime:
		if w.draft.Date == "" {
			return &domain.ValidationError{Field: "date", Message: MsgSelectDate}
		}
		if w.draft.Time == "" {
			return &domain.ValidationError{Field: "time", Message: MsgSelectTime}
		}
		if !w.slotsLoaded || w.slots.Date != w.draft.Date || w.slots.Empty() {
			return &domain.ValidationError{Field: "time", Message: MsgSelectTime}
		}
		if !w.slots.IsAvailable(w.draft.Time) {
			return &domain.ValidationError{Field: "time", Message: MsgTimeTaken}
		}
	case StepAddress:
		if w.draft.AddressID == "" {
			return &domain.ValidationError{Field: "address", Message: MsgSelectAddr}
		}
	}
	return nil
}

// Back returns to the previous step. Only the errors of the step being
// left are cleared; the draft keeps its data.
func (w *Wizard) Back() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.draft.Step == StepDateTime {
		return w.draft.Step
	}
	delete(w.stepErrs, w.draft.Step)
	w.draft.Step--
	return w.draft.Step
}

// Submit sends the draft from the review step. On success the draft is
// discarded and the wizard closes; on failure the wizard stays on review
// with the error recorded.
func (w *Wizard) Submit(ctx context.Context) (*domain.Booking, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.draft.Step != StepReview {
		w.mu.Unlock()
		return nil, ErrNotOnReview
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitting
	}
	w.submitting = true
	delete(w.stepErrs, StepReview)
	req := BuildRequest(w.draft)
	key := w.submissionID
	w.mu.Unlock()

	b, err := w.submitter.Create(ctx, req, key)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if w.closed {
		return b, ErrClosed
	}
	if err != nil {
		w.stepErrs[StepReview] = err
		w.logger.Warn("booking submit failed", "service", req.ServiceID, "kind", domain.KindOf(err).String(), "error", err)
		return nil, err
	}
	w.booking = b
	w.discard()
	w.logger.Info("booking created", "service", req.ServiceID, "date", req.ScheduledDate, "time", req.ScheduledTime)
	return b, nil
}

// Exit discards the draft and cancels any slot request
func (w *Wizard) Exit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.discard()
}

// discard drops the draft. Caller holds mu.
func (w *Wizard) discard() {
	w.resolver.Cancel()
	w.draft = Draft{Addons: make(map[string]struct{})}
	w.slots = availability.Result{}
	w.slotsLoaded = false
	w.slotsLoading = false
	w.stepErrs = make(map[Step]error)
	w.closed = true
}

// Closed reports whether the wizard session ended
func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
