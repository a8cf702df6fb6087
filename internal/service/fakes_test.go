package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mmcdole/handy/internal/domain"
)

// fakeBackend is an in-memory domain.Backend. Hooks override single calls.
type fakeBackend struct {
	mu sync.Mutex

	services      []domain.Service
	addons        map[string][]domain.Addon
	addresses     []domain.Address
	favorites     map[domain.FavoriteKind][]domain.Favorite
	bookings      []domain.Booking
	notifications []domain.Notification
	me            *domain.User
	auth          *domain.AuthResult

	calls map[string]int

	// onCommit runs inside every mutating call before it returns
	onCommit  func(op string)
	commitErr error
	meErr     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		addons:    make(map[string][]domain.Addon),
		favorites: make(map[domain.FavoriteKind][]domain.Favorite),
		calls:     make(map[string]int),
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeBackend) commit(op string) error {
	f.record(op)
	if f.onCommit != nil {
		f.onCommit(op)
	}
	return f.commitErr
}

func (f *fakeBackend) GetServices(ctx context.Context, categoryID string) ([]domain.Service, error) {
	f.record("GetServices")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Service(nil), f.services...), nil
}

func (f *fakeBackend) GetService(ctx context.Context, id string) (*domain.Service, error) {
	f.record("GetService")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.services {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, &domain.APIError{Kind: domain.KindNotFound, Status: 404}
}

func (f *fakeBackend) GetAddons(ctx context.Context, serviceID string) ([]domain.Addon, error) {
	f.record("GetAddons")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Addon(nil), f.addons[serviceID]...), nil
}

func (f *fakeBackend) GetProviders(ctx context.Context) ([]domain.Provider, error) {
	f.record("GetProviders")
	return []domain.Provider{{ID: "p1", BusinessName: "Sparkle Co"}}, nil
}

func (f *fakeBackend) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	f.record("GetProvider")
	return &domain.Provider{ID: id}, nil
}

func (f *fakeBackend) GetAddresses(ctx context.Context) ([]domain.Address, error) {
	f.record("GetAddresses")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Address(nil), f.addresses...), nil
}

func (f *fakeBackend) CreateAddress(ctx context.Context, in domain.AddressInput) (*domain.Address, error) {
	if err := f.commit("CreateAddress"); err != nil {
		return nil, err
	}
	a := domain.Address{ID: "new", Label: in.Label, Street: in.Street, City: in.City}
	f.mu.Lock()
	f.addresses = append(f.addresses, a)
	f.mu.Unlock()
	return &a, nil
}

func (f *fakeBackend) UpdateAddress(ctx context.Context, id string, in domain.AddressInput) (*domain.Address, error) {
	if err := f.commit("UpdateAddress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out *domain.Address
	for i := range f.addresses {
		if in.IsDefault != nil && *in.IsDefault {
			f.addresses[i].IsDefault = f.addresses[i].ID == id
		}
		if f.addresses[i].ID == id {
			a := f.addresses[i]
			out = &a
		}
	}
	return out, nil
}

func (f *fakeBackend) DeleteAddress(ctx context.Context, id string) error {
	if err := f.commit("DeleteAddress"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var keep []domain.Address
	for _, a := range f.addresses {
		if a.ID != id {
			keep = append(keep, a)
		}
	}
	f.addresses = keep
	return nil
}

func (f *fakeBackend) GetBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	f.record("GetBookings")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if filter.Status == "" || b.Status == filter.Status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	f.record("GetBooking")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, &domain.APIError{Kind: domain.KindNotFound, Status: 404}
}

func (f *fakeBackend) CreateBooking(ctx context.Context, req domain.CreateBookingRequest, key string) (*domain.Booking, error) {
	if err := f.commit("CreateBooking"); err != nil {
		return nil, err
	}
	b := domain.Booking{ID: "b-new", ServiceID: req.ServiceID, Status: domain.BookingPending,
		ScheduledDate: req.ScheduledDate, ScheduledTime: req.ScheduledTime}
	f.mu.Lock()
	f.bookings = append(f.bookings, b)
	f.mu.Unlock()
	return &b, nil
}

func (f *fakeBackend) UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	if err := f.commit("UpdateBookingStatus"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bookings {
		if f.bookings[i].ID == id {
			f.bookings[i].Status = status
			b := f.bookings[i]
			return &b, nil
		}
	}
	return nil, &domain.APIError{Kind: domain.KindNotFound, Status: 404}
}

func (f *fakeBackend) GetSlots(ctx context.Context, providerID, date string, duration int) (domain.Availability, error) {
	f.record("GetSlots")
	return domain.Availability{Date: date, Slots: []domain.Slot{{Time: "09:00", Available: true}}}, nil
}

func (f *fakeBackend) GetFavorites(ctx context.Context, kind domain.FavoriteKind) ([]domain.Favorite, error) {
	f.record("GetFavorites")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Favorite(nil), f.favorites[kind]...), nil
}

func (f *fakeBackend) AddFavorite(ctx context.Context, fav domain.Favorite) error {
	if err := f.commit("AddFavorite"); err != nil {
		return err
	}
	f.mu.Lock()
	f.favorites[fav.Kind] = append(f.favorites[fav.Kind], fav)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) RemoveFavorite(ctx context.Context, fav domain.Favorite) error {
	if err := f.commit("RemoveFavorite"); err != nil {
		return err
	}
	f.mu.Lock()
	f.favorites[fav.Kind] = withoutFavorite(f.favorites[fav.Kind], fav)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ToggleFavorite(ctx context.Context, fav domain.Favorite) (bool, error) {
	if err := f.commit("ToggleFavorite"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if containsFavorite(f.favorites[fav.Kind], fav) {
		f.favorites[fav.Kind] = withoutFavorite(f.favorites[fav.Kind], fav)
		return false, nil
	}
	f.favorites[fav.Kind] = append(f.favorites[fav.Kind], fav)
	return true, nil
}

func withoutFavorite(list []domain.Favorite, fav domain.Favorite) []domain.Favorite {
	var out []domain.Favorite
	for _, f := range list {
		if !f.Matches(fav) {
			out = append(out, f)
		}
	}
	return out
}

func (f *fakeBackend) GetNotifications(ctx context.Context) ([]domain.Notification, error) {
	f.record("GetNotifications")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications...), nil
}

func (f *fakeBackend) GetUnreadCount(ctx context.Context) (int, error) {
	f.record("GetUnreadCount")
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, x := range f.notifications {
		if !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, id string) error {
	if err := f.commit("MarkRead"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeBackend) MarkAllRead(ctx context.Context) error {
	if err := f.commit("MarkAllRead"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		f.notifications[i].IsRead = true
	}
	return nil
}

func (f *fakeBackend) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error) {
	f.record("Login")
	if f.auth == nil {
		return nil, &domain.APIError{Kind: domain.KindAuth, Status: 401, Message: "invalid credentials"}
	}
	return f.auth, nil
}

func (f *fakeBackend) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResult, error) {
	f.record("Register")
	return f.auth, nil
}

func (f *fakeBackend) Me(ctx context.Context) (*domain.User, error) {
	f.record("Me")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := *f.me
	return &u, nil
}

// memStore is an in-memory domain.SessionStore
type memStore struct {
	mu    sync.Mutex
	token string
	user  *domain.User
}

func (m *memStore) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *memStore) Profile() (*domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, m.user != nil
}

func (m *memStore) Save(token string, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = token, &user
	return nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.user = "", nil
	return nil
}

func (m *memStore) Close() error { return nil }

func newTestApp(t *testing.T, backend *fakeBackend) (*App, *memStore) {
	t.Helper()
	store := &memStore{}
	app := NewApp(backend, store, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(app.Close)
	return app, store
}
