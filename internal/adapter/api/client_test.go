package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/mmcdole/handy/internal/domain"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/"}, staticToken("tok"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestsAreSigned(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []domain.Service{{ID: "s1", Name: "Deep Clean"}})
	})

	services, err := c.GetServices(context.Background(), "cat-1")
	if err != nil {
		t.Fatalf("GetServices() error = %v", err)
	}
	if len(services) != 1 || services[0].ID != "s1" {
		t.Errorf("GetServices() = %+v", services)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotPath != "/services" || gotQuery != "category_id=cat-1" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
}

func TestDataEnvelopeIsUnwrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []domain.Address{{ID: "a1", IsDefault: true}},
		})
	})
	addrs, err := c.GetAddresses(context.Background())
	if err != nil {
		t.Fatalf("GetAddresses() error = %v", err)
	}
	if len(addrs) != 1 || addrs[0].ID != "a1" || !addrs[0].IsDefault {
		t.Errorf("GetAddresses() = %+v", addrs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   domain.Kind
	}{
		{http.StatusUnauthorized, domain.KindAuth},
		{http.StatusForbidden, domain.KindAuth},
		{http.StatusConflict, domain.KindConflict},
		{http.StatusNotFound, domain.KindNotFound},
		{http.StatusBadRequest, domain.KindValidation},
		{http.StatusUnprocessableEntity, domain.KindValidation},
		{http.StatusTooManyRequests, domain.KindNetwork},
		{http.StatusServiceUnavailable, domain.KindNetwork},
		{http.StatusGatewayTimeout, domain.KindNetwork},
		{http.StatusInternalServerError, domain.KindServer},
		{http.StatusTeapot, domain.KindUnknown},
	}
	for _, tt := range tests {
		if got := classify(tt.status, nil).Kind; got != tt.want {
			t.Errorf("classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestConflictCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Time slot already booked"})
	})
	_, err := c.CreateBooking(context.Background(), domain.CreateBookingRequest{ServiceID: "s1"}, "key-1")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("CreateBooking() error = %v, want conflict", err)
	}
	if got := domain.UserMessage(err); got != "Conflict: Time slot already booked" {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestAuthFailureHook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	})
	var hooked []error
	c.OnAuthFailure(func(err error) { hooked = append(hooked, err) })

	if _, err := c.Me(context.Background()); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("Me() error = %v, want auth failure", err)
	}
	if len(hooked) != 1 {
		t.Fatalf("hook calls after signed 401 = %d, want 1", len(hooked))
	}

	// bad credentials on the public login endpoint are not a session failure
	if _, err := c.Login(context.Background(), domain.Credentials{Email: "a@b.c"}); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("Login() error = %v, want auth failure", err)
	}
	if len(hooked) != 1 {
		t.Errorf("hook calls after login 401 = %d, want 1", len(hooked))
	}
}

func TestLoginIsUnsigned(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "new-token",
			"user":         domain.User{ID: "u1", Role: domain.RoleCustomer},
		})
	})
	res, err := c.Login(context.Background(), domain.Credentials{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization on login = %q, want none", gotAuth)
	}
	if res.Token != "new-token" || res.User.ID != "u1" {
		t.Errorf("Login() = %+v", res)
	}
}

func TestCreateBookingSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotMethod string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusCreated, domain.Booking{ID: "b1", Status: domain.BookingPending})
	})

	req := domain.CreateBookingRequest{
		ServiceID:     "s1",
		ScheduledDate: "2025-03-14",
		ScheduledTime: "09:00:00",
		Addons:        []domain.BookingAddon{{AddonID: "ad1", Quantity: 1}},
		PaymentMethod: "cash",
	}
	b, err := c.CreateBooking(context.Background(), req, "draft-123")
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	if b.ID != "b1" {
		t.Errorf("CreateBooking() id = %q, want b1", b.ID)
	}
	if gotMethod != http.MethodPost || gotKey != "draft-123" {
		t.Errorf("request = %s with key %q", gotMethod, gotKey)
	}
	want := map[string]any{
		"service_id":     "s1",
		"scheduled_date": "2025-03-14",
		"scheduled_time": "09:00:00",
		"addons":         []any{map[string]any{"addon_id": "ad1", "quantity": float64(1)}},
		"payment_method": "cash",
	}
	if !reflect.DeepEqual(gotBody, want) {
		t.Errorf("payload = %v, want %v", gotBody, want)
	}
}

func TestGetSlotsDecodesBothShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Availability
	}{
		{
			name: "strings",
			body: `{"slots":["09:00","09:30"]}`,
			want: domain.Availability{Date: "2025-03-14", Slots: []domain.Slot{{Time: "09:00", Available: true}, {Time: "09:30", Available: true}}},
		},
		{
			name: "objects",
			body: `{"slots":[{"time":"09:00:00","available":false},{"time":"10:00"}]}`,
			want: domain.Availability{Date: "2025-03-14", Slots: []domain.Slot{{Time: "09:00", Available: false}, {Time: "10:00", Available: true}}},
		},
		{
			name: "empty with message",
			body: `{"slots":[],"message":"Provider is off"}`,
			want: domain.Availability{Date: "2025-03-14", Slots: []domain.Slot{}, Message: "Provider is off"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotURL string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotURL = r.URL.String()
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})
			got, err := c.GetSlots(context.Background(), "p1", "2025-03-14", 90)
			if err != nil {
				t.Fatalf("GetSlots() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetSlots() = %+v, want %+v", got, tt.want)
			}
			if gotURL != "/availability/provider/p1/slots?date=2025-03-14&serviceDuration=90" {
				t.Errorf("url = %s", gotURL)
			}
		})
	}
}

func TestGetFavoritesResolvesUnion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/favorites":
			_, _ = io.WriteString(w, `[
				{"id":"fav-1","service_id":"s1","service":{"id":"s1","name":"Deep Clean"}},
				{"id":"s2","name":"Window Wash"},
				{"id":"fav-3","service":{"id":"s3","name":"Lawn"}},
				{}
			]`)
		case "/favorites/provider":
			_, _ = io.WriteString(w, `[{"id":"fav-9","provider_id":"p1","business_name":"Sparkle Co"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	favs, err := c.GetFavorites(context.Background(), domain.FavoriteService)
	if err != nil {
		t.Fatalf("GetFavorites(service) error = %v", err)
	}
	var got [][3]string
	for _, f := range favs {
		got = append(got, [3]string{f.TargetID, f.RecordID, f.Name})
	}
	want := [][3]string{
		{"s1", "fav-1", "Deep Clean"},
		{"s2", "", "Window Wash"},
		{"s3", "fav-3", "Lawn"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("service favorites = %v, want %v", got, want)
	}

	provs, err := c.GetFavorites(context.Background(), domain.FavoriteProvider)
	if err != nil {
		t.Fatalf("GetFavorites(provider) error = %v", err)
	}
	if len(provs) != 1 || provs[0].Kind != domain.FavoriteProvider || provs[0].TargetID != "p1" || provs[0].Name != "Sparkle Co" {
		t.Errorf("provider favorites = %+v", provs)
	}
}

func TestToggleFavorite(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]bool{"is_favorite": true})
	})
	on, err := c.ToggleFavorite(context.Background(), domain.ProviderFavorite("p1"))
	if err != nil {
		t.Fatalf("ToggleFavorite() error = %v", err)
	}
	if !on {
		t.Error("ToggleFavorite() = false, want true")
	}
	if gotPath != "/favorites/provider/toggle" || gotBody["provider_id"] != "p1" {
		t.Errorf("request = %s %v", gotPath, gotBody)
	}
}

func TestMeAcceptsBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"bare":     `{"id":"u1","role":"customer","is_suspended":true}`,
		"envelope": `{"user":{"id":"u1","role":"customer","is_suspended":true}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			u, err := c.Me(context.Background())
			if err != nil {
				t.Fatalf("Me() error = %v", err)
			}
			if u.ID != "u1" || !u.IsSuspended {
				t.Errorf("Me() = %+v", u)
			}
		})
	}
}

func TestUnreadCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"unread_count": 4})
	})
	n, err := c.GetUnreadCount(context.Background())
	if err != nil || n != 4 {
		t.Errorf("GetUnreadCount() = %d, %v; want 4", n, err)
	}
}

func TestTransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.GetProviders(context.Background())
	if !domain.IsRetryable(err) {
		t.Errorf("GetProviders() on closed server error = %v, want retryable network error", err)
	}
}

func TestCancelledRequestIsNotNetwork(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Provider{})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetProviders(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetProviders() error = %v, want context.Canceled", err)
	}
	if domain.IsRetryable(err) {
		t.Error("cancelled request classified as retryable")
	}
}
