package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
)

// DefaultSessionCheckInterval is how often /auth/me is polled
const DefaultSessionCheckInterval = 5 * time.Minute

// DefaultGCInterval is how often unused cache entries are swept
const DefaultGCInterval = time.Minute

// SessionService owns the signed-in state. Session-scoped background
// tasks (session check, cache eviction, polling) start on sign-in and are
// all stopped on teardown.
type SessionService struct {
	auth   domain.AuthRepository
	store  domain.SessionStore
	q      *query.Coordinator
	logger *slog.Logger

	checkInterval time.Duration
	gcInterval    time.Duration

	mu         sync.Mutex
	user       *domain.User
	active     bool
	onTeardown []func(reason error)
}

// SessionOptions tunes session background tasks
type SessionOptions struct {
	CheckInterval time.Duration
	GCInterval    time.Duration
}

// NewSessionService creates a new session service
func NewSessionService(auth domain.AuthRepository, store domain.SessionStore, q *query.Coordinator, opts SessionOptions, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultSessionCheckInterval
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = DefaultGCInterval
	}
	return &SessionService{
		auth:          auth,
		store:         store,
		q:             q,
		logger:        logger,
		checkInterval: opts.CheckInterval,
		gcInterval:    opts.GCInterval,
	}
}

// OnTeardown registers fn to run after every teardown. reason is nil for
// a voluntary logout.
func (s *SessionService) OnTeardown(fn func(reason error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTeardown = append(s.onTeardown, fn)
}

// User returns the signed-in user
func (s *SessionService) User() (*domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, false
	}
	u := *s.user
	return &u, true
}

// Login authenticates and persists the session
func (s *SessionService) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return s.establish(res)
}

// Register creates an account and signs in with it
func (s *SessionService) Register(ctx context.Context, reg domain.Registration) (*domain.User, error) {
	res, err := s.auth.Register(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return s.establish(res)
}

func (s *SessionService) establish(res *domain.AuthResult) (*domain.User, error) {
	if err := checkAccount(&res.User); err != nil {
		return nil, err
	}
	if err := s.store.Save(res.Token, res.User); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.start(&res.User)
	s.logger.Info("signed in", "user", res.User.ID)
	u, _ := s.User()
	return u, nil
}

// Restore resumes a persisted session. The stored profile is verified
// against /auth/me; an invalid, suspended or non-customer session is torn
// down.
func (s *SessionService) Restore(ctx context.Context) (*domain.User, error) {
	if _, ok := s.store.Token(); !ok {
		return nil, domain.ErrNotSignedIn
	}
	user, err := s.auth.Me(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			s.Teardown(err)
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if err := checkAccount(user); err != nil {
		s.Teardown(err)
		return nil, err
	}
	if token, ok := s.store.Token(); ok {
		if err := s.store.Save(token, *user); err != nil {
			s.logger.Warn("failed to refresh stored profile", "error", err)
		}
	}
	s.start(user)
	s.logger.Info("session restored", "user", user.ID)
	u, _ := s.User()
	return u, nil
}

// Check verifies the session once against /auth/me
func (s *SessionService) Check(ctx context.Context) error {
	user, err := s.auth.Me(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			s.Teardown(err)
		}
		return err
	}
	if err := checkAccount(user); err != nil {
		s.Teardown(err)
		return err
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.q.Cache().Write(MeKey(), user)
	return nil
}

// HandleAuthFailure is installed as the API client's 401/403 hook
func (s *SessionService) HandleAuthFailure(err error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active {
		s.Teardown(err)
	}
}

// Logout ends the session voluntarily
func (s *SessionService) Logout() error {
	s.Teardown(nil)
	return nil
}

// Teardown stops every session task, aborts in-flight reads, empties the
// cache and clears the persisted token and profile
func (s *SessionService) Teardown(reason error) {
	s.mu.Lock()
	s.user = nil
	s.active = false
	listeners := append([]func(error){}, s.onTeardown...)
	s.mu.Unlock()

	s.q.Scheduler().Stop()
	s.q.Reset()
	if err := s.store.Clear(); err != nil {
		s.logger.Error("failed to clear session store", "error", err)
	}
	if reason != nil {
		s.logger.Warn("session ended", "reason", reason)
	} else {
		s.logger.Info("signed out")
	}
	for _, fn := range listeners {
		fn(reason)
	}
}

// start records user and launches the session's background tasks
func (s *SessionService) start(user *domain.User) {
	s.mu.Lock()
	u := *user
	s.user = &u
	wasActive := s.active
	s.active = true
	s.mu.Unlock()

	s.q.Cache().Write(MeKey(), &u)
	if wasActive {
		return
	}
	s.q.Scheduler().Every("session-check", s.checkInterval, s.Check)
	s.q.StartMaintenance(s.gcInterval)
}

// checkAccount enforces that only active customer accounts hold a session
func checkAccount(u *domain.User) error {
	if u == nil {
		return errors.New("empty account")
	}
	if u.IsSuspended {
		return domain.ErrSuspended
	}
	if u.Role != domain.RoleCustomer {
		return domain.ErrRoleMismatch
	}
	return nil
}
