package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/handy/internal/availability"
	"github.com/mmcdole/handy/internal/booking"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
	"github.com/mmcdole/handy/internal/search"
	"github.com/mmcdole/handy/internal/service"
	"github.com/mmcdole/handy/internal/tui/components"
	"github.com/mmcdole/handy/internal/tui/styles"
)

// Screen is the top-level view being shown
type Screen int

const (
	ScreenServices Screen = iota
	ScreenWizard
	ScreenBookings
	ScreenNotifications
	ScreenSignedOut
)

// maxBookingDays bounds how far ahead the date picker goes
const maxBookingDays = 60

// Model is the main Bubble Tea model for the application
type Model struct {
	app    *service.App
	events *ChannelObserver
	keys   KeyMap
	now    func() time.Time

	Screen Screen
	Width  int
	Height int

	// Service list
	filter    textinput.Model
	filtering bool
	services  []domain.Service
	index     *search.ServiceIndex
	matches   []search.ServiceMatch
	cursor    int
	favorites map[string]bool
	stale     bool
	listErr   error

	// Badge
	unread int

	// Booking wizard
	wizard    *booking.Wizard
	dayOffset int
	wizCursor int
	notes     components.NotesModal

	// Bookings and inbox
	bookings      []domain.Booking
	bookingCursor int
	inbox         []domain.Notification
	inboxCursor   int

	// UI state
	spinner     spinner.Model
	Loading     bool
	StatusMsg   string
	StatusIsErr bool
	endReason   error
}

// NewModel creates a new application model. app and events may be nil in
// tests that drive the model with messages only.
func NewModel(app *service.App, events *ChannelObserver) Model {
	fi := textinput.New()
	fi.Prompt = "/ "
	fi.Placeholder = "filter services"
	fi.CharLimit = 64

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.AccentStyle

	return Model{
		app:       app,
		events:    events,
		keys:      DefaultKeyMap(),
		now:       time.Now,
		filter:    fi,
		favorites: make(map[string]bool),
		notes:     components.NewNotesModal("Gate code, parking, pets…", 500),
		spinner:   sp,
	}
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitForEvent()}
	if m.app != nil {
		cmds = append(cmds,
			LoadServicesCmd(m.app.Catalog),
			LoadFavoritesCmd(m.app.Favorites),
			LoadUnreadCmd(m.app.Notifications),
		)
	}
	return tea.Batch(cmds...)
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return m.events.Wait()
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.FocusMsg:
		if m.app != nil && m.Screen != ScreenSignedOut {
			m.app.Foreground()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case CacheChangedMsg:
		m.applyCacheChange(msg.Key, msg.Entry)
		return m, m.waitForEvent()

	case SessionEndedMsg:
		m.endSession(msg.Reason)
		return m, m.waitForEvent()

	case LoggedOutMsg:
		return m, tea.Quit

	case ServicesLoadedMsg:
		m.Loading = false
		if msg.Services != nil || msg.Err == nil {
			m.setServices(msg.Services)
		}
		m.listErr = msg.Err
		m.stale = msg.Err != nil && msg.Services != nil
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, nil

	case FavoriteToggledMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.favorites[msg.ServiceID] = msg.On
		if msg.On {
			m.setStatus("Added to favorites")
		} else {
			m.setStatus("Removed from favorites")
		}
		return m, nil

	case UnreadCountMsg:
		if msg.Err == nil {
			m.unread = msg.Count
		}
		return m, nil

	case WizardOpenedMsg:
		m.Loading = false
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.wizard = msg.Wizard
		m.Screen = ScreenWizard
		m.dayOffset = 0
		m.wizCursor = 0
		m.clearStatus()
		return m, LoadSlotsCmd(m.wizard.SetDate(m.wizardDate()))

	case SlotsLoadedMsg:
		// A later date change owns the slot list now
		if errors.Is(msg.Err, availability.ErrSuperseded) {
			return m, nil
		}
		if m.wizard != nil && m.wizard.Step() == booking.StepDateTime {
			m.clampWizardCursor()
		}
		return m, nil

	case BookingSubmittedMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.wizard = nil
		m.Screen = ScreenBookings
		m.setStatus(fmt.Sprintf("Booking confirmed for %s at %s", msg.Booking.ScheduledDate, msg.Booking.ScheduledTime))
		cmd := m.loadBookings()
		return m, cmd

	case BookingsLoadedMsg:
		m.Loading = false
		if msg.Bookings != nil {
			m.bookings = msg.Bookings
			m.bookingCursor = clamp(m.bookingCursor, len(m.bookings))
		}
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, nil

	case BookingCancelledMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.setStatus("Booking cancelled")
		m.syncBookingsFromCache()
		return m, nil

	case NotificationsLoadedMsg:
		m.Loading = false
		if msg.Notifications != nil {
			m.inbox = msg.Notifications
			m.inboxCursor = clamp(m.inboxCursor, len(m.inbox))
		}
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, nil

	case NotificationsReadMsg:
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, nil

	case ErrMsg:
		m.Loading = false
		m.setError(msg)
		return m, nil
	}

	return m, nil
}

// applyCacheChange mirrors cache entries the screens render
func (m *Model) applyCacheChange(key query.Key, e query.Entry) {
	switch {
	case key.Equal(service.ServicesKey("")):
		if list, ok := e.Data.([]domain.Service); ok && e.HasData {
			m.setServices(list)
		}
		m.listErr = e.Err
		m.stale = e.HasData && (e.Stale || e.Err != nil)
	case key.Equal(service.FavoritesKey(domain.FavoriteService)):
		if list, ok := e.Data.([]domain.Favorite); ok && e.HasData {
			m.setFavorites(list)
		}
	case key.Equal(service.UnreadCountKey()):
		if n, ok := e.Data.(int); ok && e.HasData {
			m.unread = n
		}
	case key.Equal(service.NotificationsKey()):
		if list, ok := e.Data.([]domain.Notification); ok && e.HasData {
			m.inbox = list
			m.inboxCursor = clamp(m.inboxCursor, len(m.inbox))
		}
	case key.Equal(service.BookingsKey(domain.BookingFilter{})):
		if list, ok := e.Data.([]domain.Booking); ok && e.HasData {
			m.bookings = list
			m.bookingCursor = clamp(m.bookingCursor, len(m.bookings))
		}
	}
}

func (m *Model) setServices(list []domain.Service) {
	m.services = search.ActiveOnly(list)
	m.index = search.NewServiceIndex(m.services)
	m.applyFilter()
}

func (m *Model) setFavorites(list []domain.Favorite) {
	m.favorites = make(map[string]bool, len(list))
	for _, f := range list {
		if f.Kind == domain.FavoriteService {
			m.favorites[f.TargetID] = true
		}
	}
}

func (m *Model) applyFilter() {
	if m.index == nil {
		m.matches = nil
	} else {
		m.matches = m.index.Filter(m.filter.Value())
	}
	m.cursor = clamp(m.cursor, len(m.matches))
}

func (m *Model) syncBookingsFromCache() {
	if m.app == nil {
		return
	}
	if list, ok := query.Peek[[]domain.Booking](m.app.Coordinator.Cache(), service.BookingsKey(domain.BookingFilter{})); ok {
		m.bookings = list
		m.bookingCursor = clamp(m.bookingCursor, len(m.bookings))
	}
}

func (m *Model) endSession(reason error) {
	if m.wizard != nil {
		m.wizard.Exit()
		m.wizard = nil
	}
	m.Screen = ScreenSignedOut
	m.endReason = reason
	m.services = nil
	m.index = nil
	m.matches = nil
	m.favorites = make(map[string]bool)
	m.bookings = nil
	m.inbox = nil
	m.unread = 0
	m.Loading = false
}

func (m *Model) setStatus(s string) {
	m.StatusMsg = s
	m.StatusIsErr = false
}

func (m *Model) setError(err error) {
	var em ErrMsg
	if errors.As(err, &em) {
		m.StatusMsg = em.Context + ": " + domain.UserMessage(em.Err)
	} else {
		m.StatusMsg = domain.UserMessage(err)
	}
	m.StatusIsErr = true
}

func (m *Model) clearStatus() {
	m.StatusMsg = ""
	m.StatusIsErr = false
}

func (m Model) selectedService() (domain.Service, bool) {
	if m.cursor < 0 || m.cursor >= len(m.matches) {
		return domain.Service{}, false
	}
	return m.matches[m.cursor].Service, true
}

func (m Model) wizardDate() string {
	return m.now().AddDate(0, 0, m.dayOffset).Format(availability.DateLayout)
}

// handleKeyMsg processes keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.notes.IsVisible() {
		var cmd tea.Cmd
		var submitted bool
		m.notes, cmd, submitted = m.notes.Update(msg)
		if submitted && m.wizard != nil {
			notes := m.notes.Value()
			if err := m.wizard.SetNotes(notes); err != nil {
				m.setError(err)
			} else if notes == "" {
				m.setStatus("Notes cleared")
			} else {
				m.setStatus("Notes saved")
			}
		}
		return m, cmd
	}

	if m.filtering {
		return m.handleFilterKey(msg)
	}

	if key.Matches(msg, m.keys.Quit) {
		if m.wizard != nil {
			m.wizard.Exit()
		}
		return m, tea.Quit
	}

	if m.Screen == ScreenSignedOut {
		return m, nil
	}

	if key.Matches(msg, m.keys.Logout) && m.app != nil {
		return m, LogoutCmd(m.app.Session)
	}

	if m.Screen != ScreenWizard {
		switch {
		case key.Matches(msg, m.keys.Services):
			m.Screen = ScreenServices
			return m, nil
		case key.Matches(msg, m.keys.Bookings):
			m.Screen = ScreenBookings
			cmd := m.loadBookings()
			return m, cmd
		case key.Matches(msg, m.keys.Notifications):
			m.Screen = ScreenNotifications
			cmd := m.loadNotifications()
			return m, cmd
		}
	}

	switch m.Screen {
	case ScreenServices:
		return m.handleServicesKey(msg)
	case ScreenWizard:
		return m.handleWizardKey(msg)
	case ScreenBookings:
		return m.handleBookingsKey(msg)
	case ScreenNotifications:
		return m.handleInboxKey(msg)
	}
	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil
	case "enter":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) handleServicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		cmd := m.filter.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Escape):
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.applyFilter()
		}
	case key.Matches(msg, m.keys.Favorite):
		if svc, ok := m.selectedService(); ok && m.app != nil {
			return m, ToggleFavoriteCmd(m.app.Favorites, svc.ID)
		}
	case key.Matches(msg, m.keys.Book), key.Matches(msg, m.keys.Select):
		if svc, ok := m.selectedService(); ok && m.app != nil {
			m.Loading = true
			return m, OpenWizardCmd(m.app, svc.ID)
		}
	case key.Matches(msg, m.keys.Refresh):
		if m.app != nil {
			m.app.Catalog.Refresh()
			m.Loading = true
			return m, LoadServicesCmd(m.app.Catalog)
		}
	}
	return m, nil
}

func (m Model) handleWizardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	w := m.wizard
	if w == nil {
		m.Screen = ScreenServices
		return m, nil
	}
	st := w.State()

	switch {
	case key.Matches(msg, m.keys.Escape):
		w.Exit()
		m.wizard = nil
		m.Screen = ScreenServices
		m.clearStatus()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		if _, err := w.Advance(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.wizCursor = 0
		m.clearStatus()
		return m, nil
	case key.Matches(msg, m.keys.Prev):
		w.Back()
		m.wizCursor = 0
		m.clearStatus()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.wizCursor > 0 {
			m.wizCursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.wizCursor < m.wizardRows(st)-1 {
			m.wizCursor++
		}
		return m, nil
	}

	switch st.Step {
	case booking.StepDateTime:
		switch {
		case key.Matches(msg, m.keys.Left):
			if m.dayOffset > 0 {
				m.dayOffset--
				m.wizCursor = 0
				return m, LoadSlotsCmd(w.SetDate(m.wizardDate()))
			}
		case key.Matches(msg, m.keys.Right):
			if m.dayOffset < maxBookingDays {
				m.dayOffset++
				m.wizCursor = 0
				return m, LoadSlotsCmd(w.SetDate(m.wizardDate()))
			}
		case key.Matches(msg, m.keys.Refresh):
			return m, RefreshSlotsCmd(w)
		case key.Matches(msg, m.keys.Select):
			if m.wizCursor < len(st.Slots) {
				if err := w.SelectTime(st.Slots[m.wizCursor].Time); err != nil {
					m.setError(err)
				} else {
					m.clearStatus()
				}
			}
		}
	case booking.StepAddress:
		if key.Matches(msg, m.keys.Select) {
			addrs := w.Addresses()
			if m.wizCursor < len(addrs) {
				if err := w.SelectAddress(addrs[m.wizCursor].ID); err != nil {
					m.setError(err)
				}
			}
		}
	case booking.StepAddons:
		if key.Matches(msg, m.keys.Select) {
			addons := w.Addons()
			if m.wizCursor < len(addons) {
				if _, err := w.ToggleAddon(addons[m.wizCursor].ID); err != nil {
					m.setError(err)
				}
			}
		}
	case booking.StepReview:
		switch {
		case key.Matches(msg, m.keys.Notes):
			m.notes.Show("Notes for the provider", st.Draft.Notes)
		case key.Matches(msg, m.keys.Submit), key.Matches(msg, m.keys.Select):
			if st.Submitting {
				return m, nil
			}
			m.setStatus("Submitting booking…")
			return m, SubmitBookingCmd(w)
		}
	}
	return m, nil
}

func (m Model) wizardRows(st booking.State) int {
	switch st.Step {
	case booking.StepDateTime:
		return len(st.Slots)
	case booking.StepAddress:
		return len(m.wizard.Addresses())
	case booking.StepAddons:
		return len(m.wizard.Addons())
	}
	return 0
}

func (m *Model) clampWizardCursor() {
	m.wizCursor = clamp(m.wizCursor, m.wizardRows(m.wizard.State()))
}

func (m Model) handleBookingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.bookingCursor > 0 {
			m.bookingCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.bookingCursor < len(m.bookings)-1 {
			m.bookingCursor++
		}
	case key.Matches(msg, m.keys.Refresh):
		if m.app != nil {
			m.app.Coordinator.Refresh(query.Key{service.RootBookings})
		}
		cmd := m.loadBookings()
		return m, cmd
	case key.Matches(msg, m.keys.CancelBooking):
		if m.bookingCursor >= len(m.bookings) || m.app == nil {
			return m, nil
		}
		b := m.bookings[m.bookingCursor]
		if !cancellable(b.Status) {
			m.setError(fmt.Errorf("a %s booking cannot be cancelled", b.Status))
			return m, nil
		}
		return m, CancelBookingCmd(m.app.Bookings, b.ID)
	case key.Matches(msg, m.keys.Escape):
		m.Screen = ScreenServices
	}
	return m, nil
}

func (m Model) handleInboxKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.inboxCursor > 0 {
			m.inboxCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.inboxCursor < len(m.inbox)-1 {
			m.inboxCursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.inboxCursor < len(m.inbox) && m.app != nil && !m.inbox[m.inboxCursor].IsRead {
			return m, MarkReadCmd(m.app.Notifications, m.inbox[m.inboxCursor].ID)
		}
	case key.Matches(msg, m.keys.MarkAllRead):
		if m.app != nil {
			return m, MarkAllReadCmd(m.app.Notifications)
		}
	case key.Matches(msg, m.keys.Refresh):
		cmd := m.loadNotifications()
		return m, cmd
	case key.Matches(msg, m.keys.Escape):
		m.Screen = ScreenServices
	}
	return m, nil
}

func (m *Model) loadBookings() tea.Cmd {
	if m.app == nil {
		return nil
	}
	m.Loading = len(m.bookings) == 0
	return LoadBookingsCmd(m.app.Bookings)
}

func (m *Model) loadNotifications() tea.Cmd {
	if m.app == nil {
		return nil
	}
	m.Loading = len(m.inbox) == 0
	return LoadNotificationsCmd(m.app.Notifications)
}

func cancellable(s domain.BookingStatus) bool {
	return s == domain.BookingPending || s == domain.BookingConfirmed
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Run starts the TUI over app and blocks until the user quits
func Run(app *service.App, opts ...tea.ProgramOption) error {
	events := NewChannelObserver(128)
	stopObserve := app.Coordinator.Cache().Observe(events.OnCacheChange)
	defer stopObserve()
	app.Session.OnTeardown(events.OnTeardown)

	stopUnread := app.Notifications.WatchUnread()
	defer stopUnread()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithReportFocus()}, opts...)
	p := tea.NewProgram(NewModel(app, events), opts...)
	_, err := p.Run()
	return err
}
