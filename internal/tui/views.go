package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/handy/internal/availability"
	"github.com/mmcdole/handy/internal/booking"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/tui/styles"
)

// View renders the application
func (m Model) View() string {
	var body string
	switch m.Screen {
	case ScreenServices:
		body = m.renderServices()
	case ScreenWizard:
		body = m.renderWizard()
	case ScreenBookings:
		body = m.renderBookings()
	case ScreenNotifications:
		body = m.renderInbox()
	case ScreenSignedOut:
		body = m.renderSignedOut()
	}

	view := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		styles.PanelStyle.Render(body),
		m.renderFooter(),
	)

	if m.notes.IsVisible() && m.Width > 0 && m.Height > 0 {
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, m.notes.View())
	}
	return view
}

func (m Model) renderHeader() string {
	tabs := []struct {
		screen Screen
		label  string
	}{
		{ScreenServices, "1 Services"},
		{ScreenBookings, "2 Bookings"},
		{ScreenNotifications, "3 Inbox"},
	}

	parts := []string{styles.TitleStyle.Render("Handy")}
	for _, t := range tabs {
		label := t.label
		if t.screen == ScreenNotifications && m.unread > 0 {
			label = fmt.Sprintf("%s %s%d", label, styles.UnreadChar, m.unread)
		}
		if m.Screen == t.screen {
			parts = append(parts, styles.StepActiveStyle.Render(label))
		} else {
			parts = append(parts, styles.StepInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderFooter() string {
	var left string
	switch {
	case m.Loading:
		left = m.spinner.View() + " Loading…"
	case m.StatusMsg != "" && m.StatusIsErr:
		left = styles.ErrorStyle.Render(m.StatusMsg)
	case m.StatusMsg != "":
		left = styles.SuccessStyle.Render(m.StatusMsg)
	}

	var right []string
	if m.stale && m.Screen == ScreenServices {
		right = append(right, styles.WarnStyle.Render(styles.StaleChar+" showing saved results"))
	}
	if m.unread > 0 {
		right = append(right, styles.AccentStyle.Render(fmt.Sprintf("%s %d unread", styles.UnreadChar, m.unread)))
	}

	line := left
	if len(right) > 0 {
		if line != "" {
			line += "  "
		}
		line += strings.Join(right, "  ")
	}
	return styles.StatusBarStyle.Render(line)
}

func (m Model) renderServices() string {
	var b strings.Builder
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	if len(m.matches) == 0 {
		switch {
		case m.listErr != nil && len(m.services) == 0:
			b.WriteString(styles.ErrorStyle.Render(domain.UserMessage(m.listErr)))
			b.WriteString("\n" + styles.DimStyle.Render("r to retry"))
		case m.filter.Value() != "":
			b.WriteString(styles.DimStyle.Render("No services match “" + m.filter.Value() + "”"))
		case !m.Loading:
			b.WriteString(styles.DimStyle.Render("No services available"))
		}
		return b.String()
	}

	for i, match := range m.matches {
		svc := match.Service
		fav := "  "
		if m.favorites[svc.ID] {
			fav = styles.AccentStyle.Render(styles.FavoriteChar) + " "
		}
		name := highlight(svc.Name, match.MatchedIndexes)
		meta := styles.DimStyle.Render(fmt.Sprintf("%s · %d min", money(svc.BasePrice), svc.DurationMinutes))
		row := fav + name + "  " + meta
		if i == m.cursor {
			b.WriteString(styles.SelectedItemStyle.Render(row))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(row))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + styles.DimStyle.Render("enter book · f favorite · / filter · r refresh"))
	return b.String()
}

// highlight renders matched byte offsets of name in the match style
func highlight(name string, idx []int) string {
	if len(idx) == 0 {
		return name
	}
	set := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		set[i] = struct{}{}
	}
	var b strings.Builder
	for i, r := range name {
		if _, ok := set[i]; ok {
			b.WriteString(styles.MatchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m Model) renderWizard() string {
	w := m.wizard
	if w == nil {
		return ""
	}
	st := w.State()
	svc := w.Service()

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Book " + svc.Name))
	b.WriteString("\n")
	b.WriteString(renderSteps(st.Step))
	b.WriteString("\n\n")

	switch st.Step {
	case booking.StepDateTime:
		b.WriteString(m.renderDateTime(st))
	case booking.StepAddress:
		b.WriteString(m.renderAddresses(st))
	case booking.StepAddons:
		b.WriteString(m.renderAddons(st))
	case booking.StepReview:
		b.WriteString(m.renderReview(st))
	}

	if err := st.Errors[st.Step]; err != nil {
		b.WriteString("\n" + styles.ErrorStyle.Render(domain.UserMessage(err)))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.SubtitleStyle.Render("Total " + money(st.Pricing.Total)))
	b.WriteString("\n" + styles.DimStyle.Render("tab next · shift+tab back · esc cancel"))
	return b.String()
}

func renderSteps(current booking.Step) string {
	steps := []booking.Step{booking.StepDateTime, booking.StepAddress, booking.StepAddons, booking.StepReview}
	labels := map[booking.Step]string{
		booking.StepDateTime: "Date & time",
		booking.StepAddress:  "Address",
		booking.StepAddons:   "Add-ons",
		booking.StepReview:   "Review",
	}
	parts := make([]string, 0, len(steps))
	for i, s := range steps {
		label := fmt.Sprintf("%d %s", i+1, labels[s])
		if s == current {
			parts = append(parts, styles.StepActiveStyle.Render(label))
		} else {
			parts = append(parts, styles.StepInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderDateTime(st booking.State) string {
	var b strings.Builder
	date := st.Draft.Date
	if t, err := time.Parse(availability.DateLayout, date); err == nil {
		date = t.Format("Mon Jan 2, 2006")
	}
	b.WriteString("← " + styles.TitleStyle.Render(date) + " →\n\n")

	switch {
	case st.SlotsLoading:
		b.WriteString(m.spinner.View() + " Loading available times…")
	case st.SlotsErr != nil:
		b.WriteString(styles.ErrorStyle.Render(domain.UserMessage(st.SlotsErr)))
		b.WriteString("\n" + styles.DimStyle.Render("r to retry"))
	case len(st.Slots) == 0:
		msg := st.SlotsMessage
		if msg == "" {
			msg = availability.DefaultEmptyMessage
		}
		b.WriteString(styles.DimStyle.Render(msg))
	default:
		for i, slot := range st.Slots {
			mark := "  "
			if slot.Time == st.Draft.Time {
				mark = styles.AccentStyle.Render("✓ ")
			}
			style := styles.NormalItemStyle
			switch {
			case !slot.Available:
				style = styles.DisabledItemStyle
			case i == m.wizCursor:
				style = styles.SelectedItemStyle
			}
			b.WriteString(style.Render(mark + slot.Time))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderAddresses(st booking.State) string {
	addrs := m.wizard.Addresses()
	if len(addrs) == 0 {
		return styles.DimStyle.Render("No saved addresses")
	}
	var b strings.Builder
	for i, a := range addrs {
		mark := "( ) "
		if a.ID == st.Draft.AddressID {
			mark = "(•) "
		}
		line := mark + addressLine(a)
		if a.IsDefault {
			line += styles.DimStyle.Render("  default")
		}
		if i == m.wizCursor {
			b.WriteString(styles.SelectedItemStyle.Render(line))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderAddons(st booking.State) string {
	addons := m.wizard.Addons()
	if len(addons) == 0 {
		return styles.DimStyle.Render("No add-ons for this service")
	}
	var b strings.Builder
	for i, a := range addons {
		mark := "[ ] "
		if st.Draft.HasAddon(a.ID) {
			mark = "[x] "
		}
		line := mark + a.Name + "  " + styles.DimStyle.Render("+"+money(a.Price))
		if i == m.wizCursor {
			b.WriteString(styles.SelectedItemStyle.Render(line))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderReview(st booking.State) string {
	w := m.wizard
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("%-10s", label)))
		b.WriteString(value + "\n")
	}
	row("Service", w.Service().Name)
	row("When", st.Draft.Date+" "+st.Draft.Time)
	for _, a := range w.Addresses() {
		if a.ID == st.Draft.AddressID {
			row("Address", addressLine(a))
		}
	}
	var names []string
	for _, a := range w.Addons() {
		if st.Draft.HasAddon(a.ID) {
			names = append(names, a.Name)
		}
	}
	if len(names) > 0 {
		row("Add-ons", strings.Join(names, ", "))
	}
	if st.Draft.Notes != "" {
		row("Notes", st.Draft.Notes)
	}
	b.WriteString("\n")
	row("Base", money(st.Pricing.Base))
	row("Add-ons", money(st.Pricing.Addons))
	b.WriteString("\n")
	if st.Submitting {
		b.WriteString(m.spinner.View() + " Submitting…")
	} else {
		b.WriteString(styles.DimStyle.Render("e notes · s submit"))
	}
	return b.String()
}

func (m Model) renderBookings() string {
	if len(m.bookings) == 0 {
		if m.Loading {
			return ""
		}
		return styles.DimStyle.Render("No bookings yet")
	}
	var b strings.Builder
	for i, bk := range m.bookings {
		line := fmt.Sprintf("%s %s  %-12s %s", bk.ScheduledDate, bk.ScheduledTime, bk.Status, money(bk.TotalPrice))
		if i == m.bookingCursor {
			b.WriteString(styles.SelectedItemStyle.Render(line))
		} else {
			b.WriteString(styles.NormalItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + styles.DimStyle.Render("x cancel · r refresh"))
	return b.String()
}

func (m Model) renderInbox() string {
	if len(m.inbox) == 0 {
		if m.Loading {
			return ""
		}
		return styles.DimStyle.Render("No notifications")
	}
	var b strings.Builder
	for i, n := range m.inbox {
		mark := "  "
		if !n.IsRead {
			mark = styles.AccentStyle.Render(styles.UnreadChar) + " "
		}
		line := mark + n.Title
		if i == m.inboxCursor {
			b.WriteString(styles.SelectedItemStyle.Render(line))
			if n.Body != "" {
				b.WriteString("\n    " + styles.DimStyle.Render(n.Body))
			}
		} else {
			b.WriteString(styles.NormalItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + styles.DimStyle.Render("enter mark read · a mark all read"))
	return b.String()
}

func (m Model) renderSignedOut() string {
	msg := "You have been signed out."
	if m.endReason != nil {
		msg = domain.UserMessage(m.endReason)
	}
	return styles.WarnStyle.Render(msg) + "\n\n" +
		styles.DimStyle.Render("Run `handy login` to sign in again. q to quit.")
}

func addressLine(a domain.Address) string {
	line := a.Street + ", " + a.City
	if a.Label != "" {
		line = a.Label + ": " + line
	}
	return line
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
