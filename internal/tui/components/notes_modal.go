package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/handy/internal/tui/styles"
)

const (
	notesWidth  = 48
	notesHeight = 4
	// counter turns amber once this share of the limit is used
	notesWarnRatio = 0.9
)

var (
	notesSave   = key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save"))
	notesCancel = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	notesClear  = key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "clear"))
)

// NotesModal edits the free-form notes a customer leaves for the provider.
// Enter inserts a line break; the saved value is trimmed.
type NotesModal struct {
	visible bool
	title   string
	limit   int
	area    textarea.Model
}

// NewNotesModal creates a notes editor holding at most limit characters
func NewNotesModal(placeholder string, limit int) NotesModal {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.CharLimit = limit
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Text = lipgloss.NewStyle().Foreground(styles.White)
	ta.FocusedStyle.Placeholder = styles.DimStyle
	ta.SetWidth(notesWidth)
	ta.SetHeight(notesHeight)

	return NotesModal{limit: limit, area: ta}
}

// Show opens the editor prefilled with the current notes
func (m *NotesModal) Show(title, notes string) {
	m.visible = true
	m.title = title
	m.area.SetValue(notes)
	m.area.CursorEnd()
	m.area.Focus()
}

// Hide closes the editor without touching its contents
func (m *NotesModal) Hide() {
	m.visible = false
	m.area.Blur()
}

// IsVisible returns whether the editor is open
func (m NotesModal) IsVisible() bool {
	return m.visible
}

// Value returns the notes with surrounding whitespace and blank lines
// removed. Whitespace-only notes come back empty.
func (m NotesModal) Value() string {
	return CleanNotes(m.area.Value())
}

// Len returns the number of characters typed so far
func (m NotesModal) Len() int {
	return len([]rune(m.area.Value()))
}

// Update handles input while the editor is open. submitted is true only
// when the notes were saved.
func (m NotesModal) Update(msg tea.Msg) (NotesModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, notesSave):
			m.Hide()
			return m, nil, true
		case key.Matches(keyMsg, notesCancel):
			m.Hide()
			return m, nil, false
		case key.Matches(keyMsg, notesClear):
			m.area.Reset()
			return m, nil, false
		}
	}

	var cmd tea.Cmd
	m.area, cmd = m.area.Update(msg)
	return m, cmd, false
}

// View renders the editor, its length counter and key hints
func (m NotesModal) View() string {
	if !m.visible {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.White).
		Bold(true).
		Width(notesWidth).
		Background(styles.SlateDark)

	hint := styles.DimStyle.Render(fmt.Sprintf("%s %s · %s %s · %s %s",
		notesSave.Help().Key, notesSave.Help().Desc,
		notesCancel.Help().Key, notesCancel.Help().Desc,
		notesClear.Help().Key, notesClear.Help().Desc))

	footer := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(notesWidth-10).Render(hint),
		lipgloss.NewStyle().Width(10).Align(lipgloss.Right).Render(m.counter()),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title),
		"",
		m.area.View(),
		"",
		footer,
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Teal).
		Background(styles.SlateDark).
		Padding(1, 2).
		Render(content)
}

func (m NotesModal) counter() string {
	if m.limit <= 0 {
		return styles.DimStyle.Render(fmt.Sprintf("%d", m.Len()))
	}
	text := fmt.Sprintf("%d/%d", m.Len(), m.limit)
	if float64(m.Len()) >= float64(m.limit)*notesWarnRatio {
		return styles.WarnStyle.Render(text)
	}
	return styles.DimStyle.Render(text)
}

// CleanNotes trims each line's trailing spaces and drops leading and
// trailing blank lines
func CleanNotes(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
