package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestCleanNotes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n\t\n ", ""},
		{"trims ends", "  gate code 1234  ", "gate code 1234"},
		{"drops blank edge lines", "\n\nring twice\n\n", "ring twice"},
		{"keeps inner breaks", "gate 1234   \ndog is friendly", "gate 1234\ndog is friendly"},
		{"crlf", "a\r\nb", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanNotes(tt.in); got != tt.want {
				t.Errorf("CleanNotes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNotesModalSaveAndCancel(t *testing.T) {
	m := NewNotesModal("notes", 20)
	m.Show("Notes", "  side door ")
	if !m.IsVisible() {
		t.Fatal("modal not visible after Show")
	}
	if got := m.Value(); got != "side door" {
		t.Errorf("Value() = %q, want trimmed notes", got)
	}

	m, _, submitted := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !submitted || m.IsVisible() {
		t.Errorf("ctrl+s: submitted = %v, visible = %v", submitted, m.IsVisible())
	}

	m.Show("Notes", "x")
	m, _, submitted = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if submitted || m.IsVisible() {
		t.Errorf("esc: submitted = %v, visible = %v", submitted, m.IsVisible())
	}
}

func TestNotesModalClearAndLimit(t *testing.T) {
	m := NewNotesModal("notes", 10)
	m.Show("Notes", "")
	m, _, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("0123456789abc")})
	if m.Len() != 10 {
		t.Errorf("Len() = %d, want the 10 character limit", m.Len())
	}
	if !strings.Contains(m.View(), "10/10") {
		t.Errorf("view missing counter:\n%s", m.View())
	}

	m, _, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
	if m.Value() != "" || !m.IsVisible() {
		t.Errorf("ctrl+u: value = %q, visible = %v", m.Value(), m.IsVisible())
	}
}

func TestNotesModalIgnoresInputWhenHidden(t *testing.T) {
	m := NewNotesModal("notes", 10)
	m, cmd, submitted := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd != nil || submitted {
		t.Error("hidden modal handled a key")
	}
}
