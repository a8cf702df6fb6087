package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/handy/internal/query"
)

// ChannelObserver adapts query cache notifications and session teardown
// to a channel for Bubble Tea
type ChannelObserver struct {
	ch chan tea.Msg
}

// NewChannelObserver creates a new channel-based observer
func NewChannelObserver(size int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan tea.Msg, size)}
}

// OnCacheChange forwards an entry change (non-blocking if channel full).
// Dropped notifications are harmless: the model re-reads the cache on
// the next one.
func (o *ChannelObserver) OnCacheChange(key query.Key, entry query.Entry) {
	select {
	case o.ch <- CacheChangedMsg{Key: key, Entry: entry}:
	default:
	}
}

// OnTeardown forwards a session teardown (non-blocking if channel full)
func (o *ChannelObserver) OnTeardown(reason error) {
	select {
	case o.ch <- SessionEndedMsg{Reason: reason}:
	default:
	}
}

// Wait returns a command that delivers the next event
func (o *ChannelObserver) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-o.ch
	}
}
