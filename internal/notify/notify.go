// Package notify is the persistent "tracking is active" indicator shown
// while the reporter runs.
package notify

import (
	"context"
	"sync"

	"github.com/phuslu/log"
)

type Importance int

const (
	ImportanceLow Importance = iota
	ImportanceDefault
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceHigh:
		return "high"
	case ImportanceDefault:
		return "default"
	default:
		return "low"
	}
}

type Notification struct {
	ID          int
	ChannelID   string
	ChannelName string
	Title       string
	Body        string
	Importance  Importance
	Ongoing     bool
}

func (n Notification) MarshalObject(e *log.Entry) {
	e.Int("id", n.ID).Str("channel", n.ChannelID).Str("title", n.Title).Str("importance", n.Importance.String())
}

// Tracking is the notification shown for the whole time the reporter runs.
func Tracking() Notification {
	return Notification{
		ID:          1,
		ChannelID:   "bgLocation",
		ChannelName: "Background Location Channel",
		Title:       "Bus Tracker",
		Body:        "Sharing location in the background",
		Importance:  ImportanceLow,
		Ongoing:     true,
	}
}

type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id int) error
}

// LogNotifier records notifications in the process log and remembers which
// ones are visible.
type LogNotifier struct {
	mu      sync.Mutex
	log     log.Logger
	visible map[int]Notification
}

func NewLogNotifier() *LogNotifier {
	n := &LogNotifier{visible: make(map[int]Notification)}
	n.log = log.DefaultLogger
	n.log.Context = log.NewContext(nil).Str("module", "notify").Value()
	return n
}

func (l *LogNotifier) Show(ctx context.Context, n Notification) error {
	l.mu.Lock()
	_, replaced := l.visible[n.ID]
	l.visible[n.ID] = n
	l.mu.Unlock()
	l.log.Info().EmbedObject(n).Bool("replaced", replaced).Msg("notification shown")
	return nil
}

func (l *LogNotifier) Cancel(ctx context.Context, id int) error {
	l.mu.Lock()
	_, ok := l.visible[id]
	delete(l.visible, id)
	l.mu.Unlock()
	if ok {
		l.log.Info().Int("id", id).Msg("notification cancelled")
	}
	return nil
}

func (l *LogNotifier) Visible() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notification, 0, len(l.visible))
	for _, n := range l.visible {
		out = append(out, n)
	}
	return out
}
