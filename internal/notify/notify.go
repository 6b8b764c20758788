// Package notify is the user-facing notification surface: every operation of
// the storefront core reports its outcome here instead of returning failures
// up to the presentation layer.
package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/state"
	"github.com/google/uuid"
)

// Kind classifies a notice for display
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notice is a transient message for the user
type Notice struct {
	ID      string    `json:"id,omitempty"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier reports outcomes to the user
type Notifier interface {
	Notify(kind Kind, message string)
}

const defaultCapacity = 50

// Center keeps the most recent notices in memory
type Center struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int

	logger    *slog.Logger
	metrics   *metrics.AppMetrics
	publisher state.Publisher
}

// NewCenter creates a notification center. capacity <= 0 uses the default.
func NewCenter(logger *slog.Logger, m *metrics.AppMetrics, publisher state.Publisher, capacity int) *Center {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if publisher == nil {
		publisher = state.Discard
	}
	return &Center{
		capacity:  capacity,
		logger:    logger,
		metrics:   m,
		publisher: publisher,
	}
}

// Notify records a notice, dropping the oldest when full
func (c *Center) Notify(kind Kind, message string) {
	n := Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		At:      time.Now(),
	}

	c.mu.Lock()
	if len(c.notices) == c.capacity {
		c.notices = slices.Delete(c.notices, 0, 1)
	}
	c.notices = append(c.notices, n)
	c.mu.Unlock()

	level := slog.LevelInfo
	if kind == KindError || kind == KindWarning {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "notice",
		slog.String("kind", string(kind)),
		slog.String("message", message),
	)
	c.metrics.RecordNotice(context.Background(), string(kind))
	c.publisher.Publish(state.TopicNotice)
}

// Recent returns the retained notices, oldest first
func (c *Center) Recent() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.notices)
}

// Drain returns the retained notices and forgets them
func (c *Center) Drain() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Recorder is a Notifier that only remembers notices. Used by tests.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
}

// Notify implements Notifier
func (r *Recorder) Notify(kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, Notice{Kind: kind, Message: message, At: time.Now()})
}

// Last returns the most recent notice, if any
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Notices) == 0 {
		return Notice{}, false
	}
	return r.Notices[len(r.Notices)-1], true
}

// Count returns the number of notices of the given kind
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.Notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}
