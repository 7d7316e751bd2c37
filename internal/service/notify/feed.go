package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

const defaultCapacity = 50

// Notifier delivers human readable messages to the user.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Feed keeps the most recent notifications for the station UI and mirrors
// them to the log.
type Feed struct {
	mu       sync.Mutex
	items    []models.Notification
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// NewFeed creates a feed holding up to capacity notifications.
func NewFeed(capacity int, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Feed{capacity: capacity, logger: logger, now: time.Now}
}

// Success implements Notifier.
func (f *Feed) Success(message string) {
	f.push(models.NotifySuccess, message)
}

// Error implements Notifier.
func (f *Feed) Error(message string) {
	f.push(models.NotifyError, message)
}

// Recent returns the stored notifications, oldest first.
func (f *Feed) Recent() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) push(level models.NotificationLevel, message string) {
	f.logger.Info("user notification", zap.String("level", string(level)), zap.String("message", message))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, models.Notification{Level: level, Message: message, At: f.now().UTC()})
	if overflow := len(f.items) - f.capacity; overflow > 0 {
		f.items = append(f.items[:0:0], f.items[overflow:]...)
	}
}
