package engine

import (
	"sync"
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// NotificationKind names a lifecycle or tick notification.
type NotificationKind string

const (
	NotifyRegistered   NotificationKind = "campaign_registered"
	NotifyUnregistered NotificationKind = "campaign_unregistered"
	NotifyStarted      NotificationKind = "campaign_started"
	NotifyStopped      NotificationKind = "campaign_stopped"
	NotifyModeChanged  NotificationKind = "tick_mode_changed"
	NotifyActionQueued NotificationKind = "action_queued"
	NotifyTickComplete NotificationKind = "tick_completed"
	NotifyTickFailed   NotificationKind = "tick_failed"
)

// Notification is broadcast to every subscriber.
type Notification struct {
	Kind       NotificationKind  `json:"kind"`
	CampaignID string            `json:"campaign_id"`
	Tick       uint64            `json:"tick,omitempty"`
	Time       time.Time         `json:"time"`
	Mode       campaign.TickMode `json:"mode,omitempty"`
	Report     *TickReport       `json:"report,omitempty"`
	Action     *campaign.Action  `json:"action,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Bus fans notifications out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the notification.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	buffer int
	closed bool
}

// NewBus creates a Bus whose subscriber channels hold buffer notifications.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan Notification), buffer: buffer}
}

// Subscribe registers a new subscriber. The channel is closed by Unsubscribe
// or Close.
func (b *Bus) Subscribe() (int, <-chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Notification, b.buffer)
	if b.closed {
		close(ch)
		return -1, ch
	}
	b.nextID++
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers n to every subscriber with room for it.
func (b *Bus) Publish(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscribers get a closed
// channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
