package event

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type (
	// Notification is a user-visible consequence of a moderation
	// action, delivered to the chat (and the log channel when set).
	Notification struct {
		ChatID     int64
		Text       string
		ReplyTo    int
		LogChannel int64
	}

	// AuditRecord is the structured trail of one executed action.
	AuditRecord struct {
		ChatID   int64
		ActorID  int64
		TargetID int64
		Action   string
		Reason   string
		Duration time.Duration
		At       time.Time
	}

	// Event is a tagged union: exactly one field set.
	Event struct {
		Notification *Notification
		Audit        *AuditRecord
	}

	Subscriber func(Event)

	Bus struct {
		q           chan Event
		mu          sync.RWMutex
		subscribers []Subscriber
		stop        chan struct{}
		done        chan struct{}
		startOnce   sync.Once
		stopOnce    sync.Once
	}
)

const busCapacity = 1024

func NewBus() *Bus {
	return &Bus{
		q:    make(chan Event, busCapacity),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Enqueue never blocks the pipeline; a full queue drops the event with
// a logged warning.
func (b *Bus) Enqueue(e Event) {
	select {
	case b.q <- e:
	default:
		log.Warn("event queue full, dropping event")
	}
}

func (b *Bus) Run() {
	b.startOnce.Do(func() {
		go func() {
			defer close(b.done)
			for {
				select {
				case <-b.stop:
					return
				case e := <-b.q:
					b.deliver(e)
				}
			}
		}()
	})
}

func (b *Bus) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()
	for _, sub := range subs {
		sub(e)
	}
}
