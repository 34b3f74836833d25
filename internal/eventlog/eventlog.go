package eventlog

import (
	"sync"

	"webmail/internal/models"
)

// Log is an append-only, sequence-numbered list of notification events.
// Records are never modified or removed for the lifetime of the log.
type Log struct {
	records []models.NotificationEvent
	lastSeq int64

	appendCallback func(event models.NotificationEvent)

	mux sync.RWMutex
	// deliver serializes callbacks so they run in append order.
	deliver sync.Mutex
}

type Config struct {
	AppendCallback func(event models.NotificationEvent)
}

func New(config Config) *Log {
	return &Log{
		lastSeq:        -1,
		appendCallback: config.AppendCallback,
	}
}

// Append stores the event with the next sequence number and hands it
// to the append callback before returning.
func (l *Log) Append(event models.NotificationEvent) models.NotificationEvent {
	l.deliver.Lock()
	defer l.deliver.Unlock()

	l.mux.Lock()
	l.lastSeq++
	event.Seq = l.lastSeq
	l.records = append(l.records, event)
	l.mux.Unlock()

	if l.appendCallback != nil {
		l.appendCallback(event)
	}
	return event
}

// Records returns a copy of all events, oldest first.
func (l *Log) Records() []models.NotificationEvent {
	l.mux.RLock()
	defer l.mux.RUnlock()

	result := make([]models.NotificationEvent, len(l.records))
	copy(result, l.records)
	return result
}

// Since returns events with Seq >= from, oldest first.
func (l *Log) Since(from int64) []models.NotificationEvent {
	l.mux.RLock()
	defer l.mux.RUnlock()

	if from < 0 {
		from = 0
	}
	if from > l.lastSeq {
		return []models.NotificationEvent{}
	}

	result := make([]models.NotificationEvent, len(l.records)-int(from))
	copy(result, l.records[from:])
	return result
}

func (l *Log) Len() int {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return len(l.records)
}

// LastSeq is -1 for an empty log.
func (l *Log) LastSeq() int64 {
	l.mux.RLock()
	defer l.mux.RUnlock()
	return l.lastSeq
}
