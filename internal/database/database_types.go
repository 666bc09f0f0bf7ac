package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventCollectionName = "session_events"
)

type EventKind string

const (
	EventClientAccepted  EventKind = "client_accepted"
	EventClientRejected  EventKind = "client_rejected"
	EventClientClosed    EventKind = "client_closed"
	EventCommand         EventKind = "command"
	EventServerStarted   EventKind = "server_started"
	EventServerFailed    EventKind = "server_failed"
	EventSinkConnected   EventKind = "sink_connected"
	EventSinkPlaying     EventKind = "sink_playing"
	EventSinkPaused      EventKind = "sink_paused"
	EventSinkTeardown    EventKind = "sink_teardown"
	EventStatusChanged   EventKind = "status_changed"
	EventServerDestroyed EventKind = "server_destroyed"
)

// Event is one entry of the server's session journal.
type Event struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	Kind      EventKind `bson:"kind"`
	Detail    string    `bson:"detail"`
	Time      time.Time `bson:"time"`
}

func NewEvent(sessionID string, kind EventKind, detail string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		Detail:    detail,
		Time:      time.Now(),
	}
}

type Journal interface {
	Record(ctx context.Context, event *Event) error
	List(ctx context.Context, sessionID string) ([]*Event, error)
	Invoke(ctx context.Context) error
}
