package events

import (
	"context"
	"time"
)

type EventType string

const (
	ResourceCreated EventType = "resource.created"
	ResourceUpdated EventType = "resource.updated"
	ResourceDeleted EventType = "resource.deleted"
)

// Event announces a committed change to a resource
type Event struct {
	Type       EventType `json:"type"`
	ResourceID uint64    `json:"resource_id"`
	Name       string    `json:"name,omitempty"`
	URL        string    `json:"url,omitempty"`
	ActorID    string    `json:"actor_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher fans change events out to other nodes and live clients
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscriber delivers published events until ctx is cancelled
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// NopPublisher drops every event. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
