// Package streamctl is the streaming controller: it parses client cursors,
// negotiates the start position, admits the connection, drives the event
// stream and tears everything down when the client goes away.
package streamctl

import (
	"time"

	"github.com/helixagent/eventbroker/internal/brokererr"
)

// EventType is the slice of event-type metadata the streaming path needs.
// Persistence of the full metadata lives outside the core.
type EventType struct {
	Name       string
	TopicID    string
	ReadScopes []string
}

// EventTypeRegistry resolves event-type names. A missing name fails with a
// NO_SUCH_EVENT_TYPE error.
type EventTypeRegistry interface {
	Get(name string) (*EventType, error)
}

// InMemoryRegistry is a fixed map of event types, used at wiring time and
// in tests.
type InMemoryRegistry map[string]*EventType

func (r InMemoryRegistry) Get(name string) (*EventType, error) {
	et, ok := r[name]
	if !ok {
		return nil, brokererr.New(brokererr.KindNoSuchEventType, "topic not found", nil)
	}
	return et, nil
}

// Client is the authenticated principal of one streaming request.
type Client struct {
	ID     string
	Scopes []string
}

// HasAnyScope reports whether the client holds at least one of the wanted
// scopes. An empty wanted list means the event type is unrestricted.
func (c Client) HasAnyScope(wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		held[s] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := held[w]; ok {
			return true
		}
	}
	return false
}

// Blacklist decides whether a client may consume an event type at all.
type Blacklist interface {
	IsBlocked(clientID, eventTypeName string) bool
}

// NoBlacklist admits everyone.
type NoBlacklist struct{}

func (NoBlacklist) IsBlocked(string, string) bool { return false }

// Params are the per-request streaming limits. In a Request a zero field
// falls back to the configured default; once merged, a zero value means
// unlimited.
type Params struct {
	BatchLimit           int
	StreamLimit          int
	BatchFlushTimeout    time.Duration
	StreamTimeout        time.Duration
	StreamKeepAliveLimit int
}
