package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"council/internal/council"
)

// TopicSessionEvents is the subject carrying one session's events.
func TopicSessionEvents(sessionID string) string {
	return "council.session." + sessionID + ".events"
}

// TopicAllSessionEvents matches every session's events.
const TopicAllSessionEvents = "council.session.*.events"

// Publisher copies council events onto NATS. It implements council.Sink.
type Publisher struct {
	conn *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("council-gateway"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) Publish(_ context.Context, sessionID string, ev council.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return p.conn.Publish(TopicSessionEvents(sessionID), data)
}

// Subscribe delivers decoded events for sessionID ("*" for all sessions).
func (p *Publisher) Subscribe(sessionID string, fn func(sessionID string, ev council.RawEvent)) (*nats.Subscription, error) {
	return p.conn.Subscribe(TopicSessionEvents(sessionID), func(msg *nats.Msg) {
		var ev council.RawEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		fn(sessionFromSubject(msg.Subject), ev)
	})
}

func sessionFromSubject(subject string) string {
	const prefix, suffix = "council.session.", ".events"
	if len(subject) < len(prefix)+len(suffix) {
		return ""
	}
	return subject[len(prefix) : len(subject)-len(suffix)]
}

func (p *Publisher) Flush() error { return p.conn.Flush() }

func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
