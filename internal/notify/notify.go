// Package notify delivers in-app notifications produced by notify actions.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/djlord-it/bizflow/internal/action"
	"github.com/djlord-it/bizflow/internal/domain"
)

var (
	_ action.Notifier = (*NATSNotifier)(nil)
	_ action.Notifier = (*LogNotifier)(nil)
)

// Message is the JSON document published for each notification.
type Message struct {
	Channel   string           `json:"channel"`
	Message   string           `json:"message"`
	EventID   int64            `json:"eventId"`
	EventType domain.EventType `json:"eventType"`
	EntityID  *int64           `json:"entityId,omitempty"`
	SentAt    time.Time        `json:"sentAt"`
}

// Publisher is the subset of *nats.Conn used by NATSNotifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications on <prefix>.<channel>.
type NATSNotifier struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	now    func() time.Time
}

// Connect dials url and returns a notifier publishing under prefix.
func Connect(url, prefix string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("bizflow"),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n := NewNATSNotifier(conn, prefix)
	n.conn = conn
	log.Printf("notify: connected to nats url=%s prefix=%s", url, prefix)
	return n, nil
}

func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "."),
		now:    time.Now,
	}
}

// Subject returns the NATS subject used for channel.
func (n *NATSNotifier) Subject(channel string) string {
	if n.prefix == "" {
		return channel
	}
	return n.prefix + "." + channel
}

func (n *NATSNotifier) Notify(ctx context.Context, channel, message string, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Message{
		Channel:   channel,
		Message:   message,
		EventID:   ev.ID,
		EventType: ev.Type,
		EntityID:  ev.EntityID,
		SentAt:    n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.pub.Publish(n.Subject(channel), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(channel), err)
	}
	return nil
}

// Close drains the underlying connection when the notifier owns one.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// LogNotifier writes notifications to the process log. Used when no
// NATS server is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, channel, message string, ev domain.Event) error {
	log.Printf("notify: channel=%s event=%s event_id=%d message=%q", channel, ev.Type, ev.ID, message)
	return nil
}
