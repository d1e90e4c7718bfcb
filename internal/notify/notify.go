// README: Passenger/driver notifications: message catalogue, FCM topic delivery, and a log-only fallback.
package notify

import (
	"context"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"carpool/internal/logger"
	"carpool/internal/types"
)

type Kind string

const (
	KindRouteOpened  Kind = "route_opened"
	KindJoinAccepted Kind = "join_accepted"
	KindJoinRejected Kind = "join_rejected"
	KindRouteFormed  Kind = "route_formed"
	KindArrival      Kind = "arrival"
	KindProximity    Kind = "proximity"
)

type Message struct {
	Kind  Kind
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers one message to one user. Failures are per recipient.
type Notifier interface {
	Notify(ctx context.Context, to types.ID, m Message) error
}

// Sender is the subset of *messaging.Client used for delivery.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier publishes to the per-user topic "user_<id>"; clients subscribe
// to their own topic after login.
type FCMNotifier struct {
	client Sender
	log    logger.Logger
}

func NewFCMNotifier(client Sender, log logger.Logger) *FCMNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &FCMNotifier{client: client, log: log}
}

func (n *FCMNotifier) Notify(ctx context.Context, to types.ID, m Message) error {
	if to == "" {
		return fmt.Errorf("empty recipient for %s", m.Kind)
	}
	data := map[string]string{"type": string(m.Kind)}
	for k, v := range m.Data {
		data[k] = v
	}
	msg := &messaging.Message{
		Topic: Topic(to),
		Data:  data,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	messageID, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to %s: %w", to, err)
	}
	n.log.Debugf("FCM %s sent to %s, message_id=%s", m.Kind, to, messageID)
	return nil
}

// Topic maps a user id onto the FCM topic alphabet [a-zA-Z0-9-_.~%].
func Topic(id types.ID) string {
	var b strings.Builder
	b.WriteString("user_")
	for _, r := range string(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// LogNotifier only logs; used when Firebase is not configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, to types.ID, m Message) error {
	n.log.Infof("notify %s (%s): %s", to, m.Kind, m.Body)
	return nil
}
