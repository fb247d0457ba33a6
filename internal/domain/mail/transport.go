package mail

import (
	"context"
	"errors"
)

// ErrThrottled is returned by a Transport when the provider rejects a send
// because of its rate limit. The same message may be retried later.
var ErrThrottled = errors.New("mail transport throttled")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// Transport sends emails. This decouples the engine from the provider API.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
