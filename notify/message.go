package notify

import (
	"context"
	"strings"
)

// Message is a rendered email ready for a provider.
type Message struct {
	To       string
	ToName   string
	From     string
	FromName string
	Subject  string
	HTML     string
	Text     string
	// Params carries template values for providers that render remotely.
	Params map[string]string
}

// Sender is the single capability an email provider offers.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return badMessage("notify: recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" && len(m.Params) == 0 {
		return badMessage("notify: subject is required")
	}
	return nil
}
