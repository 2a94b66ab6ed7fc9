// Package emails builds and dispatches the photographer notifications sent
// after a client submits a selection.
package emails

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	// ErrInvalidMessage indicates a message without recipient or subject.
	ErrInvalidMessage = errors.New("emails: recipient and subject are required")
	// ErrRejected indicates the provider answered with a non-success status.
	ErrRejected = errors.New("emails: provider rejected message")
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport delivers messages and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, message Message) (string, error)
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport sends messages through the SendGrid v3 API.
type SendGridTransport struct {
	client sendgridClient
	from   *mail.Email
}

// NewSendGridTransport builds a transport for apiKey sending as fromName <fromAddress>.
func NewSendGridTransport(apiKey, fromName, fromAddress string) (*SendGridTransport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("emails: sendgrid api key is required")
	}
	if strings.TrimSpace(fromAddress) == "" {
		return nil, fmt.Errorf("emails: from address is required")
	}
	return newSendGridTransport(sendgrid.NewSendClient(apiKey), fromName, fromAddress), nil
}

func newSendGridTransport(client sendgridClient, fromName, fromAddress string) *SendGridTransport {
	return &SendGridTransport{client: client, from: mail.NewEmail(fromName, fromAddress)}
}

// Send delivers message and returns the X-Message-Id assigned by SendGrid.
func (t *SendGridTransport) Send(ctx context.Context, message Message) (string, error) {
	if strings.TrimSpace(message.To) == "" || strings.TrimSpace(message.Subject) == "" {
		return "", ErrInvalidMessage
	}
	to := mail.NewEmail("", message.To)
	payload := mail.NewSingleEmail(t.from, message.Subject, to, message.Text, message.HTML)
	response, err := t.client.SendWithContext(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("emails: send: %w", err)
	}
	if response.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, response.StatusCode, response.Body)
	}
	return headerValue(response.Headers, "X-Message-Id"), nil
}

func headerValue(headers map[string][]string, name string) string {
	for key, values := range headers {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}
