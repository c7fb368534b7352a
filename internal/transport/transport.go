// Package transport defines the interface for mail delivery backends.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// ErrAllRecipientsRejected is returned when the backend refused every
// recipient of a message.
var ErrAllRecipientsRejected = errors.New("all recipients rejected")

// Transport is the interface that delivery backends must implement.
// Each transport performs the handoff of a composed message to a local MTA,
// a sendmail process, an SMTP server or a delivery API.
type Transport interface {
	// Send delivers msg. failed lists recipients the backend refused while
	// the others were accepted. A non-nil error means nothing was delivered;
	// failed may then list the refused recipients if they are known.
	Send(ctx context.Context, msg *mail.Msg) (failed []string, err error)

	// Name returns the human-readable name of this transport.
	Name() string
}

// Envelope returns the SMTP envelope sender and recipients of msg.
// The sender is the envelope-from (return path) when set, else From.
func Envelope(msg *mail.Msg) (from string, rcpts []string, err error) {
	from, err = msg.GetSender(false)
	if err != nil {
		return "", nil, fmt.Errorf("no envelope sender: %w", err)
	}
	rcpts, err = msg.GetRecipients()
	if err != nil {
		return "", nil, fmt.Errorf("no envelope recipients: %w", err)
	}
	return from, rcpts, nil
}
