package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/plugin"
	"github.com/shineum/mailkit/internal/transport"
)

// Result reports the outcome of one Send call.
type Result struct {
	// ID correlates the log lines of this send.
	ID string
	// Success is true only when every recipient was accepted.
	Success bool
	// Partial is true when some recipients were accepted and others failed.
	Partial   bool
	SentCount int
	// Failures lists recipients that were not delivered.
	Failures []string
	// Message is a human readable summary.
	Message string
	// Err carries the classified error; nil on success.
	Err error
}

// Send composes the current state into a message and hands it to the
// transport through the active plugins. It always returns a Result;
// callers inspect Success and Failures.
//
// The return path falls back to the sender, then to the first from address
// which also becomes the sender. With auto-reset enabled, recipients, the
// subject and custom headers are cleared once the transport was invoked.
func (m *Mailer) Send(ctx context.Context) Result {
	id := uuid.NewString()
	logger := m.logger.With("send_id", id)

	t, err := m.Transport(ctx)
	if err != nil {
		logger.Error("no transport available", "error", err)
		return failed(id, err)
	}

	if !m.book.HasRecipients() {
		logger.Warn("message has no recipients")
		return failed(id, ErrNoRecipients)
	}

	msg := m.Snapshot()
	if err := deriveReturnPath(msg); err != nil {
		logger.Error("message has no origin address", "error", err)
		return failed(id, err)
	}
	msg.Ident = Ident

	invoked := false
	send, err := m.plugins.Chain(func(ctx context.Context, msg *email.Message) plugin.Outcome {
		wire, err := msg.Compose()
		if err != nil {
			return plugin.Outcome{Failures: msg.Recipients(), Err: err}
		}
		invoked = true
		return deliver(ctx, t, wire, msg.Recipients(), logger)
	})
	if err != nil {
		logger.Error("failed to build plugin chain", "error", err)
		return failed(id, fmt.Errorf("%w: %w", ErrConfiguration, err))
	}

	recipients := msg.Recipients()
	logger.Debug("sending message",
		"transport", t.Name(),
		"recipients", recipients,
		"return_path", msg.ReturnPath.Email,
		"subject", msg.Subject,
	)

	m.state = StateSending
	res := classify(id, send(ctx, msg), recipients)
	if res.SentCount > 0 {
		m.state = StateSent
	} else {
		m.state = StateFailed
	}

	if res.Success {
		logger.Info("message sent", "transport", t.Name(), "recipients", res.SentCount)
	} else {
		logger.Error("message not fully delivered",
			"transport", t.Name(),
			"sent", res.SentCount,
			"failures", res.Failures,
			"error", res.Err,
		)
	}

	if invoked && m.cfg.Mail.AutoReset {
		m.Reset(true)
	}
	return res
}

// deriveReturnPath fills an unset return path from the sender, else from
// the first from address, which then also becomes the sender.
func deriveReturnPath(msg *email.Message) error {
	if !msg.ReturnPath.IsZero() {
		return nil
	}
	if !msg.Sender.IsZero() {
		msg.ReturnPath = email.Address{Email: msg.Sender.Email}
		return nil
	}
	if from, ok := msg.From.First(); ok {
		msg.ReturnPath = email.Address{Email: from.Email}
		msg.Sender = from
		return nil
	}
	return ErrMissingOrigin
}

// deliver invokes the transport and converts its answer into an Outcome.
// A transport error means none of recipients was delivered.
func deliver(ctx context.Context, t transport.Transport, wire *mail.Msg, recipients []string, logger *slog.Logger) plugin.Outcome {
	rejected, err := t.Send(ctx, wire)
	switch {
	case errors.Is(err, transport.ErrAllRecipientsRejected):
		logger.Warn("transport rejected every recipient", "transport", t.Name(), "recipients", recipients)
		return plugin.Outcome{Failures: recipients}
	case err != nil:
		return plugin.Outcome{Failures: recipients, Err: err}
	}
	for _, rcpt := range rejected {
		logger.Warn("recipient rejected", "transport", t.Name(), "recipient", rcpt)
	}
	return plugin.Outcome{Sent: len(recipients) - len(rejected), Failures: rejected}
}

// classify turns the chain outcome into a Result. Success requires that no
// recipient failed.
func classify(id string, out plugin.Outcome, recipients []string) Result {
	total := len(recipients)
	res := Result{
		ID:        id,
		SentCount: out.Sent,
		Failures:  lo.Uniq(out.Failures),
	}
	if out.Err != nil && out.Sent == 0 && len(res.Failures) == 0 {
		res.Failures = recipients
	}

	switch {
	case out.Err != nil:
		if errors.Is(out.Err, ErrAttachment) {
			res.Err = out.Err
		} else {
			res.Err = fmt.Errorf("%w: %w", ErrTransport, out.Err)
		}
	case len(res.Failures) > 0:
		res.Err = fmt.Errorf("%w: %d of %d recipients failed", ErrTransport, len(res.Failures), total)
	}

	res.Success = res.Err == nil
	res.Partial = res.SentCount > 0 && len(res.Failures) > 0
	switch {
	case res.Success:
		res.Message = fmt.Sprintf("sent to %d recipients", res.SentCount)
	case res.Partial:
		res.Message = fmt.Sprintf("sent to %d of %d recipients", res.SentCount, total)
	default:
		res.Message = res.Err.Error()
	}
	return res
}

func failed(id string, err error) Result {
	return Result{ID: id, Err: err, Message: err.Error()}
}
