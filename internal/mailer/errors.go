package mailer

import (
	"errors"

	"github.com/shineum/mailkit/internal/email"
)

var (
	// ErrConfiguration is returned when no transport can be resolved.
	ErrConfiguration = errors.New("mailer not configured")
	// ErrValidation is returned for address input that cannot be interpreted.
	// Syntactically invalid emails are dropped without an error.
	ErrValidation = errors.New("invalid address input")
	// ErrNoRecipients is returned when to, cc and bcc are all empty.
	ErrNoRecipients = errors.New("no recipients")
	// ErrMissingOrigin is returned when neither a return path, a sender nor
	// a from address is set.
	ErrMissingOrigin = errors.New("no return path, sender or from address")
	// ErrTransport is returned when the transport failed or refused recipients.
	ErrTransport = errors.New("transport failure")
	// ErrUnknownAttribute is returned by Set for names outside the vocabulary.
	ErrUnknownAttribute = errors.New("unknown attribute")

	ErrReservedHeader = email.ErrReservedHeader
	ErrAttachment     = email.ErrAttachment
)
