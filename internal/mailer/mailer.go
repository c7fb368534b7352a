// Package mailer composes outbound messages and dispatches them through a
// configured transport wrapped in the send-time plugin chain.
//
// A Mailer owns mutable composition state and is not safe for concurrent
// use. Compose independent messages with independent Mailers; they may share
// a validate.Validator.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/plugin"
	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/validate"
)

// Option customizes a Mailer.
type Option func(*Mailer)

// WithTransport uses t instead of building one from configuration.
func WithTransport(t transport.Transport) Option {
	return func(m *Mailer) { m.transport = t }
}

// WithValidator checks addresses with v instead of a validator built from
// the cache settings. It has no effect when validation is disabled.
func WithValidator(v *validate.Validator) Option {
	return func(m *Mailer) { m.validator = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) { m.logger = l }
}

// WithSleep replaces the pause used by plugins.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Mailer) { m.sleep = fn }
}

// Mailer holds one message under composition and the transport it is sent
// through.
type Mailer struct {
	cfg       config.Config
	logger    *slog.Logger
	debug     atomic.Bool
	debugLog  *lockedBuffer
	validator *validate.Validator
	sleep     func(ctx context.Context, d time.Duration) error

	book     *email.AddressBook
	content  email.Content
	headers  email.HeaderRegistry
	plugins  *plugin.Registry
	attrs    map[Attribute]any
	fromName string

	transport transport.Transport
	state     State
}

// New creates a Mailer from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Mailer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Mailer{
		cfg:   *cfg,
		attrs: make(map[Attribute]any),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.debugLog = &lockedBuffer{}
	m.debug.Store(m.cfg.Mail.Debug)
	m.logger = teeLogger(m.logger, m.debugLog, &m.debug)

	var valid func(string) bool
	if m.cfg.Mail.ValidateEmails {
		if m.validator == nil {
			v, err := newValidator(m.cfg.Mail)
			if err != nil {
				return nil, err
			}
			m.validator = v
		}
		valid = m.validator.IsValid
	}
	m.book = email.NewAddressBook(valid)
	m.content.Charset = m.cfg.Mail.Charset
	m.content.Encoding = m.cfg.Mail.Encoding
	m.content.Priority = email.PriorityNormal

	m.plugins = plugin.NewRegistry(plugin.Deps{Logger: m.logger, Sleep: m.sleep})
	for _, p := range m.cfg.Plugins {
		if err := m.plugins.Register(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	if m.transport != nil {
		m.state = StateReady
	}
	return m, nil
}

func newValidator(cfg config.MailConfig) (*validate.Validator, error) {
	if cfg.CacheBackend != "disk" {
		return validate.New(validate.NewMemoryCache()), nil
	}
	cache, err := validate.NewDiskCache(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return validate.New(cache), nil
}

// Address adds value to the set selected by kind. value is a bare email, a
// list of emails, or a map of email to display name. A non-empty name
// replaces the display name of every entry. Invalid emails are dropped.
//
// kind also accepts the aliases understood by email.ParseKind. The sender,
// return path and read receipt kinds set that single field from the first
// entry instead.
func (m *Mailer) Address(kind email.Kind, value any, name string) error {
	entries, err := email.Entries(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	kind = email.ParseKind(string(kind))
	if kind.Single() {
		if len(entries) == 0 {
			return nil
		}
		a := entries[0]
		switch kind {
		case email.KindSender:
			m.Sender(a.Email, lo.CoalesceOrEmpty(name, a.Name))
		case email.KindReturnPath:
			m.ReturnPath(a.Email)
		default:
			m.ReadReceipt(a.Email)
		}
		return nil
	}
	if kind == email.KindFrom && name == "" {
		name = m.fromName
	}
	dropped, err := m.book.Add(kind, entries, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	for _, addr := range dropped {
		m.logger.Debug("dropped invalid address", "kind", kind, "email", addr)
	}
	return nil
}

// Sender sets the Sender address. It reports false when addr was rejected.
func (m *Mailer) Sender(addr, name string) bool {
	return m.single("sender", m.book.SetSender(addr, name), addr)
}

// ReturnPath sets the bounce address.
func (m *Mailer) ReturnPath(addr string) bool {
	return m.single("return_path", m.book.SetReturnPath(addr), addr)
}

// ReadReceipt requests a read receipt to addr.
func (m *Mailer) ReadReceipt(addr string) bool {
	return m.single("read_to", m.book.SetReadReceipt(addr), addr)
}

// ReplyTo sets the Reply-To address.
func (m *Mailer) ReplyTo(addr, name string) bool {
	return m.single("reply_to", m.book.SetReplyTo(addr, name), addr)
}

func (m *Mailer) single(field string, ok bool, addr string) bool {
	if !ok {
		m.logger.Debug("ignored invalid address", "field", field, "email", addr)
	}
	return ok
}

// Header registers the custom header X-<name>. It reports false when the
// name is reserved or, with override false, already set.
func (m *Mailer) Header(name, value string, params []email.HeaderParam, override bool) bool {
	if err := m.headers.Set(name, value, params, override); err != nil {
		if errors.Is(err, email.ErrReservedHeader) {
			m.logger.Warn("rejected reserved header", "header", name)
		} else {
			m.logger.Debug("header not set", "header", name, "error", err)
		}
		return false
	}
	return true
}

// Subject sets the subject line.
func (m *Mailer) Subject(subject string) {
	m.content.Subject = subject
}

// Body sets the primary part. The content type defaults to the configured
// content type.
func (m *Mailer) Body(text string, opts ...email.PartOption) {
	opts = append([]email.PartOption{email.WithMIMEType(m.cfg.Mail.ContentType)}, opts...)
	m.content.SetBody(text, opts...)
}

// SetHTML switches the primary part to text/html in charset, which
// defaults to UTF-8. With no body set yet the next Body call uses them.
func (m *Mailer) SetHTML(charset string) {
	m.setBodyType("text/html", charset)
}

// SetPlain switches the primary part to text/plain in charset.
func (m *Mailer) SetPlain(charset string) {
	m.setBodyType("text/plain", charset)
}

// ToggleHTML switches the primary part between text/html and text/plain.
func (m *Mailer) ToggleHTML(charset string) {
	current := m.cfg.Mail.ContentType
	if m.content.Body != (email.Part{}) {
		current = m.content.Body.MIMEType
	}
	if current == "text/html" {
		m.setBodyType("text/plain", charset)
		return
	}
	m.setBodyType("text/html", charset)
}

func (m *Mailer) setBodyType(mimeType, charset string) {
	charset = lo.CoalesceOrEmpty(charset, email.DefaultCharset)
	m.cfg.Mail.ContentType = mimeType
	m.content.Charset = charset
	m.content.SetBodyType(mimeType, charset)
}

// Plain adds a text/plain alternative part.
func (m *Mailer) Plain(text string, opts ...email.PartOption) {
	m.content.AddPlain(text, opts...)
}

// Attach queues the file at path. The path must be absolute; it is checked
// when the message is sent.
func (m *Mailer) Attach(path string, opts ...email.AttachOption) {
	m.content.Attach(path, opts...)
}

// Priority sets the priority from 1-5 or highest/high/normal/low/lowest.
// Unrecognized values mean normal.
func (m *Mailer) Priority(value any) {
	m.content.Priority = email.ParsePriority(value)
}

// Replacements activates the decorator plugin with per-recipient
// substitutions: recipient email to search string to replacement.
func (m *Mailer) Replacements(r map[string]map[string]string) error {
	return m.plugins.Register(plugin.Config{
		Name:   plugin.DecoratorName,
		Active: lo.ToPtr(true),
		Params: map[string]any{"replacements": r},
	})
}

// Plugin declares or updates a plugin entry. Params merge over the current
// ones and a nil Active keeps the entry's active flag.
func (m *Mailer) Plugin(cfg plugin.Config) error {
	return m.plugins.Register(cfg)
}

// Reset clears to, cc, bcc and the subject, and the custom headers when
// headers is true. Body parts, attachments and priority are kept.
func (m *Mailer) Reset(headers bool) {
	m.book.ResetRecipients()
	m.content.Subject = ""
	if headers {
		m.headers.Reset()
	}
}

// ResetHeaders removes every custom header.
func (m *Mailer) ResetHeaders() {
	m.headers.Reset()
}

// ClearAttachments drops all queued attachments.
func (m *Mailer) ClearAttachments() {
	m.content.ClearAttachments()
}

// State returns the lifecycle state.
func (m *Mailer) State() State {
	return m.state
}

// Snapshot returns the message as it would be composed now, before
// return-path derivation.
func (m *Mailer) Snapshot() *email.Message {
	return email.Snapshot(m.book, &m.content, &m.headers)
}

// Debug switches capture of the debug trace on or off. The trace captured
// so far is kept either way.
func (m *Mailer) Debug(enable bool) {
	m.debug.Store(enable)
}

// GetDebug reports whether the debug trace is being captured.
func (m *Mailer) GetDebug() bool {
	return m.debug.Load()
}

// GetLog returns the captured debug trace. It is empty unless debug mode
// was on at some point.
func (m *Mailer) GetLog() string {
	return m.debugLog.String()
}
