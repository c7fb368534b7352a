package email

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/wneessen/go-mail"
)

// Defaults applied when neither the part nor the content carries a value.
const (
	DefaultCharset  = "UTF-8"
	DefaultEncoding = "8bit"
	DefaultMIMEType = "text/html"
)

// ErrAttachment is returned when an attachment path is relative or missing.
var ErrAttachment = errors.New("invalid attachment")

// Disposition tells the client how to present an attachment.
type Disposition string

const (
	DispositionAttachment Disposition = "attachment"
	DispositionInline     Disposition = "inline"
)

// Part is one body part. The first part of a message is the primary body,
// the rest are alternatives.
type Part struct {
	Content  string
	MIMEType string
	Charset  string
	Encoding string
}

// PartOption customizes a Part.
type PartOption func(*Part)

// WithMIMEType sets the part content type.
func WithMIMEType(mimeType string) PartOption {
	return func(p *Part) { p.MIMEType = mimeType }
}

// WithCharset sets the part charset.
func WithCharset(charset string) PartOption {
	return func(p *Part) { p.Charset = charset }
}

// WithEncoding sets the part transfer encoding.
func WithEncoding(encoding string) PartOption {
	return func(p *Part) { p.Encoding = encoding }
}

// Attachment describes a file queued for attachment. The file is only read
// when the message is composed.
type Attachment struct {
	Path        string
	Filename    string
	ContentType string
	Disposition Disposition
}

// AttachOption customizes an Attachment.
type AttachOption func(*Attachment)

// WithFilename overrides the file name shown to the recipient.
func WithFilename(name string) AttachOption {
	return func(a *Attachment) { a.Filename = name }
}

// WithContentType overrides the detected content type.
func WithContentType(contentType string) AttachOption {
	return func(a *Attachment) { a.ContentType = contentType }
}

// Inline marks the attachment for inline display.
func Inline() AttachOption {
	return func(a *Attachment) { a.Disposition = DispositionInline }
}

// Priority is the X-Priority level, 1 (highest) to 5 (lowest).
type Priority int

const (
	PriorityHighest Priority = 1
	PriorityHigh    Priority = 2
	PriorityNormal  Priority = 3
	PriorityLow     Priority = 4
	PriorityLowest  Priority = 5
)

var priorityNames = map[string]Priority{
	"highest": PriorityHighest,
	"high":    PriorityHigh,
	"normal":  PriorityNormal,
	"low":     PriorityLow,
	"lowest":  PriorityLowest,
}

// ParsePriority accepts an integer 1-5, a numeric string, or one of
// highest/high/normal/low/lowest. Anything else is PriorityNormal.
func ParsePriority(value any) Priority {
	var n int
	switch v := value.(type) {
	case Priority:
		n = int(v)
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if p, ok := priorityNames[s]; ok {
			return p
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return PriorityNormal
		}
		n = parsed
	default:
		return PriorityNormal
	}
	if n < int(PriorityHighest) || n > int(PriorityLowest) {
		return PriorityNormal
	}
	return Priority(n)
}

// String renders the X-Priority header value.
func (p Priority) String() string {
	switch p {
	case PriorityHighest:
		return "1 (Highest)"
	case PriorityHigh:
		return "2 (High)"
	case PriorityLow:
		return "4 (Low)"
	case PriorityLowest:
		return "5 (Lowest)"
	default:
		return "3 (Normal)"
	}
}

// Content is the non-address part of a message under composition.
type Content struct {
	Subject      string
	Body         Part
	Alternatives []Part
	Attachments  []Attachment
	Priority     Priority
	Charset      string
	Encoding     string
}

// SetBody sets the primary part. The content type defaults to text/html;
// charset and encoding default to the content's own, then UTF-8 and 8bit.
func (c *Content) SetBody(text string, opts ...PartOption) {
	c.Body = c.newPart(text, DefaultMIMEType, opts...)
}

// AddPlain appends a text/plain alternative part.
func (c *Content) AddPlain(text string, opts ...PartOption) {
	p := c.newPart(text, "text/plain", opts...)
	p.MIMEType = "text/plain"
	c.Alternatives = append(c.Alternatives, p)
}

// Parts returns the primary part, if set, followed by the alternatives.
func (c *Content) Parts() []Part {
	parts := make([]Part, 0, len(c.Alternatives)+1)
	if c.Body != (Part{}) {
		parts = append(parts, c.Body)
	}
	return append(parts, c.Alternatives...)
}

// Attach queues a file. The path is checked when the message is composed.
func (c *Content) Attach(path string, opts ...AttachOption) {
	a := Attachment{Path: path, Disposition: DispositionAttachment}
	for _, opt := range opts {
		opt(&a)
	}
	c.Attachments = append(c.Attachments, a)
}

// SetBodyType switches the primary part to mimeType. A non-empty charset
// replaces the part's charset. It does nothing before a body is set.
func (c *Content) SetBodyType(mimeType, charset string) {
	if c.Body == (Part{}) {
		return
	}
	c.Body.MIMEType = mimeType
	if charset != "" {
		c.Body.Charset = charset
	}
}

// ClearAttachments drops all queued attachments.
func (c *Content) ClearAttachments() {
	c.Attachments = nil
}

func (c *Content) newPart(text, mimeType string, opts ...PartOption) Part {
	p := Part{Content: text, MIMEType: mimeType, Charset: c.Charset, Encoding: c.Encoding}
	for _, opt := range opts {
		opt(&p)
	}
	if p.MIMEType == "" {
		p.MIMEType = mimeType
	}
	if p.Charset == "" {
		p.Charset = DefaultCharset
	}
	if p.Encoding == "" {
		p.Encoding = DefaultEncoding
	}
	return p
}

// Message is a frozen snapshot of everything needed to produce the wire
// message for one send.
type Message struct {
	To   AddressList
	Cc   AddressList
	Bcc  AddressList
	From AddressList

	Sender      Address
	ReturnPath  Address
	ReadReceipt Address
	ReplyTo     Address

	Subject     string
	Parts       []Part
	Attachments []Attachment
	Priority    Priority
	Charset     string
	Encoding    string

	// Ident is the fixed X-Engine identification header.
	Ident   Header
	Headers []Header
}

// Snapshot freezes book, content and headers into a Message.
func Snapshot(book *AddressBook, content *Content, headers *HeaderRegistry) *Message {
	return &Message{
		To:          book.To.Clone(),
		Cc:          book.Cc.Clone(),
		Bcc:         book.Bcc.Clone(),
		From:        book.From.Clone(),
		Sender:      book.Sender,
		ReturnPath:  book.ReturnPath,
		ReadReceipt: book.ReadReceipt,
		ReplyTo:     book.ReplyTo,
		Subject:     content.Subject,
		Parts:       content.Parts(),
		Attachments: append([]Attachment(nil), content.Attachments...),
		Priority:    content.Priority,
		Charset:     content.Charset,
		Encoding:    content.Encoding,
		Headers:     headers.Headers(),
	}
}

// Recipients returns the distinct to, cc and bcc emails in that order.
func (m *Message) Recipients() []string {
	all := append(m.To.Emails(), m.Cc.Emails()...)
	return lo.Uniq(append(all, m.Bcc.Emails()...))
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	c.To = m.To.Clone()
	c.Cc = m.Cc.Clone()
	c.Bcc = m.Bcc.Clone()
	c.From = m.From.Clone()
	c.Parts = append([]Part(nil), m.Parts...)
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	c.Headers = make([]Header, len(m.Headers))
	for i, h := range m.Headers {
		h.Params = append([]HeaderParam(nil), h.Params...)
		c.Headers[i] = h
	}
	return &c
}

// Replace substitutes every search key with its value in the subject, body
// parts and custom header values.
func (m *Message) Replace(replacements map[string]string) {
	if len(replacements) == 0 {
		return
	}
	pairs := make([]string, 0, len(replacements)*2)
	for search, replace := range replacements {
		pairs = append(pairs, search, replace)
	}
	r := strings.NewReplacer(pairs...)

	m.Subject = r.Replace(m.Subject)
	for i := range m.Parts {
		m.Parts[i].Content = r.Replace(m.Parts[i].Content)
	}
	for i := range m.Headers {
		m.Headers[i].Value = r.Replace(m.Headers[i].Value)
	}
}

// Compose builds the MIME message. Attachment paths must be absolute and
// exist; anything else fails with ErrAttachment.
func (m *Message) Compose() (*mail.Msg, error) {
	charset := lo.CoalesceOrEmpty(m.Charset, DefaultCharset)
	encoding := lo.CoalesceOrEmpty(m.Encoding, DefaultEncoding)

	msg := mail.NewMsg(
		mail.WithCharset(mail.Charset(charset)),
		mail.WithEncoding(mail.Encoding(encoding)),
	)

	if from, ok := m.From.First(); ok {
		if err := msg.From(from.String()); err != nil {
			return nil, fmt.Errorf("invalid from address: %w", err)
		}
	}
	for _, set := range []struct {
		list *AddressList
		add  func(string) error
	}{
		{&m.To, msg.AddTo},
		{&m.Cc, msg.AddCc},
		{&m.Bcc, msg.AddBcc},
	} {
		for _, a := range set.list.Addresses() {
			if err := set.add(a.String()); err != nil {
				return nil, fmt.Errorf("invalid recipient %q: %w", a.Email, err)
			}
		}
	}

	if !m.ReturnPath.IsZero() {
		if err := msg.EnvelopeFrom(m.ReturnPath.Email); err != nil {
			return nil, fmt.Errorf("invalid return path: %w", err)
		}
	}
	if !m.Sender.IsZero() {
		msg.SetGenHeader(mail.Header("Sender"), m.Sender.String())
	}
	if !m.ReplyTo.IsZero() {
		if err := msg.ReplyTo(m.ReplyTo.String()); err != nil {
			return nil, fmt.Errorf("invalid reply-to address: %w", err)
		}
	}
	if !m.ReadReceipt.IsZero() {
		msg.SetGenHeader(mail.HeaderDispositionNotificationTo, m.ReadReceipt.String())
	}

	msg.Subject(m.Subject)
	msg.SetMessageID()
	msg.SetDate()

	if m.Priority != 0 {
		switch {
		case m.Priority < PriorityNormal:
			msg.SetImportance(mail.ImportanceHigh)
		case m.Priority > PriorityNormal:
			msg.SetImportance(mail.ImportanceLow)
		}
		msg.SetGenHeader(mail.HeaderXPriority, m.Priority.String())
	}

	if m.Ident.Value != "" {
		msg.SetGenHeader(mail.Header(m.Ident.Field()), m.Ident.Rendered())
	}
	for _, h := range m.Headers {
		msg.SetGenHeader(mail.Header(h.Field()), h.Rendered())
	}

	for i, p := range m.Parts {
		opts := []mail.PartOption{
			mail.WithPartCharset(mail.Charset(lo.CoalesceOrEmpty(p.Charset, charset))),
			mail.WithPartEncoding(mail.Encoding(lo.CoalesceOrEmpty(p.Encoding, encoding))),
		}
		ct := mail.ContentType(lo.CoalesceOrEmpty(p.MIMEType, DefaultMIMEType))
		if i == 0 {
			msg.SetBodyString(ct, p.Content, opts...)
			continue
		}
		msg.AddAlternativeString(ct, p.Content, opts...)
	}

	for _, a := range m.Attachments {
		if err := attach(msg, a); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// Size returns the length in bytes of the composed message.
func (m *Message) Size() (int64, error) {
	msg, err := m.Compose()
	if err != nil {
		return 0, err
	}
	return msg.WriteTo(io.Discard)
}

func attach(msg *mail.Msg, a Attachment) error {
	if !filepath.IsAbs(a.Path) {
		return fmt.Errorf("%w: path %q is not absolute", ErrAttachment, a.Path)
	}
	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttachment, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %q is a directory", ErrAttachment, a.Path)
	}

	var opts []mail.FileOption
	if a.Filename != "" {
		opts = append(opts, mail.WithFileName(a.Filename))
	}
	if a.ContentType != "" {
		opts = append(opts, mail.WithFileContentType(mail.ContentType(a.ContentType)))
	}

	if a.Disposition == DispositionInline {
		msg.EmbedFile(a.Path, opts...)
		return nil
	}
	msg.AttachFile(a.Path, opts...)
	return nil
}
