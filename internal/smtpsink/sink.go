// Package smtpsink provides an in-process SMTP server that records the
// transactions it receives. It backs the delivery tests of the SMTP and
// mailer packages.
package smtpsink

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Message is one accepted mail transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Option configures a Sink.
type Option func(*Sink)

// Reject makes the sink refuse RCPT for the given addresses with 550.
func Reject(addrs ...string) Option {
	return func(s *Sink) {
		for _, a := range addrs {
			s.reject[strings.ToLower(a)] = true
		}
	}
}

// RequireAuth makes the sink advertise AUTH PLAIN and refuse MAIL from
// unauthenticated sessions.
func RequireAuth(username, password string) Option {
	return func(s *Sink) {
		s.username = username
		s.password = password
	}
}

// ImplicitTLS wraps the listener in TLS.
func ImplicitTLS(cfg *tls.Config) Option {
	return func(s *Sink) {
		s.implicitTLS = cfg
	}
}

// StartTLS advertises STARTTLS with the given certificate configuration.
func StartTLS(cfg *tls.Config) Option {
	return func(s *Sink) {
		s.startTLS = cfg
	}
}

// Sink is a recording SMTP server listening on a loopback port.
type Sink struct {
	Host string
	Port int

	server      *smtp.Server
	listener    net.Listener
	reject      map[string]bool
	username    string
	password    string
	implicitTLS *tls.Config
	startTLS    *tls.Config

	mu       sync.Mutex
	messages []Message
}

// Start listens on 127.0.0.1 on a random port and serves in the background.
func Start(opts ...Option) (*Sink, error) {
	s := &Sink{reject: make(map[string]bool)}
	for _, opt := range opts {
		opt(s)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if s.implicitTLS != nil {
		l = tls.NewListener(l, s.implicitTLS)
	}
	s.listener = l

	host, port, _ := net.SplitHostPort(l.Addr().String())
	s.Host = host
	s.Port, _ = strconv.Atoi(port)

	s.server = smtp.NewServer(s)
	s.server.Domain = "sink.localhost"
	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 10 * time.Second
	s.server.AllowInsecureAuth = true
	s.server.TLSConfig = s.startTLS

	go s.server.Serve(l)
	return s, nil
}

// Close stops the server.
func (s *Sink) Close() error {
	return s.server.Close()
}

// Messages returns the accepted transactions in arrival order.
func (s *Sink) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// NewSession implements smtp.Backend.
func (s *Sink) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{sink: s, authed: s.username == ""}, nil
}

func (s *Sink) record(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

type session struct {
	sink   *Sink
	authed bool
	from   string
	to     []string
}

func (s *session) AuthMechanisms() []string {
	if s.sink.username == "" {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.sink.username || password != s.sink.password {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.sink.reject[strings.ToLower(to)] {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "mailbox unavailable",
		}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.sink.record(Message{From: s.from, To: append([]string(nil), s.to...), Data: buf.Bytes()})
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
