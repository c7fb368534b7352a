// Package smtp implements a Transport that relays messages to one of a
// list of SMTP servers, failing over in order when a host is unreachable.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	netsmtp "net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
)

// Encryption selects how the connection to the server is secured.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionSTARTTLS Encryption = "starttls"
	EncryptionTLS      Encryption = "tls"
)

// DefaultPort is the port used when none is configured.
const DefaultPort = 25

// DefaultTimeout is the per-operation network timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// Config holds the configuration for creating an SMTP Transport.
type Config struct {
	Hosts      []string
	Port       int
	Timeout    time.Duration
	Username   string
	Password   string
	Encryption Encryption
	TLSConfig  *tls.Config
	Helo       string
	Logger     *slog.Logger
}

// Transport relays messages over SMTP.
// Connection settings may be changed between sends; each send opens a new
// connection.
type Transport struct {
	mu         sync.Mutex
	hosts      []string
	port       int
	timeout    time.Duration
	username   string
	password   string
	encryption Encryption
	tlsConfig  *tls.Config
	helo       string
	logger     *slog.Logger
}

// New creates a new SMTP Transport with the given configuration.
func New(cfg Config) *Transport {
	t := &Transport{
		encryption: cfg.Encryption,
		tlsConfig:  cfg.TLSConfig,
		helo:       cfg.Helo,
		logger:     cfg.Logger,
	}
	if t.encryption == "" {
		t.encryption = EncryptionSTARTTLS
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.SetHosts(cfg.Hosts...)
	t.SetPort(cfg.Port)
	t.SetTimeout(cfg.Timeout)
	t.SetCredentials(cfg.Username, cfg.Password)
	return t
}

// SplitHosts splits a host list separated by commas or semicolons.
func SplitHosts(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ';'
	})
	hosts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			hosts = append(hosts, f)
		}
	}
	return hosts
}

// SetHosts replaces the server list. Each entry may itself be a comma or
// semicolon separated list.
func (t *Transport) SetHosts(hosts ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hosts = t.hosts[:0]
	for _, h := range hosts {
		t.hosts = append(t.hosts, SplitHosts(h)...)
	}
}

// SetPort sets the server port. Non-positive values select DefaultPort.
func (t *Transport) SetPort(port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if port <= 0 {
		port = DefaultPort
	}
	t.port = port
}

// SetTimeout sets the network timeout. Non-positive values select DefaultTimeout.
func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d <= 0 {
		d = DefaultTimeout
	}
	t.timeout = d
}

// SetCredentials sets the AUTH credentials. Authentication is attempted
// only when both are non-empty.
func (t *Transport) SetCredentials(username, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.username = username
	t.password = password
}

// Hosts returns a copy of the configured server list.
func (t *Transport) Hosts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.hosts...)
}

// Send delivers msg through the first reachable server.
func (t *Transport) Send(ctx context.Context, msg *mail.Msg) ([]string, error) {
	from, rcpts, err := transport.Envelope(msg)
	if err != nil {
		return nil, err
	}

	c, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return Deliver(c, msg, from, rcpts, t.logger)
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

func (t *Transport) connect(ctx context.Context) (*netsmtp.Client, error) {
	t.mu.Lock()
	hosts := append([]string(nil), t.hosts...)
	t.mu.Unlock()

	if len(hosts) == 0 {
		return nil, errors.New("no smtp hosts configured")
	}

	var errs []error
	for _, host := range hosts {
		c, err := t.dial(ctx, host)
		if err == nil {
			return c, nil
		}
		t.logger.Warn("smtp host unavailable", "host", host, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("no smtp host reachable: %w", errors.Join(errs...))
}

func (t *Transport) dial(ctx context.Context, host string) (*netsmtp.Client, error) {
	t.mu.Lock()
	port, timeout := t.port, t.timeout
	username, password := t.username, t.password
	t.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	var conn net.Conn = raw
	if t.encryption == EncryptionTLS {
		tlsConn := tls.Client(raw, t.tlsFor(host))
		tlsCtx, cancel := context.WithTimeout(ctx, timeout)
		err := tlsConn.HandshakeContext(tlsCtx)
		cancel()
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("TLS handshake with %s failed: %w", addr, err)
		}
		conn = tlsConn
	}

	sc := NewSessionConn(conn, timeout, t.logger)
	c, err := netsmtp.NewClient(sc, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read greeting from %s: %w", addr, err)
	}

	if t.helo != "" {
		if err := c.Hello(t.helo); err != nil {
			c.Close()
			return nil, fmt.Errorf("EHLO rejected by %s: %w", addr, err)
		}
	}

	if t.encryption == EncryptionSTARTTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(t.tlsFor(host)); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS with %s failed: %w", addr, err)
			}
			sc.Mute()
		} else {
			t.logger.Debug("server does not offer STARTTLS", "host", host)
		}
	}

	if username != "" && password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(t.auth(username, password, host)); err != nil {
				c.Close()
				return nil, fmt.Errorf("authentication with %s failed: %w", addr, err)
			}
		} else {
			t.logger.Warn("server does not offer AUTH, sending unauthenticated", "host", host)
		}
	}

	return c, nil
}

// auth returns PLAIN credentials. net/smtp only recognizes STARTTLS as a
// secure channel, so implicit TLS connections skip its encryption check.
func (t *Transport) auth(username, password, host string) netsmtp.Auth {
	if t.encryption == EncryptionTLS {
		return plainAuth{username: username, password: password}
	}
	return netsmtp.PlainAuth("", username, password, host)
}

type plainAuth struct {
	username string
	password string
}

func (a plainAuth) Start(_ *netsmtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("unexpected server challenge")
	}
	return nil, nil
}

func (t *Transport) tlsFor(host string) *tls.Config {
	var cfg *tls.Config
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}
