package smtp

import (
	"fmt"
	"log/slog"
	"net"
	netsmtp "net/smtp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
)

// Deliver runs one mail transaction on an established client. Each RCPT is
// attempted independently; refused recipients are returned in failed and
// the message is still sent to the rest. If every recipient is refused the
// transaction is aborted with transport.ErrAllRecipientsRejected.
func Deliver(c *netsmtp.Client, msg *mail.Msg, from string, rcpts []string, logger *slog.Logger) ([]string, error) {
	if err := c.Mail(from); err != nil {
		return nil, fmt.Errorf("MAIL FROM rejected: %w", err)
	}

	var failed []string
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			logger.Warn("recipient rejected", "rcpt", rcpt, "error", err)
			failed = append(failed, rcpt)
		}
	}
	if len(failed) == len(rcpts) {
		_ = c.Reset()
		_ = c.Quit()
		return failed, transport.ErrAllRecipientsRejected
	}

	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write message data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("message rejected: %w", err)
	}

	// The message is queued once DATA is accepted; a failed QUIT changes nothing.
	if err := c.Quit(); err != nil {
		logger.Debug("QUIT failed", "error", err)
	}
	return failed, nil
}

// SessionConn wraps a connection to refresh its deadline before every read
// and write and to log the SMTP conversation at debug level.
type SessionConn struct {
	net.Conn
	timeout time.Duration
	logger  *slog.Logger
	muted   atomic.Bool
}

// NewSessionConn wraps conn. A zero timeout leaves deadlines alone.
func NewSessionConn(conn net.Conn, timeout time.Duration, logger *slog.Logger) *SessionConn {
	return &SessionConn{Conn: conn, timeout: timeout, logger: logger}
}

// Mute stops transcript logging, e.g. once the stream is TLS-encrypted
// underneath the wrapper.
func (s *SessionConn) Mute() {
	s.muted.Store(true)
}

func (s *SessionConn) Read(p []byte) (int, error) {
	if s.timeout > 0 {
		_ = s.Conn.SetReadDeadline(time.Now().Add(s.timeout))
	}
	n, err := s.Conn.Read(p)
	if n > 0 {
		s.log("S:", p[:n])
	}
	return n, err
}

func (s *SessionConn) Write(p []byte) (int, error) {
	if s.timeout > 0 {
		_ = s.Conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	s.log("C:", p)
	return s.Conn.Write(p)
}

func (s *SessionConn) log(dir string, p []byte) {
	if s.muted.Load() || s.logger == nil {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\r\n") {
		if strings.HasPrefix(strings.ToUpper(line), "AUTH ") {
			line = "AUTH ***"
		}
		s.logger.Debug("smtp "+dir+" "+line, "dir", dir)
	}
}
