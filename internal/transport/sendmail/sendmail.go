// Package sendmail implements Transports that hand messages to a local
// sendmail-compatible binary, either by piping the rendered message
// (sendmail -t) or by speaking SMTP over the process's stdin and stdout
// (sendmail -bs).
package sendmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	netsmtp "net/smtp"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/transport/smtp"
)

// DefaultCommand is used by the sendmail engine when no path is configured.
const DefaultCommand = "/usr/sbin/sendmail -bs"

// pipeFlags are appended by go-mail when piping a message.
var pipeFlags = []string{"-t", "-i", "-oi"}

// Transport runs a sendmail-compatible binary for every message.
type Transport struct {
	name     string
	path     string
	args     []string
	smtpMode bool
	logger   *slog.Logger
}

// New creates a sendmail Transport from a command line such as
// "/usr/sbin/sendmail -bs". With -bs the binary is driven as an SMTP
// server; otherwise the rendered message is piped to it.
func New(command string, logger *slog.Logger) *Transport {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	fields := strings.Fields(command)
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		name:   "sendmail",
		path:   fields[0],
		logger: logger,
	}
	for _, arg := range fields[1:] {
		switch {
		case arg == "-bs":
			t.smtpMode = true
			t.args = append(t.args, arg)
		case slices.Contains(pipeFlags, arg):
		default:
			t.args = append(t.args, arg)
		}
	}
	if !t.smtpMode && len(t.args) != len(fields)-1 {
		logger.Debug("dropping pipe flags supplied by the transport", "command", command)
	}
	return t
}

// NewLocal creates the default Transport that pipes messages to the
// system's local mail program.
func NewLocal(logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		name:   "mail",
		path:   mail.SendmailPath,
		logger: logger,
	}
}

// SMTPMode reports whether the binary is driven over SMTP.
func (t *Transport) SMTPMode() bool {
	return t.smtpMode
}

// Command returns the binary path and its arguments.
func (t *Transport) Command() (string, []string) {
	return t.path, append([]string(nil), t.args...)
}

// Send delivers msg through the configured binary.
func (t *Transport) Send(ctx context.Context, msg *mail.Msg) ([]string, error) {
	if t.smtpMode {
		return t.sendSMTP(ctx, msg)
	}

	if err := msg.WriteToSendmailWithContext(ctx, t.path, t.args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w", t.path, err)
	}
	return nil, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return t.name
}

func (t *Transport) sendSMTP(ctx context.Context, msg *mail.Msg) ([]string, error) {
	from, rcpts, err := transport.Envelope(msg)
	if err != nil {
		return nil, err
	}

	conn, err := startProcess(ctx, t.path, t.args...)
	if err != nil {
		return nil, err
	}

	c, err := netsmtp.NewClient(smtp.NewSessionConn(conn, 0, t.logger), "localhost")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: failed to read greeting: %w", t.path, err)
	}
	defer c.Close()

	return smtp.Deliver(c, msg, from, rcpts, t.logger)
}

// processConn presents a child process's stdin and stdout as a net.Conn.
type processConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func startProcess(ctx context.Context, path string, args ...string) (*processConn, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin of %s: %w", path, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout of %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}
	return &processConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (p *processConn) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *processConn) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Close closes stdin and waits for the process to exit.
func (p *processConn) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stdin.Close()
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

func (p *processConn) LocalAddr() net.Addr                { return pipeAddr(p.cmd.Path) }
func (p *processConn) RemoteAddr() net.Addr               { return pipeAddr(p.cmd.Path) }
func (p *processConn) SetDeadline(_ time.Time) error      { return nil }
func (p *processConn) SetReadDeadline(_ time.Time) error  { return nil }
func (p *processConn) SetWriteDeadline(_ time.Time) error { return nil }

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }
