// Package stdout implements a Transport that prints rendered messages to
// standard output instead of delivering them.
package stdout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
)

const separator = "========================================\n"

// Transport writes each message, framed by its envelope, to a writer.
type Transport struct {
	mu sync.Mutex
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Transport that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Send prints the envelope and the rendered MIME message.
func (p *Transport) Send(_ context.Context, msg *mail.Msg) ([]string, error) {
	from, rcpts, err := transport.Envelope(msg)
	if err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	var b strings.Builder
	b.WriteString(separator)
	fmt.Fprintf(&b, "Envelope-From: %s\n", from)
	fmt.Fprintf(&b, "Envelope-To: %s\n", strings.Join(rcpts, ", "))
	fmt.Fprintf(&b, "Size: %s\n", formatSize(raw.Len()))
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(raw.String(), "\r\n", "\n"))
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(separator)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	return nil, nil
}

// Name returns the transport name.
func (p *Transport) Name() string {
	return "stdout"
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
