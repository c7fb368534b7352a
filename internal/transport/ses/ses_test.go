package ses

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/go-cmp/cmp"
	"github.com/wneessen/go-mail"

	"github.com/shineum/mailkit/internal/transport"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func newTestTransport(mock *mockSESClient) *Transport {
	s := NewWithClient(mock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.baseDelay = time.Millisecond
	return s
}

func newMsg(t *testing.T) *mail.Msg {
	t.Helper()
	m := mail.NewMsg()
	if err := m.From("sender@example.com"); err != nil {
		t.Fatalf("From: %v", err)
	}
	if err := m.To("to@example.com"); err != nil {
		t.Fatalf("To: %v", err)
	}
	if err := m.Cc("cc@example.com"); err != nil {
		t.Fatalf("Cc: %v", err)
	}
	if err := m.Bcc("bcc@example.com"); err != nil {
		t.Fatalf("Bcc: %v", err)
	}
	m.Subject("Test Subject")
	m.SetBodyString(mail.TypeTextPlain, "Hello, World!")
	return m
}

func TestName(t *testing.T) {
	t.Parallel()
	s := NewWithClient(&mockSESClient{}, nil)
	if got := s.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestSend_RawMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	s := newTestTransport(mock)

	msg := newMsg(t)
	if err := msg.EnvelopeFrom("bounce@example.com"); err != nil {
		t.Fatalf("EnvelopeFrom: %v", err)
	}

	failed, err := s.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("failed: got %v, want none", failed)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}

	input := mock.lastInput
	if got := aws.ToString(input.FromEmailAddress); got != "bounce@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "bounce@example.com")
	}
	want := []string{"to@example.com", "cc@example.com", "bcc@example.com"}
	if diff := cmp.Diff(want, input.Destination.ToAddresses); diff != "" {
		t.Errorf("destination mismatch (-want +got):\n%s", diff)
	}
	if input.Content.Raw == nil {
		t.Fatal("expected raw content, got nil")
	}
	raw := string(input.Content.Raw.Data)
	if !strings.Contains(raw, "Subject: Test Subject") {
		t.Error("raw message missing subject")
	}
	if strings.Contains(raw, "bcc@example.com") {
		t.Error("raw message must not expose bcc recipients")
	}
	if input.ConfigurationSetName != nil {
		t.Errorf("ConfigurationSetName: got %q, want nil", aws.ToString(input.ConfigurationSetName))
	}
}

func TestSend_ConfigurationSet(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	s := newTestTransport(mock)
	s.configurationSet = "tracking"

	if _, err := s.Send(context.Background(), newMsg(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(mock.lastInput.ConfigurationSetName); got != "tracking" {
		t.Errorf("ConfigurationSetName: got %q, want %q", got, "tracking")
	}
}

func TestSend_RetryOnError(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	mock.sendFn = func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
		if mock.callCount < 3 {
			return nil, errors.New("throttled")
		}
		return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
	}
	s := newTestTransport(mock)

	if _, err := s.Send(context.Background(), newMsg(t)); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if mock.callCount != 3 {
		t.Errorf("call count: got %d, want 3", mock.callCount)
	}
}

func TestSend_AllRetriesExhausted(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("service unavailable")
		},
	}
	s := newTestTransport(mock)

	_, err := s.Send(context.Background(), newMsg(t))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "service unavailable") {
		t.Errorf("error %q does not wrap the API error", err.Error())
	}
	if mock.callCount != maxRetries+1 {
		t.Errorf("call count: got %d, want %d", mock.callCount, maxRetries+1)
	}
}

func TestSend_ContextCancelled(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("service unavailable")
		},
	}
	s := NewWithClient(mock, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Send(ctx, newMsg(t)); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if mock.callCount > 1 {
		t.Errorf("call count: got %d, want no retries after cancellation", mock.callCount)
	}
}

func TestSend_NoRecipients(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	s := newTestTransport(mock)

	msg := mail.NewMsg()
	msg.From("sender@example.com")
	msg.SetBodyString(mail.TypeTextPlain, "x")

	if _, err := s.Send(context.Background(), msg); err == nil {
		t.Fatal("expected error for message without recipients")
	}
	if mock.callCount != 0 {
		t.Errorf("call count: got %d, want 0", mock.callCount)
	}
}

func TestTransportInterface(t *testing.T) {
	t.Parallel()
	var _ transport.Transport = (*Transport)(nil)
}
