package email

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input any
		want  Priority
	}{
		{1, PriorityHighest},
		{5, PriorityLowest},
		{"highest", PriorityHighest},
		{"High", PriorityHigh},
		{"normal", PriorityNormal},
		{"low", PriorityLow},
		{"LOWEST", PriorityLowest},
		{"2", PriorityHigh},
		{0, PriorityNormal},
		{9, PriorityNormal},
		{"urgent", PriorityNormal},
		{nil, PriorityNormal},
		{4.0, PriorityLow},
	}

	for _, tt := range tests {
		if got := ParsePriority(tt.input); got != tt.want {
			t.Errorf("ParsePriority(%v): got %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestContent_BodyDefaults(t *testing.T) {
	t.Parallel()

	c := Content{}
	c.SetBody("<p>hi</p>")
	c.AddPlain("hi", WithMIMEType("text/markdown"))

	parts := c.Parts()
	if len(parts) != 2 {
		t.Fatalf("parts: got %d, want 2", len(parts))
	}
	if parts[0] != (Part{Content: "<p>hi</p>", MIMEType: "text/html", Charset: "UTF-8", Encoding: "8bit"}) {
		t.Errorf("primary part: got %+v", parts[0])
	}
	if parts[1].MIMEType != "text/plain" {
		t.Errorf("alternative MIME type: got %q, want %q", parts[1].MIMEType, "text/plain")
	}
}

func TestContent_BodyUsesContentDefaults(t *testing.T) {
	t.Parallel()

	c := Content{Charset: "ISO-8859-1", Encoding: "quoted-printable"}
	c.SetBody("x", WithEncoding("base64"))

	if c.Body.Charset != "ISO-8859-1" {
		t.Errorf("charset: got %q, want %q", c.Body.Charset, "ISO-8859-1")
	}
	if c.Body.Encoding != "base64" {
		t.Errorf("encoding: got %q, want %q", c.Body.Encoding, "base64")
	}
}

func TestContent_PlainOnly(t *testing.T) {
	t.Parallel()

	c := Content{}
	c.AddPlain("only text")

	parts := c.Parts()
	if len(parts) != 1 || parts[0].MIMEType != "text/plain" {
		t.Errorf("parts: got %+v, want a single text/plain part", parts)
	}
}

func TestContent_SetBodyType(t *testing.T) {
	t.Parallel()

	c := Content{}
	c.SetBodyType("text/plain", "ISO-8859-1")
	if c.Body != (Part{}) {
		t.Fatalf("SetBodyType without a body created one: %+v", c.Body)
	}

	c.SetBody("<p>hi</p>")
	c.SetBodyType("text/plain", "ISO-8859-1")
	want := Part{Content: "<p>hi</p>", MIMEType: "text/plain", Charset: "ISO-8859-1", Encoding: DefaultEncoding}
	if c.Body != want {
		t.Errorf("body: got %+v, want %+v", c.Body, want)
	}

	c.SetBodyType("text/html", "")
	if c.Body.MIMEType != "text/html" || c.Body.Charset != "ISO-8859-1" {
		t.Errorf("body: got %+v, want text/html keeping ISO-8859-1", c.Body)
	}
}

func newTestMessage() *Message {
	book := NewAddressBook(nil)
	book.Add(KindTo, []Address{{Email: "to@example.com", Name: "To Person"}}, "")
	book.Add(KindCc, []Address{{Email: "cc@example.com"}}, "")
	book.Add(KindBcc, []Address{{Email: "bcc@example.com"}}, "")
	book.Add(KindFrom, []Address{{Email: "from@example.com", Name: "From Person"}}, "")
	book.SetSender("sender@example.com", "")
	book.SetReturnPath("bounce@example.com")
	book.SetReadReceipt("receipt@example.com")
	book.SetReplyTo("reply@example.com", "")

	content := &Content{Subject: "Quarterly numbers", Priority: PriorityHighest}
	content.SetBody("<h1>Numbers</h1>")
	content.AddPlain("Numbers")

	var headers HeaderRegistry
	headers.Set("Campaign", "spring", []HeaderParam{{"batch", "7"}}, true)

	m := Snapshot(book, content, &headers)
	m.Ident = Header{Name: "Engine", Value: "mailkit", Params: []HeaderParam{{"version", "0.0.1"}}}
	return m
}

func TestMessage_Compose(t *testing.T) {
	t.Parallel()

	msg, err := newTestMessage().Compose()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := buf.String()

	checks := []struct {
		name     string
		contains string
	}{
		{"from", "From: \"From Person\" <from@example.com>"},
		{"to", "To: \"To Person\" <to@example.com>"},
		{"cc", "Cc: <cc@example.com>"},
		{"subject", "Subject: Quarterly numbers"},
		{"sender", "Sender: sender@example.com"},
		{"read receipt", "Disposition-Notification-To: receipt@example.com"},
		{"priority", "X-Priority: 1 (Highest)"},
		{"ident", "X-Engine: mailkit; version=0.0.1"},
		{"custom header", "X-Campaign: spring; batch=7"},
		{"html part", "text/html"},
		{"plain part", "text/plain"},
		{"alternative", "multipart/alternative"},
	}
	for _, check := range checks {
		if !strings.Contains(raw, check.contains) {
			t.Errorf("raw message missing %s: expected to contain %q", check.name, check.contains)
		}
	}
	if strings.Contains(raw, "bcc@example.com") {
		t.Error("raw message must not expose bcc recipients")
	}

	sender, err := msg.GetSender(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender != "bounce@example.com" {
		t.Errorf("envelope sender: got %q, want %q", sender, "bounce@example.com")
	}

	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rcpts) != 3 {
		t.Errorf("envelope recipients: got %v, want 3 entries", rcpts)
	}
}

func TestMessage_ComposeAttachments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("quarterly"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	m := newTestMessage()
	m.Attachments = []Attachment{{Path: path, Filename: "q1.txt", Disposition: DispositionAttachment}}

	msg, err := m.Compose()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "q1.txt") {
		t.Error("raw message missing attachment filename override")
	}
	if !strings.Contains(buf.String(), "multipart/mixed") {
		t.Error("raw message missing multipart/mixed")
	}
}

func TestMessage_ComposeAttachmentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{"relative", "report.txt"},
		{"missing", filepath.Join(t.TempDir(), "nope.txt")},
		{"directory", t.TempDir()},
	}

	for _, tt := range tests {
		m := newTestMessage()
		m.Attachments = []Attachment{{Path: tt.path}}
		_, err := m.Compose()
		if !errors.Is(err, ErrAttachment) {
			t.Errorf("%s: got %v, want ErrAttachment", tt.name, err)
		}
	}
}

func TestMessage_CloneAndReplace(t *testing.T) {
	t.Parallel()

	m := newTestMessage()
	m.Subject = "Hello {name}"
	m.Parts[0].Content = "<p>Dear {name}</p>"
	m.Headers[0].Value = "{code}"

	c := m.Clone()
	c.Replace(map[string]string{"{name}": "Ada", "{code}": "A1"})

	if c.Subject != "Hello Ada" {
		t.Errorf("subject: got %q, want %q", c.Subject, "Hello Ada")
	}
	if c.Parts[0].Content != "<p>Dear Ada</p>" {
		t.Errorf("body: got %q", c.Parts[0].Content)
	}
	if c.Headers[0].Value != "A1" {
		t.Errorf("header: got %q, want %q", c.Headers[0].Value, "A1")
	}
	if m.Subject != "Hello {name}" || m.Parts[0].Content != "<p>Dear {name}</p>" || m.Headers[0].Value != "{code}" {
		t.Error("original message modified by Replace on clone")
	}
}

func TestMessage_Recipients(t *testing.T) {
	t.Parallel()

	m := newTestMessage()
	m.Bcc.Add("to@example.com", "")

	got := m.Recipients()
	want := []string{"to@example.com", "cc@example.com", "bcc@example.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Recipients(): got %v, want %v", got, want)
	}
}

func TestMessage_Size(t *testing.T) {
	t.Parallel()

	n, err := newTestMessage().Size()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n <= 0 {
		t.Errorf("Size(): got %d, want > 0", n)
	}
}
