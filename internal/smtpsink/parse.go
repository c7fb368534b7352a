package smtpsink

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// Parsed is the decoded view of a recorded message.
type Parsed struct {
	Header      mail.Header
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Attachment is a decoded file part.
type Attachment struct {
	Filename    string
	ContentType string
	Inline      bool
	Content     []byte
}

var decoder = new(mime.WordDecoder)

// Parse decodes the recorded DATA as an RFC 5322 message. Text and HTML
// hold the first part of each type; parts with a file name or an
// attachment disposition become Attachments.
func (m Message) Parse() (*Parsed, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(m.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	p := &Parsed{Header: msg.Header}
	p.Subject, err = decoder.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		p.Subject = msg.Header.Get("Subject")
	}

	mediaType, params, err := mime.ParseMediaType(contentType(msg.Header.Get("Content-Type")))
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if params["boundary"] == "" {
			return nil, errors.New("multipart message missing boundary")
		}
		if err := p.walk(msg.Body, params["boundary"]); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return p, nil
	}

	body, err := decode(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	p.setBody(mediaType, body)
	return p, nil
}

func (p *Parsed) walk(body io.Reader, boundary string) error {
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		mediaType, params, err := mime.ParseMediaType(contentType(part.Header.Get("Content-Type")))
		if err != nil {
			continue
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			if err := p.walk(part, params["boundary"]); err != nil {
				return err
			}
			continue
		}

		// multipart.Reader already strips quoted-printable.
		content, err := decode(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("failed to read %s part: %w", mediaType, err)
		}

		disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		filename := part.FileName()
		if filename == "" {
			filename = params["name"]
		}
		if disposition == "attachment" || filename != "" {
			p.Attachments = append(p.Attachments, Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Inline:      disposition == "inline",
				Content:     content,
			})
			continue
		}
		p.setBody(mediaType, content)
	}
}

func (p *Parsed) setBody(mediaType string, content []byte) {
	switch mediaType {
	case "text/html":
		if p.HTML == "" {
			p.HTML = string(content)
		}
	default:
		if p.Text == "" {
			p.Text = string(content)
		}
	}
}

func contentType(v string) string {
	if v == "" {
		return "text/plain"
	}
	return v
}

func decode(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
		return base64.StdEncoding.DecodeString(cleaned)
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
