package mailer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport/smtp"
)

// Attribute names one settable mail attribute.
type Attribute string

// Attributes routed by Set.
const (
	AttrTo          Attribute = "to"
	AttrCc          Attribute = "cc"
	AttrBcc         Attribute = "bcc"
	AttrFrom        Attribute = "from"
	AttrFromName    Attribute = "from_name"
	AttrSender      Attribute = "sender"
	AttrReplyTo     Attribute = "reply_to"
	AttrReadTo      Attribute = "read_to"
	AttrReturnPath  Attribute = "return_path"
	AttrSubject     Attribute = "subject"
	AttrBody        Attribute = "body"
	AttrBodyText    Attribute = "body_text"
	AttrCharset     Attribute = "charset"
	AttrEncoding    Attribute = "encoding"
	AttrContentType Attribute = "content_type"
	AttrPriority    Attribute = "priority"

	AttrSMTPHosts   Attribute = "smtp_hosts"
	AttrSMTPPort    Attribute = "smtp_port"
	AttrSMTPTimeout Attribute = "smtp_timeout"
	AttrSMTPUser    Attribute = "smtp_user"
	AttrSMTPPass    Attribute = "smtp_pass"
	AttrEngine      Attribute = "engine"
	AttrEnginePath  Attribute = "engine_path"

	// Accepted for compatibility; setting them has no effect.
	AttrHostname      Attribute = "hostname"
	AttrLanguage      Attribute = "language"
	AttrSMTPAuth      Attribute = "smtp_auth"
	AttrSMTPHelo      Attribute = "smtp_helo"
	AttrSMTPKeepAlive Attribute = "smtp_keepalive"
	AttrSMTPPrefix    Attribute = "smtp_prefix"
	AttrSMTPSingleTo  Attribute = "smtp_single_to"
)

// ParseAttribute maps a name to its Attribute, case-insensitively.
func ParseAttribute(name string) (Attribute, error) {
	a := Attribute(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case AttrTo, AttrCc, AttrBcc, AttrFrom, AttrFromName, AttrSender, AttrReplyTo,
		AttrReadTo, AttrReturnPath, AttrSubject, AttrBody, AttrBodyText, AttrCharset,
		AttrEncoding, AttrContentType, AttrPriority, AttrSMTPHosts, AttrSMTPPort,
		AttrSMTPTimeout, AttrSMTPUser, AttrSMTPPass, AttrEngine, AttrEnginePath,
		AttrHostname, AttrLanguage, AttrSMTPAuth, AttrSMTPHelo, AttrSMTPKeepAlive,
		AttrSMTPPrefix, AttrSMTPSingleTo:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
}

// Set routes value to the setter behind attr.
func (m *Mailer) Set(attr Attribute, value any) error {
	if err := m.set(attr, value); err != nil {
		return fmt.Errorf("set %s: %w", attr, err)
	}
	m.attrs[attr] = value
	return nil
}

// Get returns the last value stored with Set.
func (m *Mailer) Get(attr Attribute) (any, bool) {
	v, ok := m.attrs[attr]
	return v, ok
}

func (m *Mailer) set(attr Attribute, value any) error {
	switch attr {
	case AttrTo:
		return m.Address(email.KindTo, value, "")
	case AttrCc:
		return m.Address(email.KindCc, value, "")
	case AttrBcc:
		return m.Address(email.KindBcc, value, "")
	case AttrFrom:
		return m.Address(email.KindFrom, value, "")
	case AttrFromName:
		name, err := toString(value)
		if err != nil {
			return err
		}
		m.fromName = name
		m.book.From.Rename(name)
		return nil

	case AttrSender, AttrReplyTo, AttrReadTo, AttrReturnPath:
		entries, err := email.Entries(value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if len(entries) == 0 {
			return nil
		}
		a := entries[0]
		switch attr {
		case AttrSender:
			m.Sender(a.Email, a.Name)
		case AttrReplyTo:
			m.ReplyTo(a.Email, a.Name)
		case AttrReadTo:
			m.ReadReceipt(a.Email)
		default:
			m.ReturnPath(a.Email)
		}
		return nil

	case AttrSubject, AttrBody, AttrBodyText, AttrCharset, AttrEncoding, AttrContentType:
		s, err := toString(value)
		if err != nil {
			return err
		}
		switch attr {
		case AttrSubject:
			m.Subject(s)
		case AttrBody:
			m.Body(s)
		case AttrBodyText:
			m.Body(s, email.WithMIMEType("text/plain"))
		case AttrCharset:
			m.content.Charset = s
		case AttrEncoding:
			m.content.Encoding = s
		default:
			m.cfg.Mail.ContentType = s
		}
		return nil

	case AttrPriority:
		m.Priority(value)
		return nil

	case AttrSMTPHosts, AttrSMTPUser, AttrSMTPPass:
		s, err := toString(value)
		if err != nil {
			return err
		}
		sc := &m.cfg.Transport.SMTP
		switch attr {
		case AttrSMTPHosts:
			sc.Hosts = s
		case AttrSMTPUser:
			sc.Username = s
		default:
			sc.Password = s
		}
		m.applySMTP()
		return nil

	case AttrSMTPPort, AttrSMTPTimeout:
		n, err := toInt(value)
		if err != nil {
			return err
		}
		if attr == AttrSMTPPort {
			m.cfg.Transport.SMTP.Port = n
		} else {
			m.cfg.Transport.SMTP.Timeout = n
		}
		m.applySMTP()
		return nil

	case AttrEngine, AttrEnginePath:
		if m.transport != nil {
			m.logger.Debug("transport already resolved, ignoring attribute", "attribute", attr)
			return nil
		}
		s, err := toString(value)
		if err != nil {
			return err
		}
		if attr == AttrEngine {
			m.cfg.Transport.Engine = strings.ToLower(s)
		} else {
			m.cfg.Transport.EnginePath = s
		}
		return nil

	case AttrHostname, AttrLanguage, AttrSMTPAuth, AttrSMTPHelo, AttrSMTPKeepAlive,
		AttrSMTPPrefix, AttrSMTPSingleTo:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAttribute, string(attr))
}

// applySMTP pushes the stored SMTP settings into an already built SMTP
// transport. Before the transport exists the settings wait in the config.
func (m *Mailer) applySMTP() {
	st, ok := m.transport.(*smtp.Transport)
	if !ok {
		return
	}
	sc := m.cfg.Transport.SMTP
	if hosts := smtp.SplitHosts(sc.Hosts); len(hosts) > 0 {
		st.SetHosts(hosts...)
	}
	st.SetPort(sc.Port)
	st.SetTimeout(time.Duration(sc.Timeout) * time.Second)
	if sc.Username != "" && sc.Password != "" {
		st.SetCredentials(sc.Username, sc.Password)
	}
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case time.Duration:
		return int(n / time.Second), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, err
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
