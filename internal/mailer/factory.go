package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/shineum/mailkit/internal/config"
	mktls "github.com/shineum/mailkit/internal/tls"
	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/transport/graph"
	"github.com/shineum/mailkit/internal/transport/sendmail"
	"github.com/shineum/mailkit/internal/transport/ses"
	"github.com/shineum/mailkit/internal/transport/smtp"
	"github.com/shineum/mailkit/internal/transport/stdout"
)

// defaultSMTPHost is used when no smtp_hosts are configured.
const defaultSMTPHost = "localhost"

// Transport returns the transport, building it from the configuration on
// first use. Engine settings are frozen once it exists.
func (m *Mailer) Transport(ctx context.Context) (transport.Transport, error) {
	if m.transport != nil {
		return m.transport, nil
	}
	t, err := m.buildTransport(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Info("transport ready", "engine", m.cfg.Transport.Engine, "transport", t.Name())
	m.transport = t
	m.state = StateReady
	return t, nil
}

func (m *Mailer) buildTransport(ctx context.Context) (transport.Transport, error) {
	tc := m.cfg.Transport

	switch tc.Engine {
	case "", config.EngineDefault:
		return sendmail.NewLocal(m.logger), nil

	case config.EngineSendmail:
		return sendmail.New(tc.EnginePath, m.logger), nil

	case config.EngineSMTP:
		if !m.cfg.Mail.SMTPEnabled {
			return nil, fmt.Errorf("%w: smtp engine selected but smtp is not enabled", ErrConfiguration)
		}
		return m.newSMTP()

	case config.EngineSES:
		if !m.cfg.SESConfigured() {
			return nil, fmt.Errorf("%w: ses engine selected but no region is set", ErrConfiguration)
		}
		t, err := ses.New(ctx, ses.Config{
			Region:           tc.SES.Region,
			AccessKeyID:      tc.SES.AccessKeyID,
			SecretAccessKey:  tc.SES.SecretAccessKey,
			ConfigurationSet: tc.SES.ConfigurationSet,
		}, m.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return t, nil

	case config.EngineGraph:
		if !m.cfg.GraphConfigured() {
			return nil, fmt.Errorf("%w: graph engine requires tenant_id, client_id, client_secret and sender", ErrConfiguration)
		}
		return graph.New(graph.Config{
			TenantID:     tc.Graph.TenantID,
			ClientID:     tc.Graph.ClientID,
			ClientSecret: tc.Graph.ClientSecret,
			Sender:       tc.Graph.Sender,
		}, m.logger), nil

	case config.EngineStdout:
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrConfiguration, tc.Engine)
	}
}

func (m *Mailer) newSMTP() (*smtp.Transport, error) {
	sc := m.cfg.Transport.SMTP

	hosts := smtp.SplitHosts(sc.Hosts)
	if len(hosts) == 0 {
		hosts = []string{defaultSMTPHost}
	}

	cfg := smtp.Config{
		Hosts:      hosts,
		Port:       sc.Port,
		Timeout:    time.Duration(sc.Timeout) * time.Second,
		Encryption: smtp.Encryption(sc.Encryption),
		Helo:       sc.Helo,
		Logger:     m.logger,
	}
	if m.cfg.AuthEnabled() {
		cfg.Username = sc.Username
		cfg.Password = sc.Password
	}
	if cfg.Encryption != smtp.EncryptionNone {
		tlsCfg, err := mktls.ClientConfig("", sc.CAFile, sc.InsecureSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		cfg.TLSConfig = tlsCfg
	}
	return smtp.New(cfg), nil
}
