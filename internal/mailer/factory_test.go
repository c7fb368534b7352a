package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/shineum/mailkit/internal/config"
)

func TestTransport_Engines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*config.Config)
		wantName string
		wantErr  bool
	}{
		{
			name:     "default engine uses local mail program",
			mutate:   func(*config.Config) {},
			wantName: "mail",
		},
		{
			name: "sendmail",
			mutate: func(c *config.Config) {
				c.Transport.Engine = config.EngineSendmail
				c.Transport.EnginePath = "/usr/sbin/sendmail -bs"
			},
			wantName: "sendmail",
		},
		{
			name:     "stdout",
			mutate:   func(c *config.Config) { c.Transport.Engine = config.EngineStdout },
			wantName: "stdout",
		},
		{
			name: "smtp",
			mutate: func(c *config.Config) {
				c.Mail.SMTPEnabled = true
				c.Transport.Engine = config.EngineSMTP
				c.Transport.SMTP.Hosts = "mx.example.com"
			},
			wantName: "smtp",
		},
		{
			name: "smtp without smtp enabled",
			mutate: func(c *config.Config) {
				c.Transport.Engine = config.EngineSMTP
			},
			wantErr: true,
		},
		{
			name: "smtp with missing ca file",
			mutate: func(c *config.Config) {
				c.Mail.SMTPEnabled = true
				c.Transport.Engine = config.EngineSMTP
				c.Transport.SMTP.CAFile = "/nonexistent/ca.pem"
			},
			wantErr: true,
		},
		{
			name: "graph",
			mutate: func(c *config.Config) {
				c.Transport.Engine = config.EngineGraph
				c.Transport.Graph = config.GraphConfig{
					TenantID:     "tenant",
					ClientID:     "client",
					ClientSecret: "secret",
					Sender:       "noreply@example.com",
				}
			},
			wantName: "msgraph",
		},
		{
			name:    "graph without credentials",
			mutate:  func(c *config.Config) { c.Transport.Engine = config.EngineGraph },
			wantErr: true,
		},
		{
			name:    "ses without region",
			mutate:  func(c *config.Config) { c.Transport.Engine = config.EngineSES },
			wantErr: true,
		},
		{
			name:    "unknown engine",
			mutate:  func(c *config.Config) { c.Transport.Engine = "carrier-pigeon" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(cfg)
			m, err := New(cfg, WithLogger(discardLogger()))
			if err != nil {
				t.Fatalf("New(): %v", err)
			}

			tr, err := m.Transport(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("got %v, want ErrConfiguration", err)
				}
				if m.State() != StateUnconfigured {
					t.Errorf("state: got %v, want %v", m.State(), StateUnconfigured)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transport(): %v", err)
			}
			if tr.Name() != tt.wantName {
				t.Errorf("Name(): got %q, want %q", tr.Name(), tt.wantName)
			}
			if m.State() != StateReady {
				t.Errorf("state: got %v, want %v", m.State(), StateReady)
			}
		})
	}
}

func TestTransport_DefaultsToLocalhost(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Mail.SMTPEnabled = true
	cfg.Transport.Engine = config.EngineSMTP
	m, _ := New(cfg, WithLogger(discardLogger()))

	st, err := m.newSMTP()
	if err != nil {
		t.Fatalf("newSMTP(): %v", err)
	}
	if hosts := st.Hosts(); len(hosts) != 1 || hosts[0] != defaultSMTPHost {
		t.Errorf("hosts: got %v, want [%s]", hosts, defaultSMTPHost)
	}
}
