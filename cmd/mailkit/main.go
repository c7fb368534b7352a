// Package main is the entry point for the mailkit command line client.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mailer"
)

var (
	cfgFile string
	engine  string
)

type sendFlags struct {
	from     string
	fromName string
	to       []string
	cc       []string
	bcc      []string
	replyTo  string
	subject  string
	body     string
	text     string
	attach   []string
	priority string
	headers  []string
}

var rootCmd = &cobra.Command{
	Use:           "mailkit",
	Short:         "Compose and dispatch email through a configurable transport",
	Version:       mailer.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&engine, "engine", "", "override the configured transport engine")
	rootCmd.AddCommand(newSendCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("mailkit failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newSendCmd() *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message",
		Example: `  mailkit send --from app@example.com --to ada@example.com \
    --subject "Report" --body "<p>Attached.</p>" --attach /tmp/report.pdf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.from, "from", "", "from address")
	fl.StringVar(&f.fromName, "from-name", "", "display name for the from address")
	fl.StringSliceVar(&f.to, "to", nil, "to recipients")
	fl.StringSliceVar(&f.cc, "cc", nil, "cc recipients")
	fl.StringSliceVar(&f.bcc, "bcc", nil, "bcc recipients")
	fl.StringVar(&f.replyTo, "reply-to", "", "reply-to address")
	fl.StringVar(&f.subject, "subject", "", "subject line")
	fl.StringVar(&f.body, "body", "", "primary body")
	fl.StringVar(&f.text, "text", "", "plain text alternative body")
	fl.StringArrayVar(&f.attach, "attach", nil, "absolute path of a file to attach")
	fl.StringVar(&f.priority, "priority", "", "priority: 1-5 or highest, high, normal, low, lowest")
	fl.StringArrayVar(&f.headers, "header", nil, "custom header as Name=Value")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runSend(cmd *cobra.Command, f sendFlags) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if engine != "" {
		cfg.Transport.Engine = strings.ToLower(engine)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	m, err := mailer.New(cfg, mailer.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := compose(m, f); err != nil {
		return err
	}

	res := m.Send(cmd.Context())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", res.ID, res.Message)
	for _, rcpt := range res.Failures {
		fmt.Fprintf(out, "  failed: %s\n", rcpt)
	}
	if m.GetDebug() {
		fmt.Fprint(cmd.ErrOrStderr(), m.GetLog())
	}
	if !res.Success {
		return res.Err
	}
	return nil
}

func compose(m *mailer.Mailer, f sendFlags) error {
	if f.fromName != "" {
		if err := m.Set(mailer.AttrFromName, f.fromName); err != nil {
			return err
		}
	}
	addrs := []struct {
		kind  email.Kind
		value []string
	}{
		{email.KindFrom, nonEmpty(f.from)},
		{email.KindTo, f.to},
		{email.KindCc, f.cc},
		{email.KindBcc, f.bcc},
	}
	for _, a := range addrs {
		if err := m.Address(a.kind, a.value, ""); err != nil {
			return err
		}
	}
	if f.replyTo != "" && !m.ReplyTo(f.replyTo, "") {
		return fmt.Errorf("%w: reply-to %q", mailer.ErrValidation, f.replyTo)
	}

	m.Subject(f.subject)
	if f.body != "" {
		m.Body(f.body)
	}
	if f.text != "" {
		m.Plain(f.text)
	}
	for _, path := range f.attach {
		m.Attach(path)
	}
	if f.priority != "" {
		m.Priority(f.priority)
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("header %q: expected Name=Value", h)
		}
		if !m.Header(strings.TrimSpace(name), strings.TrimSpace(value), nil, true) {
			return fmt.Errorf("%w: %s", mailer.ErrReservedHeader, name)
		}
	}
	return nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger installs the default slog logger: JSON on stdout, or
// charmbracelet's human readable handler on stderr for the text format.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler
	switch cfg.Format {
	case "text":
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			level = log.InfoLevel
		}
		handler = log.NewWithOptions(os.Stderr, log.Options{
			Level:           level,
			ReportTimestamp: true,
			Prefix:          "mailkit",
		})
	default:
		var logLevel slog.Level
		switch cfg.Level {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
