// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/shineum/mailkit/internal/plugin"
)

// Engine names accepted by transport.engine.
const (
	EngineDefault  = "default"
	EngineSendmail = "sendmail"
	EngineSMTP     = "smtp"
	EngineSES      = "ses"
	EngineGraph    = "graph"
	EngineStdout   = "stdout"
)

// Config holds the complete application configuration.
type Config struct {
	Mail      MailConfig      `yaml:"mail"`
	Transport TransportConfig `yaml:"transport"`
	Plugins   []plugin.Config `yaml:"plugins" validate:"dive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MailConfig holds message defaults and engine behavior switches.
type MailConfig struct {
	Charset        string `yaml:"charset" validate:"required"`
	Encoding       string `yaml:"encoding" validate:"oneof=7bit 8bit quoted-printable base64"`
	ContentType    string `yaml:"content_type" validate:"required"`
	SMTPEnabled    bool   `yaml:"smtp_enabled"`
	CachePath      string `yaml:"cache_path" validate:"required_if=CacheBackend disk"`
	CacheBackend   string `yaml:"cache_backend" validate:"oneof=memory disk"`
	ValidateEmails bool   `yaml:"validate_emails"`
	AutoReset      bool   `yaml:"auto_reset"`
	Debug          bool   `yaml:"debug"`
}

// TransportConfig selects and parameterizes the delivery engine.
type TransportConfig struct {
	Engine     string      `yaml:"engine" validate:"oneof=default sendmail smtp ses graph stdout"`
	EnginePath string      `yaml:"engine_path"`
	SMTP       SMTPConfig  `yaml:"smtp"`
	SES        SESConfig   `yaml:"ses"`
	Graph      GraphConfig `yaml:"graph"`
}

// SMTPConfig holds SMTP client configuration.
type SMTPConfig struct {
	Hosts              string `yaml:"hosts"`
	Port               int    `yaml:"port" validate:"min=1,max=65535"`
	Timeout            int    `yaml:"timeout" validate:"min=0"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Encryption         string `yaml:"encryption" validate:"oneof=none starttls tls"`
	CAFile             string `yaml:"ca_file" validate:"omitempty,file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Helo               string `yaml:"helo"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnvVars()
	return cfg, nil
}

// Default returns a configuration holding only the built-in defaults,
// without consulting the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate checks enum and range constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	g := c.Transport.Graph
	return g.TenantID != "" &&
		g.ClientID != "" &&
		g.ClientSecret != "" &&
		g.Sender != ""
}

// SESConfigured returns true if an SES region is set.
func (c *Config) SESConfigured() bool {
	return c.Transport.SES.Region != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.Transport.SMTP.Username != "" && c.Transport.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Mail.Charset = "UTF-8"
	c.Mail.Encoding = "8bit"
	c.Mail.ContentType = "text/html"
	c.Mail.CacheBackend = "memory"
	c.Mail.ValidateEmails = true
	c.Mail.AutoReset = true
	c.Transport.Engine = EngineDefault
	c.Transport.SMTP.Port = 25
	c.Transport.SMTP.Timeout = 10
	c.Transport.SMTP.Encryption = "starttls"
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Mail.Charset, "MAIL_CHARSET")
	setLower(&c.Mail.Encoding, "MAIL_ENCODING")
	setLower(&c.Mail.ContentType, "MAIL_CONTENT_TYPE")
	setBool(&c.Mail.SMTPEnabled, "MAIL_SMTP_ENABLED")
	setString(&c.Mail.CachePath, "MAIL_CACHE_PATH")
	setLower(&c.Mail.CacheBackend, "MAIL_CACHE_BACKEND")
	setBool(&c.Mail.ValidateEmails, "MAIL_VALIDATE_EMAILS")
	setBool(&c.Mail.AutoReset, "MAIL_AUTO_RESET")
	setBool(&c.Mail.Debug, "MAIL_DEBUG")

	setLower(&c.Transport.Engine, "MAIL_ENGINE")
	setString(&c.Transport.EnginePath, "MAIL_ENGINE_PATH")

	setString(&c.Transport.SMTP.Hosts, "SMTP_HOSTS")
	setInt(&c.Transport.SMTP.Port, "SMTP_PORT")
	setInt(&c.Transport.SMTP.Timeout, "SMTP_TIMEOUT")
	setString(&c.Transport.SMTP.Username, "SMTP_USERNAME")
	setString(&c.Transport.SMTP.Password, "SMTP_PASSWORD")
	setLower(&c.Transport.SMTP.Encryption, "SMTP_ENCRYPTION")

	setString(&c.Transport.SES.Region, "SES_REGION")
	setString(&c.Transport.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.Transport.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")

	setString(&c.Transport.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Transport.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Transport.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Transport.Graph.Sender, "GRAPH_SENDER")

	setLower(&c.Logging.Level, "LOG_LEVEL")
	setLower(&c.Logging.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setLower(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v)
	}
}

// setBool ignores values strconv.ParseBool rejects.
func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
