package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/froyo-keystone/pkg/openstack"
	"github.com/openfroyo/froyo-keystone/pkg/telemetry"
	"github.com/openfroyo/froyo-keystone/pkg/transports/ssh"
)

// Transport types.
const (
	TransportLocal = "local"
	TransportSSH   = "ssh"
)

// Settings is the process configuration read from the settings file.
type Settings struct {
	// Auth holds explicit credentials. Empty fields fall back to OS_* variables.
	Auth openstack.AuthConfig `yaml:"auth"`

	// Client configures the openstack client invocation.
	Client ClientSettings `yaml:"client"`

	// Transport selects where the client runs.
	Transport TransportSettings `yaml:"transport"`

	// Engine tunes the scheduler.
	Engine EngineSettings `yaml:"engine"`

	// Journal configures the run journal.
	Journal JournalSettings `yaml:"journal"`

	// Policy configures the pre-apply policy checks.
	Policy PolicySettings `yaml:"policy"`

	// Telemetry holds the logging, metrics and tracing sections.
	telemetry.Config `yaml:",inline"`
}

// ClientSettings configures the openstack client.
type ClientSettings struct {
	// Binary is the client executable.
	Binary string `yaml:"binary" validate:"required"`

	// NotFoundPatterns are extra regular expressions that mark stderr as
	// "object not found".
	NotFoundPatterns []string `yaml:"not_found_patterns"`

	// AuthFailurePatterns are extra regular expressions that mark stderr as
	// an authentication failure.
	AuthFailurePatterns []string `yaml:"auth_failure_patterns"`

	// TokenRetries is how many times the token preflight is retried.
	TokenRetries int `yaml:"token_retries" validate:"gte=0,lte=10"`
}

// TransportSettings selects the command transport.
type TransportSettings struct {
	// Type is local or ssh.
	Type string `yaml:"type" validate:"required,oneof=local ssh"`

	// SSH configures the jump host when Type is ssh.
	SSH *ssh.Config `yaml:"ssh" validate:"required_if=Type ssh"`
}

// EngineSettings tunes the scheduler.
type EngineSettings struct {
	// Parallelism is the maximum number of resources converged at once
	// within a dependency level.
	Parallelism int `yaml:"parallelism" validate:"gte=1,lte=64"`

	// FailFast aborts the run on the first failed resource.
	FailFast bool `yaml:"fail_fast"`
}

// JournalSettings configures the run journal.
type JournalSettings struct {
	// Path is the sqlite database file. Empty disables the journal.
	Path string `yaml:"path"`
}

// PolicySettings configures the policy checks.
type PolicySettings struct {
	// Enabled turns the policy checks on.
	Enabled bool `yaml:"enabled"`

	// Files are extra .rego files or directories.
	Files []string `yaml:"files"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	return &Settings{
		Client: ClientSettings{
			Binary: "openstack",
		},
		Transport: TransportSettings{
			Type: TransportLocal,
		},
		Engine: EngineSettings{
			Parallelism: 4,
		},
		Policy: PolicySettings{
			Enabled: true,
		},
		Config: *telemetry.DefaultConfig(),
	}
}

// LoadSettings reads a settings file over the defaults. An empty path
// returns the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, s.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := s.decode(content); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) decode(content []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if s.Transport.SSH != nil {
		s.applySSHDefaults()
	}
	return nil
}

func (s *Settings) applySSHDefaults() {
	defaults := ssh.DefaultConfig(s.Transport.SSH.Host, s.Transport.SSH.User)
	c := s.Transport.SSH
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.AuthMethod == "" {
		c.AuthMethod = defaults.AuthMethod
	}
	if c.KnownHostsPath == "" {
		c.KnownHostsPath = defaults.KnownHostsPath
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = defaults.ConnectionTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return err
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if s.Transport.Type == TransportSSH {
		if err := s.Transport.SSH.Validate(); err != nil {
			return fmt.Errorf("transport.ssh: %w", err)
		}
	}
	return nil
}
