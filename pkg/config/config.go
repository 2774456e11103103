// Package config loads the ledger service's YAML configuration file,
// substituting ${VAR_NAME} and ${VAR_NAME:-default} environment
// references before parsing. Config loading is an external collaborator:
// cmd/ledgerd reads it to build a ledgerservice.Service and friends, and
// the core ledger packages never import it.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written in YAML as "30s",
// "5m", etc. instead of a raw integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is the full operator-facing configuration for ledgerd.
type Config struct {
	Environment string `yaml:"environment"`

	Server    ServerSettings    `yaml:"server"`
	Database  DatabaseSettings  `yaml:"database"`
	Anchor    AnchorSettings    `yaml:"anchor"`
	Integrity IntegritySettings `yaml:"integrity"`
	Keys      KeySettings       `yaml:"keys"`
	Logging   LoggingSettings   `yaml:"logging"`
}

// IntegritySettings controls the background chain-verification loop
// ("offered as a background and on-demand operation").
type IntegritySettings struct {
	CheckInterval Duration `yaml:"check_interval"`
}

// ServerSettings controls the HTTP ingress/egress listener.
type ServerSettings struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DatabaseSettings selects and configures the event store backend.
// Backend "memory" ignores every other field here; "postgres" requires
// URL to be set.
type DatabaseSettings struct {
	Backend         string   `yaml:"backend"` // "memory" or "postgres"
	URL             string   `yaml:"url"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// AnchorSettings controls the batching cadence and the external witness.
type AnchorSettings struct {
	Enabled       bool     `yaml:"enabled"`
	CheckInterval Duration `yaml:"check_interval"`
	SizeThreshold int      `yaml:"size_threshold"`
	MaxAge        Duration `yaml:"max_age"`

	Witness  string           `yaml:"witness"` // "none", "ethereum", "firestore"
	Ethereum EthereumSettings `yaml:"ethereum"`
	Firestore FirestoreSettings `yaml:"firestore"`
}

// EthereumSettings configures the EthereumWitness adapter.
type EthereumSettings struct {
	RPCURL        string `yaml:"rpc_url"`
	ChainID       int64  `yaml:"chain_id"`
	PrivateKeyHex string `yaml:"private_key_hex"`
}

// FirestoreSettings configures the FirestoreWitness adapter.
type FirestoreSettings struct {
	Enabled         bool   `yaml:"enabled"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// KeySettings points at the system signing key used when a command is
// not attributed to a registered editor (the "system keypair").
type KeySettings struct {
	SystemPrivateKeyPath string `yaml:"system_private_key_path"`
}

// LoggingSettings holds the logging level and format read from the
// file; ledgerd does not apply them to its loggers.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads and parses the YAML file at path, substituting environment
// variables first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0:8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = "0.0.0.0:9090"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "memory"
	}
	if c.Anchor.CheckInterval == 0 {
		c.Anchor.CheckInterval = Duration(time.Minute)
	}
	if c.Anchor.SizeThreshold == 0 {
		c.Anchor.SizeThreshold = 100
	}
	if c.Anchor.MaxAge == 0 {
		c.Anchor.MaxAge = Duration(15 * time.Minute)
	}
	if c.Anchor.Witness == "" {
		c.Anchor.Witness = "none"
	}
	if c.Integrity.CheckInterval == 0 {
		c.Integrity.CheckInterval = Duration(5 * time.Minute)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration is internally consistent enough to
// start the service. It does not attempt to reach the database or any
// witness backend; dbclient.NewClient and the ethereum and firestore
// client constructors report connectivity failures themselves.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "database.url is required when database.backend is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.backend %q is not one of memory, postgres", c.Database.Backend))
	}

	if c.Anchor.Enabled {
		switch c.Anchor.Witness {
		case "none":
		case "ethereum":
			if c.Anchor.Ethereum.RPCURL == "" {
				errs = append(errs, "anchor.ethereum.rpc_url is required when anchor.witness is ethereum")
			}
			if c.Anchor.Ethereum.PrivateKeyHex == "" {
				errs = append(errs, "anchor.ethereum.private_key_hex is required when anchor.witness is ethereum")
			}
		case "firestore":
			if c.Anchor.Firestore.ProjectID == "" {
				errs = append(errs, "anchor.firestore.project_id is required when anchor.witness is firestore")
			}
		default:
			errs = append(errs, fmt.Sprintf("anchor.witness %q is not one of none, ethereum, firestore", c.Anchor.Witness))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
