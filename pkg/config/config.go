package config

import (
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/clickhouse"
	"github.com/pseudomuto/hermes/pkg/consts"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a config file.
type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

type (
	// Config is the hermes project configuration.
	Config struct {
		// MigrationsLocation is the directory holding one sub-directory per migration unit.
		MigrationsLocation string `toml:"migrations-location" yaml:"migrations-location"`

		// LogLevel is one of debug, info, warning, error or critical.
		LogLevel string `toml:"log-level" yaml:"log-level"`

		// LogFormat is text or json.
		LogFormat string `toml:"log-format" yaml:"log-format"`

		LogToFile   bool   `toml:"log-to-file" yaml:"log-to-file"`
		LogToStream bool   `toml:"log-to-stream" yaml:"log-to-stream"`
		LogFilePath string `toml:"log-file-path" yaml:"log-file-path"`

		ClickHouse ClickHouse `toml:"clickhouse" yaml:"clickhouse"`
		Tracking   Tracking   `toml:"tracking" yaml:"tracking"`
		Metrics    Metrics    `toml:"metrics" yaml:"metrics"`

		// Path is the file the config was loaded from, empty when defaults are used.
		Path string `toml:"-" yaml:"-"`
	}

	// ClickHouse describes the target server and the disposable round-trip servers.
	ClickHouse struct {
		// URL is a full DSN and takes precedence over the individual fields.
		URL      string `toml:"url" yaml:"url"`
		Host     string `toml:"host" yaml:"host"`
		Port     int    `toml:"port" yaml:"port"`
		Database string `toml:"database" yaml:"database"`
		User     string `toml:"user" yaml:"user"`
		Password string `toml:"password" yaml:"password"`

		// Version is the engine version used for round-trip runs.
		Version string `toml:"version" yaml:"version"`

		// ConfigDir is mounted as config.d into round-trip servers.
		ConfigDir string `toml:"config-dir" yaml:"config-dir"`

		CAFile   string `toml:"ca-file" yaml:"ca-file"`
		CertFile string `toml:"cert-file" yaml:"cert-file"`
		KeyFile  string `toml:"key-file" yaml:"key-file"`
	}

	// Tracking configures the applied-state store.
	Tracking struct {
		Database      string   `toml:"database" yaml:"database"`
		LockTimeout   Duration `toml:"lock-timeout" yaml:"lock-timeout"`
		LeaseDuration Duration `toml:"lease-duration" yaml:"lease-duration"`
	}

	// Metrics configures the optional Pushgateway export.
	Metrics struct {
		Pushgateway string `toml:"pushgateway" yaml:"pushgateway"`
		Job         string `toml:"job" yaml:"job"`
	}

	// Duration is a time.Duration written as a Go duration string ("30s").
	Duration struct {
		time.Duration
	}
)

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		MigrationsLocation: consts.DefaultMigrationsLocation,
		LogLevel:           consts.DefaultLogLevel,
		LogFormat:          "text",
		LogToFile:          true,
		LogToStream:        true,
		LogFilePath:        consts.DefaultLogFilePath,
		ClickHouse: ClickHouse{
			Version: consts.DefaultClickHouseVersion,
		},
		Tracking: Tracking{
			Database:      consts.DefaultTrackingDatabase,
			LockTimeout:   Duration{consts.DefaultLockTimeout},
			LeaseDuration: Duration{consts.DefaultLeaseDuration},
		},
		Metrics: Metrics{
			Job: consts.DefaultMetricsJob,
		},
	}
}

// LoadConfig parses a configuration from r in the given format. Keys missing
// from the input keep their default values.
//
// Example:
//
//	data := `
//	migrations-location = "db/versions"
//	log-level = "debug"
//
//	[clickhouse]
//	host = "localhost"
//	port = 9000
//	database = "analytics"
//	`
//
//	cfg, err := config.LoadConfig(strings.NewReader(data), config.TOML)
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Println(cfg.MigrationsLocation)
func LoadConfig(r io.Reader, format Format) (*Config, error) {
	cfg := Defaults()

	var err error
	switch format {
	case TOML:
		err = toml.NewDecoder(r).DisallowUnknownFields().Decode(cfg)
	case YAML:
		err = yaml.NewDecoder(r).Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return nil, errors.Errorf("unsupported config format: %q", format)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal %s config", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFile loads a configuration from path, using its extension to pick
// the format.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("hermes.toml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
func LoadConfigFile(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadConfig(f, format)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}

	cfg.Path = path
	return cfg, nil
}

// Encode writes c to w in the given format, in a form LoadConfig reads back.
func (c *Config) Encode(w io.Writer, format Format) error {
	switch format {
	case TOML:
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return errors.Wrap(err, "failed to encode toml config")
		}
		return nil
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return errors.Wrap(err, "failed to encode yaml config")
		}
		return enc.Close()
	default:
		return errors.Errorf("unsupported config format: %s", format)
	}
}

// Discover loads hermes.toml or hermes.yaml from dir, in that order. It
// returns the defaults when neither exists.
func Discover(dir string) (*Config, error) {
	for _, name := range []string{consts.ConfigFileTOML, consts.ConfigFileYAML} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to stat %s", path)
		}

		return LoadConfigFile(path)
	}

	return Defaults(), nil
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", errors.Errorf("unsupported config file extension: %s", path)
	}
}

// Validate checks values that cannot be represented by the decoders.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return errors.Errorf("unsupported log format: %q", c.LogFormat)
	}

	if c.MigrationsLocation == "" {
		return errors.New("migrations-location must not be empty")
	}

	if c.Tracking.LockTimeout.Duration < 0 {
		return errors.New("tracking.lock-timeout must not be negative")
	}

	return nil
}

// ApplyEnv overlays the CLICKHOUSE_* environment variables. lookup is
// usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CLICKHOUSE_URI":      &c.ClickHouse.URL,
		"CLICKHOUSE_HOST":     &c.ClickHouse.Host,
		"CLICKHOUSE_DATABASE": &c.ClickHouse.Database,
		"CLICKHOUSE_USER":     &c.ClickHouse.User,
		"CLICKHOUSE_PASSWORD": &c.ClickHouse.Password,
	}

	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CLICKHOUSE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid CLICKHOUSE_PORT %q", v)
		}
		c.ClickHouse.Port = port
	}

	return nil
}

// DSN returns the connection string for the target server. URL wins when
// set; otherwise host, port and database are all required.
func (c ClickHouse) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}

	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return "", errors.Errorf("clickhouse connection is not configured, missing %s (or set a url)", strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "clickhouse",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}

	return u.String(), nil
}

// ClientOptions returns the TLS settings for the client.
func (c ClickHouse) ClientOptions() clickhouse.ClientOptions {
	return clickhouse.ClientOptions{
		TLSSettings: clickhouse.TLSSettings{
			CAFile:   c.CAFile,
			CertFile: c.CertFile,
			KeyFile:  c.KeyFile,
		},
	}
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}

	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
