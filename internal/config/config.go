// Package config loads onuprov settings from a YAML file, ONUPROV_* env vars
// and the legacy OLT_* variables of the migration scripts.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nanoncore/nano-onuprov/batch"
	"github.com/nanoncore/nano-onuprov/internal/logger"
	"github.com/nanoncore/nano-onuprov/session"
	"github.com/nanoncore/nano-onuprov/types"
	"github.com/nanoncore/nano-onuprov/vendors/zte"
)

// EnvPrefix prefixes every environment override, e.g. ONUPROV_SESSION_MAX_RETRIES
const EnvPrefix = "ONUPROV"

// Config is the full application configuration
type Config struct {
	Log     logger.Config `mapstructure:"log"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Session SessionConfig `mapstructure:"session"`
	ZTE     ZTEConfig     `mapstructure:"zte"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Legacy  LegacyConfig  `mapstructure:"legacy"`
}

// SSHConfig holds transport settings
type SSHConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig mirrors session.Config
type SessionConfig struct {
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	KeepAliveEvery   int           `mapstructure:"keepalive_every"`
	KeepAliveCommand string        `mapstructure:"keepalive_command"`
	ResetCommand     string        `mapstructure:"reset_command"`
}

// ZTEConfig holds the service template knobs
type ZTEConfig struct {
	ONUType      string   `mapstructure:"onu_type"`
	TCONTProfile string   `mapstructure:"tcont_profile"`
	ErrorMarkers []string `mapstructure:"error_markers"`
	MaxONUID     int      `mapstructure:"max_onu_id"`
}

// BatchConfig holds orchestrator settings
type BatchConfig struct {
	Verify      bool          `mapstructure:"verify"`
	RecordPause time.Duration `mapstructure:"record_pause"`
	Parallel    int           `mapstructure:"parallel"`
}

// StoreConfig selects the device profile store
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // json | sqlite
	Path    string `mapstructure:"path"`
}

// ArchiveConfig selects where run traces are written
type ArchiveConfig struct {
	Backend string             `mapstructure:"backend"` // none | local | minio
	Local   LocalArchiveConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalArchiveConfig is a directory on disk
type LocalArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// MinioConfig is an S3-compatible bucket
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

// LegacyConfig is the ad-hoc device of the OLT_* environment
type LegacyConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load reads path, or ./onuprov.yaml / ./configs/onuprov.yaml when path is
// empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("onuprov")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// variables of the legacy migration scripts
	_ = v.BindEnv("legacy.host", "OLT_HOST")
	_ = v.BindEnv("legacy.port", "OLT_PORT")
	_ = v.BindEnv("legacy.username", "OLT_USERNAME", "OLT_USER")
	_ = v.BindEnv("legacy.password", "OLT_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/onuprov.log")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("ssh.timeout", types.DefaultCommandTimeout)

	sd := session.DefaultConfig()
	v.SetDefault("session.max_retries", sd.MaxRetries)
	v.SetDefault("session.retry_backoff", sd.RetryBackoff)
	v.SetDefault("session.keepalive_every", sd.KeepAliveEvery)
	v.SetDefault("session.keepalive_command", sd.KeepAliveCommand)
	v.SetDefault("session.reset_command", sd.ResetCommand)

	zd := zte.DefaultOptions()
	v.SetDefault("zte.onu_type", zd.ONUType)
	v.SetDefault("zte.tcont_profile", zd.TCONTProfile)
	v.SetDefault("zte.error_markers", zd.ErrorMarkers)
	v.SetDefault("zte.max_onu_id", zd.MaxIdentifier)

	v.SetDefault("batch.verify", false)
	v.SetDefault("batch.record_pause", time.Duration(0))
	v.SetDefault("batch.parallel", 4)

	v.SetDefault("store.backend", "json")
	v.SetDefault("store.path", "./db.json")

	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.local.dir", "./runs")
	v.SetDefault("archive.minio.prefix", "onuprov")

	v.SetDefault("legacy.port", types.DefaultSSHPort)
}

// Validate rejects settings the runtime cannot use
func (c *Config) Validate() error {
	if c.Session.MaxRetries < 0 {
		return fmt.Errorf("session.max_retries must be >= 0")
	}
	if c.Session.RetryBackoff < 0 {
		return fmt.Errorf("session.retry_backoff must be >= 0")
	}
	if c.ZTE.MaxONUID < 0 {
		return fmt.Errorf("zte.max_onu_id must be >= 0")
	}
	switch c.Store.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case "none", "local", "minio":
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	return nil
}

// SessionConfig returns the session settings
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		MaxRetries:       c.Session.MaxRetries,
		RetryBackoff:     c.Session.RetryBackoff,
		KeepAliveEvery:   c.Session.KeepAliveEvery,
		KeepAliveCommand: c.Session.KeepAliveCommand,
		ResetCommand:     c.Session.ResetCommand,
	}
}

// ZTEOptions returns the driver options before per-device metadata overrides
func (c *Config) ZTEOptions() zte.Options {
	opts := zte.DefaultOptions()
	if c.ZTE.ONUType != "" {
		opts.ONUType = c.ZTE.ONUType
	}
	if c.ZTE.TCONTProfile != "" {
		opts.TCONTProfile = c.ZTE.TCONTProfile
	}
	if len(c.ZTE.ErrorMarkers) > 0 {
		opts.ErrorMarkers = c.ZTE.ErrorMarkers
	}
	opts.MaxIdentifier = c.ZTE.MaxONUID
	return opts
}

// BatchOptions assembles orchestrator options for a device
func (c *Config) BatchOptions(creds types.DeviceCredentials) batch.Options {
	return batch.Options{
		Verify:      c.Batch.Verify,
		RecordPause: c.Batch.RecordPause,
		Session:     c.SessionConfig(),
		ZTE:         c.ZTEOptions().WithMetadata(creds.Metadata),
	}
}

// LegacyCredentials returns the OLT_* device, if OLT_HOST is set
func (c *Config) LegacyCredentials() (types.DeviceCredentials, bool) {
	if c.Legacy.Host == "" {
		return types.DeviceCredentials{}, false
	}
	return types.DeviceCredentials{
		Name:     c.Legacy.Host,
		Vendor:   types.VendorZTE,
		Address:  c.Legacy.Host,
		Port:     c.Legacy.Port,
		Username: c.Legacy.Username,
		Password: c.Legacy.Password,
		Timeout:  c.SSH.Timeout,
	}, true
}
