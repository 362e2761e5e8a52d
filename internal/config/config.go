package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/semmidev/dockdump/internal/domain"
)

const DefaultPath = "/app/config.yaml"

type Config struct {
	App              AppConfig           `mapstructure:"app"`
	BackupDir        string              `mapstructure:"backup_dir"`
	Timezone         string              `mapstructure:"timezone"`
	PurgeDays        int                 `mapstructure:"purge_days"`
	HealthcheckURL   string              `mapstructure:"healthcheck_url"`
	CompressionLevel int                 `mapstructure:"compression_level"`
	Schedule         string              `mapstructure:"schedule"`
	SQLite           SQLiteConfig        `mapstructure:"sqlite"`
	Valkey           ValkeyConfig        `mapstructure:"valkey"`
	Replicas         []Replica           `mapstructure:"replicas"`
	Notifications    NotificationsConfig `mapstructure:"notifications"`
	Databases        []DatabaseConfig    `mapstructure:"databases"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	Name          string `mapstructure:"name"`
	Type          string `mapstructure:"type"`
	ContainerName string `mapstructure:"container_name"`
	Host          string `mapstructure:"host"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	// DumpArgs is nil when the key is absent so engine defaults apply.
	DumpArgs *string `mapstructure:"dump_args"`

	// SQLite specific
	PathInContainer string `mapstructure:"path_in_container"`

	// Valkey/Redis specific
	RDBPathInContainer string `mapstructure:"rdb_path_in_container"`
	CLI                string `mapstructure:"cli"`
}

type SQLiteConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ExecPath   string `mapstructure:"exec_path"`
	TempPath   string `mapstructure:"temp_path"`
}

type ValkeyConfig struct {
	WaitMode     string        `mapstructure:"wait_mode"`
	Grace        time.Duration `mapstructure:"grace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Replica is an offsite copy destination.
type Replica struct {
	Type    string `mapstructure:"type"`
	Name    string `mapstructure:"name"`
	Enabled bool   `mapstructure:"enabled"`

	// Google Drive. CredentialsFile is a service account key, or the OAuth
	// client secret when RefreshToken is set.
	CredentialsFile string `mapstructure:"credentials_file"`
	RefreshToken    string `mapstructure:"refresh_token"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3 and compatible stores
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`

	// Local directory, e.g. a mounted NAS share
	Path string `mapstructure:"path"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
	// OnlyFailures suppresses per-target and success messages.
	OnlyFailures bool `mapstructure:"only_failures"`
}

// Load reads the YAML file at path. BACKUP_DIR, TIMEZONE and PURGE_DAYS from
// the environment are defaults that the file overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	purgeDays, err := envInt("PURGE_DAYS", 7)
	if err != nil {
		return nil, err
	}

	v.SetDefault("app.name", "dockdump")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backup_dir", envOr("BACKUP_DIR", "/backups"))
	v.SetDefault("timezone", envOr("TIMEZONE", "UTC"))
	v.SetDefault("purge_days", purgeDays)
	v.SetDefault("compression_level", -1)
	v.SetDefault("schedule", "0 0 2 * * *")
	v.SetDefault("valkey.wait_mode", "poll")
	v.SetDefault("valkey.grace", "5s")
	v.SetDefault("valkey.poll_interval", "1s")
	v.SetDefault("valkey.timeout", "5m")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks process-wide settings only. Per-database problems are
// reported against that database when it is backed up.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}
	switch c.Valkey.WaitMode {
	case "poll", "fixed":
	default:
		return fmt.Errorf("valkey.wait_mode must be poll or fixed, got %q", c.Valkey.WaitMode)
	}

	for i, r := range c.Replicas {
		if !r.Enabled {
			continue
		}
		switch r.Type {
		case "s3":
			if r.Bucket == "" {
				return fmt.Errorf("replicas[%d]: bucket is required", i)
			}
		case "gdrive":
			if r.CredentialsFile == "" || r.FolderID == "" {
				return fmt.Errorf("replicas[%d]: credentials_file and folder_id are required", i)
			}
		case "local":
			if r.Path == "" {
				return fmt.Errorf("replicas[%d]: path is required", i)
			}
		default:
			return fmt.Errorf("replicas[%d]: unsupported type %q", i, r.Type)
		}
	}

	if t := c.Notifications.Telegram; t.Enabled && (t.BotToken == "" || t.ChatID == 0) {
		return fmt.Errorf("notifications.telegram: bot_token and chat_id are required")
	}

	return nil
}

// Location resolves the configured timezone. On failure it returns UTC
// together with the error so the caller can warn and carry on.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Retention() domain.RetentionWindow {
	return domain.RetentionWindow{Days: c.PurgeDays}
}

func (c *Config) GetEnabledReplicas() []Replica {
	var enabled []Replica
	for _, r := range c.Replicas {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled
}

// Targets converts the configured databases, in order. An unrecognised type
// yields a target with EngineUnknown.
func (c *Config) Targets() []domain.DatabaseTarget {
	targets := make([]domain.DatabaseTarget, 0, len(c.Databases))
	for _, db := range c.Databases {
		targets = append(targets, db.Target())
	}
	return targets
}

func (db DatabaseConfig) Target() domain.DatabaseTarget {
	label := strings.ToLower(strings.TrimSpace(db.Type))
	engine, _ := domain.ParseEngine(label)

	name := db.Name
	if name == "" {
		name = "unknown_db"
	}
	ref := db.ContainerName
	if ref == "" {
		ref = db.Host
	}

	t := domain.DatabaseTarget{
		Engine:       engine,
		Label:        label,
		Name:         name,
		ContainerRef: ref,
		Credentials:  map[string]string{},
		PathHints:    map[string]string{},
	}
	setIf(t.Credentials, domain.CredUser, db.User)
	setIf(t.Credentials, domain.CredPassword, db.Password)
	setIf(t.Credentials, domain.CredDatabase, db.Database)
	setIf(t.PathHints, domain.HintDBPath, db.PathInContainer)
	setIf(t.PathHints, domain.HintRDBPath, db.RDBPathInContainer)
	setIf(t.PathHints, domain.HintCLI, db.CLI)

	if db.DumpArgs != nil {
		t.ExtraArgs = *db.DumpArgs
		t.HasExtraArgs = true
	}
	return t
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
