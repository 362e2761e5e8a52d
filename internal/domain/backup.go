package domain

import (
	"context"
	"time"
)

// Engine is the closed set of database technologies a target can run.
type Engine int

const (
	EngineUnknown Engine = iota
	EngineMariaDBMySQL
	EnginePostgres
	EngineSQLite
	EngineValkeyRedis
)

// ParseEngine maps a configured type label to an Engine.
func ParseEngine(label string) (Engine, bool) {
	switch label {
	case "mariadb", "mysql":
		return EngineMariaDBMySQL, true
	case "postgres", "postgresql":
		return EnginePostgres, true
	case "sqlite":
		return EngineSQLite, true
	case "valkey", "redis":
		return EngineValkeyRedis, true
	default:
		return EngineUnknown, false
	}
}

// String returns the canonical engine name.
func (e Engine) String() string {
	switch e {
	case EngineMariaDBMySQL:
		return "mariadb"
	case EnginePostgres:
		return "postgres"
	case EngineSQLite:
		return "sqlite"
	case EngineValkeyRedis:
		return "valkey"
	default:
		return "unknown"
	}
}

// Ext is the artifact extension before the trailing ".gz".
func (e Engine) Ext() string {
	switch e {
	case EngineMariaDBMySQL:
		return "sql"
	case EnginePostgres:
		return "dump"
	case EngineSQLite:
		return "db"
	case EngineValkeyRedis:
		return "rdb"
	default:
		return "bin"
	}
}

// Credential and path hint keys understood by the strategies.
const (
	CredUser     = "user"
	CredPassword = "password"
	CredDatabase = "database"

	HintDBPath  = "db_path"
	HintRDBPath = "rdb_path"
	HintCLI     = "cli"
)

// RequiredCredentials lists the credential keys that must be non-empty.
func (e Engine) RequiredCredentials() []string {
	switch e {
	case EngineMariaDBMySQL, EnginePostgres:
		return []string{CredUser, CredPassword, CredDatabase}
	default:
		return nil
	}
}

// RequiredPathHints lists the path hint keys that must be non-empty.
func (e Engine) RequiredPathHints() []string {
	switch e {
	case EngineSQLite:
		return []string{HintDBPath}
	default:
		return nil
	}
}

// DatabaseTarget identifies one backup unit. It is never mutated during a run.
type DatabaseTarget struct {
	Engine Engine
	// Label is the configured type ("mysql", "redis", ...). Artifacts are
	// stored under it so existing trees keep their layout.
	Label        string
	Name         string
	ContainerRef string
	Credentials  map[string]string
	PathHints    map[string]string
	ExtraArgs    string
	// HasExtraArgs distinguishes an explicit empty dump_args from an absent one.
	HasExtraArgs bool
}

// Dir is the engine directory under the backup root: the configured label,
// or the canonical engine name when no label is set.
func (t DatabaseTarget) Dir() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Engine.String()
}

func (t DatabaseTarget) Credential(key string) string {
	return t.Credentials[key]
}

func (t DatabaseTarget) PathHint(key string) string {
	return t.PathHints[key]
}

// BackupArtifact is a finalized, compressed backup file on the host.
type BackupArtifact struct {
	Path       string
	SizeBytes  uint64
	CreatedAt  time.Time
	TargetName string
}

// RunContext is created once per run and passed read-only to every component.
type RunContext struct {
	RunID     string
	Timestamp time.Time
	Timezone  string
}

// Location returns the timezone the run was stamped in.
func (rc RunContext) Location() *time.Location {
	if rc.Timestamp.IsZero() {
		return time.UTC
	}
	return rc.Timestamp.Location()
}

// RetentionWindow is the age in days after which artifacts are purged.
type RetentionWindow struct {
	Days int
}

func (w RetentionWindow) Enabled() bool {
	return w.Days > 0
}

// Cutoff is the oldest timestamp still retained relative to now.
func (w RetentionWindow) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(w.Days) * 24 * time.Hour)
}

type BackupExecutor interface {
	Execute(ctx context.Context) error
}

// EngineStrategy produces one compressed artifact at destPath for a target
// running in c. destPath must not exist when the call fails.
type EngineStrategy interface {
	Engine() Engine
	Backup(ctx context.Context, c Container, target DatabaseTarget, destPath string) error
}
