package database

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/semmidev/dockdump/internal/adapter/archive"
	"github.com/semmidev/dockdump/internal/domain"
)

const (
	DefaultSQLiteBinary   = "/usr/local/bin/sqlite3_portable_backup"
	DefaultSQLiteExecPath = "/tmp/sqlite3_exec"
	DefaultSQLiteTempPath = "/tmp/temp_sqlite_backup.db"
)

// SQLiteOptions locates the static sqlite3 binary on the host and the
// scratch paths used inside the target container.
type SQLiteOptions struct {
	BinaryPath string
	ExecPath   string
	TempPath   string
}

// SQLiteDatabase snapshots a live database file by injecting a sqlite3 CLI
// into the container and running ".backup" there.
type SQLiteDatabase struct {
	pipe     Pipe
	opts     SQLiteOptions
	log      domain.Logger
	readFile func(string) ([]byte, error)
}

func NewSQLite(pipe Pipe, opts SQLiteOptions, log domain.Logger) *SQLiteDatabase {
	if opts.BinaryPath == "" {
		opts.BinaryPath = DefaultSQLiteBinary
	}
	if opts.ExecPath == "" {
		opts.ExecPath = DefaultSQLiteExecPath
	}
	if opts.TempPath == "" {
		opts.TempPath = DefaultSQLiteTempPath
	}
	return &SQLiteDatabase{pipe: pipe, opts: opts, log: log, readFile: os.ReadFile}
}

func (s *SQLiteDatabase) Engine() domain.Engine {
	return domain.EngineSQLite
}

func (s *SQLiteDatabase) Backup(ctx context.Context, c domain.Container, target domain.DatabaseTarget, destPath string) error {
	if err := s.inject(ctx, c); err != nil {
		return err
	}
	// From here on the binary, and possibly a partial snapshot, exist in the
	// container and must be removed whatever happens next.
	defer s.cleanup(ctx, c, target.Name)

	cmd := []string{s.opts.ExecPath, target.PathHint(domain.HintDBPath), fmt.Sprintf(".backup '%s'", s.opts.TempPath)}
	s.log.Infof("[%s] Creating consistent SQLite backup inside %s at %s", target.Name, c.Name(), s.opts.TempPath)

	res, err := c.Exec(ctx, domain.ExecRequest{Cmd: cmd})
	if err != nil {
		return execError(c, cmd, err)
	}
	if res.ExitCode != 0 {
		return domain.NewDumpCommandError(cmd, res.ExitCode, combinedOutput(res))
	}

	return copyOut(ctx, s.pipe, c, s.opts.TempPath, destPath)
}

func (s *SQLiteDatabase) inject(ctx context.Context, c domain.Container) error {
	binary, err := s.readFile(s.opts.BinaryPath)
	if err != nil {
		return domain.NewError(domain.KindInjection, "", "read sqlite3 binary", err)
	}

	tarball, err := archive.SingleFile(path.Base(s.opts.ExecPath), binary, 0o755)
	if err != nil {
		return domain.NewError(domain.KindInjection, "", "build sqlite3 archive", err)
	}

	if err := c.PutArchive(ctx, path.Dir(s.opts.ExecPath), tarball); err != nil {
		return domain.NewError(domain.KindInjection, "", fmt.Sprintf("copy sqlite3 binary into %s", c.Name()), err)
	}
	return nil
}

func (s *SQLiteDatabase) cleanup(ctx context.Context, c domain.Container, name string) {
	cmd := []string{"rm", "-f", s.opts.ExecPath, s.opts.TempPath}
	s.log.Infof("[%s] Cleaning up temporary files inside %s", name, c.Name())

	res, err := c.Exec(context.WithoutCancel(ctx), domain.ExecRequest{Cmd: cmd})
	switch {
	case err != nil:
		s.log.Warnf("[%s] Cleanup in %s failed: %v", name, c.Name(), err)
	case res.ExitCode != 0:
		s.log.Warnf("[%s] Cleanup in %s exited with code %d: %s", name, c.Name(), res.ExitCode, combinedOutput(res))
	}
}
