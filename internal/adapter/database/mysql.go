package database

import (
	"context"
	"strings"

	"github.com/semmidev/dockdump/internal/domain"
)

const defaultMySQLDumpArgs = "--single-transaction --skip-dump-date"

type MySQLDatabase struct {
	pipe Pipe
}

func NewMySQL(pipe Pipe) *MySQLDatabase {
	return &MySQLDatabase{pipe: pipe}
}

func (m *MySQLDatabase) Engine() domain.Engine {
	return domain.EngineMariaDBMySQL
}

// Command builds the mysqldump invocation. The password never appears in it.
func (m *MySQLDatabase) Command(target domain.DatabaseTarget) []string {
	args := defaultMySQLDumpArgs
	if target.HasExtraArgs {
		args = target.ExtraArgs
	}

	cmd := append([]string{"mysqldump"}, strings.Fields(args)...)
	return append(cmd, "-u", target.Credential(domain.CredUser), target.Credential(domain.CredDatabase))
}

func (m *MySQLDatabase) Backup(ctx context.Context, c domain.Container, target domain.DatabaseTarget, destPath string) error {
	env := map[string]string{"MYSQL_PWD": target.Credential(domain.CredPassword)}
	return m.pipe.StreamExec(ctx, c, m.Command(target), env, destPath)
}
