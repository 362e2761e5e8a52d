package database

import (
	"context"
	"strings"

	"github.com/semmidev/dockdump/internal/domain"
)

type PostgreSQLDatabase struct {
	pipe Pipe
}

func NewPostgreSQL(pipe Pipe) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{pipe: pipe}
}

func (p *PostgreSQLDatabase) Engine() domain.Engine {
	return domain.EnginePostgres
}

func (p *PostgreSQLDatabase) Command(target domain.DatabaseTarget) []string {
	cmd := append([]string{"pg_dump"}, strings.Fields(target.ExtraArgs)...)
	return append(cmd, "-U", target.Credential(domain.CredUser), "-d", target.Credential(domain.CredDatabase))
}

func (p *PostgreSQLDatabase) Backup(ctx context.Context, c domain.Container, target domain.DatabaseTarget, destPath string) error {
	// pg_dump reads the password from PGPASSWORD.
	env := map[string]string{"PGPASSWORD": target.Credential(domain.CredPassword)}
	return p.pipe.StreamExec(ctx, c, p.Command(target), env, destPath)
}
