// Package database holds the per-engine backup strategies.
package database

import (
	"context"
	"fmt"
	"io"

	"github.com/semmidev/dockdump/internal/adapter/archive"
	"github.com/semmidev/dockdump/internal/domain"
)

// Strategy produces one consistent, compressed backup artifact for a target.
type Strategy = domain.EngineStrategy

// Pipe is the streaming compressor the strategies write through.
type Pipe interface {
	StreamExec(ctx context.Context, c domain.Container, cmd []string, env map[string]string, destPath string) error
	StreamReader(r io.Reader, destPath string) error
}

// Options carries the per-engine tunables.
type Options struct {
	SQLite SQLiteOptions
	Valkey ValkeyOptions
}

// Registry maps each engine to its strategy.
type Registry struct {
	strategies map[domain.Engine]Strategy
}

func NewRegistry(pipe Pipe, opts Options, log domain.Logger) *Registry {
	r := &Registry{strategies: make(map[domain.Engine]Strategy)}
	for _, s := range []Strategy{
		NewMySQL(pipe),
		NewPostgreSQL(pipe),
		NewSQLite(pipe, opts.SQLite, log),
		NewValkey(pipe, opts.Valkey, log),
	} {
		r.strategies[s.Engine()] = s
	}
	return r
}

// For returns the strategy for e.
func (r *Registry) For(e domain.Engine) (Strategy, error) {
	switch e {
	case domain.EngineMariaDBMySQL, domain.EnginePostgres, domain.EngineSQLite, domain.EngineValkeyRedis:
		if s, ok := r.strategies[e]; ok {
			return s, nil
		}
		return nil, fmt.Errorf("no strategy registered for %s", e)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", e)
	}
}

// copyOut pulls a single file out of the container and compresses it into destPath.
func copyOut(ctx context.Context, pipe Pipe, c domain.Container, pathInContainer, destPath string) error {
	rc, err := c.GetArchive(ctx, pathInContainer)
	if err != nil {
		return domain.NewExtractError(fmt.Sprintf("copy %s from %s", pathInContainer, c.Name()), err)
	}
	defer rc.Close()

	member, err := archive.Open(rc, pathInContainer)
	if err != nil {
		return err
	}
	return pipe.StreamReader(member, destPath)
}

func execError(c domain.Container, cmd []string, err error) error {
	return domain.NewError(domain.KindRuntimeAPI, "", fmt.Sprintf("exec %s in %s", cmd[0], c.Name()), err)
}

func combinedOutput(res domain.ExecResult) []byte {
	out := append([]byte(nil), res.Output...)
	return append(out, res.Stderr...)
}
