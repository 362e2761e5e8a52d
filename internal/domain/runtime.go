package domain

import (
	"context"
	"io"
)

// ContainerRuntime resolves containers by name or id.
type ContainerRuntime interface {
	Container(ctx context.Context, ref string) (Container, error)
	Ping(ctx context.Context) error
	Close() error
}

// ExecRequest describes a command run inside a container. When Stdout is nil
// the output is collected into ExecResult.Output.
type ExecRequest struct {
	Cmd    []string
	Env    map[string]string
	Stdout io.Writer
}

type ExecResult struct {
	ExitCode int
	Output   []byte
	Stderr   []byte
}

// Container is a handle to one running container.
type Container interface {
	Name() string
	Exec(ctx context.Context, req ExecRequest) (ExecResult, error)
	// GetArchive returns a tar stream of path. The caller closes it.
	GetArchive(ctx context.Context, path string) (io.ReadCloser, error)
	// PutArchive extracts the tar stream into dir.
	PutArchive(ctx context.Context, dir string, archive io.Reader) error
}
