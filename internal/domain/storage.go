package domain

import "context"

// Storage is an offsite replica for finished artifacts. Names are slash
// separated keys of the form {engine}/{target}/{filename}.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
}
