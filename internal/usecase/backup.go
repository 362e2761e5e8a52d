package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/semmidev/dockdump/internal/domain"
)

// StrategyResolver returns the strategy for an engine.
type StrategyResolver interface {
	For(engine domain.Engine) (domain.EngineStrategy, error)
}

// BackupTree is the host directory that holds {engine}/{target} folders.
type BackupTree interface {
	EnsureDir(elem ...string) (string, error)
}

// Replica is a named offsite storage that receives every new artifact.
type Replica struct {
	Name    string
	Storage domain.Storage
}

// BackupDispatcher backs up one target per call.
type BackupDispatcher struct {
	runtime    domain.ContainerRuntime
	strategies StrategyResolver
	tree       BackupTree
	replicas   []Replica
	logger     domain.Logger
}

func NewBackupDispatcher(
	runtime domain.ContainerRuntime,
	strategies StrategyResolver,
	tree BackupTree,
	replicas []Replica,
	logger domain.Logger,
) *BackupDispatcher {
	return &BackupDispatcher{
		runtime:    runtime,
		strategies: strategies,
		tree:       tree,
		replicas:   replicas,
		logger:     logger,
	}
}

// Run validates target, resolves its container and delegates to the engine
// strategy. Any error is scoped to this target.
func (d *BackupDispatcher) Run(ctx context.Context, target domain.DatabaseTarget, rc domain.RunContext) (domain.BackupArtifact, error) {
	if err := validate(target); err != nil {
		return domain.BackupArtifact{}, err
	}

	strategy, err := d.strategies.For(target.Engine)
	if err != nil {
		return domain.BackupArtifact{}, domain.NewConfigError(target.Name, err.Error())
	}

	c, err := d.runtime.Container(ctx, target.ContainerRef)
	if err != nil {
		return domain.BackupArtifact{}, withTarget(err, target.Name)
	}

	dir, err := d.tree.EnsureDir(target.Dir(), target.Name)
	if err != nil {
		return domain.BackupArtifact{}, domain.NewError(domain.KindIO, target.Name, "create output directory", err)
	}

	filename := ArtifactFilename(target.Name, rc.Timestamp, target.Engine.Ext())
	destPath := filepath.Join(dir, filename)

	d.logger.Infof("[%s] Backing up %s database from container %s to %s", target.Name, target.Engine, c.Name(), destPath)
	if err := strategy.Backup(ctx, c, target, destPath); err != nil {
		return domain.BackupArtifact{}, domain.NewStrategyError(target.Name, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return domain.BackupArtifact{}, domain.NewError(domain.KindIO, target.Name, "stat backup file", err)
	}

	artifact := domain.BackupArtifact{
		Path:       destPath,
		SizeBytes:  uint64(info.Size()),
		CreatedAt:  rc.Timestamp,
		TargetName: target.Name,
	}
	d.logger.Infof("[%s] Backup created, size: %.2f MB", target.Name, megabytes(artifact.SizeBytes))

	if len(d.replicas) > 0 {
		d.uploadToReplicas(ctx, target, artifact.Path, path.Join(target.Dir(), target.Name, filename))
	}

	return artifact, nil
}

func (d *BackupDispatcher) uploadToReplicas(ctx context.Context, target domain.DatabaseTarget, filePath, key string) {
	var wg sync.WaitGroup

	for _, replica := range d.replicas {
		wg.Add(1)
		go func(r Replica) {
			defer wg.Done()

			d.logger.Infof("[%s] Uploading to %s...", target.Name, r.Name)
			if err := r.Storage.Upload(ctx, filePath, key); err != nil {
				d.logger.Errorf("[%s] Failed to upload to %s: %v", target.Name, r.Name, err)
			} else {
				d.logger.Infof("[%s] Successfully uploaded to %s", target.Name, r.Name)
			}
		}(replica)
	}

	wg.Wait()
}

func validate(target domain.DatabaseTarget) error {
	if target.Engine == domain.EngineUnknown {
		return domain.NewConfigError(target.Name, "unknown database type")
	}
	if target.ContainerRef == "" {
		return domain.NewConfigError(target.Name, "container_name or host is required")
	}
	for _, key := range target.Engine.RequiredCredentials() {
		if target.Credential(key) == "" {
			return domain.NewConfigError(target.Name, fmt.Sprintf("%s is required for %s", key, target.Engine))
		}
	}
	for _, key := range target.Engine.RequiredPathHints() {
		if target.PathHint(key) == "" {
			return domain.NewConfigError(target.Name, fmt.Sprintf("%s is required for %s", key, target.Engine))
		}
	}
	return nil
}

// withTarget stamps the target name on a runtime error that lacks one.
func withTarget(err error, name string) error {
	if be, ok := err.(*domain.BackupError); ok && be.Target == "" {
		copied := *be
		copied.Target = name
		return &copied
	}
	return err
}

func megabytes(n uint64) float64 {
	return float64(n) / (1024 * 1024)
}
