package usecase

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"time"

	"github.com/semmidev/dockdump/internal/adapter/storage"
	"github.com/semmidev/dockdump/internal/domain"
)

// PurgeTree is the host backup tree as seen by the purger.
type PurgeTree interface {
	Dir(elem ...string) string
	Entries(elem ...string) ([]storage.Entry, error)
	Remove(path string) error
}

// RetentionPurger deletes artifacts whose filename timestamp is older than
// the retention window. Files it cannot date are never deleted.
type RetentionPurger struct {
	tree     PurgeTree
	replicas []Replica
	logger   domain.Logger
}

func NewRetentionPurger(tree PurgeTree, replicas []Replica, logger domain.Logger) *RetentionPurger {
	return &RetentionPurger{
		tree:     tree,
		replicas: replicas,
		logger:   logger,
	}
}

// Purge measures age against rc.Timestamp in the run's timezone and returns
// the local artifacts it deleted with their combined size.
func (p *RetentionPurger) Purge(ctx context.Context, targets []domain.DatabaseTarget, window domain.RetentionWindow, rc domain.RunContext) ([]domain.BackupArtifact, uint64) {
	if !window.Enabled() {
		p.logger.Infof("Backup purging is disabled (purge_days is %d)", window.Days)
		return nil, 0
	}

	loc := rc.Location()
	cutoff := window.Cutoff(rc.Timestamp)
	p.logger.Infof("Purging backups older than %d days (before %s)...", window.Days, cutoff.Format(time.RFC3339))

	var purged []domain.BackupArtifact
	var total uint64
	seen := make(map[string]bool)

	for _, target := range targets {
		if target.Engine == domain.EngineUnknown {
			p.logger.Warnf("[%s] Skipping purge for target with unknown database type", target.Name)
			continue
		}
		dir := p.tree.Dir(target.Dir(), target.Name)
		if seen[dir] {
			continue
		}
		seen[dir] = true

		entries, err := p.tree.Entries(target.Dir(), target.Name)
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Infof("[%s] Backup directory %s does not exist, skipping purge", target.Name, dir)
			continue
		}
		if err != nil {
			p.logger.Errorf("[%s] Failed to list %s: %v", target.Name, dir, err)
			continue
		}

		for _, entry := range entries {
			ts, err := ParseFilenameTimestamp(entry.Name, loc)
			if err != nil {
				p.logger.Warnf("[%s] Could not parse date from %s: %v; skipping", target.Name, entry.Name, err)
				continue
			}
			if !ts.Before(cutoff) {
				continue
			}

			p.logger.Infof("[%s] Purging old backup: %s", target.Name, entry.Name)
			if err := p.tree.Remove(entry.Path); err != nil {
				p.logger.Errorf("[%s] Failed to purge %s: %v", target.Name, entry.Path, err)
				continue
			}
			purged = append(purged, domain.BackupArtifact{
				Path:       entry.Path,
				SizeBytes:  entry.Size,
				CreatedAt:  ts,
				TargetName: target.Name,
			})
			total += entry.Size
		}
	}

	if len(p.replicas) > 0 {
		p.purgeReplicas(ctx, targets, cutoff, loc)
	}

	p.logger.Infof("Purge phase completed")
	return purged, total
}

func (p *RetentionPurger) purgeReplicas(ctx context.Context, targets []domain.DatabaseTarget, cutoff time.Time, loc *time.Location) {
	for _, replica := range p.replicas {
		deleted := 0
		for _, target := range targets {
			if target.Engine == domain.EngineUnknown {
				continue
			}
			prefix := path.Join(target.Dir(), target.Name) + "/"

			keys, err := replica.Storage.List(ctx, prefix)
			if err != nil {
				p.logger.Errorf("[%s] Failed to list %s: %v", target.Name, replica.Name, err)
				continue
			}

			for _, key := range keys {
				ts, err := ParseFilenameTimestamp(path.Base(key), loc)
				if err != nil {
					p.logger.Warnf("[%s] Could not parse date from %s on %s: %v; skipping", target.Name, key, replica.Name, err)
					continue
				}
				if !ts.Before(cutoff) {
					continue
				}
				if err := replica.Storage.Delete(ctx, key); err != nil {
					p.logger.Errorf("[%s] Failed to delete %s from %s: %v", target.Name, key, replica.Name, err)
					continue
				}
				deleted++
			}
		}
		p.logger.Infof("Deleted %d old backup(s) from %s", deleted, replica.Name)
	}
}
