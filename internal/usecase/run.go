package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/dockdump/internal/domain"
)

// TargetRunner backs up a single target.
type TargetRunner interface {
	Run(ctx context.Context, target domain.DatabaseTarget, rc domain.RunContext) (domain.BackupArtifact, error)
}

// Purger applies the retention window.
type Purger interface {
	Purge(ctx context.Context, targets []domain.DatabaseTarget, window domain.RetentionWindow, rc domain.RunContext) ([]domain.BackupArtifact, uint64)
}

// TargetFailure records why one target produced no artifact.
type TargetFailure struct {
	Target string
	Err    error
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	Context     domain.RunContext
	Artifacts   []domain.BackupArtifact
	Failures    []TargetFailure
	Purged      []domain.BackupArtifact
	PurgedBytes uint64
}

func (s RunSummary) Succeeded() bool {
	return len(s.Failures) == 0
}

func (s RunSummary) NewBytes() uint64 {
	var total uint64
	for _, a := range s.Artifacts {
		total += a.SizeBytes
	}
	return total
}

// RunCoordinator drives one full run: every target in order, then the purge
// phase, then the final report. Neither purge nor report is ever skipped.
type RunCoordinator struct {
	targets  []domain.DatabaseTarget
	window   domain.RetentionWindow
	location *time.Location
	runner   TargetRunner
	purger   Purger
	notifier domain.Notifier
	logger   domain.Logger

	now   func() time.Time
	newID func() string
}

func NewRunCoordinator(
	targets []domain.DatabaseTarget,
	window domain.RetentionWindow,
	location *time.Location,
	runner TargetRunner,
	purger Purger,
	notifier domain.Notifier,
	logger domain.Logger,
) *RunCoordinator {
	if location == nil {
		location = time.UTC
	}
	return &RunCoordinator{
		targets:  append([]domain.DatabaseTarget(nil), targets...),
		window:   window,
		location: location,
		runner:   runner,
		purger:   purger,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Execute runs once and reports a failed run as an error. It lets the
// coordinator be scheduled as a domain.BackupExecutor.
func (c *RunCoordinator) Execute(ctx context.Context) error {
	summary := c.Run(ctx)
	if !summary.Succeeded() {
		return fmt.Errorf("backup failed for %d of %d database(s)", len(summary.Failures), len(c.targets))
	}
	return nil
}

func (c *RunCoordinator) Run(ctx context.Context) RunSummary {
	rc := c.newRunContext()
	stamp := FormatTimestamp(rc.Timestamp)
	summary := RunSummary{Context: rc}

	c.logger.Infof("*** Starting database backup process at %s (run %s) ***", stamp, rc.RunID)
	c.notify(ctx, domain.Event{
		Kind:      domain.EventStart,
		RunID:     rc.RunID,
		Timestamp: rc.Timestamp,
		Message:   fmt.Sprintf("Starting global backup process at %s.", stamp),
	})

	for _, target := range c.targets {
		c.logger.Infof("--- Processing database: %s (%s) ---", target.Name, target.Engine)
		start := time.Now()

		artifact, err := c.runner.Run(ctx, target, rc)
		if err != nil {
			summary.Failures = append(summary.Failures, TargetFailure{Target: target.Name, Err: err})
			c.logger.Errorf("[%s] Backup failed: %v", target.Name, err)
			c.notify(ctx, domain.Event{
				Kind:      domain.EventLog,
				RunID:     rc.RunID,
				Timestamp: rc.Timestamp,
				Message:   fmt.Sprintf("FAILURE: Backup for %s failed with error: %v", target.Name, err),
			})
			continue
		}

		summary.Artifacts = append(summary.Artifacts, artifact)
		c.logger.Infof("[%s] Backup finished successfully in %s", target.Name, time.Since(start).Round(time.Millisecond))
		c.notify(ctx, domain.Event{
			Kind:      domain.EventLog,
			RunID:     rc.RunID,
			Timestamp: rc.Timestamp,
			Message:   fmt.Sprintf("SUCCESS: Backup for %s completed.", target.Name),
		})
	}

	c.logger.Infof("[%s] Backup execution phase finished. Starting purge phase...", stamp)
	summary.Purged, summary.PurgedBytes = c.purger.Purge(ctx, c.targets, c.window, rc)

	c.logSummary(summary)
	// The outcome is reported even when the run was interrupted.
	c.report(context.WithoutCancel(ctx), summary, stamp)
	return summary
}

// Purge runs only the purge phase.
func (c *RunCoordinator) Purge(ctx context.Context) ([]domain.BackupArtifact, uint64) {
	rc := c.newRunContext()
	purged, total := c.purger.Purge(ctx, c.targets, c.window, rc)
	c.logger.Infof("Purged %d file(s), %.2f MB", len(purged), megabytes(total))
	return purged, total
}

func (c *RunCoordinator) newRunContext() domain.RunContext {
	return domain.RunContext{
		RunID:     c.newID(),
		Timestamp: c.now().In(c.location),
		Timezone:  c.location.String(),
	}
}

func (c *RunCoordinator) report(ctx context.Context, s RunSummary, stamp string) {
	event := domain.Event{
		Kind:        domain.EventSuccess,
		RunID:       s.Context.RunID,
		Timestamp:   s.Context.Timestamp,
		NewFiles:    len(s.Artifacts),
		NewBytes:    s.NewBytes(),
		PurgedFiles: len(s.Purged),
		PurgedBytes: s.PurgedBytes,
	}

	counts := fmt.Sprintf("New: %d files (%.2f MB). Purged: %d files (%.2f MB).",
		event.NewFiles, megabytes(event.NewBytes), event.PurgedFiles, megabytes(event.PurgedBytes))
	if s.Succeeded() {
		event.Message = fmt.Sprintf("Global backup process completed successfully at %s. %s", stamp, counts)
	} else {
		event.Kind = domain.EventFail
		event.Message = fmt.Sprintf("Global backup process failed for one or more databases at %s. %s", stamp, counts)
	}

	c.notify(ctx, event)
}

func (c *RunCoordinator) logSummary(s RunSummary) {
	c.logger.Infof("--- Backup Summary ---")
	c.logger.Infof("New files created (%d):", len(s.Artifacts))
	if len(s.Artifacts) == 0 {
		c.logger.Infof("  No new files created.")
	}
	for _, a := range s.Artifacts {
		c.logger.Infof("  - %s (%.2f MB)", filepath.Base(a.Path), megabytes(a.SizeBytes))
	}
	if len(s.Artifacts) > 0 {
		c.logger.Infof("Total new files size: %.2f MB", megabytes(s.NewBytes()))
	}

	c.logger.Infof("Purged files (%d):", len(s.Purged))
	if len(s.Purged) == 0 {
		c.logger.Infof("  No files purged.")
	}
	for _, a := range s.Purged {
		c.logger.Infof("  - %s", filepath.Base(a.Path))
	}
	if len(s.Purged) > 0 {
		c.logger.Infof("Total purged files size: %.2f MB", megabytes(s.PurgedBytes))
	}

	for _, f := range s.Failures {
		c.logger.Errorf("Failed: %s: %v", f.Target, f.Err)
	}
}

func (c *RunCoordinator) notify(ctx context.Context, event domain.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		c.logger.Warnf("Failed to send %s notification: %v", event.Kind, err)
	}
}
