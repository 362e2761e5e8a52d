package app

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/dockdump/internal/adapter/compressor"
	"github.com/semmidev/dockdump/internal/adapter/database"
	"github.com/semmidev/dockdump/internal/adapter/notifier"
	"github.com/semmidev/dockdump/internal/adapter/runtime"
	"github.com/semmidev/dockdump/internal/adapter/storage"
	"github.com/semmidev/dockdump/internal/config"
	"github.com/semmidev/dockdump/internal/domain"
	"github.com/semmidev/dockdump/internal/infrastructure/logger"
	"github.com/semmidev/dockdump/internal/infrastructure/scheduler"
	"github.com/semmidev/dockdump/internal/usecase"
)

type App struct {
	config    *config.Config
	logger    *logger.Logger
	location  *time.Location
	tree      *storage.LocalStorage
	pipe      *compressor.GzipPipe
	registry  *database.Registry
	replicas  []usecase.Replica
	notifiers *notifier.Multi
	runtime   domain.ContainerRuntime
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{Level: cfg.App.LogLevel, File: cfg.App.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log.Infof("Starting %s", cfg.App.Name)
	log.Infof("Found %d database(s) configured", len(cfg.Databases))

	loc, err := cfg.Location()
	if err != nil {
		log.Warnf("%v. Defaulting to UTC.", err)
	}

	tree, err := storage.NewLocal(cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	pipe := compressor.NewGzip(cfg.CompressionLevel)
	registry := database.NewRegistry(pipe, database.Options{
		SQLite: database.SQLiteOptions{
			BinaryPath: cfg.SQLite.BinaryPath,
			ExecPath:   cfg.SQLite.ExecPath,
			TempPath:   cfg.SQLite.TempPath,
		},
		Valkey: database.ValkeyOptions{
			WaitMode:     cfg.Valkey.WaitMode,
			Grace:        cfg.Valkey.Grace,
			PollInterval: cfg.Valkey.PollInterval,
			Timeout:      cfg.Valkey.Timeout,
		},
	}, log)

	return &App{
		config:    cfg,
		logger:    log,
		location:  loc,
		tree:      tree,
		pipe:      pipe,
		registry:  registry,
		replicas:  initializeReplicas(ctx, cfg, log),
		notifiers: initializeNotifiers(cfg, log),
	}, nil
}

func initializeReplicas(ctx context.Context, cfg *config.Config, log *logger.Logger) []usecase.Replica {
	var replicas []usecase.Replica

	for _, replicaCfg := range cfg.GetEnabledReplicas() {
		var stor domain.Storage
		var err error

		switch replicaCfg.Type {
		case "gdrive":
			stor, err = storage.NewGDrive(ctx, replicaCfg)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			log.Infof("✓ Google Drive replica enabled")

		case "s3":
			stor, err = storage.NewS3(ctx, replicaCfg)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			log.Infof("✓ AWS S3 replica enabled (bucket: %s)", replicaCfg.Bucket)

		case "local":
			stor, err = storage.NewLocal(replicaCfg.Path)
			if err != nil {
				log.Errorf("Failed to initialize local replica: %v", err)
				continue
			}
			log.Infof("✓ Local replica enabled (%s)", replicaCfg.Path)

		default:
			log.Warnf("Unknown replica type: %s", replicaCfg.Type)
			continue
		}

		name := replicaCfg.Name
		if name == "" {
			name = replicaCfg.Type
		}
		replicas = append(replicas, usecase.Replica{Name: name, Storage: stor})
	}

	return replicas
}

func initializeNotifiers(cfg *config.Config, log *logger.Logger) *notifier.Multi {
	var notifiers []domain.Notifier

	if cfg.HealthcheckURL != "" {
		hc, err := notifier.NewHealthchecks(cfg.HealthcheckURL)
		if err != nil {
			log.Errorf("Failed to initialize Healthchecks: %v", err)
		} else {
			notifiers = append(notifiers, hc)
			log.Infof("✓ Healthchecks.io pings enabled")
		}
	}

	if tg := cfg.Notifications.Telegram; tg.Enabled {
		t, err := notifier.NewTelegramBot(tg.BotToken, tg.ChatID, tg.OnlyFailures)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notifiers = append(notifiers, t)
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	return notifier.NewMulti(notifiers...)
}

// connect opens the Docker client. An unreachable daemon is fatal before any
// target is processed.
func (a *App) connect(ctx context.Context) error {
	if a.runtime != nil {
		return nil
	}
	rt, err := runtime.NewDocker()
	if err != nil {
		return err
	}
	if err := rt.Ping(ctx); err != nil {
		_ = rt.Close()
		a.logger.Errorf("Ensure /var/run/docker.sock is mounted and DOCKER_HOST is correct")
		return err
	}
	a.runtime = rt
	return nil
}

func (a *App) coordinator() *usecase.RunCoordinator {
	var runner usecase.TargetRunner
	if a.runtime != nil {
		runner = usecase.NewBackupDispatcher(a.runtime, a.registry, a.tree, a.replicas, a.logger)
	}
	return usecase.NewRunCoordinator(
		a.config.Targets(),
		a.config.Retention(),
		a.location,
		runner,
		usecase.NewRetentionPurger(a.tree, a.replicas, a.logger),
		a.notifiers,
		a.logger,
	)
}

// RunOnce performs a single backup run.
func (a *App) RunOnce(ctx context.Context) (usecase.RunSummary, error) {
	if err := a.connect(ctx); err != nil {
		return usecase.RunSummary{}, err
	}
	return a.coordinator().Run(ctx), nil
}

// Daemon runs on the configured schedule until ctx is cancelled.
func (a *App) Daemon(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	var job domain.BackupExecutor = a.coordinator()
	sched := scheduler.New(ctx, a.logger)
	if err := sched.AddJob(a.config.Schedule, "backup", job.Execute); err != nil {
		return fmt.Errorf("failed to schedule backup %q: %w", a.config.Schedule, err)
	}

	sched.Start()
	a.logger.Infof("Scheduler started (%s), next run at %s", a.config.Schedule, sched.Next().In(a.location).Format(time.RFC3339))
	a.logger.Infof("Backup destinations: local + %d replica(s)", len(a.replicas))

	<-ctx.Done()
	a.logger.Infof("Waiting for running backups to finish...")
	sched.Stop()
	return nil
}

// Purge applies the retention window without taking new backups.
func (a *App) Purge(ctx context.Context) ([]domain.BackupArtifact, uint64) {
	return a.coordinator().Purge(ctx)
}

// Verify checks the gzip integrity of every artifact in the backup tree.
func (a *App) Verify() (usecase.VerifyReport, error) {
	return usecase.NewVerifier(a.tree, a.pipe, a.logger).Verify()
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	if a.runtime != nil {
		if err := a.runtime.Close(); err != nil {
			a.logger.Warnf("Failed to close docker client: %v", err)
		}
	}
	a.logger.Close()
}
