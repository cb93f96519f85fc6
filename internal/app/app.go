package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/semmidev/backstow/internal/adapter/archive"
	"github.com/semmidev/backstow/internal/adapter/compressor"
	"github.com/semmidev/backstow/internal/adapter/database"
	"github.com/semmidev/backstow/internal/adapter/executor"
	"github.com/semmidev/backstow/internal/adapter/notifier"
	"github.com/semmidev/backstow/internal/adapter/storage"
	"github.com/semmidev/backstow/internal/config"
	"github.com/semmidev/backstow/internal/domain"
	"github.com/semmidev/backstow/internal/infrastructure/logger"
	"github.com/semmidev/backstow/internal/infrastructure/scheduler"
	"github.com/semmidev/backstow/internal/usecase"
)

type Notifier interface {
	Notify(ctx context.Context, result domain.RunResult) error
}

type App struct {
	config       *config.Config
	logger       *logger.Logger
	placement    *usecase.Placement
	orchestrator *usecase.Orchestrator
	notifier     Notifier
	docker       *executor.Docker
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log.Infof("Starting %s", cfg.App.Name)
	log.Infof("Found %d element(s) configured, %d rejected", len(cfg.Elements), len(cfg.Rejected))
	for _, w := range cfg.Warnings {
		log.Warnf("%s", w)
	}

	fsys := afero.NewOsFs()

	localStorage, err := storage.NewLocal(fsys, cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	remote, err := initializeRemote(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	codec, err := compressor.ByName(cfg.Compression)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}

	adapters := a.initializeAdapters(fsys)

	if cfg.Telegram.Enabled {
		tg, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			a.notifier = tg
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	a.placement = usecase.NewPlacement(localStorage, remote, log)
	a.orchestrator = usecase.NewOrchestrator(
		cfg.Elements,
		adapters,
		a.placement,
		usecase.NewEnforcer(localStorage, remote, log),
		log,
		usecase.WithWorkers(cfg.Workers),
		usecase.WithElementTimeout(cfg.ElementTimeout),
		usecase.WithCodec(codec),
		usecase.WithRejected(cfg.Rejected),
	)

	return a, nil
}

// initializeRemote returns a nil interface, not a typed nil, when no remote
// is configured.
func initializeRemote(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.RemoteStore, error) {
	switch cfg.Remote {
	case config.RemoteS3:
		s3, err := storage.NewS3(ctx, storage.S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3Access,
			SecretKey: cfg.S3Secret,
			PathStyle: cfg.PathStyle(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3: %w", err)
		}
		log.Infof("✓ S3 upload enabled (bucket: %s)", cfg.S3Bucket)
		return s3, nil

	case config.RemoteGDrive:
		gdrive, err := storage.NewGDrive(ctx, cfg.GDrive.CredentialsFile, cfg.GDrive.FolderID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Drive: %w", err)
		}
		log.Infof("✓ Google Drive upload enabled")
		return gdrive, nil

	default:
		log.Warnf("No remote store configured, backups stay local")
		return nil, nil
	}
}

func (a *App) initializeAdapters(fsys afero.Fs) map[domain.Kind]domain.Adapter {
	process := executor.NewProcess()
	adapters := map[domain.Kind]domain.Adapter{
		domain.KindPostgresNative: database.NewPostgreSQL(process),
		domain.KindMySQLNative:    database.NewMySQL(process),
		domain.KindMongoNative:    database.NewMongoDB(process, fsys),
		domain.KindDirectory:      archive.NewDirectory(fsys),
	}

	if !a.needsDocker() {
		return adapters
	}

	docker, err := executor.NewDocker()
	if err != nil {
		// Container elements then fail their capture as unsupported.
		a.logger.Errorf("Failed to initialize docker client: %v", err)
		return adapters
	}
	a.docker = docker

	adapters[domain.KindPostgresContainer] = database.NewPostgreSQL(docker)
	adapters[domain.KindMySQLContainer] = database.NewMySQL(docker)
	adapters[domain.KindMongoContainer] = database.NewMongoDB(docker, fsys)
	return adapters
}

func (a *App) needsDocker() bool {
	for _, el := range a.config.Elements {
		switch el.Kind() {
		case domain.KindPostgresContainer, domain.KindMySQLContainer, domain.KindMongoContainer:
			return true
		}
	}
	return false
}

func (a *App) RunBackup(ctx context.Context) domain.RunResult {
	result := a.orchestrator.RunBackup(ctx)
	a.notify(ctx, result)
	return result
}

func (a *App) RunRestore(ctx context.Context, titles []string, selector string) domain.RunResult {
	result := a.orchestrator.RunRestore(ctx, titles, selector)
	a.notify(ctx, result)
	return result
}

// List returns the artifacts a restore of title could pick from, newest
// first.
func (a *App) List(ctx context.Context, title string) ([]domain.Artifact, error) {
	el, ok := a.orchestrator.Element(title)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTitle, title)
	}
	if a.placement.HasRemote() {
		return a.placement.ListRemote(ctx, el)
	}
	return a.placement.ListLocal(ctx, el)
}

// Schedule runs the backup cycle on the configured cron spec until ctx is
// cancelled.
func (a *App) Schedule(ctx context.Context) error {
	sched := scheduler.New(a.logger.SugaredLogger)

	err := sched.AddJob("backup", a.config.Schedule, func(ctx context.Context) error {
		a.logger.Infof("=== Triggered scheduled backup ===")
		if result := a.RunBackup(ctx); result.Failed() {
			return fmt.Errorf("failed elements: %v", result.FailedTitles())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	sched.Start(ctx)
	a.logger.Infof("Scheduler started (%s), next run at %s", a.config.Schedule, sched.Next().Format("2006-01-02 15:04:05"))

	<-ctx.Done()
	sched.Stop()
	return nil
}

func (a *App) notify(ctx context.Context, result domain.RunResult) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, result); err != nil {
		a.logger.Warnf("Failed to send notification: %v", err)
	}
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	if a.docker != nil {
		_ = a.docker.Close()
	}
	a.logger.Close()
}
