package container

import (
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/event"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/lognotify"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/report"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database, applies pending migrations
// and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Requests  port.RequestRepository
	Rules     port.RuleRepository
	Decisions port.DecisionRepository
	Users     port.UserRepository
	Outbox    port.OutboxRepository
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:  repository.NewRequestRepository(sqlDB, logger),
		Rules:     repository.NewRuleRepository(sqlDB, logger),
		Decisions: repository.NewDecisionRepository(sqlDB, logger),
		Users:     repository.NewUserRepository(sqlDB, logger),
		Outbox:    repository.NewOutboxRepository(sqlDB, logger),
	}, nil
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Requests    service.RequestService
	Directory   service.DirectoryService
	Coordinator workflow.Coordinator
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Workflow   *WorkflowConfig
	// OnFinalized is invoked after a terminal transition commits
	OnFinalized func()
	Logger      *zap.Logger
}

// ProvideServices creates the request and directory services and the
// decision coordinator.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	directory := service.NewDirectoryService(deps.Repos.Users, deps.TxManager, serviceLogger)

	opts := []workflow.Option{
		workflow.WithLocker(workflow.NewLocker(deps.Workflow.LockTimeout)),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithDispatcher(deps.Dispatcher))
	}
	if deps.OnFinalized != nil {
		opts = append(opts, workflow.WithFinalizedHook(deps.OnFinalized))
	}

	coordinator := workflow.NewCoordinator(
		workflow.Repositories{
			Requests:  deps.Repos.Requests,
			Rules:     deps.Repos.Rules,
			Decisions: deps.Repos.Decisions,
			Outbox:    deps.Repos.Outbox,
		},
		directory,
		deps.TxManager,
		serviceLogger,
		opts...,
	)

	return &ServiceBundle{
		Requests:    service.NewRequestService(deps.Repos.Requests, deps.Repos.Users, serviceLogger),
		Directory:   directory,
		Coordinator: coordinator,
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// ProvideNotificationSink returns the Lark notifier when Lark is enabled
// and the log notifier otherwise.
func ProvideNotificationSink(cfg *LarkConfig, logger *zap.Logger) (port.NotificationSink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		return lognotify.NewNotifier(logger), nil
	}

	sdkClient := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	messenger := infraLark.NewMessenger(sdkClient, logger)

	return infraLark.NewNotifier(messenger, logger), nil
}

// ProvideReportWriter creates the Excel audit report writer, or nil when
// reports are disabled.
func ProvideReportWriter(cfg *ReportConfig, logger *zap.Logger) (port.ReportWriter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("report config is required")
	}
	if !cfg.Enabled {
		return nil, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}

	fileStorage := storage.NewLocalFileStorage(cfg.Dir, logger)
	return report.NewExcelWriter(fileStorage, logger), nil
}

// SinkDeps holds dependencies for subscribing the finalization sinks.
type SinkDeps struct {
	Repos      *RepositoryBundle
	Directory  port.UserDirectory
	Dispatcher dispatcher.Dispatcher
	Notifier   port.NotificationSink
	Reports    port.ReportWriter
	Logger     *zap.Logger
}

// SubscribeSinks registers the notification and report handlers for
// request.finalized events.
func SubscribeSinks(deps *SinkDeps) error {
	if deps == nil || deps.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if deps.Repos == nil {
		return fmt.Errorf("repositories are required")
	}

	loader := worker.NewNoticeLoader(deps.Repos.Requests, deps.Repos.Rules, deps.Repos.Decisions, deps.Directory)

	if deps.Notifier != nil {
		deps.Dispatcher.SubscribeNamed(event.TypeRequestFinalized, worker.NotifierHandlerName,
			worker.NotificationHandler(loader, deps.Notifier))
	}
	if deps.Reports != nil {
		deps.Dispatcher.SubscribeNamed(event.TypeRequestFinalized, worker.ReportHandlerName,
			worker.ReportHandler(loader, deps.Reports, deps.Logger))
	}
	return nil
}

// ProvideOutboxWorker creates the outbox relay feeding the dispatcher.
func ProvideOutboxWorker(cfg *OutboxConfig, outbox port.OutboxRepository, d dispatcher.Dispatcher, logger *zap.Logger) (*worker.OutboxWorker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("outbox config is required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox repository is required")
	}
	if d == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	return worker.NewOutboxWorker(worker.OutboxWorkerConfig{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		MaxAttempts:     cfg.MaxAttempts,
		DispatchTimeout: cfg.DispatchTimeout,
		SingleAttempt:   []string{worker.NotifierHandlerName},
	}, outbox, d, logger), nil
}
