// Package bootstrap wires the application's shared dependencies.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"kpieval-backend/internal/benchmark"
	"kpieval-backend/internal/docintel"
	"kpieval-backend/internal/evaluations"
	"kpieval-backend/internal/peerdata"
	"kpieval-backend/internal/pipeline"
	"kpieval-backend/internal/pipeline/stages"
	"kpieval-backend/internal/queue"
	"kpieval-backend/internal/report"
	"kpieval-backend/internal/shared/config"
	"kpieval-backend/internal/shared/server"
	"kpieval-backend/internal/shared/storage/db"
	"kpieval-backend/internal/shared/storage/object"
	localstore "kpieval-backend/internal/shared/storage/object/local"
	s3store "kpieval-backend/internal/shared/storage/object/s3"
	"kpieval-backend/internal/synthesis"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config             config.Config
	Router             *gin.Engine
	DB                 *sql.DB
	Store              object.ObjectStore
	Queue              queue.Client
	EvaluationsRepo    evaluations.Repo
	DocIntel           docintel.Client
	PeerData           peerdata.Provider
	Policy             pipeline.Policy
	Orchestrator       *pipeline.Orchestrator
	EvaluationsService *evaluations.Service
	EvaluationHandler  *evaluations.Handler
	ReportHandler      *report.Handler
	Archive            *report.Archive
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	policy, err := pipeline.LoadPolicy(cfg.PipelineConfigFile)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Policy: policy,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		EvaluationHandler: app.EvaluationHandler,
		ReportHandler:     app.ReportHandler,
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx)
}

func buildServices(app *App) error {
	cfg := app.Config

	if app.DB != nil {
		app.EvaluationsRepo = &evaluations.PGRepo{DB: app.DB}
	} else {
		app.EvaluationsRepo = evaluations.NewMemoryRepo()
	}

	if strings.TrimSpace(cfg.DocIntelBaseURL) != "" {
		client, err := docintel.NewHTTPClient(cfg.DocIntelBaseURL)
		if err != nil {
			return err
		}
		app.DocIntel = client
	} else {
		if !isDevLike(cfg.Env) {
			return fmt.Errorf("DOCINTEL_BASE_URL is required")
		}
		app.DocIntel = docintel.NewStubClient()
	}

	if strings.TrimSpace(cfg.PeerDataBaseURL) != "" {
		provider, err := peerdata.NewHTTPProvider(cfg.PeerDataBaseURL)
		if err != nil {
			return err
		}
		app.PeerData = provider
	} else {
		if !isDevLike(cfg.Env) {
			return fmt.Errorf("PEERDATA_BASE_URL is required")
		}
		app.PeerData = peerdata.NewStubProvider()
	}

	synthEngine, err := synthesis.NewEngine(app.Policy.Synthesis)
	if err != nil {
		return err
	}
	benchEngine := benchmark.NewEngine(app.PeerData)
	benchEngine.MinPeerSample = app.Policy.MinPeerSample

	app.Archive = &report.Archive{Store: app.Store, Repo: app.EvaluationsRepo}
	if strings.TrimSpace(cfg.ReportBaseURL) != "" {
		app.Archive.Renderer = report.NewHTTPRenderer(cfg.ReportBaseURL)
	}

	registry, err := pipeline.NewRegistry(app.Policy.StageDefs())
	if err != nil {
		return err
	}
	stageImpls := []pipeline.Stage{
		&stages.Ingestion{Client: app.DocIntel},
		&stages.BaselineVerification{},
		&stages.Governance{},
		&stages.CapexCredibility{},
		&stages.TrackRecord{},
		&stages.PeerBenchmark{Engine: benchEngine},
		&stages.ScienceAlignment{Provider: app.PeerData},
		&stages.AchievabilityRisk{},
		&stages.Synthesis{Engine: synthEngine},
	}
	app.Orchestrator, err = pipeline.NewOrchestrator(app.EvaluationsRepo, registry, stageImpls, app.Policy, app.Archive)
	if err != nil {
		return err
	}

	app.EvaluationsService = &evaluations.Service{
		Repo:   app.EvaluationsRepo,
		Queue:  app.Queue,
		Runner: app.Orchestrator,
	}
	app.EvaluationHandler = evaluations.NewHandler(app.EvaluationsService)
	app.ReportHandler = report.NewHandler(app.EvaluationsService)
	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
