package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ragdesk-backend/internal/chunker"
	"github.com/yungbote/ragdesk-backend/internal/config"
	"github.com/yungbote/ragdesk-backend/internal/conversation"
	"github.com/yungbote/ragdesk-backend/internal/data/db"
	"github.com/yungbote/ragdesk-backend/internal/data/repos"
	"github.com/yungbote/ragdesk-backend/internal/domain"
	runmodel "github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/embedding"
	apphttp "github.com/yungbote/ragdesk-backend/internal/http"
	httpH "github.com/yungbote/ragdesk-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ragdesk-backend/internal/http/middleware"
	"github.com/yungbote/ragdesk-backend/internal/ingestion"
	"github.com/yungbote/ragdesk-backend/internal/loader"
	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/pkg/dbctx"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/trigger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

// App is the chat and ingestion service with every dependency resolved.
type App struct {
	Log    *logger.Logger
	Cfg    *config.Config
	DB     *db.Service
	Router *gin.Engine

	Ingestion    *ingestion.Service
	Conversation *conversation.Service
	Vectors      vectorstore.Store
	Objects      objectstore.Store
	Embedder     embedding.Embedder

	models   *models
	sessions conversation.SessionStore
	otelStop func(context.Context) error
	closed   bool
}

// New wires the service. Anything opened before a failure is closed again.
func New(ctx context.Context, log *logger.Logger, cfg *config.Config) (a *App, err error) {
	a = &App{Log: log, Cfg: cfg, models: newModels(log, cfg)}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	observability.Init(log)
	a.otelStop = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})

	reposet, err := a.wireRepos(ctx)
	if err != nil {
		return a, err
	}
	if err = a.wireServices(ctx, reposet); err != nil {
		return a, err
	}
	a.Router = a.wireRouter()
	return a, nil
}

// abandonedRunAge is how long a run may sit in running state before startup
// treats it as left behind by a crashed process.
const abandonedRunAge = time.Hour

func (a *App) wireRepos(ctx context.Context) (*repos.Repos, error) {
	if a.Cfg.Database.Driver == "none" {
		a.Log.Warn("Run ledger disabled; ingestion runs will not be recorded")
		return nil, nil
	}
	svc, err := db.Open(a.Log, db.Config{Driver: a.Cfg.Database.Driver, DSN: a.Cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = svc
	r := repos.New(svc.DB(), a.Log)
	if _, err := r.IngestionRuns.MarkAbandoned(dbctx.New(ctx), abandonedRunAge); err != nil {
		a.Log.Warn("sweep abandoned ingestion runs failed", "error", err)
	}
	return &r, nil
}

func (a *App) wireServices(ctx context.Context, reposet *repos.Repos) error {
	cfg := a.Cfg

	embedder, err := a.models.Embedder(ctx)
	if err != nil {
		return err
	}
	a.Embedder = embedder

	a.Vectors, err = resolveVectorStore(ctx, a.Log, cfg.Vector, cfg.EmbeddingDimension())
	if err != nil {
		return err
	}

	a.Objects, err = resolveObjectStore(ctx, a.Log, cfg.Storage)
	if err != nil {
		return err
	}

	extractor, err := a.models.Extractor(ctx)
	if err != nil {
		return err
	}
	chunks, err := chunker.New(cfg.Chunker())
	if err != nil {
		return err
	}
	pipeline, err := ingestion.NewPipeline(
		a.Log,
		loader.NewDirectory(a.Log, extractor, cfg.Ingest.Concurrency),
		chunks,
		embedder,
		a.Vectors,
		cfg.Vector.Index,
	)
	if err != nil {
		return err
	}
	var runs repos.IngestionRunRepo
	if reposet != nil {
		runs = reposet.IngestionRuns
	}
	fetcher := ingestion.NewFetcher(a.Log, a.Objects, cfg.Storage.Prefix, cfg.Ingest.TempDir)
	a.Ingestion = ingestion.NewService(a.Log, pipeline, fetcher, runs, cfg.SourcePath())

	model, err := a.models.ChatModel(ctx)
	if err != nil {
		return err
	}
	a.sessions, err = resolveSessions(ctx, a.Log, cfg)
	if err != nil {
		return err
	}
	retriever := conversation.NewVectorRetriever(embedder, a.Vectors, cfg.Vector.Index, cfg.Vector.TopK)
	a.Conversation, err = conversation.NewService(a.Log, model, retriever, a.sessions)
	return err
}

func (a *App) wireRouter() *gin.Engine {
	cfg := a.Cfg
	verifier, err := webhookVerifier(cfg.Auth)
	if err != nil {
		// Validate has already rejected incomplete auth settings.
		a.Log.Warn("webhook auth disabled", "error", err)
	}
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:            a.Log,
		ServiceName:    cfg.ServiceName,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		Metrics:        observability.Current(),
		HealthHandler:  httpH.NewHealthHandler(),
		MessageHandler: httpH.NewMessageHandler(a.Conversation),
		EmbedHandler:   httpH.NewEmbedHandler(a.Ingestion, cfg.Ingest.TreatNoMatchAsError),
		UploadHandler:  httpH.NewUploadHandler(a.Log, a.Objects, cfg.Storage.Prefix, cfg.HTTP.MaxUploadBytes),
		RunHandler:     httpH.NewRunHandler(a.Ingestion),
		WebhookAuth:    httpMW.NewWebhookAuth(a.Log, verifier),
	})
}

// Run serves HTTP (and /metrics when configured) until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return errors.New("app not initialized")
	}
	observability.Current().StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)
	return apphttp.NewServer(a.Log, a.Router).Run(ctx, a.Cfg.HTTP.Addr)
}

// IngestLocal runs the pipeline over a local directory once.
func (a *App) IngestLocal(ctx context.Context, dir, triggerName string) (*ingestion.Response, error) {
	if dir == "" {
		dir = a.Cfg.Ingest.PDFDir
	}
	return a.Ingestion.IngestDir(ctx, dir, triggerName)
}

func (a *App) Close() {
	if a == nil || a.closed {
		return
	}
	a.closed = true
	if c, ok := a.sessions.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			a.Log.Warn("close vector store failed", "error", err)
		}
	}
	if a.Objects != nil {
		_ = a.Objects.Close()
	}
	if a.models != nil {
		a.models.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.otelStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelStop(ctx)
		cancel()
	}
	a.Log.Sync()
}

func resolveSessions(ctx context.Context, log *logger.Logger, cfg *config.Config) (conversation.SessionStore, error) {
	switch cfg.Sessions.Backend {
	case "redis":
		log.Info("Selecting session store", "backend", "redis", "addr", cfg.Sessions.RedisAddr)
		rs, err := conversation.NewRedisSessions(ctx, log, conversation.RedisConfig{
			Addr:     cfg.Sessions.RedisAddr,
			Password: cfg.Sessions.RedisPassword,
			DB:       cfg.Sessions.RedisDB,
			TTL:      cfg.Sessions.TTL.D(),
		}, cfg.Chat.SystemPrompt)
		if err != nil {
			observability.Current().ObserveBootstrap("sessions", "redis", "error", "connect_failed")
			return nil, err
		}
		return rs, nil
	default:
		log.Info("Selecting session store", "backend", "memory", "max_sessions", cfg.Sessions.MaxSessions)
		return conversation.NewMemorySessions(cfg.Chat.SystemPrompt, cfg.Sessions.MaxSessions, cfg.Sessions.TTL.D()), nil
	}
}

func webhookVerifier(cfg config.AuthConfig) (trigger.TokenVerifier, error) {
	switch cfg.Mode {
	case "google":
		return trigger.GoogleVerifier{Audience: cfg.Audience}, nil
	case "signed":
		s, err := trigger.NewSignedTokens(cfg.Secret, cfg.TokenTTL.D())
		if err != nil {
			return nil, err
		}
		return s.Verifier(cfg.Audience), nil
	default:
		return nil, nil
	}
}

func tokenProvider(cfg config.AuthConfig) (trigger.TokenProvider, error) {
	switch cfg.Mode {
	case "google":
		return trigger.NewGoogleIDTokens(), nil
	case "signed":
		s, err := trigger.NewSignedTokens(cfg.Secret, cfg.TokenTTL.D())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

// TriggerApp receives storage events and forwards them to the ingestion
// webhook.
type TriggerApp struct {
	Log    *logger.Logger
	Cfg    *config.Config
	Bridge *trigger.Bridge
	Router *gin.Engine

	objects  objectstore.Store
	otelStop func(context.Context) error
}

func NewTrigger(ctx context.Context, log *logger.Logger, cfg *config.Config) (*TriggerApp, error) {
	observability.Init(log)
	tokens, err := tokenProvider(cfg.Auth)
	if err != nil {
		return nil, err
	}
	audience := cfg.Trigger.Audience
	if audience == "" {
		audience = cfg.Auth.Audience
	}
	bridge, err := trigger.NewBridge(log, trigger.BridgeConfig{
		WebhookURL: cfg.Trigger.WebhookURL,
		Audience:   audience,
		Timeout:    cfg.Trigger.Timeout.D(),
	}, tokens, nil)
	if err != nil {
		return nil, &domain.ConfigError{Field: "trigger.webhook_url", Message: err.Error()}
	}
	t := &TriggerApp{
		Log:    log,
		Cfg:    cfg,
		Bridge: bridge,
		otelStop: observability.InitOTel(ctx, log, observability.OtelConfig{
			ServiceName: cfg.ServiceName + "-trigger",
			Environment: cfg.Env,
		}),
	}
	t.Router = apphttp.NewTriggerRouter(apphttp.TriggerRouterConfig{
		Log:            log,
		Metrics:        observability.Current(),
		TriggerHandler: httpH.NewTriggerHandler(log, bridge),
		HealthHandler:  httpH.NewHealthHandler(),
	})
	return t, nil
}

func (t *TriggerApp) Run(ctx context.Context) error {
	observability.Current().StartServer(ctx, t.Log, t.Cfg.Metrics.Addr)
	return apphttp.NewServer(t.Log, t.Router).Run(ctx, t.Cfg.HTTP.TriggerAddr)
}

// Watch uploads each settled PDF under dir to object storage and forwards the
// stored object name to the webhook until ctx is cancelled.
func (t *TriggerApp) Watch(ctx context.Context, dir string) error {
	if t.objects == nil {
		objects, err := resolveObjectStore(ctx, t.Log, t.Cfg.Storage)
		if err != nil {
			return err
		}
		t.objects = objects
	}
	w, err := trigger.NewWatcher(t.Log, dir, func(ctx context.Context, ev trigger.StorageEvent) {
		if _, err := publishLocal(ctx, t.objects, t.Cfg.Storage.Prefix, dir, ev, t.Bridge.Handle); err != nil {
			t.Log.Error("watch upload failed", "file", ev.Name, "error", err)
		}
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// publishLocal copies a watched file to prefix+name in the object store and
// forwards an event naming the stored object, the same name a bucket upload
// would carry.
func publishLocal(
	ctx context.Context,
	store objectstore.Store,
	prefix, dir string,
	ev trigger.StorageEvent,
	forward func(context.Context, trigger.StorageEvent) trigger.Outcome,
) (trigger.Outcome, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(ev.Name)))
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := objectstore.Join(prefix, ev.Name)
	if err := store.Upload(ctx, key, f, "application/pdf"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	ev.Name = key
	return forward(ctx, ev), nil
}

func (t *TriggerApp) Close() {
	if t == nil {
		return
	}
	if t.objects != nil {
		if err := t.objects.Close(); err != nil {
			t.Log.Warn("close object store failed", "error", err)
		}
	}
	if t.otelStop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = t.otelStop(ctx)
		cancel()
	}
	t.Log.Sync()
}

// WatchLocal re-ingests dir whenever a PDF in it settles. Ingestion is
// idempotent, so re-running the whole directory is safe.
func (a *App) WatchLocal(ctx context.Context, dir string) error {
	if dir == "" {
		dir = a.Cfg.Ingest.PDFDir
	}
	w, err := trigger.NewWatcher(a.Log, dir, func(ctx context.Context, ev trigger.StorageEvent) {
		if _, err := a.Ingestion.IngestDir(ctx, dir, runmodel.TriggerWatch); err != nil {
			a.Log.Error("watch ingestion failed", "file", ev.Name, "error", err)
		}
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
