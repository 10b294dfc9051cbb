package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/ragdesk-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ragdesk-backend/internal/http/middleware"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler  *httpH.HealthHandler
	MessageHandler *httpH.MessageHandler
	EmbedHandler   *httpH.EmbedHandler
	UploadHandler  *httpH.UploadHandler
	RunHandler     *httpH.RunHandler
	WebhookAuth    *httpMW.WebhookAuth
}

func newEngine(log *logger.Logger, serviceName string, m *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if serviceName == "" {
		serviceName = "ragdesk"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(m))
	return r
}

// NewRouter builds the chat and ingestion API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := newEngine(cfg.Log, cfg.ServiceName, cfg.Metrics)
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Welcome)
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	// Chat
	if cfg.MessageHandler != nil {
		r.POST("/messages", cfg.MessageHandler.Post)
	}

	// Ingestion
	if cfg.EmbedHandler != nil {
		r.POST("/embed", cfg.WebhookAuth.Require(), cfg.EmbedHandler.Post)
	}
	if cfg.UploadHandler != nil {
		r.POST("/upload", cfg.UploadHandler.Post)
	}
	if cfg.RunHandler != nil {
		r.GET("/runs", cfg.RunHandler.List)
		r.GET("/runs/:id", cfg.RunHandler.Get)
	}

	return r
}

type TriggerRouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	TriggerHandler *httpH.TriggerHandler
	HealthHandler  *httpH.HealthHandler
}

// NewTriggerRouter builds the storage event receiver.
func NewTriggerRouter(cfg TriggerRouterConfig) *gin.Engine {
	r := newEngine(cfg.Log, "ragdesk-trigger", cfg.Metrics)
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.TriggerHandler != nil {
		r.POST("/", cfg.TriggerHandler.Receive)
	}
	return r
}
