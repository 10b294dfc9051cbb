package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/yungbote/ragdesk-backend/internal/config"
	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/chromemdb"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/platform/pgvector"
	"github.com/yungbote/ragdesk-backend/internal/platform/qdrant"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

var (
	newQdrantVectorStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorstore.Store, error) {
		return qdrant.NewVectorStore(ctx, log, cfg)
	}
	newPGVectorStore = func(ctx context.Context, log *logger.Logger, cfg pgvector.Config) (vectorstore.Store, error) {
		return pgvector.New(ctx, log, cfg)
	}
	newChromemStore = func(log *logger.Logger, cfg chromemdb.Config) (vectorstore.Store, error) {
		return chromemdb.New(log, cfg)
	}
)

type VectorProvider string

const (
	VectorProviderMemory   VectorProvider = "memory"
	VectorProviderChromem  VectorProvider = "chromem"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPGVector VectorProvider = "pgvector"
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorMissingPGVectorDSN  VectorProviderBootstrapErrorCode = "missing_pgvector_dsn"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Index    string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf(
		"vector provider bootstrap failed (code=%s provider=%q index=%q): %v",
		e.Code,
		e.Provider,
		e.Index,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore opens the configured backend and wraps it with tracing
// and metrics. dim is the embedding dimension the store must accept.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg config.VectorConfig, dim int) (vectorstore.Store, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Backend))
	metrics := observability.Current()

	log.Info(
		"Selecting vector store provider",
		"provider", provider,
		"index", cfg.Index,
		"vector_dim", dim,
		"qdrant_url", cfg.QdrantURL,
		"qdrant_collection", cfg.QdrantCollection,
		"pgvector_table", cfg.PGVectorTable,
		"chromem_path", cfg.ChromemPath,
	)

	var (
		vs  vectorstore.Store
		err error
	)
	switch VectorProvider(provider) {
	case VectorProviderMemory:
		vs = vectorstore.NewMemory()
	case VectorProviderChromem:
		vs, err = newChromemStore(log, chromemdb.Config{Path: cfg.ChromemPath, Compress: cfg.ChromemPath != ""})
	case VectorProviderQdrant:
		vs, err = newQdrantVectorStore(ctx, log, qdrant.Config{
			URL:              strings.TrimSpace(cfg.QdrantURL),
			Collection:       strings.TrimSpace(cfg.QdrantCollection),
			VectorDim:        dim,
			APIKey:           cfg.QdrantAPIKey,
			Timeout:          cfg.QdrantTimeout.D(),
			CreateCollection: true,
		})
	case VectorProviderPGVector:
		if strings.TrimSpace(cfg.PGVectorDSN) == "" {
			err = &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingPGVectorDSN,
				Provider: provider,
				Index:    cfg.Index,
				Cause:    errors.New("pgvector dsn is required"),
			}
			break
		}
		vs, err = newPGVectorStore(ctx, log, pgvector.Config{
			DSN:       cfg.PGVectorDSN,
			Table:     cfg.PGVectorTable,
			Dimension: dim,
		})
	default:
		err = &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Index:    cfg.Index,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
	}
	if err != nil {
		classified := classifyVectorProviderBootstrapError(provider, cfg.Index, err)
		code := vectorProviderBootstrapErrorCode(classified)
		metrics.ObserveBootstrap("vector_store", provider, "error", string(code))
		log.Error(
			"Vector store provider bootstrap failed",
			"provider", provider,
			"index", cfg.Index,
			"error_code", code,
			"error", classified,
		)
		return nil, classified
	}

	metrics.ObserveBootstrap("vector_store", provider, "success", "none")
	return vectorstore.Instrument(log, provider, vs), nil
}

func classifyVectorProviderBootstrapError(provider, index string, err error) error {
	var typed *VectorProviderBootstrapError
	if errors.As(err, &typed) {
		return typed
	}
	wrap := func(code VectorProviderBootstrapErrorCode) error {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Index: index, Cause: err}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return wrap(VectorProviderBootstrapErrorMissingQdrantURL)
		case qdrant.ConfigErrorInvalidURL:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantVector)
		}
	}

	var opErr *qdrant.OperationError
	if errors.As(err, &opErr) && opErr.Unreachable() {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	if domain.IsStoreUnavailable(err) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var typed *VectorProviderBootstrapError
	if errors.As(err, &typed) {
		return typed.Code
	}
	return VectorProviderBootstrapErrorProviderInitFailed
}
