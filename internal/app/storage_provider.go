package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/ragdesk-backend/internal/config"
	"github.com/yungbote/ragdesk-backend/internal/objectstore"
	"github.com/yungbote/ragdesk-backend/internal/observability"
	"github.com/yungbote/ragdesk-backend/internal/platform/gcp"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/platform/s3"
)

var (
	newGCSBucket = func(ctx context.Context, log *logger.Logger, cfg gcp.BucketConfig) (objectstore.Store, error) {
		return gcp.NewBucket(ctx, log, cfg)
	}
	newS3Store = func(ctx context.Context, log *logger.Logger, cfg s3.Config) (objectstore.Store, error) {
		return s3.New(ctx, log, cfg)
	}
	newLocalStore = func(root string) (objectstore.Store, error) {
		return objectstore.NewLocal(root)
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveObjectStore opens the bucket PDFs are uploaded to and fetched from.
func resolveObjectStore(ctx context.Context, log *logger.Logger, cfg config.StorageConfig) (objectstore.Store, error) {
	mode := strings.TrimSpace(strings.ToLower(cfg.Backend))
	metrics := observability.Current()

	log.Info(
		"Selecting object storage provider",
		"mode", mode,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"emulator_host", cfg.EmulatorHost,
		"local_root", cfg.LocalRoot,
	)

	var (
		store objectstore.Store
		err   error
	)
	switch mode {
	case "local":
		store, err = newLocalStore(cfg.LocalRoot)
	case "gcs":
		gcsMode := gcp.StorageModeGCS
		if cfg.EmulatorHost != "" {
			gcsMode = gcp.StorageModeGCSEmulator
		}
		store, err = newGCSBucket(ctx, log, gcp.BucketConfig{
			Bucket:       cfg.Bucket,
			Mode:         gcsMode,
			EmulatorHost: cfg.EmulatorHost,
			Credentials:  cfg.Credentials,
		})
	case "s3":
		store, err = newS3Store(ctx, log, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	default:
		err = &StorageProviderBootstrapError{
			Code:  StorageProviderBootstrapErrorInvalidMode,
			Mode:  mode,
			Cause: fmt.Errorf("unsupported object storage mode %q", mode),
		}
	}
	if err != nil {
		classified := classifyStorageBootstrapError(mode, cfg.EmulatorHost, err)
		code := storageProviderBootstrapErrorCode(classified)
		metrics.ObserveBootstrap("object_storage", mode, "error", string(code))
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", mode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", code,
			"error", classified,
		)
		return nil, classified
	}
	metrics.ObserveBootstrap("object_storage", mode, "success", "none")
	return store, nil
}

func classifyStorageBootstrapError(mode, emulatorHost string, err error) error {
	var typed *StorageProviderBootstrapError
	if errors.As(err, &typed) {
		return typed
	}
	wrap := func(code StorageProviderBootstrapErrorCode) error {
		return &StorageProviderBootstrapError{Code: code, Mode: mode, EmulatorHost: emulatorHost, Cause: err}
	}
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.StorageConfigErrorMissingBucket:
			return wrap(StorageProviderBootstrapErrorMissingBucket)
		case gcp.StorageConfigErrorInvalidMode:
			return wrap(StorageProviderBootstrapErrorInvalidMode)
		case gcp.StorageConfigErrorMissingEmulatorHost:
			return wrap(StorageProviderBootstrapErrorMissingEmulatorHost)
		case gcp.StorageConfigErrorInvalidEmulatorHost:
			return wrap(StorageProviderBootstrapErrorInvalidEmulatorHost)
		}
	}
	return wrap(StorageProviderBootstrapErrorConnectFailed)
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var typed *StorageProviderBootstrapError
	if errors.As(err, &typed) {
		return typed.Code
	}
	return StorageProviderBootstrapErrorConnectFailed
}
