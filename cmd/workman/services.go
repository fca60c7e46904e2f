package main

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/esizzle/workman/internal/config"
	"github.com/esizzle/workman/internal/engine"
	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/objstore"
	"github.com/esizzle/workman/internal/pipeline"
	"github.com/esizzle/workman/internal/progress"
	"github.com/esizzle/workman/internal/svcctx"
)

// buildServices wires the adapters from configuration. callbackURL
// overrides the configured progress endpoint when non-empty.
func buildServices(ctx context.Context, logger *slog.Logger, callbackURL string) (*svcctx.Services, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := cm.Get()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if err := cfg.ResolveDBPassword(ctx, secretsmanager.NewFromConfig(awsCfg)); err != nil {
		return nil, err
	}
	metaStore, err := meta.Open(cfg.DB, logger)
	if err != nil {
		return nil, err
	}

	objects := objstore.New(s3.NewFromConfig(awsCfg), cfg.Bucket, logger)

	url := ""
	if cfg.Progress.Enabled {
		url = cfg.Progress.CallbackURL
	}
	if callbackURL != "" {
		url = callbackURL
	}

	cm.OnChange(func(next *config.Config) {
		logger.Info("configuration reloaded", "bucket", next.Bucket, "region", next.Region)
	})
	cm.WatchConfig()

	return &svcctx.Services{
		ConfigManager: cm,
		Meta:          metaStore,
		Objects:       objects,
		Engine:        engine.NewPDF(),
		Reporter:      progress.New(url, logger),
		Logger:        logger,
	}, nil
}

// buildPipeline assembles the pipeline from the services on the context.
func buildPipeline(ctx context.Context) *pipeline.Pipeline {
	cfg := svcctx.ConfigManagerFrom(ctx).Get()
	p := pipeline.New(
		pipeline.AdaptMeta(svcctx.MetaFrom(ctx)),
		svcctx.ObjectsFrom(ctx),
		svcctx.EngineFrom(ctx),
		svcctx.ReporterFrom(ctx),
		svcctx.LoggerFrom(ctx),
	)
	p.DefaultTimeout = cfg.Timeout()
	p.SafetyMargin = cfg.SafetyMargin()
	p.RecoveryWindow = cfg.RecoveryWindow()
	return p
}
