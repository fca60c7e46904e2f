// Package svcctx provides service context for dependency injection via context.
// This package is separate from the pipeline to avoid import cycles with commands.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/esizzle/workman/internal/config"
	"github.com/esizzle/workman/internal/engine"
	"github.com/esizzle/workman/internal/meta"
	"github.com/esizzle/workman/internal/objstore"
	"github.com/esizzle/workman/internal/progress"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	ConfigManager *config.Manager
	Meta          *meta.Store
	Objects       *objstore.Store
	Engine        engine.Engine
	Reporter      *progress.Reporter
	Logger        *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// MetaFrom extracts the metadata store from context.
func MetaFrom(ctx context.Context) *meta.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Meta
	}
	return nil
}

// ObjectsFrom extracts the object store from context.
func ObjectsFrom(ctx context.Context) *objstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Objects
	}
	return nil
}

// EngineFrom extracts the PDF engine from context.
func EngineFrom(ctx context.Context) engine.Engine {
	if s := ServicesFrom(ctx); s != nil {
		return s.Engine
	}
	return nil
}

// ReporterFrom extracts the progress reporter from context.
func ReporterFrom(ctx context.Context) *progress.Reporter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reporter
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
