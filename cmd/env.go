package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/dataset"
	"github.com/aptlens/aptlens/internal/entity"
	"github.com/aptlens/aptlens/internal/match"
	"github.com/aptlens/aptlens/internal/pipeline"
	"github.com/aptlens/aptlens/internal/search"
	"github.com/aptlens/aptlens/internal/transform"
	"github.com/aptlens/aptlens/pkg/geocode"
)

// appEnv bundles the wired application components commands share.
type appEnv struct {
	store      entity.Store
	geo        *geocode.Cache
	cache      *dataset.Cache
	audit      *transform.AuditLog
	analyzer   *pipeline.Analyzer
	engine     *search.Engine
	backfiller *match.Backfiller
}

func initEnv(ctx context.Context) (*appEnv, error) {
	store, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}

	geo := geocode.NewCache(geocode.NewKakaoClient(cfg.Kakao.Key,
		geocode.WithBaseURL(cfg.Kakao.BaseURL),
		geocode.WithMinInterval(time.Duration(cfg.Kakao.MinIntervalMS)*time.Millisecond),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Kakao.TimeoutSecs) * time.Second}),
	))

	cache, err := dataset.NewCache(cfg.Analyze.CacheDir)
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}

	audit, err := transform.NewAuditLog(cfg.Analyze.AuditPath)
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}

	matcher := match.NewMatcher(store, geo)
	env := &appEnv{
		store:      store,
		geo:        geo,
		cache:      cache,
		audit:      audit,
		backfiller: match.NewBackfiller(store, geo),
		engine:     search.NewEngine(geo),
		analyzer: pipeline.NewAnalyzer(cache, matcher,
			pipeline.WithAudit(audit),
			pipeline.WithMaxBytes(int64(cfg.Analyze.MaxUploadMB)*1024*1024),
			pipeline.WithSkipRows(cfg.Analyze.SkipRows),
		),
	}
	return env, nil
}

func (e *appEnv) Close() {
	if err := e.audit.Close(); err != nil {
		zap.L().Warn("close audit log", zap.Error(err))
	}
	if err := e.store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (entity.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return entity.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return entity.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
