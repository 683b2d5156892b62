// Package pipeline orchestrates one file analysis: size check, content
// hashing, the dataset cache, and the ingest-transform-match chain.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/dataset"
	"github.com/aptlens/aptlens/internal/ingest"
	"github.com/aptlens/aptlens/internal/match"
	"github.com/aptlens/aptlens/internal/transform"
)

// ErrTooLarge rejects uploads over the configured size limit before any
// parsing happens.
var ErrTooLarge = eris.New("pipeline: input exceeds size limit")

// Analyzer turns a raw transaction file into a cached dataset.
type Analyzer struct {
	cache    *dataset.Cache
	matcher  *match.Matcher
	audit    *transform.AuditLog
	maxBytes int64
	skipRows int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithAudit routes dropped rows to an audit log.
func WithAudit(audit *transform.AuditLog) Option {
	return func(a *Analyzer) { a.audit = audit }
}

// WithMaxBytes caps accepted input size. Zero means unlimited.
func WithMaxBytes(n int64) Option {
	return func(a *Analyzer) { a.maxBytes = n }
}

// WithSkipRows overrides the ingest preamble length.
func WithSkipRows(n int) Option {
	return func(a *Analyzer) { a.skipRows = n }
}

func NewAnalyzer(cache *dataset.Cache, matcher *match.Matcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		cache:    cache,
		matcher:  matcher,
		skipRows: ingest.DefaultSkipRows,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run analyzes one file. A cache hit returns the stored dataset and skips
// transform and matching entirely.
func (a *Analyzer) Run(ctx context.Context, path string) (*dataset.Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: stat %s", path)
	}
	if a.maxBytes > 0 && info.Size() > a.maxBytes {
		return nil, eris.Wrapf(ErrTooLarge, "%s is %d bytes", filepath.Base(path), info.Size())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", path)
	}
	hash := dataset.Hash(raw)

	if cached, err := a.cache.Load(hash); err != nil {
		return nil, err
	} else if cached != nil {
		zap.L().Info("analysis cache hit",
			zap.String("hash", hash),
			zap.Int("rows", len(cached.Rows)),
		)
		return cached, nil
	}

	table, err := ingest.ReadFile(path, ingest.Options{SkipRows: a.skipRows})
	if err != nil {
		return nil, err
	}

	rows := transform.Apply(table, a.audit)
	stats, err := a.matcher.ResolveAll(ctx, rows)
	if err != nil {
		return nil, err
	}

	d := &dataset.Dataset{
		Manifest: dataset.Manifest{
			Hash:      hash,
			Source:    filepath.Base(path),
			Rows:      len(rows),
			Matched:   stats.Matched,
			CreatedAt: time.Now().UTC(),
		},
		Rows: rows,
	}
	if err := a.cache.Save(d); err != nil {
		return nil, err
	}
	return d, nil
}
