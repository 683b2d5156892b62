package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aptlens/aptlens/internal/dataset"
	"github.com/aptlens/aptlens/internal/pipeline"
	"github.com/aptlens/aptlens/internal/search"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := os.MkdirAll(cfg.Analyze.UploadDir, 0o755); err != nil {
			return eris.Wrap(err, "create upload dir")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/upload", handleUpload(env))
	r.Get("/datasets/{hash}/results", handleResults(env))
	r.Get("/datasets/{hash}/export", handleExport(env))
	r.Post("/backfill", handleBackfill(env))
	return r
}

// loadDataset fetches a cached dataset for a handler, writing the error
// response itself. A nil return means the response is already sent.
func loadDataset(env *appEnv, w http.ResponseWriter, r *http.Request) *dataset.Dataset {
	hash := chi.URLParam(r, "hash")
	d, err := env.cache.Load(hash)
	if err != nil {
		zap.L().Error("dataset load failed", zap.String("hash", hash), zap.Error(err))
		httpError(w, http.StatusInternalServerError, "dataset load failed")
		return nil
	}
	if d == nil {
		httpError(w, http.StatusNotFound, "unknown dataset")
		return nil
	}
	return d
}

func parseSearchQuery(r *http.Request) search.Query {
	q := r.URL.Query()
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
	if radius <= 0 {
		radius = cfg.Search.DefaultRadiusKm
	}
	page, _ := strconv.Atoi(q.Get("page"))
	return search.Query{
		Address:     q.Get("address"),
		RadiusKm:    radius,
		AreaBucket:  q.Get("area"),
		BuildBucket: q.Get("build_year"),
		SortBy:      q.Get("sort"),
		SortDesc:    q.Get("order") == "desc",
		Page:        page,
		PerPage:     cfg.Search.PerPage,
	}
}

func handleUpload(env *appEnv) http.HandlerFunc {
	maxBytes := int64(cfg.Analyze.MaxUploadMB) * 1024 * 1024
	return func(w http.ResponseWriter, r *http.Request) {
		// Slack for multipart framing; the analyzer enforces the real limit.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				httpError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			httpError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close() //nolint:errcheck

		name := uuid.New().String() + filepath.Ext(header.Filename)
		path := filepath.Join(cfg.Analyze.UploadDir, name)
		dst, err := os.Create(path)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "store upload")
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close() //nolint:errcheck
			httpError(w, http.StatusInternalServerError, "store upload")
			return
		}
		if err := dst.Close(); err != nil {
			httpError(w, http.StatusInternalServerError, "store upload")
			return
		}

		d, err := env.analyzer.Run(r.Context(), path)
		if err != nil {
			if errors.Is(err, pipeline.ErrTooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			zap.L().Error("upload analysis failed",
				zap.String("file", header.Filename),
				zap.Error(err),
			)
			httpError(w, http.StatusUnprocessableEntity, "analysis failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"manifest": d.Manifest,
			"stats":    pipeline.Summarize(d.Rows),
		})
	}
}

func handleResults(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := loadDataset(env, w, r)
		if d == nil {
			return
		}

		res, err := env.engine.Search(r.Context(), d.Rows, parseSearchQuery(r))
		if err != nil {
			zap.L().Error("search failed", zap.String("hash", d.Manifest.Hash), zap.Error(err))
			httpError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleExport streams the filtered (pre-pagination) rows as CSV.
func handleExport(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := loadDataset(env, w, r)
		if d == nil {
			return
		}

		q := parseSearchQuery(r)
		center, rows, err := env.engine.Filter(r.Context(), d.Rows, q)
		if err != nil {
			zap.L().Error("export filter failed", zap.String("hash", d.Manifest.Hash), zap.Error(err))
			httpError(w, http.StatusInternalServerError, "export failed")
			return
		}
		if !center.Matched {
			httpError(w, http.StatusUnprocessableEntity, "address not found: "+q.Address)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+d.Manifest.Hash+`.csv"`)
		if err := dataset.WriteCSV(w, rows); err != nil {
			zap.L().Warn("export write failed", zap.String("hash", d.Manifest.Hash), zap.Error(err))
		}
	}
}

func handleBackfill(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = cfg.Analyze.BackfillSize
		}
		stats, err := env.backfiller.Run(r.Context(), limit)
		if err != nil {
			zap.L().Error("backfill failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "backfill failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
