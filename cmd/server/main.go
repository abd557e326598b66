package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-slicer/internal/exporter"
	"voice-slicer/internal/journal"
	"voice-slicer/internal/platform/config"
	"voice-slicer/internal/platform/logger"
	"voice-slicer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	dataDir := config.GetEnv("DATA_DIR", "")
	journalPath := config.GetEnv("JOURNAL_PATH", "")

	log := logger.New(logLevel, logFormat)

	var store exporter.Store = exporter.NewInMemoryStore()
	if dataDir != "" {
		fs, err := exporter.NewFileStore(dataDir)
		if err != nil {
			log.Error("open file store", "error", err)
			os.Exit(1)
		}
		store = fs
	}

	var jr *journal.Journal
	if journalPath != "" {
		var err error
		jr, err = journal.Open(journalPath)
		if err != nil {
			log.Error("open journal", "error", err)
			os.Exit(1)
		}
		defer jr.Close()
	}

	repo := exporter.NewRepositoryWithStore(store)
	svc := exporter.NewService(repo)
	met := metrics.New()

	var rec exporter.Recorder
	if jr != nil {
		rec = jr
	}
	h := exporter.NewHandler(svc, log, met, rec)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.SessionCount()) }).ServeHTTP(w, req)
	})
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/segments", h.GetSegments)
		r.Post("/segments", h.AddSegment)
		r.Put("/segments", h.ReplaceBuffer)
		r.Put("/segments/{segment_id}", h.UpdateSegment)
		r.Delete("/segments/{segment_id}", h.DeleteSegment)
		r.Get("/plan", h.PreviewPlan)
		r.Post("/export", h.Export)
		if jr != nil {
			r.Get("/history", jr.HistoryHandler(log))
		}
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"data_dir", dataDir,
		"journal", journalPath != "",
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
