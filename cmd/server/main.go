package main

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"microblog/internal/auth"
	"microblog/internal/cache"
	"microblog/internal/config"
	"microblog/internal/db"
	"microblog/internal/feed"
	"microblog/internal/handlers"
	"microblog/internal/monitoring"
	"microblog/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		log.Fatal(err)
	}
	dbc, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer dbc.Close()

	if err := db.Migrate(dbc); err != nil {
		log.Fatal(err)
	}

	st := store.New(dbc)
	sessions := auth.NewManager(dbc, cfg.SessionMaxAge())
	pageCache := cache.New(cfg.Cache.Size, cfg.CacheTTL())

	h := handlers.New(st, feed.NewService(st), sessions, pageCache, cfg.Templates, cfg.Storage.MediaDir)

	mux := h.Routes()
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := monitoring.NewPrometheusMiddleware(
		handlers.WithLogging(handlers.WithRecover(mux)),
	)

	log.WithField("addr", cfg.Server.Addr).Info("listening")
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatal(err)
	}
}
