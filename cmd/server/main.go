package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/api"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/config"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/pack"
)

// ServerEnv holds the server-level settings read directly from the
// environment. Service wiring (database, artifacts, authorization) is
// resolved by the config package.
type ServerEnv struct {
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func main() {
	var env ServerEnv
	if err := cleanenv.ReadEnv(&env); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	if cfg.DatabaseType == "postgres" {
		if err := config.PingPostgres(cfg.DatabaseURL, cfg.DBSchema); err != nil {
			slog.Error("Database check failed", "err", err)
			os.Exit(1)
		}
	}

	svc, err := cfg.BuildService()
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	artifacts, err := cfg.BuildArtifactStore()
	if err != nil {
		slog.Error("Failed to build artifact store", "err", err)
		os.Exit(1)
	}

	exporter := pack.NewExporter(svc,
		pack.WithWorkRoots(cfg.PackageWorkDir, cfg.PackageFallbackWorkDir))
	importerOpts := []pack.ImporterOption{
		pack.WithImportWorkRoots(cfg.PackageWorkDir, cfg.PackageFallbackWorkDir),
	}
	if artifacts != nil {
		importerOpts = append(importerOpts, pack.WithArtifactStore(artifacts))
	}
	importer := pack.NewImporter(svc, importerOpts...)

	recordHandler := api.NewRecordHandler(svc)
	packageHandler := api.NewPackageHandler(svc, exporter, importer)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(env.RequestTimeout))
	r.Use(api.RequestLogger(slog.Default()))

	if cfg.JWTSecret != "" {
		tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(api.JWTActor())
	} else {
		r.Use(api.HeaderActor())
	}

	r.Mount("/records", recordHandler.Routes())
	r.Mount("/packages", packageHandler.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
