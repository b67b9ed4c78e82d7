package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/dot11gate/internal/common"
	"example.com/dot11gate/internal/config"
	"example.com/dot11gate/internal/dict"
	"example.com/dot11gate/internal/report"
	"example.com/dot11gate/internal/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	logCloser, err := common.SetupLogging(cfg.Logs)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logCloser.Close()

	lang, err := report.ParseLanguage(cfg.Lang)
	if err != nil {
		log.Printf("lang: %v; using %s", err, lang)
	}
	var stations *dict.Store
	if cfg.Stations != "" {
		if stations, err = dict.EnsureLoaded(cfg.Stations); err != nil {
			log.Fatalf("stations: %v", err)
		}
	}
	var signingKey []byte
	if cfg.SigningKey != "" {
		if signingKey, err = os.ReadFile(cfg.SigningKey); err != nil {
			log.Fatalf("signing key: %v", err)
		}
	}
	packs := make([]server.RulePackFile, len(cfg.RulePacks))
	for i, ref := range cfg.RulePacks {
		packs[i] = server.RulePackFile{ID: ref.ID, Path: ref.Path}
	}
	srv, err := server.NewServer(server.Options{
		StorageDir:     cfg.StorageDir,
		Concurrency:    cfg.Concurrency,
		StrictElements: cfg.StrictElements,
		Stations:       stations,
		RulePacks:      packs,
		Lang:           lang,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		SigningKeyPEM:  signingKey,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := cfg.ListenAddr()
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("dot11d listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("dot11d stopped")
}
