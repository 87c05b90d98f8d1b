// Command server is the authoritative real-time game server: it holds every
// active room in memory and simulates them at a fixed tick rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mintychochip/flappy-cakes/internal/config"
	"github.com/mintychochip/flappy-cakes/internal/lobby"
	"github.com/mintychochip/flappy-cakes/internal/logging"
	"github.com/mintychochip/flappy-cakes/internal/room"
	"github.com/mintychochip/flappy-cakes/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	addr := flag.String("addr", "", "listen address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	var lobbyClient *lobby.Client
	if cfg.Lobby.BaseURL != "" {
		lobbyClient = lobby.New(cfg.Lobby.BaseURL, cfg.Lobby.Timeout)
		log.Infow("lobby enabled", "base_url", cfg.Lobby.BaseURL, "validate_codes", cfg.Lobby.ValidateCodes)
	}

	registry := room.NewRegistry(cfg.Game, cfg.Room, log)
	handler := server.New(registry, lobbyClient, cfg.Lobby, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWS)
	mux.HandleFunc("/healthz", handler.HandleHealthz)
	mux.HandleFunc("/metrics", handler.HandleMetrics)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}
