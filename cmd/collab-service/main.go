package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"collabcore/config"
	"collabcore/internal/collab"
	"collabcore/internal/gateway"
	"collabcore/internal/relay"
	"collabcore/internal/storage"
)

func main() {
	var (
		port = flag.String("port", "", "Port to listen on (overrides PORT)")
		env  = flag.String("env", "dev", "Environment (dev, staging, prod)")
	)
	flag.Parse()

	cfg, err := config.Load(*env)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components.
	registry := collab.NewRegistry()
	presence := collab.NewTracker()
	store := collab.NewDocStore()
	engine := collab.NewEngine(store)
	bcast := collab.NewBroadcaster(presence)

	// Optional cross-instance fan-out bridge.
	var bridge *relay.Bridge
	var coordRelay collab.Relay
	if cfg.RedisAddr != "" {
		bridge, err = relay.New(ctx, cfg.RedisAddr, bcast)
		if err != nil {
			log.Fatalf("Failed to connect relay: %v", err)
		}
		defer bridge.Close()
		go bridge.Run(ctx)
		coordRelay = bridge
		log.Printf("Relay connected to %s", cfg.RedisAddr)
	}

	coord := collab.NewCoordinator(registry, presence, engine, store, bcast, coordRelay)

	// Optional snapshot persistence sink.
	var saver gateway.SnapshotSaver
	if cfg.DatabaseURL != "" {
		snapshots, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open snapshot store: %v", err)
		}
		defer snapshots.Close()
		saver = snapshots
		log.Println("Snapshot store connected")
	}

	service := gateway.NewService(coord, store, gateway.Config{
		EditLockTTL:     cfg.EditLockTTL,
		SweepInterval:   cfg.SweepInterval,
		PersistInterval: cfg.PersistInterval,
	}, saver)
	service.Start(ctx)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", service.HandleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/ws", service.HandleWebSocket)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		cancel()
		server.Close()
	}()

	log.Printf("Collab service starting on port %s (env: %s)", cfg.Port, cfg.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
