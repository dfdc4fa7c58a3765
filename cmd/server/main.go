package main

import (
	"log"
	"net/http"
	"time"

	"github.com/xycareh/gitbutler/internal/config"
	"github.com/xycareh/gitbutler/internal/controller"
	"github.com/xycareh/gitbutler/internal/events"
	"github.com/xycareh/gitbutler/internal/httpapi"
	"github.com/xycareh/gitbutler/internal/project"
)

func main() {
	cfg := config.Global

	registry := project.NewRegistry()
	bus := events.New(cfg.EventBusCapacity)
	defer bus.Close()

	ctrl := controller.New(registry, bus)
	srv := httpapi.New(ctrl, registry)

	// Explicit timeouts so a stalled client cannot pin a connection.
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("gitbutler integration engine listening on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
