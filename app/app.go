package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/constellate/constellate/activitypub"
	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/util"
	"github.com/constellate/constellate/web"
)

// App represents the main application with its servers and dependencies
type App struct {
	config       *util.AppConfig
	httpServer   *http.Server
	stopDelivery context.CancelFunc
	done         chan os.Signal
}

// New creates a new App instance with the given configuration
func New(conf *util.AppConfig) (*App, error) {
	return &App{
		config: conf,
		done:   make(chan os.Signal, 1),
	}, nil
}

// Initialize opens the database, runs migrations and builds the HTTP server
func (a *App) Initialize() error {
	log.Println("Opening database...")
	db.GetDB()
	log.Println("Database ready")

	router, err := web.Router(a.config)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP router: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Conf.HttpPort),
		Handler: router,
	}

	return nil
}

// Start starts all servers and blocks until a shutdown signal is received
func (a *App) Start() error {
	// Start the outbound delivery worker if federation is enabled
	if a.config.Conf.WithAp {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopDelivery = cancel
		worker := activitypub.NewDeliveryWorker(a.config)
		go worker.Run(ctx)
	}

	signal.Notify(a.done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Starting HTTP server on %s:%d", a.config.Conf.Host, a.config.Conf.HttpPort)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-a.done
	log.Println("Shutdown signal received")

	return a.Shutdown()
}

// Shutdown gracefully stops all servers with a 30 second timeout
func (a *App) Shutdown() error {
	log.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.stopDelivery != nil {
		a.stopDelivery()
	}

	var shutdownErr error

	log.Println("Stopping HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		shutdownErr = err
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	if err := db.GetDB().Close(); err != nil {
		log.Printf("Database close error: %v", err)
		if shutdownErr == nil {
			shutdownErr = err
		}
	}

	log.Println("All servers stopped")
	return shutdownErr
}
