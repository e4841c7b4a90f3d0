package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/api"
	"github.com/vrsandeep/tunedl/internal/core"
)

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error during application setup: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	log := app.Logger()

	if err := app.Start(context.Background()); err != nil {
		log.Fatal("could not start background services", zap.Error(err))
	}
	app.WatchConfig()

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.Config().Port),
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Info("starting web server", zap.String("addr", httpServer.Addr), zap.String("version", core.Version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exiting")
}
