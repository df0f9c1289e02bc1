package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/process-env/train-tracker-sub001/api/handlers"
	"github.com/process-env/train-tracker-sub001/pkg/tracker"
)

func main() {
	var (
		configPath      = flag.String("config", "config.yml", "Config file path")
		cleanupInterval = flag.Duration("cleanup-interval", 24*time.Hour, "Cache/topology cleanup interval")
	)
	flag.Parse()

	client, err := tracker.NewLocal(tracker.Config{ConfigPath: *configPath})
	if err != nil {
		log.Fatalf("Failed to create tracker client: %v", err)
	}

	// Nightly cleanup bounds memory from keyed per-station caches and
	// picks up refreshed reference files.
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(*cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Println("Running cache cleanup")
				client.Cleanup()
			case <-stopCleanup:
				return
			}
		}
	}()

	// Create HTTP server
	r := mux.NewRouter()
	h := handlers.NewHandler(client)
	h.RegisterRoutes(r)
	r.Handle("/metrics", client.Metrics.Handler()).Methods("GET")

	// Add middleware
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	port := strconv.Itoa(client.Config().Port)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Printf("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	close(stopCleanup)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
