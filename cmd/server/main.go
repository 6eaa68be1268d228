/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the utility-billing server. Handles configuration,
  store selection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and environment config
  2. Initialize the record store backend
  3. Load the initial session into the API handler
  4. Configure the HTTP router
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -store    Record store backend: github | sqlite | memory (default: github)
  -db       SQLite database path for -store=sqlite (default: billing.db)
  -volumes  Treat reading values as volumes instead of counter states

ENVIRONMENT:
  BILLING_GITHUB_OWNER / _REPO / _BRANCH / _DATADIR / _TOKEN
            The repository acting as the flat-file record store.
  BILLING_DERIVATIONS
            Optional YAML file overriding derived-service formulas.

EXAMPLES:
  # Remote store
  BILLING_GITHUB_OWNER=acme BILLING_GITHUB_REPO=house-data \
  BILLING_GITHUB_TOKEN=... ./server

  # Local file store
  ./server -store=sqlite -db=./data/billing.db

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for active
  requests, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - store/github: The remote record store adapter
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/store/github"
	"github.com/warp/billing-engine/store/memory"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	storeKind := flag.String("store", "github", "record store backend: github | sqlite | memory")
	dbPath := flag.String("db", "billing.db", "SQLite database path for -store=sqlite")
	volumes := flag.Bool("volumes", false, "treat reading values as volumes, not counter states")
	flag.Parse()

	cfg := config.FromEnv()

	// Initialize store
	var (
		store billing.RecordStore
		err   error
	)
	switch *storeKind {
	case "github":
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			log.Fatal("BILLING_GITHUB_OWNER and BILLING_GITHUB_REPO are required for -store=github")
		}
		store = github.New(github.Options{
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Branch:  cfg.GitHubBranch,
			DataDir: cfg.GitHubDataDir,
			Token:   cfg.GitHubToken,
		})
	case "sqlite":
		st, serr := sqlite.New(*dbPath)
		if serr != nil {
			log.Fatalf("Failed to initialize database: %v", serr)
		}
		defer st.Close()
		store = st
	case "memory":
		store = memory.New()
	default:
		log.Fatalf("Unknown store backend %q", *storeKind)
	}

	// Handler options
	opts := []api.Option{}
	if *volumes {
		opts = append(opts, api.WithInputMode(billing.InputDirect))
	}
	if cfg.DerivationsPath != "" {
		table, derr := billing.LoadDerivations(cfg.DerivationsPath)
		if derr != nil {
			log.Fatalf("Failed to load derivations: %v", derr)
		}
		opts = append(opts, api.WithDerivations(table))
	}

	handler := api.NewHandler(store, opts...)

	// Load the initial session
	if err = handler.Reload(context.Background()); err != nil {
		log.Fatalf("Failed to load record sets: %v", err)
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (store: %s)", *port, *storeKind)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
