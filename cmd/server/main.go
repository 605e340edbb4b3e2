// Package main runs the marketplace ledger service: the in-memory ledger
// core, the HTTP API, the WebSocket event feed, asynchronous journaling to
// ClickHouse, and periodic snapshot checkpoints to PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nft-market-ledger/internal/feed"
	"nft-market-ledger/internal/journal"
	"nft-market-ledger/internal/ledger"
	"nft-market-ledger/internal/observability"
	"nft-market-ledger/internal/server"
	"nft-market-ledger/internal/storage"
	chstore "nft-market-ledger/internal/storage/clickhouse"
	"nft-market-ledger/internal/storage/memory"
	"nft-market-ledger/internal/storage/migrations"
	pgstore "nft-market-ledger/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL and ClickHouse")
	snapshotInterval := flag.Duration("snapshot-interval", 1*time.Minute, "Snapshot checkpoint interval")
	allowSelfPurchase := flag.Bool("allow-self-purchase", false, "Allow sellers to buy their own listings")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	snapshotStore, eventJournal, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Restore ledger state from the last checkpoint, if any
	cfg := ledger.Config{AllowSelfPurchase: *allowSelfPurchase}

	writer := journal.NewWriter(journal.DefaultWriterConfig(), eventJournal,
		log.New(os.Stdout, "[journal] ", log.LstdFlags|log.Lshortfile))
	writer.Start()

	hub := feed.NewHub(feed.DefaultConfig(),
		log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile))
	hub.Start()

	var led *ledger.Ledger
	snap, err := snapshotStore.Load(ctx)
	switch {
	case err == nil:
		led = ledger.NewFromSnapshot(cfg, snap, writer, hub)
		logger.Printf("Restored ledger from checkpoint: %d tokens, %d listings, next seq %d",
			len(snap.Tokens), len(snap.Listings), snap.NextEventSeq)
	case errors.Is(err, storage.ErrNotFound):
		led = ledger.New(cfg, writer, hub)
		logger.Println("No checkpoint found, starting with an empty ledger")
	default:
		logger.Fatalf("Failed to load checkpoint: %v", err)
	}
	observability.SetActiveListings(len(led.ListedTokens()))

	// HTTP server
	api := server.New(led, hub, logger)
	httpSrv := &http.Server{
		Addr:    *addr,
		Handler: api.Routes(),
	}

	// Handle shutdown signals
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	// Periodic snapshot checkpointing
	go runCheckpoints(ctx, led, snapshotStore, *snapshotInterval, logger)

	go func() {
		logger.Printf("Listening on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	// Stop taking requests, then flush everything that is still in flight.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}

	hub.Stop()
	writer.Stop()

	// The final checkpoint gets its own budget; a slow HTTP drain must not
	// eat into it.
	checkpointCtx, checkpointCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer checkpointCancel()
	if err := saveCheckpoint(checkpointCtx, led, snapshotStore); err != nil {
		logger.Printf("Final checkpoint failed: %v", err)
	} else {
		logger.Println("Final checkpoint saved")
	}

	close(done)
	logger.Println("Shutdown complete")
}

// createStores creates the snapshot store and event journal, applying
// migrations for the durable backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.SnapshotStore, storage.EventJournal, func(), error) {
	if useMemory {
		return memory.NewSnapshotStore(), memory.NewEventJournal(), func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return pgstore.NewSnapshotStore(pool), chstore.NewEventJournal(chConn), cleanup, nil
}

// runCheckpoints saves the ledger state on a fixed cadence until ctx ends.
func runCheckpoints(ctx context.Context, led *ledger.Ledger, store storage.SnapshotStore,
	interval time.Duration, logger *log.Logger) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(ctx, led, store); err != nil {
				logger.Printf("Checkpoint failed: %v", err)
			}
		}
	}
}

// saveCheckpoint takes a snapshot and persists it.
func saveCheckpoint(ctx context.Context, led *ledger.Ledger, store storage.SnapshotStore) error {
	start := time.Now()
	err := store.Save(ctx, led.Snapshot())
	observability.RecordSnapshotSave(time.Since(start).Seconds(), err)
	if err == nil {
		observability.MarkSnapshotSuccess(time.Now().Unix())
	}
	return err
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
