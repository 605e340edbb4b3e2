// Package main verifies a persisted ledger checkpoint against the event
// journal: it loads the snapshot from PostgreSQL, replays the full event
// stream from ClickHouse, and reports any divergence. Exit code 0 means
// the checkpoint matches the journal.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"nft-market-ledger/internal/replay"
	"nft-market-ledger/internal/storage"
	chstore "nft-market-ledger/internal/storage/clickhouse"
	pgstore "nft-market-ledger/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall verification timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[verify] ", log.LstdFlags)

	if *postgresDSN == "" || *clickhouseDSN == "" {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	chConn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("Connect to clickhouse: %v", err)
	}
	defer chConn.Close()

	snap, err := pgstore.NewSnapshotStore(pool).Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Fatal("No checkpoint found in postgres")
	}
	if err != nil {
		logger.Fatalf("Load checkpoint: %v", err)
	}

	journal := chstore.NewEventJournal(chConn)
	all, err := journal.GetAll(ctx)
	if err != nil {
		logger.Fatalf("Read journal: %v", err)
	}
	// The journal may have run ahead of the checkpoint; verify only the
	// prefix the checkpoint claims to cover.
	if uint64(len(all)) > snap.NextEventSeq {
		logger.Printf("Journal has %d events, checkpoint covers %d; verifying the covered prefix",
			len(all), snap.NextEventSeq)
		all = all[:snap.NextEventSeq]
	}

	report, err := replay.Verify(snap, all)
	if err != nil {
		logger.Fatalf("Replay failed: %v", err)
	}

	if report.OK {
		logger.Printf("OK: checkpoint matches journal (%d events, %d tokens, %d listings)",
			report.Events, len(snap.Tokens), len(snap.Listings))
		return
	}

	logger.Printf("MISMATCH: checkpoint diverges from journal in %d places:", len(report.Mismatches))
	for _, m := range report.Mismatches {
		logger.Printf("  - %s", m)
	}
	os.Exit(1)
}
