package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mcdev12/quizlive/go/internal/dbconfig"
	"github.com/mcdev12/quizlive/go/internal/quiz/archive"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Create the archive tables
	if _, err := pool.Exec(ctx, archive.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}

	// 3) Report what is already archived
	var sessions, results int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM quiz_sessions`).Scan(&sessions); err != nil {
		fmt.Fprintf(os.Stderr, "count sessions: %v\n", err)
		os.Exit(1)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM quiz_results`).Scan(&results); err != nil {
		fmt.Fprintf(os.Stderr, "count results: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("archive schema ready on %s: %d sessions, %d results\n", cfg.Database, sessions, results)
}
