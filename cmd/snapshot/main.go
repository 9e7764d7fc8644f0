package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/snapshot/internal/snapshot"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/config"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/store"
)

const defaultHost = "127.0.0.1"

func main() {
	var history int
	var timeout time.Duration

	rootCmd := &cobra.Command{
		Use:   "snapshot [redis_host]",
		Short: "Print the latest cached price of every ticker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := defaultHost
			if len(args) == 1 {
				host = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return run(ctx, host, history)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().IntVar(&history, "history", 0, "Also print the N most recent stored rows per ticker")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall deadline for the snapshot")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, host string, history int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UseHosts("", host)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connection error %s: %w", cfg.Redis.Addr, err)
	}

	quotes, err := snapshot.NewPriceReader(rdb).Quotes(ctx)
	if err != nil {
		return err
	}
	snapshot.RenderQuotes(os.Stdout, quotes)

	if history <= 0 {
		return nil
	}

	db, err := store.Open(ctx, cfg.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer db.Close()

	if err := db.Health(ctx); err != nil {
		return fmt.Errorf("store health: %w", err)
	}

	rows, err := snapshot.History(ctx, db, quotes, history)
	if err != nil {
		return err
	}
	snapshot.RenderHistory(os.Stdout, quotes, rows)
	return nil
}
