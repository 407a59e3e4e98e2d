package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"keyvault-glow/internal/config"
	"keyvault-glow/internal/database"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|reset|up-to|down-to")
	version := flag.String("version", "", "target version for -cmd=up-to and -cmd=down-to")
	flag.Parse()

	switch *cmd {
	case "up", "down", "status", "version", "redo", "reset":
	case "up-to", "down-to":
		if *version == "" {
			fmt.Fprintf(os.Stderr, "missing -version for %s\n", *cmd)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logger, "migrate").With().Str("cmd", *cmd).Logger()

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("resource not working: database")
	}
	defer pool.Close()

	var args []string
	if *version != "" {
		args = append(args, *version)
	}

	logger.Info().Msg("migrate ready")
	if err := database.RunGoose(ctx, pool, *cmd, args...); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		pool.Close()
		os.Exit(1)
	}
	logger.Info().Msg("migration finished")
}
