package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/syncvault/internal/client/api"
	"github.com/iudanet/syncvault/internal/client/auth"
	"github.com/iudanet/syncvault/internal/client/cli"
	"github.com/iudanet/syncvault/internal/client/iocli"
	"github.com/iudanet/syncvault/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "syncvault-client.db", "Path to local database")
	sessionID := flag.String("session", "", "Work with another session namespace")
	masterPassword := flag.String("master-password", "", "Master password (not recommended)")
	masterPasswordFile := flag.String("master-password-file", "", "Path to file with master password")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	// Ctrl+C останавливает долгоживущие команды (watch)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	apiClient := api.NewClient(*serverURL)
	authStore := auth.NewAuthService(boltStorage)
	authService := auth.NewService(apiClient, authStore)

	app := cli.New(
		iocli.NewStdio(),
		apiClient,
		authService,
		authStore,
		boltStorage,
		logger,
		cli.Passwords{
			FromFile: *masterPasswordFile,
			FromArgs: *masterPassword,
		},
		*sessionID,
	)

	if err := app.Run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("SyncVault Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
