package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stablepay/layer2/pkg/log"
)

//go:embed config/migrations/*/*.sql
var embedMigrations embed.FS

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help" {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	config, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %s\n", err)
		os.Exit(1)
	}
	logger := log.NewZapLogger(config.log).WithName("layer2")

	db, err := ConnectToDB(config.dbConf, logger)
	if err != nil {
		logger.Fatal("failed to setup database", "error", err)
	}

	app := NewApp(config, db, NewMetrics(), os.Stdout, logger)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Args[1] == "shell" {
		NewShell(ctx, app).Run()
		return
	}

	if err := app.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		app.Close()
		os.Exit(1)
	}
}
