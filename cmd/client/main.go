package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SecureDrop/internal/cli/commands"
	"SecureDrop/internal/config"
)

// задаются через -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// env + flags; клиенту нужны BaseURL, EnableHTTPS и Version
	cfg := config.NewConfig()
	if cfg.Version {
		fmt.Fprintf(commands.Out, "SecureDrop CLI\nVersion: %s\nBuild date: %s\nServer: %s\n", version, buildDate, cfg.ServerURL)
		return 0
	}

	// Ctrl+C прерывает загрузку, частичный файл не остаётся
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.Dispatch(ctx, cfg, flag.Args())
}
