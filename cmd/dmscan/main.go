package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/local/dmscan/internal/cli"
	cfgpkg "github.com/local/dmscan/internal/config"
	logpkg "github.com/local/dmscan/internal/logger"
)

func main() {
	// .env is optional
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := cli.New(cfg, os.Stdout, os.Stderr).Execute(ctx, os.Args[1:])

	stop()
	logpkg.Close()
	os.Exit(code)
}
