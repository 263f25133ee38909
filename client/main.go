package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phillip-england/leadsdash/internal/clientapp"
	"github.com/phillip-england/leadsdash/internal/config"
	"github.com/phillip-england/leadsdash/internal/envutil"
)

func main() {
	if err := envutil.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	file, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := file.Logger(os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := clientapp.Run(ctx, clientapp.DefaultConfigFromEnv(file), logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
}
