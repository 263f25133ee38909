package leadscli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phillip-england/leadsdash/internal/apiapp"
	"github.com/phillip-england/leadsdash/internal/clientapp"
	"github.com/phillip-england/leadsdash/internal/config"
	"github.com/phillip-england/leadsdash/internal/envutil"
	"github.com/phillip-england/leadsdash/internal/security"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrUsage = errors.New("usage")

func Execute(args []string, out io.Writer) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:], out)
	case "run":
		return runCommand(args[1:])
	case "export":
		return runExport(args[1:], out)
	case "help", "-h", "--help":
		PrintUsage(out)
		return nil
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("%w: leadsdash <setup|run|export> [...]", ErrUsage)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: leadsdash setup --backend-url <url> [--env-file .env] [--force]")
	fmt.Fprintln(w, "       leadsdash run api|client|all")
	fmt.Fprintln(w, "       leadsdash export [--format csv|xlsx] [--out file|-] [--group g] [--campaign c] [--status s] [--q term]")
}

func runSetup(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	backendURL := fs.String("backend-url", "", "base URL of the leads backend")
	envPath := fs.String("env-file", ".env", "path to .env file")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *backendURL == "" {
		return errors.New("--backend-url is required")
	}
	secret, err := security.GenerateKey()
	if err != nil {
		return err
	}

	values := map[string]string{
		"BACKEND_BASE_URL": *backendURL,
		"SESSION_SECRET":   secret,
		"AUTH_REQUIRED":    "true",
		"API_ADDR":         ":8080",
		"CLIENT_ADDR":      ":3000",
		"API_BASE_URL":     "http://localhost:8080",
		"DISPLAY_TIMEZONE": config.DefaultTimezone,
		"LOG_LEVEL":        "info",
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", *envPath)
	return nil
}

func runCommand(args []string) error {
	if len(args) < 1 {
		return errors.New("missing run target: api | client | all")
	}

	if err := envutil.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	file, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, err := file.Logger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "api":
		return runAPI(ctx, file, logger)
	case "client":
		return runClient(ctx, file, logger)
	case "all":
		return runAll(ctx, file, logger)
	default:
		return fmt.Errorf("unknown run target %q", args[0])
	}
}

func runAPI(ctx context.Context, file config.File, logger *logrus.Logger) error {
	if err := apiapp.Run(ctx, apiapp.DefaultConfigFromEnv(file), logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runClient(ctx context.Context, file config.File, logger *logrus.Logger) error {
	if err := clientapp.Run(ctx, clientapp.DefaultConfigFromEnv(file), logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runAll stops both servers as soon as either one fails.
func runAll(ctx context.Context, file config.File, logger *logrus.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runAPI(ctx, file, logger) })
	g.Go(func() error {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil
		}
		return runClient(ctx, file, logger)
	})
	return g.Wait()
}
