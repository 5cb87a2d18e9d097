// Command sqlragctl talks to a running sqlrag-api.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlrag/sqlrag/internal/cli/sqlragctl"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	defaults := sqlragctl.Options{
		BaseURL: "http://localhost:8080",
		APIKey:  os.Getenv("SQLRAG_API_KEY"),
		Timeout: 60 * time.Second,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if url := os.Getenv("SQLRAG_API_URL"); url != "" {
		defaults.BaseURL = url
	}
	if raw := os.Getenv("SQLRAG_CLI_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			fmt.Fprintf(os.Stderr, "SQLRAG_CLI_TIMEOUT must be a positive duration, got %q\n", raw)
			os.Exit(2)
		}
		defaults.Timeout = timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := sqlragctl.Run(ctx, os.Args[1:], defaults)
	stop()
	os.Exit(code)
}
