package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/mdrohmann/fluxible-plugin-fetchr/config"
	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
	"github.com/mdrohmann/fluxible-plugin-fetchr/logging"
	"github.com/mdrohmann/fluxible-plugin-fetchr/services/kv"
)

const shutdownTimeout = time.Second * 5

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	cfg, err := config.NewLoader().Load(params.configPath, params.overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}

	logger := logging.NullLogger()
	if cfg.Server.Debug {
		logger = logging.NewConsoleLogger(os.Stdout, "[fetchr] ")
	}

	store, closeStore, err := openStore(cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Store error: %s\n", err)
		os.Exit(1)
	}
	defer closeStore()

	server, err := newDemoServer(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	filters, _ := cfg.Fetchr.Filters()
	fetchr.PrintFilterDescription(os.Stdout, server.fetchr.Registry(), filters)
	printBanner(cfg)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %s\n", err)
			closeStore()
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %s\n", err)
		}
	}
}

func openStore(cfg config.RedisConfig) (kv.Store, func(), error) {
	if cfg.URL == "" {
		return kv.NewMemoryStore(), func() {}, nil
	}
	store, err := kv.NewRedisStore(kv.RedisOptions{URL: cfg.URL, KeyPrefix: cfg.Prefix})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func printBanner(cfg *config.Config) {
	base := fmt.Sprintf("http://%s:%d%s", cfg.Server.Host, cfg.Server.Port, fetchr.NormalizeBasePath(cfg.Fetchr.Path))

	var read commandBuilder
	read.add("curl", base+"/resource/"+kv.DefaultName+"?id=example")

	var create commandBuilder
	create.add("curl", "-X", "POST", base, "-H", "Content-Type: application/json", "-d",
		`{"requests":{"g0":{"resource":"`+kv.DefaultName+`","operation":"create","params":{"id":"example"},"body":{"hello":"world"}}}}`)

	fmt.Printf("%s %s\n", color.GreenString("Serving fetchr services at"), base)
	fmt.Println("Try:")
	fmt.Printf("  %s\n", create)
	fmt.Printf("  %s\n", read)
	fmt.Println()
}
