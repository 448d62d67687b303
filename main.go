package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hookswitch/internal"
	"hookswitch/pkg/api"
	"hookswitch/pkg/auth"
	"hookswitch/pkg/providers/bitbucket"
	"hookswitch/pkg/providers/brex"
	"hookswitch/pkg/providers/github"
	"hookswitch/pkg/providers/gitlab"
	"hookswitch/pkg/providers/vercel"
	"hookswitch/pkg/storage"
	"hookswitch/pkg/storage/enablements"
	"hookswitch/pkg/webhook"

	"github.com/vigo/getenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hookswitch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := getenv.String("LOG_LEVEL", config.Log.Level)
	listenAddr := getenv.TCPAddr("LISTEN_ADDR", config.Server.ListenAddr)
	if err := getenv.Parse(); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	config.Log.Level = *logLevel
	config.Server.ListenAddr = *listenAddr

	logger, err := internal.NewLogger(config.Log, "server", os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  config.Rules,
		Strict: config.RulesStrict,
		Logger: logger.With("component", "rules"),
	})
	if err != nil {
		return fmt.Errorf("compile rules: %w", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill, logger.With("component", "publisher"))
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	defer publisher.Close()

	var store storage.Store
	if config.Storage.Driver != "" {
		gormStore, err := enablements.Open(enablements.Config{
			Driver:      config.Storage.Driver,
			DSN:         config.Storage.DSN,
			Dialect:     config.Storage.Dialect,
			Table:       config.Storage.Table,
			AutoMigrate: config.Storage.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer gormStore.Close()
		store = gormStore
	}

	var onEnable webhook.EnableHook = webhook.NopEnableHook
	if store != nil {
		onEnable = storage.RecordEnablement(store)
	}
	providers, err := buildProviders(config.Providers, auth.NewResolver(config.Providers), onEnable)
	if err != nil {
		return err
	}

	sink := internal.NewEventSink(ruleEngine, publisher, config.Watermill.DLQDriver, logger.With("component", "sink"))
	dispatcher, err := webhook.New(providers, sink, config.Server.BaseURL,
		webhook.WithLogger(logger),
		webhook.WithObserver(internal.Metrics{}),
		webhook.WithMaxBodyBytes(config.Server.MaxBodyBytes),
		webhook.WithStrictClassification(config.Server.StrictClassification),
		webhook.WithDebugPayloads(config.Server.DebugEvents),
	)
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	mux := newMux(config, dispatcher, store, logger)
	server := &http.Server{
		Addr:              config.Server.ListenAddr,
		Handler:           mux,
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr, "providers", len(providers))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	return nil
}

func newMux(config internal.Config, dispatcher *webhook.Dispatcher, store storage.Store, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/{provider}", dispatcher)
	mux.Handle("POST /api/webhooks/enable", &api.EnableHandler{Enabler: dispatcher, Logger: logger})
	mux.Handle("GET /api/webhooks", &api.EnablementsHandler{Store: store, Logger: logger})
	if config.Server.MetricsEnabled {
		mux.Handle("GET "+config.Server.MetricsPath, expvar.Handler())
	}
	return mux
}

// buildProviders constructs every enabled adapter. An adapter without
// configured events subscribes to its whole catalog.
func buildProviders(cfg auth.Config, resolver *auth.Resolver, onEnable webhook.EnableHook) ([]webhook.Provider, error) {
	var providers []webhook.Provider

	if pc := cfg.GitHub; pc.Enabled {
		p, err := github.New(github.Config{
			Secret:        pc.Secret,
			Events:        eventsOrAll(pc.Events, github.Catalog),
			GetEnableArgs: resolver.GitHub(),
			OnEnable:      onEnable,
			BaseURL:       pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if pc := cfg.GitLab; pc.Enabled {
		p, err := gitlab.New(gitlab.Config{
			Secret:        pc.Secret,
			Events:        eventsOrAll(pc.Events, gitlab.Catalog),
			GetEnableArgs: resolver.GitLab(),
			OnEnable:      onEnable,
			BaseURL:       pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if pc := cfg.Bitbucket; pc.Enabled {
		p, err := bitbucket.New(bitbucket.Config{
			Secret:        pc.Secret,
			Events:        eventsOrAll(pc.Events, bitbucket.Catalog),
			GetEnableArgs: resolver.Bitbucket(),
			OnEnable:      onEnable,
			BaseURL:       pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if pc := cfg.Vercel; pc.Enabled {
		p, err := vercel.New(vercel.Config{
			Secret:        pc.Secret,
			Events:        eventsOrAll(pc.Events, vercel.Catalog),
			GetEnableArgs: resolver.Vercel(),
			OnEnable:      onEnable,
			BaseURL:       pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if pc := cfg.Brex; pc.Enabled {
		p, err := brex.New(brex.Config{
			Secret:        pc.Secret,
			Events:        eventsOrAll(pc.Events, brex.Catalog),
			GetEnableArgs: resolver.Brex(),
			OnEnable:      onEnable,
			BaseURL:       pc.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		return nil, errors.New("no webhook providers enabled")
	}
	return providers, nil
}

func eventsOrAll(events []string, catalog webhook.Catalog) []string {
	if len(events) > 0 {
		return events
	}
	names := make([]string, 0, len(catalog))
	for _, def := range catalog {
		names = append(names, def.Name)
	}
	return names
}
