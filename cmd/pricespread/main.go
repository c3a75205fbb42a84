package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StrathCole/pricespread/pkg/config"
	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/api"
	"github.com/StrathCole/pricespread/pkg/server/cache"
	"github.com/StrathCole/pricespread/pkg/server/sources"
	"github.com/StrathCole/pricespread/pkg/server/storage"
	"github.com/StrathCole/pricespread/pkg/server/transport"
	"github.com/StrathCole/pricespread/pkg/server/watcher"
	"github.com/StrathCole/pricespread/pkg/version"

	// Import exchange clients to register them
	_ "github.com/StrathCole/pricespread/pkg/server/sources/cex"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	showVer    = flag.Bool("version", false, "Show version and exit")
	priceSym   = flag.String("price", "", "Print one price for SYMBOL and exit")
	source     = flag.String("source", aggregator.SourceAuto, "Exchange for -price, or auto")
	spreadSym  = flag.String("spread", "", "Print the cross-exchange spread for SYMBOL and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("pricespread version %s\n", version.Version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	oneShot := *priceSym != "" || *spreadSym != ""
	output := cfg.Logging.Output
	if oneShot && output == "stdout" {
		output = "stderr" // Keep stdout for the JSON result
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if oneShot {
		if err := runOnce(ctx, cfg, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			cancel()
			os.Exit(1)
		}
		return
	}

	logger.Info("Starting pricespread", "version", version.Version)
	if err := runServer(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// service holds the components shared by serve and one-shot modes.
type service struct {
	http *transport.Client
	agg  *aggregator.Aggregator
	sink *storage.AsyncSink
	pg   *storage.PostgresWriter
}

func newService(ctx context.Context, cfg *config.Config, logger *logging.Logger, withSink bool) (*service, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to build symbol catalog: %w", err)
	}

	svc := &service{http: transport.New(cfg.TransportOptions())}
	if cfg.Transport.InsecureSkipVerify {
		logger.Warn("TLS verification disabled for exchange requests")
	}

	deps := sources.Deps{Catalog: catalog, HTTP: svc.http, Logger: logger}
	var clients []sources.Client
	for id, ex := range cfg.EnabledExchanges() {
		client, err := sources.Create(id, deps, ex.Config)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("failed to create %s client: %w", id, err)
		}
		clients = append(clients, client)
	}

	opts := []aggregator.Option{
		aggregator.WithOrder(cfg.AutoOrder()...),
		aggregator.WithSpreadTimeout(cfg.Aggregator.SpreadTimeout.ToDuration()),
		aggregator.WithLogger(logger),
	}

	if withSink && cfg.Storage.Enabled {
		pg, err := storage.OpenPostgres(ctx, cfg.Storage.DSN, logger)
		if err != nil {
			svc.close()
			return nil, err
		}
		svc.pg = pg
		svc.sink = storage.NewAsyncSink(svc.pg, cfg.Storage.QueueSize, logger)
		opts = append(opts, aggregator.WithSink(svc.sink))
		logger.Info("Price history enabled", "queue_size", cfg.Storage.QueueSize)
	}

	svc.agg, err = aggregator.New(catalog, clients, opts...)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	logger.Debug("Symbol catalog loaded", "symbols", catalog.SupportedSymbols())
	return svc, nil
}

func (s *service) close() {
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if s.pg != nil {
		_ = s.pg.Close()
	}
	s.http.CloseIdleConnections()
}

func runOnce(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	svc, err := newService(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer svc.close()

	var result interface{}
	if *priceSym != "" {
		result, err = svc.agg.GetPrice(ctx, *priceSym, *source)
	} else {
		result, err = svc.agg.GetSpread(ctx, *spreadSym)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	svc, err := newService(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer svc.close()

	responseCache, err := cache.Open(ctx, cfg.CacheOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer responseCache.Close()
	logger.Info("Response cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL.ToDuration().String())

	server := api.NewServer(cfg.Server.HTTP.Addr, svc.agg, responseCache, cfg.Server.RequestTimeout.ToDuration(), logger)

	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(logger)
		server.SetWebSocketServer(wsServer)
	}

	var w *watcher.Watcher
	if cfg.Watch.Enabled {
		var publishers []watcher.Publisher
		if wsServer != nil {
			publishers = append(publishers, wsServer)
		}
		w, err = watcher.New(svc.agg, cfg.Watch.Symbols, cfg.Watch.Interval.ToDuration(), logger, publishers...)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		go func() {
			if err := w.Start(ctx); err != nil {
				logger.Error("Watcher failed to start", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Shutting down gracefully...")
	if w != nil {
		w.Stop()
	}
	if wsServer != nil {
		wsServer.Stop()
	}
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
