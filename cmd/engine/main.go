package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/config"
	"matchbook/infra/kafka"
	"matchbook/infra/logging"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// ---------------- Config ----------------

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", zap.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	// ---------------- Trade feed ----------------

	var outbox service.TradeOutbox
	bookOpts := []orderbook.Option{orderbook.WithLogger(logger.Named("orderbook"))}
	if cfg.Feed.Driver != config.FeedNone {
		exitWAL, err := exitwal.Open(cfg.Feed.OutboxDir,
			exitwal.WithLogger(logger.Named("outbox")),
			exitwal.WithCorruptHook(func(uint64, error) { m.OutboxCorrupt.Inc() }),
		)
		if err != nil {
			logger.Fatal("exit WAL init failed", zap.Error(err))
		}
		defer exitWAL.Close()

		// Trade numbers continue after the last one the outbox has seen.
		bookOpts = append(bookOpts, orderbook.WithTradeSequencer(sequence.New(exitWAL.LastSeq())))

		pub, err := newPublisher(cfg.Feed, logger.Named("kafka"))
		if err != nil {
			logger.Fatal("publisher init failed", zap.Error(err))
		}

		bc := broadcaster.New(exitWAL, pub, broadcaster.Config{
			Interval:   cfg.Feed.Interval,
			MaxRetries: cfg.Feed.MaxRetries,
			Key:        service.TradeKey,
		}, m, logger.Named("broadcaster"))

		done := make(chan struct{})
		go func() {
			defer close(done)
			bc.Run(ctx)
		}()
		defer func() {
			stop()
			<-done
			bc.Close()
		}()

		outbox = exitWAL
		logger.Info("trade feed enabled",
			zap.String("driver", cfg.Feed.Driver),
			zap.Strings("brokers", cfg.Feed.Brokers),
			zap.String("topic", cfg.Feed.Topic),
			zap.Uint64("last_trade_seq", exitWAL.LastSeq()),
		)
	}

	// ---------------- Domain ----------------

	book := orderbook.NewBook(bookOpts...)
	svc := service.NewOrderService(book, outbox, m, logger.Named("engine"))

	// ---------------- Console ----------------

	console := NewConsole(svc, sequence.New(0), os.Stdout)
	if err := console.Run(ctx, os.Stdin); err != nil {
		logger.Error("console exited", zap.Error(err))
	}
}

func newPublisher(cfg config.Feed, logger *zap.Logger) (broadcaster.Publisher, error) {
	if cfg.Driver == config.FeedKafkaGo {
		return kafka.NewProducer(cfg.Brokers, cfg.Topic, logger), nil
	}
	return broadcaster.NewSaramaPublisher(cfg.Brokers, cfg.Topic)
}
