// The consumer binary runs the priority-aware consumer pool and feeds
// observed outcomes back to the prediction service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/routemind/routemind/consumer"
	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/handlers"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/telemetry"
	"github.com/routemind/routemind/training"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	opts := []core.Option{core.WithAppName("consumer"), core.WithPort(8081)}
	if *configPath != "" {
		opts = append(opts, core.WithConfigFile(*configPath))
	}
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	conn, err := rabbitmq.Dial(rabbitmq.ConnectionConfig{
		URL:    cfg.Broker.URL(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	var sink core.TrainingSink = &core.NoOpTrainingSink{}
	if cfg.Training.Enabled {
		reporter := training.NewReporter(training.ReporterConfig{
			BaseURL:        cfg.Prediction.BaseURL,
			QueueSize:      cfg.Training.QueueSize,
			ReportFailures: cfg.Training.ReportFailures,
			Logger:         logger,
		})
		defer reporter.Close()
		sink = reporter
	}

	pool := consumer.NewPool(consumer.PoolConfig{
		Channels: func() (rabbitmq.Channel, error) {
			ch, err := conn.Channel()
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		Policies: cfg.Consumer.Policies,
		Training: sink,
		Logger:   logger,
	})

	for taskType, handler := range handlers.All(logger) {
		if err := pool.RegisterHandler(taskType, handler); err != nil {
			return err
		}
	}

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle(cfg.Telemetry.MetricsPath, telemetry.Default().Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("Consumer metrics listening", map[string]interface{}{
			"port": cfg.App.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		if err := pool.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", nil)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		logger.Warn("Pool stop incomplete", map[string]interface{}{
			"error": err.Error(),
		})
	}

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	return server.Shutdown(shutdownCtx)
}
