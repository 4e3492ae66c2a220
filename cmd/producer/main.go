// The producer binary exposes the task submission API and publishes
// AI-routed tasks onto the broker.
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

	"github.com/routemind/routemind/core"
	"github.com/routemind/routemind/prediction"
	"github.com/routemind/routemind/producer"
	"github.com/routemind/routemind/rabbitmq"
	"github.com/routemind/routemind/resilience"
	"github.com/routemind/routemind/telemetry"
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

	opts := []core.Option{core.WithAppName("producer")}
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

	rawCh, err := conn.Channel()
	if err != nil {
		return err
	}
	channel, err := rabbitmq.NewConfirmChannel(rawCh)
	if err != nil {
		return err
	}
	if err := rabbitmq.DeclareTopology(channel); err != nil {
		return err
	}

	predictor := prediction.NewClient(prediction.ClientConfig{
		BaseURL:      cfg.Prediction.BaseURL,
		Timeout:      cfg.Prediction.Timeout,
		HealthWindow: cfg.Prediction.HealthWindow,
		Breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:   "prediction-service",
			Logger: logger,
		}),
		Logger: logger,
	})

	publisher := producer.NewPublisher(producer.PublisherConfig{
		Channel:   channel,
		Predictor: predictor,
		Logger:    logger,
	})

	supervisor := producer.NewSupervisor(publisher, logger)
	if cfg.App.AutoSendEnabled {
		if err := supervisor.Start(cfg.App.AutoSendInterval); err != nil {
			return err
		}
	}

	api := producer.NewAPI(publisher, supervisor, cfg.App.AutoSendInterval, logger)

	router := chi.NewRouter()
	api.Routes(router)
	router.Handle(cfg.Telemetry.MetricsPath, telemetry.Default().Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Producer listening", map[string]interface{}{
			"port": cfg.App.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", nil)
	if supervisor.Running() {
		_ = supervisor.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
