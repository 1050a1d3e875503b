// Package main is the entry point for the booking relay.
//
// It loads configuration, builds the Stripe client, webhook verifier,
// normalizer and downstream forwarder, mounts the relay routes on the core
// chassis and then serves them.
//
// Outside AWS it runs as a standard HTTP server on the configured port. Inside
// the Lambda runtime the chi router is bridged to API Gateway proxy events via
// chiadapter.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"golang.org/x/sync/errgroup"

	"bookingrelay/internal/api/handlers"
	"bookingrelay/internal/config"
	"bookingrelay/internal/core"
	"bookingrelay/internal/external"
	"bookingrelay/internal/relay"
	"bookingrelay/internal/types"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("booking relay starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"stripe_mode", cfg.Stripe.Active.Mode,
		"forwarding", cfg.Forward.URL != "",
	)

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}

	return runHTTPServer(srv, cfg, logger)
}

// secretProvider returns the SSM provider. LoadConfig skips resolution when
// APP_ENV=local, and the SDK client is only created on first use.
func secretProvider() config.SecretProvider {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "ap-northeast-1"
	}
	return config.NewSSMProvider(region)
}

// buildServer wires every relay component onto a core.Server and mounts
// the routes.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var recorder handlers.ForwardRecorder
	if cfg.Observability.MetricsEnabled {
		metrics, err := newCloudWatchMetrics(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		srv.Metrics = metrics
		recorder = metrics
	}

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: cfg.Stripe.Timeout},
		external.StripeClientConfig{
			SecretKey: cfg.Stripe.Active.SecretKey.Unmask(),
			BaseURL:   cfg.Stripe.APIBaseURL,
			Logger:    logger,
		},
	)
	verifier := external.NewStripeVerifier(cfg.Stripe.Active.WebhookSecret.Unmask())
	forwarder := external.NewHTTPForwarder(
		&http.Client{Timeout: cfg.Forward.Timeout},
		cfg.Forward.URL,
		logger,
		external.WithUserAgent(cfg.Forward.UserAgent),
	)

	normalizer := relay.NewNormalizer(stripeClient, relay.NormalizerConfig{
		PayAtStoreMethod: cfg.Checkout.PayAtStoreMethod,
		LookupTimeout:    cfg.Stripe.Timeout,
	}, logger)

	reservations := relay.NewReservationService(
		stripeClient,
		relay.NewReservationConfig(cfg.Checkout, cfg.Booking),
		types.RealClock{},
		logger,
	)

	webhookHandler := handlers.NewStripeWebhookHandler(verifier, normalizer, forwarder, recorder, cfg.Forward.Timeout, logger)
	checkoutHandler := handlers.NewCheckoutHandler(reservations, srv.Validator, logger)

	srv.RouteRegistrars = append(srv.RouteRegistrars,
		webhookHandler.RegisterRoutes,
		checkoutHandler.RegisterRoutes,
		handlers.RegisterPageRoutes,
	)
	srv.MountRoutes()

	return srv, nil
}

// newCloudWatchMetrics builds the metrics sink from the default AWS credential chain.
func newCloudWatchMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.CloudWatchMetrics, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for metrics: %w", err)
	}
	return core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda hands the router to the Lambda runtime. lambda.Start does not return.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in Lambda mode")
	adapter := chiadapter.New(srv.Router())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
