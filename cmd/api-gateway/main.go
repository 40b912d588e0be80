package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/jhaveripatric/api-gateway/internal/config"
	"github.com/jhaveripatric/api-gateway/internal/logging"
	"github.com/jhaveripatric/api-gateway/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("api-gateway", flag.ContinueOnError)
	fset.SetOutput(stderr)
	configPath := fset.String("config", "config.toml", "path to config file (.toml, .yaml, .yml or .json)")
	envPrefix := fset.String("env-prefix", config.DefaultEnvPrefix, "environment variable prefix")
	dotenv := fset.String("dotenv", ".env", "dotenv file loaded into the environment; empty disables")
	validate := fset.Bool("validate", false, "resolve the configuration, print it and exit")
	if err := fset.Parse(args); err != nil {
		return 2
	}

	explicit := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if err := loadDotenv(*dotenv, explicit["dotenv"]); err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}

	layers, err := config.ReadLayers(config.Options{
		FilePath:     *configPath,
		FileRequired: explicit["config"],
		EnvPrefix:    *envPrefix,
	})
	if err != nil {
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}

	cfg, err := config.Resolve(layers...)
	if err != nil {
		reportConfigError(stderr, err)
		return 1
	}

	if *validate {
		printSummary(stdout, cfg, config.UnknownKeys(layers...))
		return 0
	}

	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	for _, k := range config.UnknownKeys(layers...) {
		logger.Warn("ignoring unknown config key", zap.String("key", k.Key), zap.Stringer("layer", k.Source))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", zap.Error(err))
		return 1
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}
	logger.Info("api gateway stopped")
	return 0
}

// loadDotenv fills unset variables from path. A missing default file is
// not an error.
func loadDotenv(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

// reportConfigError prints one line per problem, each naming the key and
// the layer it came from.
func reportConfigError(w io.Writer, err error) {
	fmt.Fprintln(w, "config error: refusing to start")
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			fmt.Fprintf(w, "  - %v\n", e)
		}
		return
	}
	fmt.Fprintf(w, "  - %v\n", err)
}

func printSummary(w io.Writer, cfg *config.GatewayConfig, unknown []config.UnknownKey) {
	fmt.Fprintln(w, "configuration OK")
	fmt.Fprintf(w, "  listen           %s (host: %s, port: %s)\n", cfg.Addr(), cfg.SourceOf("host"), cfg.SourceOf("port"))
	fmt.Fprintf(w, "  request timeout  %s (%s)\n", cfg.RequestTimeout, cfg.SourceOf("request_timeout_ms"))
	fmt.Fprintf(w, "  cors origins     %s (%s)\n", strings.Join(cfg.CORSOrigins, ", "), cfg.SourceOf("cors_origins"))
	fmt.Fprintf(w, "  error policy     %s (%s)\n", cfg.UpstreamErrorPolicy, cfg.SourceOf("upstream_error_policy"))
	for _, name := range slices.Sorted(maps.Keys(cfg.Upstreams)) {
		fmt.Fprintf(w, "  upstream         %s = %s (%s)\n", name, cfg.Upstreams[name], cfg.SourceOf("upstreams."+name))
	}
	for _, k := range unknown {
		fmt.Fprintf(w, "  ignored          %s (%s)\n", k.Key, k.Source)
	}
}
