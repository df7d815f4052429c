// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ctgov CLI. It searches and pages
// through ClinicalTrials.gov studies, inspects the API schema and keeps
// fetched studies in a local SQLite store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ctgov/internal/ctgov"
	"github.com/pdiddy/ctgov/internal/fetch"
	"github.com/pdiddy/ctgov/internal/logging"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/internal/schema"
	"github.com/pdiddy/ctgov/internal/secrets"
	"github.com/pdiddy/ctgov/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// app holds the components shared by subcommands. It is built once in the
// root PersistentPreRunE.
type app struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	client   *ctgov.Client
	registry *schema.Registry
	fetcher  *fetch.Fetcher

	metricsSrv *http.Server
}

var cli app

// envKeyReplacer maps nested keys such as store.path to CTGOV_STORE_PATH.
var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// rootCmd is the base command for the ctgov CLI.
var rootCmd = &cobra.Command{
	Use:   "ctgov",
	Short: "Query the ClinicalTrials.gov v2 API",
	Long: `ctgov searches ClinicalTrials.gov studies through the v2 API. Field
paths, enum values and search areas are validated against the live schema
before any study request is sent, and results are paged with the API's
continuation tokens.

Fetched studies can be kept in a local SQLite store for offline full-text
search and export.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./ctgov.yaml or ~/.config/ctgov/ctgov.yaml)")
	pf.String("base-url", types.DefaultBaseURL, "API root including the version segment")
	pf.Duration("timeout", 30*time.Second, "timeout for a single request attempt")
	pf.Float64("rps", 5, "client-side request rate limit (0 disables)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.Bool("log-pretty", false, "human-readable log output")
	pf.String("secrets-dir", ".secrets", "directory of secret files")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	pf.String("db", "data/ctgov.db", "SQLite database for the local store")

	viper.BindPFlag("base_url", pf.Lookup("base-url"))
	viper.BindPFlag("timeout", pf.Lookup("timeout"))
	viper.BindPFlag("requests_per_second", pf.Lookup("rps"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.pretty", pf.Lookup("log-pretty"))
	viper.BindPFlag("secrets_dir", pf.Lookup("secrets-dir"))
	viper.BindPFlag("metrics_addr", pf.Lookup("metrics-addr"))
	viper.BindPFlag("store.path", pf.Lookup("db"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ctgov")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ctgov"))
		}
	}

	def := types.DefaultAPIConfig()
	viper.SetDefault("user_agent", def.UserAgent)
	viper.SetDefault("max_attempts", def.MaxAttempts)
	viper.SetDefault("cache_size", def.CacheSize)
	viper.SetDefault("cache_ttl", def.CacheTTL)
	viper.SetDefault("page_size", def.PageSize)
	viper.SetDefault("store.max_results", 20)

	viper.SetEnvPrefix("CTGOV")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// apiConfig assembles the client settings from flags, environment, config
// file and secrets, in that order of precedence.
func apiConfig(s secrets.Set) types.APIConfig {
	cfg := types.APIConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("timeout"),
			UserAgent: viper.GetString("user_agent"),
		},
		BaseURL:           viper.GetString("base_url"),
		APIKey:            viper.GetString("api_key"),
		MaxAttempts:       viper.GetInt("max_attempts"),
		RequestsPerSecond: viper.GetFloat64("requests_per_second"),
		CacheSize:         viper.GetInt("cache_size"),
		CacheTTL:          viper.GetDuration("cache_ttl"),
		PageSize:          viper.GetInt("page_size"),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = s.Get(secrets.APIKey, "")
	}
	return cfg
}

func storeConfig() types.StoreConfig {
	return types.StoreConfig{
		Path:       viper.GetString("store.path"),
		MaxResults: viper.GetInt("store.max_results"),
	}
}

func setup(cmd *cobra.Command, args []string) error {
	log := logging.New(types.LogConfig{
		Level:  viper.GetString("log.level"),
		Pretty: viper.GetBool("log.pretty"),
	}, os.Stderr)

	s, err := secrets.Load(viper.GetString("secrets_dir"), log)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		keys := make([]string, 0, len(s))
		for k := range s {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		log.Debug().Strs("keys", keys).Msg("loaded secrets")
	}

	var m *metrics.Metrics
	var srv *http.Server
	if addr := viper.GetString("metrics_addr"); addr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv = serveMetrics(addr, reg, log)
	}

	cfg := apiConfig(s)
	client := ctgov.NewClient(cfg,
		ctgov.WithLogger(logging.Component(log, "client")),
		ctgov.WithMetrics(m),
	)
	cli = app{
		log:     log,
		metrics: m,
		client:  client,
		registry: schema.New(client,
			schema.WithLogger(logging.Component(log, "schema")),
			schema.WithMetrics(m),
		),
		fetcher: fetch.New(client,
			fetch.WithPageSize(cfg.PageSize),
			fetch.WithLogger(logging.Component(log, "fetch")),
			fetch.WithMetrics(m),
		),
		metricsSrv: srv,
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}

func teardown(cmd *cobra.Command, args []string) error {
	if cli.metricsSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return cli.metricsSrv.Shutdown(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
