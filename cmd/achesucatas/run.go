// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/achesucatas/internal/alert"
	"github.com/kraklabs/achesucatas/internal/blobstore"
	"github.com/kraklabs/achesucatas/internal/config"
	"github.com/kraklabs/achesucatas/internal/ui"
	"github.com/kraklabs/achesucatas/pkg/cascade"
	"github.com/kraklabs/achesucatas/pkg/discovery"
	"github.com/kraklabs/achesucatas/pkg/enrich"
	"github.com/kraklabs/achesucatas/pkg/extract"
	"github.com/kraklabs/achesucatas/pkg/fetch"
	"github.com/kraklabs/achesucatas/pkg/httpclient"
	"github.com/kraklabs/achesucatas/pkg/metrics"
	"github.com/kraklabs/achesucatas/pkg/model"
	"github.com/kraklabs/achesucatas/pkg/orchestrator"
	"github.com/kraklabs/achesucatas/pkg/router"
	"github.com/kraklabs/achesucatas/pkg/runtracker"
	"github.com/kraklabs/achesucatas/pkg/taxonomy"
)

const (
	exitSuccess     = 0
	exitFatal       = 1
	exitInterrupted = 130
)

// runRun executes the 'run' CLI command: one full discover-fetch-extract-
// cascade-validate-route pass.
func runRun(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	dias := fs.Int("dias", 1, "Look back this many days for new/updated notices")
	paginas := fs.Int("paginas", 1, "Pages per source (stored in the config; discovery does not read it)")
	tamanho := fs.Int("tamanho", 50, "Page size per source (stored in the config; discovery does not read it)")
	runLimit := fs.Int("run-limit", 0, "Stop after this many candidates (0 = unlimited)")
	force := fs.Bool("force", false, "Reprocess ids already present in the primary table")
	source := fs.String("source", "", "Only run the named source")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: achesucatas run [options]

Discovers auction notices from every configured source, fetches and
parses their attachments, resolves a record via field-priority cascade,
validates it, and routes it to the primary or quarantine table.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg := config.DefaultMinerConfig()
	cfg.LoadEnv()
	cfg.Dias = *dias
	cfg.Paginas = *paginas
	cfg.Tamanho = *tamanho
	cfg.RunLimit = *runLimit
	cfg.Force = *force
	cfg.SourceFilter = *source
	cfg.Verbose = globals.Verbose > 0
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		ui.Error("config invalid: %v", err)
		return exitFatal
	}

	logLevel := slog.LevelInfo
	if globals.Verbose >= 2 {
		logLevel = slog.LevelDebug
	}
	if globals.Quiet {
		logLevel = slog.LevelWarn
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := "run_" + uuid.NewString()

	o, cleanup, err := buildOrchestrator(ctx, cfg, log)
	if err != nil {
		ui.Error("startup failed: %v", err)
		return exitFatal
	}
	defer cleanup()

	mode := model.ModeIncremental
	if cfg.Force {
		mode = model.ModeFull
	}

	result := o.Run(ctx, orchestrator.Options{
		RunID:        runID,
		Mode:         mode,
		Since:        time.Now().AddDate(0, 0, -cfg.Dias),
		RunLimit:     cfg.RunLimit,
		SourceFilter: cfg.SourceFilter,
		Concurrency:  4,
	})

	printSummary(runID, result)

	if ctx.Err() != nil {
		return exitInterrupted
	}
	if result.Status != model.RunSuccess {
		return exitFatal
	}
	return exitSuccess
}

func printSummary(runID string, result orchestrator.Result) {
	r := result.Report
	fmt.Printf("RUN %s %s total=%d valid=%d quarantine=%d dur=%.0fs cost=$%.4f\n",
		runID, result.Status, r.TotalProcessados, r.TotalValidos, r.TotalQuarentena, r.DurationSeconds, r.CostTotal)
}

// buildOrchestrator wires every pipeline stage together from resolved
// configuration. The returned cleanup func closes the database pool, the
// run-tracker connection and the Redis client, if one was opened. A metrics
// server started here is tied to ctx, not to cleanup.
func buildOrchestrator(ctx context.Context, cfg config.MinerConfig, log *slog.Logger) (*orchestrator.Orchestrator, func(), error) {
	pool, err := router.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect repository: %w", err)
	}

	trackerDB, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect run tracker: %w", err)
	}

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		pool.Close()
		trackerDB.Close()
		return nil, nil, fmt.Errorf("load sources: %w", err)
	}

	tax, err := taxonomy.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		pool.Close()
		trackerDB.Close()
		return nil, nil, fmt.Errorf("load taxonomy: %w", err)
	}

	httpClient := httpclient.New(httpclient.DefaultConfig())

	discoverers := make(map[string]discovery.Discoverer, len(sources))
	for _, s := range sources {
		switch s.Kind {
		case config.SourceKindPNCP:
			termo := s.Termo
			if len(cfg.PNCPSearchTerms) > 0 {
				termo = cfg.PNCPSearchTerms[0]
			}
			discoverers[s.Name] = discovery.NewPNCPSource(httpClient, s.BaseURL, termo, log)
		case config.SourceKindSitemap:
			src, err := discovery.NewSitemapSource(httpClient, s.BaseURL, s.LotURLPattern, s.CategoryKeywords, log)
			if err != nil {
				log.Warn("run.source.skip", "source", s.Name, "err", err)
				continue
			}
			discoverers[s.Name] = src
		}
	}

	blobs := blobstore.NewLocalStore(cfg.StorageBucket)
	fetcher := fetch.New(httpClient, blobs, log)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Warn("run.redis.parse_error", "err", err)
		} else {
			redisClient = redis.NewClient(opts)
			fetcher = fetcher.WithTombstoneCache(fetch.NewRedisTombstoneCache(redisClient))
		}
	}

	inner := extract.NewRegistry(
		extract.NewJSONExtractor(),
		extract.NewPDFExtractor(),
		extract.NewXLSXExtractor(),
		extract.NewCSVExtractor(),
		extract.NewDOCXExtractor(),
	)
	registry := extract.NewRegistry(
		extract.NewJSONExtractor(),
		extract.NewPDFExtractor(),
		extract.NewXLSXExtractor(),
		extract.NewCSVExtractor(),
		extract.NewDOCXExtractor(),
		extract.NewZIPExtractor(inner),
	)

	resolver := cascade.NewResolver(tax)

	var enricher enrich.Enricher = enrich.NoopEnricher{}
	if cfg.OpenAIAPIKey != "" {
		enricher = enrich.NewOpenAIEnricher(cfg.OpenAIAPIKey, cfg.OpenAIModel, enrich.Pricing{
			PriceInputPerMillion:  0.15,
			PriceOutputPerMillion: 0.60,
		})
	}

	repo := router.NewPostgresRepository(router.NewPgxQuerier(pool), cfg.MaxPrimaryRows)
	tracker := runtracker.New(trackerDB)
	notifier := alert.NewEmailNotifierFromEnv(log)

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		reg = metrics.NewRegistry()
		go metrics.Serve(ctx, cfg.MetricsAddr, log)
	}

	o := &orchestrator.Orchestrator{
		Discoverers: discoverers,
		Fetcher:     fetcher,
		Extractors:  registry,
		Resolver:    resolver,
		Enricher:    enricher,
		Repository:  repo,
		Tracker:     tracker,
		Notifier:    notifier,
		Metrics:     reg,
		Log:         log,
	}

	cleanup := func() {
		pool.Close()
		trackerDB.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return o, cleanup, nil
}
