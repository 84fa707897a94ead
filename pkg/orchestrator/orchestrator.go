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

// Package orchestrator drives one end-to-end run: discover candidates per
// source, push them through a bounded worker pool (fetch, extract,
// cascade, optional enrich, validate, route), and finalize the run
// tracker with a quality report and FinOps totals.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/achesucatas/internal/alert"
	"github.com/kraklabs/achesucatas/pkg/cascade"
	"github.com/kraklabs/achesucatas/pkg/discovery"
	"github.com/kraklabs/achesucatas/pkg/enrich"
	"github.com/kraklabs/achesucatas/pkg/extract"
	"github.com/kraklabs/achesucatas/pkg/fetch"
	"github.com/kraklabs/achesucatas/pkg/metrics"
	"github.com/kraklabs/achesucatas/pkg/model"
	"github.com/kraklabs/achesucatas/pkg/router"
	"github.com/kraklabs/achesucatas/pkg/runtracker"
	"github.com/kraklabs/achesucatas/pkg/validate"
)

// Options controls one run; it is the CLI layer's translation of flags
// into behavior the orchestrator understands.
type Options struct {
	RunID        string
	Mode         model.RunMode
	Since        time.Time
	RunLimit     int
	SourceFilter string
	Concurrency  int
}

// Orchestrator wires every pipeline stage together. All fields are
// constructed once by the CLI entrypoint and passed in by reference —
// the source material's global-singleton pattern for HTTPClient/
// repository/logger is deliberately avoided here (spec §9).
type Orchestrator struct {
	Discoverers map[string]discovery.Discoverer
	Fetcher     *fetch.Fetcher
	Extractors  *extract.Registry
	Resolver    *cascade.Resolver
	Enricher    enrich.Enricher
	Repository  router.Repository
	Tracker     *runtracker.Tracker
	Notifier    *alert.EmailNotifier
	Metrics     *metrics.Registry
	Log         *slog.Logger
}

// Result is the summary line printed at process exit.
type Result struct {
	Status  model.RunStatus
	Report  model.QualityReport
	Cascade model.CascadeStats
}

// runState is the mutable bookkeeping shared by every worker in the
// candidate pool: the cascade counters and the seen-id_interno set used
// to dedupe duplicate listings within one run (spec §5 — these, plus the
// RunTracker's own counters/event buffer, are the only cross-worker
// mutable state, and both are guarded by a single mutex).
type runState struct {
	mu      sync.Mutex
	stats   model.CascadeStats
	seenIDs map[string]struct{}
}

func newRunState() *runState {
	return &runState{seenIDs: make(map[string]struct{})}
}

func (s *runState) addEncontrados(n int) {
	s.mu.Lock()
	s.stats.Encontrados += n
	s.mu.Unlock()
}

func (s *runState) incr(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch field {
	case "novos":
		s.stats.Novos++
	case "skip_existe":
		s.stats.SkipExiste++
	case "duplicados":
		s.stats.Duplicados++
	case "downloads_ok":
		s.stats.DownloadsOK++
	case "downloads_falhou":
		s.stats.DownloadsFalhou++
	}
}

// markSeen reports whether idInterno was already observed this run,
// registering it atomically if not (so two workers racing on the same
// duplicate listing can never both see "new").
func (s *runState) markSeen(idInterno string) (dup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup = s.seenIDs[idInterno]; dup {
		return true
	}
	s.seenIDs[idInterno] = struct{}{}
	return false
}

func (s *runState) snapshot() model.CascadeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run executes the full pipeline described in spec §4.10. It returns a
// FAILED result (never an error the caller must itself translate) for
// every expected failure mode: safety-brake trip, datastore unreachable,
// or a canceled context.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Result {
	if err := o.Tracker.Start(ctx, opts.RunID, opts.Mode, "1.0"); err != nil {
		o.Log.Error("orchestrator.run.start.error", "err", err)
		return Result{Status: model.RunFailed}
	}

	state := newRunState()
	capacityExceeded := false

	for name, discoverer := range o.Discoverers {
		if opts.SourceFilter != "" && opts.SourceFilter != name {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		candidates, report, err := discoverer.Discover(ctx, opts.Since, opts.RunLimit)
		if err != nil {
			o.Log.Warn("orchestrator.discover.error", "source", name, "err", err)
			continue
		}
		state.addEncontrados(len(candidates))
		o.Log.Info("orchestrator.discover.done", "source", name, "count", len(candidates), "report", report)

		if err := o.processCandidates(ctx, opts, candidates, state); err != nil {
			switch {
			case errors.Is(err, router.ErrCapacityExceeded):
				capacityExceeded = true
				o.Log.Error("orchestrator.process.capacity_exceeded", "source", name, "err", err)
			case errors.Is(err, context.Canceled):
			default:
				o.Log.Error("orchestrator.process.error", "source", name, "err", err)
			}
			if capacityExceeded || errors.Is(err, context.Canceled) {
				break
			}
		}
	}
	stats := state.snapshot()

	// Capacity-exceeded is a fatal error (spec §4.8, §7): the whole run
	// fails closed, even though every individual write up to that point
	// succeeded. Interruption still takes priority when both apply.
	status := model.RunSuccess
	failureReason := ""
	switch {
	case ctx.Err() != nil:
		status = model.RunFailed
		failureReason = "interrupted"
	case capacityExceeded:
		status = model.RunFailed
		failureReason = "capacity_exceeded"
	}

	report, err := o.Tracker.Finalize(ctx, status, failureReason)
	if err != nil {
		o.Log.Error("orchestrator.finalize.error", "err", err)
	}

	if status == model.RunFailed && o.Notifier != nil {
		o.Notifier.SendAlert(alert.SeverityCritical, "Run failed", failureReason, map[string]any{"run_id": opts.RunID}, opts.RunID)
	}

	if o.Metrics != nil {
		o.Metrics.RunDuration.Observe(report.DurationSeconds)
		o.Metrics.QualityValidRatio.Set(report.TaxaValidosPct)
		o.Metrics.RunCost.Set(report.CostTotal)
	}

	return Result{Status: status, Report: report, Cascade: stats}
}

func (o *Orchestrator) processCandidates(ctx context.Context, opts Options, candidates []discovery.CandidateNotice, state *runState) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return o.processOne(gctx, opts, candidate, state)
		})
	}

	return g.Wait()
}

// processOne runs one candidate through fetch/extract/cascade/enrich/
// validate/route. It returns nil for every expected per-candidate failure
// (fetch error, extraction error, quarantine write error) — the run
// continues past those, per spec §7. It returns a non-nil error only for
// router.ErrCapacityExceeded, the one failure mode that must stop the
// whole run (spec §4.8, §7).
func (o *Orchestrator) processOne(ctx context.Context, opts Options, notice discovery.CandidateNotice, state *runState) error {
	fetched, tombstoned, err := o.Fetcher.Fetch(ctx, notice)
	if tombstoned {
		return nil
	}
	if err != nil {
		o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaColeta, Evento: "fetch.error", Nivel: model.LevelWarning, Mensagem: err.Error()})
		state.incr("downloads_falhou")
		return nil
	}
	state.incr("downloads_ok")

	var partials []extract.PartialRecord
	if len(fetched.DetailJSON) > 0 {
		jsonExtractor := extract.NewJSONExtractor()
		p, _ := jsonExtractor.Extract(fetch.Attachment{Name: "detail.json", Kind: fetch.KindJSON, Body: fetched.DetailJSON})
		partials = append(partials, p)
	}
	for _, att := range fetched.Attachments {
		p, err := o.Extractors.Extract(att)
		if err != nil {
			o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaExtract, Evento: "extract.error", Nivel: model.LevelWarning, Mensagem: err.Error()})
			continue
		}
		partials = append(partials, p)
	}

	rec := o.Resolver.Resolve(notice.SourceName, notice.SourceExternalID, cascade.FromPartials(partials))
	rec.StoragePath = strPtrOrNil(fetched.StoragePath)

	if dup := state.markSeen(rec.IDInterno); dup {
		state.incr("duplicados")
		return nil
	}

	if !opts.Force() {
		exists, err := o.Repository.Exists(ctx, rec.IDInterno)
		if err == nil && exists {
			state.incr("skip_existe")
			return nil
		}
	}
	state.incr("novos")

	if o.Enricher != nil {
		pdfHead := ""
		if len(fetched.Attachments) > 0 {
			pdfHead = truncateStr(string(fetched.Attachments[0].Body), 500)
		}
		enriched, usage, err := o.Enricher.Enrich(ctx, rec, pdfHead)
		if err != nil {
			o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaEnrich, Evento: "enrich.error", Nivel: model.LevelWarning, Mensagem: err.Error()})
		} else {
			rec = enriched
			o.Tracker.AddCost(usage.Cost, usage.Cost, 1)
		}
	}

	result := validate.Validate(rec)
	o.Tracker.Count("processados", 1)

	switch result.Status {
	case model.StatusValid:
		o.Tracker.Count("validos", 1)
		if err := o.Repository.UpsertValid(ctx, result.Record); err != nil {
			o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaUpsert, Evento: "upsert.err", Nivel: model.LevelError, Mensagem: err.Error()})
			if errors.Is(err, router.ErrCapacityExceeded) {
				return err
			}
			return nil
		}
		o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaUpsert, Evento: "upsert.ok", Nivel: model.LevelInfo, Mensagem: rec.IDInterno})
	default:
		o.Tracker.Count("quarentena", 1)
		switch result.Status {
		case model.StatusDraft:
			o.Tracker.Count("draft", 1)
		case model.StatusNotSellable:
			o.Tracker.Count("not_sellable", 1)
		case model.StatusRejected:
			o.Tracker.Count("rejected", 1)
		}
		rejection := model.RejectionRecord{
			RunID:            opts.RunID,
			IDInterno:        rec.IDInterno,
			Status:           result.Status,
			Errors:           result.Errors,
			NormalizedRecord: map[string]any{"titulo": result.Record.Titulo},
		}
		if err := o.Repository.InsertQuarantine(ctx, rejection); err != nil {
			o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaQuarantine, Evento: "quarantine.err", Nivel: model.LevelError, Mensagem: err.Error()})
			return nil
		}
		o.Tracker.RecordEvent(ctx, model.PipelineEvent{Etapa: model.EtapaQuarantine, Evento: "quarantine.ok", Nivel: model.LevelInfo, Mensagem: rec.IDInterno})
	}
	return nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Force reports whether --force (FULL mode) is set for this run.
func (o Options) Force() bool { return o.Mode == model.ModeFull }
