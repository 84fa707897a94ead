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

// Package runtracker persists one RunExecution row per orchestrator run
// and batches its PipelineEvent log so per-candidate bookkeeping doesn't
// cost a database round-trip per event.
package runtracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// flushThreshold mirrors the spec's "every N events or at shutdown" rule.
const flushThreshold = 50

// Tracker records one run's lifecycle: start, buffered events, and the
// final QualityReport/FinOps snapshot.
type Tracker struct {
	db *sqlx.DB

	mu       sync.Mutex
	run      model.RunExecution
	events   []model.PipelineEvent
	quality  model.QualityReport
}

func New(db *sqlx.DB) *Tracker {
	return &Tracker{db: db}
}

// Start inserts a RUNNING RunExecution row and returns the tracker ready
// to accept events for runID.
func (t *Tracker) Start(ctx context.Context, runID string, mode model.RunMode, versaoMiner string) error {
	t.mu.Lock()
	t.run = model.RunExecution{
		RunID:          runID,
		ExecutionStart: time.Now(),
		Status:         model.RunRunning,
		Mode:           mode,
		VersaoMiner:    versaoMiner,
	}
	t.quality = model.QualityReport{RunID: runID, StartedAt: t.run.ExecutionStart}
	t.mu.Unlock()

	_, err := t.db.ExecContext(ctx, `
INSERT INTO run_executions (run_id, execution_start, status, mode, versao_miner)
VALUES ($1, $2, $3, $4, $5)`,
		runID, t.run.ExecutionStart, t.run.Status, t.run.Mode, t.run.VersaoMiner)
	if err != nil {
		return fmt.Errorf("insert run_executions: %w", err)
	}
	return nil
}

// RecordEvent buffers a PipelineEvent, flushing when the buffer reaches
// flushThreshold.
func (t *Tracker) RecordEvent(ctx context.Context, ev model.PipelineEvent) error {
	ev.RunID = t.currentRunID()
	t.mu.Lock()
	t.events = append(t.events, ev)
	shouldFlush := len(t.events) >= flushThreshold
	t.mu.Unlock()

	if shouldFlush {
		return t.Flush(ctx)
	}
	return nil
}

func (t *Tracker) currentRunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run.RunID
}

// Flush batch-inserts the buffered events in one round-trip.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	pending := t.events
	t.events = nil
	t.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event flush tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
INSERT INTO pipeline_events (run_id, etapa, evento, nivel, mensagem, dados, timing_ms, counter, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`)
	if err != nil {
		return fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range pending {
		dados, err := json.Marshal(ev.Dados)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ev.RunID, ev.Etapa, ev.Evento, ev.Nivel, ev.Mensagem, dados, ev.TimingMs, ev.Counter); err != nil {
			return fmt.Errorf("insert pipeline_event: %w", err)
		}
	}

	return tx.Commit()
}

// Count increments a QualityReport counter under the tracker's mutex, the
// same one that guards the event buffer above.
func (t *Tracker) Count(field string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch field {
	case "processados":
		t.quality.TotalProcessados += delta
	case "validos":
		t.quality.TotalValidos += delta
	case "draft":
		t.quality.DraftCount += delta
	case "not_sellable":
		t.quality.NotSellableCount += delta
	case "rejected":
		t.quality.RejectedCount += delta
	case "quarentena":
		t.quality.TotalQuarentena += delta
	}
}

// AddCost accumulates FinOps numbers from an enrichment call.
func (t *Tracker) AddCost(total, openai float64, pdfs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quality.CostTotal += total
	t.quality.CostOpenAI += openai
	t.quality.NumPDFs += pdfs
}

// Finalize flushes remaining events, computes final rates, and updates
// the RunExecution row with status, the QualityReport snapshot, and
// FinOps totals.
func (t *Tracker) Finalize(ctx context.Context, status model.RunStatus, failureReason string) (model.QualityReport, error) {
	if err := t.Flush(ctx); err != nil {
		return model.QualityReport{}, err
	}

	t.mu.Lock()
	finishedAt := time.Now()
	t.quality.FinishedAt = finishedAt
	t.quality.DurationSeconds = finishedAt.Sub(t.quality.StartedAt).Seconds()
	t.quality.Rates()
	if t.quality.CostTotal > 0 && t.quality.TotalProcessados > 0 {
		t.quality.CustoPorMil = t.quality.CostTotal / float64(t.quality.TotalProcessados) * 1000
	}
	report := t.quality
	runID := t.run.RunID
	costTotal := t.quality.CostTotal
	costOpenAI := t.quality.CostOpenAI
	t.mu.Unlock()

	_, err := t.db.ExecContext(ctx, `
UPDATE run_executions SET
	execution_end = $2, status = $3, failure_reason = $4, cost_total = $5, cost_openai = $6
WHERE run_id = $1`,
		runID, finishedAt, status, failureReason, costTotal, costOpenAI)
	if err != nil {
		return report, fmt.Errorf("finalize run_executions: %w", err)
	}
	return report, nil
}

// Quality returns a snapshot of the in-flight QualityReport, safe to call
// concurrently with Count/AddCost.
func (t *Tracker) Quality() model.QualityReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quality
}
