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
	"encoding/json"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/kraklabs/achesucatas/internal/config"
	"github.com/kraklabs/achesucatas/internal/ui"
)

// lastRun mirrors one row of run_executions for display purposes.
type lastRun struct {
	RunID           string     `db:"run_id" json:"run_id"`
	ExecutionStart  time.Time  `db:"execution_start" json:"execution_start"`
	ExecutionEnd    *time.Time `db:"execution_end" json:"execution_end,omitempty"`
	Status          string     `db:"status" json:"status"`
	Mode            string     `db:"mode" json:"mode"`
	CostTotal       float64    `db:"cost_total" json:"cost_total"`
	FailureReason   string     `db:"failure_reason" json:"failure_reason,omitempty"`
}

// runStatus executes the 'status' CLI command, showing the most recent
// run's lifecycle row.
func runStatus(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: achesucatas [--json] status\n\nShows the most recently started run.\n")
	}
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg := config.DefaultMinerConfig()
	cfg.LoadEnv()
	if cfg.DatabaseURL == "" {
		ui.Error("DATABASE_URL not configured")
		return exitFatal
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		ui.Error("connect: %v", err)
		return exitFatal
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var run lastRun
	err = db.GetContext(ctx, &run, `
SELECT run_id, execution_start, execution_end, status, mode, cost_total, coalesce(failure_reason, '') as failure_reason
FROM run_executions ORDER BY execution_start DESC LIMIT 1`)
	if err != nil {
		ui.Error("no runs recorded yet: %v", err)
		return exitFatal
	}

	if globals.JSON {
		encoded, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(encoded))
		return exitSuccess
	}

	fmt.Printf("run_id:   %s\n", run.RunID)
	fmt.Printf("status:   %s\n", run.Status)
	fmt.Printf("mode:     %s\n", run.Mode)
	fmt.Printf("started:  %s\n", run.ExecutionStart.Format(time.RFC3339))
	if run.ExecutionEnd != nil {
		fmt.Printf("ended:    %s\n", run.ExecutionEnd.Format(time.RFC3339))
	}
	fmt.Printf("cost:     $%.4f\n", run.CostTotal)
	if run.FailureReason != "" {
		fmt.Printf("failure:  %s\n", run.FailureReason)
	}
	return exitSuccess
}
