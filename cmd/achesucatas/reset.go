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
	"os"
	"time"

	flag "github.com/spf13/pflag"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/kraklabs/achesucatas/internal/config"
	"github.com/kraklabs/achesucatas/internal/ui"
)

// runReset executes the 'reset' CLI command, deleting quarantine rows for
// one run so it can be reprocessed cleanly. It never touches the primary
// table: that data is never "reset", only superseded by a later upsert.
func runReset(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	runID := fs.String("run-id", "", "Run whose quarantine rows should be cleared (required)")
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: achesucatas reset --run-id ID --yes

Description:
  Deletes quarantine rows recorded for one run. The primary table is
  never touched; a record only leaves it by being superseded.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	if *runID == "" {
		ui.Error("--run-id is required")
		return exitFatal
	}
	if !*confirm {
		ui.Error("--yes is required to confirm this destructive operation")
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

	result, err := db.ExecContext(ctx, `DELETE FROM quarantine_records WHERE run_id = $1`, *runID)
	if err != nil {
		ui.Error("delete quarantine_records: %v", err)
		return exitFatal
	}
	affected, _ := result.RowsAffected()

	ui.Success("cleared %d quarantine rows for %s", affected, *runID)
	return exitSuccess
}
