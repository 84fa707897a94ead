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

// Package main implements the Ache Sucatas CLI: a harvester that crawls
// public-auction sources for vehicle-salvage lots and lands them in
// Postgres.
//
// Usage:
//
//	achesucatas run [--dias N] [--force] [--source NAME]   Run the pipeline once
//	achesucatas [--json] status                            Show the most recent run's status
//	achesucatas config                                     Show resolved configuration
//	achesucatas reset --run-id ID --yes                    Clear quarantine data for a run
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/achesucatas/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds flags every subcommand can see.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output (progress, info messages)")
	)

	// Stop parsing at the first non-flag argument so subcommand flags
	// like "run --force" pass through instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Ache Sucatas - public-auction vehicle-salvage harvester

Crawls PNCP and leiloeiro sitemaps for auction notices, extracts structured
lot data from PDF/XLSX/DOCX attachments, and lands validated records in
Postgres for downstream search.

Usage:
  achesucatas <command> [options]

Commands:
  run       Run the pipeline once
  status    Show the most recent run's status
  config    Show resolved configuration
  reset     Clear quarantine data for a run (destructive!)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output (progress, info messages)
  -V, --version     Show version and exit

Examples:
  achesucatas run                      Incremental run over the last day
  achesucatas run --dias 7 --force     Reprocess the last week, ignoring skip-existing
  achesucatas run --source pncp        Run only the PNCP source
  achesucatas --json status            Most recent run as JSON

Environment Variables:
  DATABASE_URL        Postgres connection string (required)
  PNCP_SEARCH_TERMS   Pipe-separated search terms for the PNCP source
  OPENAI_API_KEY      Enables LLM enrichment when set
  EMAIL_ADDRESS       Gmail account used for alert emails
  EMAIL_APP_PASSWORD  Gmail app password for alert emails

For detailed command help: achesucatas <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("achesucatas version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}

	// JSON mode auto-enables quiet so progress bars never corrupt output.
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		NoColor: *noColor,
		Verbose: *verbose,
		Quiet:   *quiet,
	}

	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	var exitCode int
	switch command {
	case "run":
		exitCode = runRun(cmdArgs, globals)
	case "status":
		exitCode = runStatus(cmdArgs, globals)
	case "config":
		exitCode = runConfig(cmdArgs, globals)
	case "reset":
		exitCode = runReset(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		exitCode = 1
	}

	os.Exit(exitCode)
}
