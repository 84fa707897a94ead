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
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/achesucatas/internal/config"
)

// runConfig executes the 'config' CLI command, printing the resolved
// MinerConfig (env layered over defaults; CLI flags are per-run and not
// shown here since this command takes none of its own).
func runConfig(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: achesucatas [--json] config\n\nShows resolved configuration (secrets redacted).\n")
	}
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	cfg := config.DefaultMinerConfig()
	cfg.LoadEnv()

	redacted := cfg
	redacted.OpenAIAPIKey = redact(redacted.OpenAIAPIKey)
	redacted.EmailAppPassword = redact(redacted.EmailAppPassword)
	if redacted.DatabaseURL != "" {
		redacted.DatabaseURL = redact(redacted.DatabaseURL)
	}

	if globals.JSON {
		encoded, _ := json.MarshalIndent(redacted, "", "  ")
		fmt.Println(string(encoded))
		return exitSuccess
	}

	fmt.Printf("sources_path:    %s\n", redacted.SourcesPath)
	fmt.Printf("taxonomy_path:   %s\n", redacted.TaxonomyPath)
	fmt.Printf("whitelist_path:  %s\n", redacted.WhitelistPath)
	fmt.Printf("cascade_path:    %s\n", redacted.CascadePath)
	fmt.Printf("database_url:    %s\n", redacted.DatabaseURL)
	fmt.Printf("storage_bucket:  %s\n", redacted.StorageBucket)
	fmt.Printf("max_primary:     %d\n", redacted.MaxPrimaryRows)
	fmt.Printf("openai_model:    %s\n", redacted.OpenAIModel)
	fmt.Printf("openai_api_key:  %s\n", redacted.OpenAIAPIKey)
	fmt.Printf("email_address:   %s\n", redacted.EmailAddress)
	fmt.Printf("alert_email_to:  %s\n", redacted.AlertEmailTo)
	return exitSuccess
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
