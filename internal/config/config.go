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

// Package config assembles MinerConfig from CLI flags layered over
// environment variables, and loads the sources file the rest of the
// pipeline reads at startup. The taxonomy and whitelist loaders live in
// pkg/taxonomy; this package only carries their file paths.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SourceKind selects which Discoverer implementation a Source uses.
type SourceKind string

const (
	SourceKindPNCP    SourceKind = "pncp"
	SourceKindSitemap SourceKind = "sitemap"
)

// SourceDef is one entry of sources.yaml.
type SourceDef struct {
	Name             string     `yaml:"name" validate:"required"`
	Kind             SourceKind `yaml:"kind" validate:"required,oneof=pncp sitemap"`
	BaseURL          string     `yaml:"base_url" validate:"required,url"`
	Termo            string     `yaml:"termo"`
	LotURLPattern    string     `yaml:"lot_url_pattern"`
	CategoryKeywords []string   `yaml:"category_keywords"`
}

// SourcesFile is the top-level shape of sources.yaml.
type SourcesFile struct {
	Sources []SourceDef `yaml:"sources"`
}

// LoadSources reads and validates sources.yaml.
func LoadSources(path string) ([]SourceDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	var parsed SourcesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	v := validator.New()
	for i, s := range parsed.Sources {
		if err := v.Struct(s); err != nil {
			return nil, fmt.Errorf("source %d (%s) invalid: %w", i, s.Name, err)
		}
	}
	return parsed.Sources, nil
}

// MinerConfig is the fully-resolved configuration for one orchestrator
// run: CLI flags layered over environment variables, with defaults filled
// in for anything neither supplied.
type MinerConfig struct {
	Dias           int    `validate:"gte=0"`
	Paginas        int    `validate:"gte=1"`
	Tamanho        int    `validate:"gte=1,lte=500"`
	RunLimit       int
	Force          bool
	SourceFilter   string
	Verbose        bool
	MetricsAddr    string

	DatabaseURL      string `validate:"required"`
	RedisURL         string
	PNCPSearchTerms  []string
	OpenAIAPIKey     string
	OpenAIModel      string
	MaxPrimaryRows   int `validate:"gte=1"`
	StorageBucket    string
	EmailAddress     string
	EmailAppPassword string
	AlertEmailTo     string

	SourcesPath   string
	TaxonomyPath  string
	WhitelistPath string
	CascadePath   string
}

// DefaultMinerConfig returns the baseline a Flags overlay starts from.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{
		Dias:           1,
		Paginas:        1,
		Tamanho:        50,
		MaxPrimaryRows: 10000,
		StorageBucket:  "editais-pdfs",
		SourcesPath:    "configs/sources.yaml",
		TaxonomyPath:   "configs/taxonomy.yaml",
		WhitelistPath:  "configs/whitelist.yaml",
		CascadePath:    "configs/cascade.yaml",
	}
}

// LoadEnv layers environment variables onto cfg. Flags are applied by the
// CLI layer afterwards and always win over env, matching the teacher's
// "flags over env over defaults" precedence.
func (cfg *MinerConfig) LoadEnv() {
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	if terms := os.Getenv("PNCP_SEARCH_TERMS"); terms != "" {
		cfg.PNCPSearchTerms = strings.Split(terms, "|")
	}
	cfg.OpenAIAPIKey = envOr("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = envOr("OPENAI_MODEL", cfg.OpenAIModel)
	if v := os.Getenv("MAX_PRIMARY_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPrimaryRows = n
		}
	}
	cfg.StorageBucket = envOr("STORAGE_BUCKET", cfg.StorageBucket)
	cfg.EmailAddress = envOr("EMAIL_ADDRESS", cfg.EmailAddress)
	cfg.EmailAppPassword = envOr("EMAIL_APP_PASSWORD", cfg.EmailAppPassword)
	cfg.AlertEmailTo = envOr("ALERT_EMAIL_TO", cfg.AlertEmailTo)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate runs struct-tag validation over the resolved config.
func (cfg *MinerConfig) Validate() error {
	return validator.New().Struct(cfg)
}
