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

package cascade

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldRule documents one field's fallback order as listed in
// configs/cascade.yaml. The resolver does not read this file: its order is
// fixed in Go. For most fields that order matches the file; for municipio
// and uf the resolver consults only JSON and then XLSX candidates, with no
// path_heuristic or pdf stage.
type FieldRule struct {
	Field    string   `yaml:"field"`
	Priority []string `yaml:"priority"`
}

// Config is the parsed shape of cascade.yaml.
type Config struct {
	Fields []FieldRule `yaml:"fields"`
}

// LoadConfig reads cascade.yaml and returns an error for a missing or
// malformed file. The run command does not call it.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cascade config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse cascade config %s: %w", path, err)
	}
	return &cfg, nil
}

// PriorityFor returns the documented source order for field, or nil if
// the config does not mention it.
func (c *Config) PriorityFor(field string) []string {
	for _, r := range c.Fields {
		if r.Field == field {
			return r.Priority
		}
	}
	return nil
}
