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

// Package taxonomy loads the tag keyword table that the cascade resolver
// classifies against, and the auctioneer hostname whitelist. Neither the
// resolver nor the validator consults the whitelist.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Taxonomy is a tag -> keyword list used to classify free text into the
// fixed set of category tags the pipeline emits. order preserves the
// sequence tags appear in the YAML file, since Go map iteration order
// would otherwise make Classify's output non-deterministic.
type Taxonomy struct {
	Tags  map[string][]string
	order []string
}

// UnmarshalYAML decodes the "tags" mapping via its node form so key order
// survives into t.order instead of being lost to Go's map randomization.
func (t *Taxonomy) UnmarshalYAML(value *yaml.Node) error {
	var wrapper struct {
		TagsNode yaml.Node `yaml:"tags"`
	}
	if err := value.Decode(&wrapper); err != nil {
		return err
	}
	t.Tags = map[string][]string{}
	t.order = nil
	content := wrapper.TagsNode.Content
	for i := 0; i+1 < len(content); i += 2 {
		key := content[i].Value
		var keywords []string
		if err := content[i+1].Decode(&keywords); err != nil {
			return fmt.Errorf("decode keywords for tag %s: %w", key, err)
		}
		t.Tags[key] = keywords
		t.order = append(t.order, key)
	}
	return nil
}

// LoadTaxonomy reads a YAML file shaped like:
//
//	tags:
//	  VEICULOS: ["carro", "veiculo", "automovel"]
//	  SUCATA: ["sucata", "ferro-velho"]
func LoadTaxonomy(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return &t, nil
}

// Classify scans text for any keyword belonging to each tag and returns
// the matching tag names, in the order tags appear in the config. Matching
// ignores case and Portuguese diacritics ("caminhões" matches "caminhoes").
func (t *Taxonomy) Classify(text string) []string {
	fold := strings.NewReplacer("á", "a", "à", "a", "â", "a", "ã", "a", "é", "e", "ê", "e",
		"í", "i", "ó", "o", "ô", "o", "õ", "o", "ú", "u", "ü", "u", "ç", "c")
	lower := fold.Replace(strings.ToLower(text))
	var tags []string
	for _, tag := range t.order {
		for _, kw := range t.Tags[tag] {
			if strings.Contains(lower, fold.Replace(strings.ToLower(kw))) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

// Whitelist is a closed set of auctioneer hostnames; Allowed reports
// membership. leiloeiro_url resolution does not check against it.
type Whitelist struct {
	hosts map[string]struct{}
}

// LoadWhitelist reads a YAML file shaped like: hosts: ["leiloesjudiciais.com.br", ...]
func LoadWhitelist(path string) (*Whitelist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read whitelist %s: %w", path, err)
	}
	var parsed struct {
		Hosts []string `yaml:"hosts"`
	}
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse whitelist %s: %w", path, err)
	}
	hosts := make(map[string]struct{}, len(parsed.Hosts))
	for _, h := range parsed.Hosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Whitelist{hosts: hosts}, nil
}

func (w *Whitelist) Allowed(host string) bool {
	_, ok := w.hosts[strings.ToLower(host)]
	return ok
}
