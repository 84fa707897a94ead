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

// Package extract turns a fetched attachment's raw bytes into a
// PartialRecord of loosely-typed candidate field values, one extractor
// per document format. No extractor ever produces a final AuctionRecord:
// that is the cascade resolver's job.
package extract

import (
	"fmt"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// PartialRecord is a bag of field values an extractor was able to pull
// from one document, keyed by the cascade's canonical field names.
type PartialRecord struct {
	SourceKind fetch.DocKind
	SourceName string
	Fields     map[string]any
	Warnings   []string
}

// Extractor turns one attachment's bytes into a PartialRecord. Extractors
// never fail hard on malformed input: a document that cannot be parsed
// yields an empty PartialRecord with a warning, so the cascade can still
// fall back to other candidates.
type Extractor interface {
	Extract(att fetch.Attachment) (PartialRecord, error)
	Supports(kind fetch.DocKind) bool
}

// Registry dispatches to the first extractor that supports a kind.
type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

func (r *Registry) supports(kind fetch.DocKind) bool {
	for _, e := range r.extractors {
		if e.Supports(kind) {
			return true
		}
	}
	return false
}

func (r *Registry) Extract(att fetch.Attachment) (PartialRecord, error) {
	for _, e := range r.extractors {
		if e.Supports(att.Kind) {
			return e.Extract(att)
		}
	}
	return PartialRecord{}, fmt.Errorf("no extractor registered for kind %q", att.Kind)
}
