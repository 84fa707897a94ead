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

// Package enrich is an optional capability the orchestrator can run after
// the cascade resolver: given an LLM API key, it fills in whatever the
// cascade left empty. Without a key, NoopEnricher is a pass-through so
// the rest of the pipeline never has to special-case its absence.
package enrich

import (
	"context"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// Usage tracks token/cost accounting for one Enrich call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// Enricher fills in empty fields on rec using an external model. On a
// failure it returns rec unchanged together with a non-nil error, from
// which callers emit an "enrich" warning event. Usage is zero when the API
// call itself failed and carries the billed tokens when the reply could
// not be used.
type Enricher interface {
	Enrich(ctx context.Context, rec model.AuctionRecord, pdfHead string) (model.AuctionRecord, Usage, error)
}

// NoopEnricher is the default when no LLM API key is configured.
type NoopEnricher struct{}

func (NoopEnricher) Enrich(_ context.Context, rec model.AuctionRecord, _ string) (model.AuctionRecord, Usage, error) {
	return rec, Usage{}, nil
}
