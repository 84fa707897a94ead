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

// Package discovery turns an upstream source (a paginated JSON API or a
// sitemap) into a flat stream of CandidateNotice values for the fetcher
// to pick up.
package discovery

import (
	"context"
	"time"

	"github.com/kraklabs/achesucatas/pkg/model"
)

// CandidateNotice is one unresolved lead discovered from a source: enough
// to attempt a fetch, nothing more.
type CandidateNotice struct {
	SourceName       model.SourceName
	SourceExternalID string
	NoticeURL        string
	FilesURL         string
	LastModified     *time.Time
	Priority         float64
	CategoryHint     string
}

// Report summarizes one discovery pass, mirroring the upstream miner's
// discovery_report.json.
type Report struct {
	TotalURLsFound       int            `json:"total_urls_found"`
	LotURLsFound         int            `json:"lot_urls_found"`
	FilteredVehicleLots  int            `json:"filtered_vehicle_lots"`
	CategoryURLs         int            `json:"category_urls"`
	Errors               []string       `json:"errors"`
	Timestamp            time.Time      `json:"timestamp"`
	SourcesUsed          []string       `json:"sources_used"`
	TopSeeds             []SeedCount    `json:"top_seeds"`
}

// SeedCount is one entry of Report.TopSeeds: the auctions (leiloes) that
// contributed the most lots in this pass.
type SeedCount struct {
	LeilaoID string `json:"leilao_id"`
	LotCount int    `json:"lot_count"`
}

// Discoverer finds candidate notices for one run. A zero since means
// "discover everything the source currently exposes".
type Discoverer interface {
	Discover(ctx context.Context, since time.Time, maxResults int) ([]CandidateNotice, Report, error)
	Name() string
}
