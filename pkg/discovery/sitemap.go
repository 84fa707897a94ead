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

package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/achesucatas/pkg/httpclient"
	"github.com/kraklabs/achesucatas/pkg/model"
)

// sitemapURLSet mirrors the <urlset><url>... sitemap.xml schema.
type sitemapURLSet struct {
	XMLName xml.Name      `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	Priority   string `xml:"priority"`
}

// SitemapSource discovers lots by walking an auctioneer's sitemap.xml,
// matching lot URLs with LotURLPattern and flagging category pages with
// CategoryKeywords — grounded on the upstream LeilaoDiscovery connector.
type SitemapSource struct {
	client           *httpclient.Client
	sitemapURL       string
	lotPattern       *regexp.Regexp
	categoryKeywords []string
	log              *slog.Logger
}

// NewSitemapSource builds a source against sitemapURL. lotPattern must
// have exactly two capture groups: (leilao_id, lote_id).
func NewSitemapSource(client *httpclient.Client, sitemapURL, lotPattern string, categoryKeywords []string, log *slog.Logger) (*SitemapSource, error) {
	re, err := regexp.Compile(lotPattern)
	if err != nil {
		return nil, fmt.Errorf("compile lot pattern: %w", err)
	}
	return &SitemapSource{
		client:           client,
		sitemapURL:       sitemapURL,
		lotPattern:       re,
		categoryKeywords: categoryKeywords,
		log:              log,
	}, nil
}

func (s *SitemapSource) Name() string { return string(model.SourceLeiloeiro) }

func (s *SitemapSource) isVehicleURL(u string) bool {
	lower := strings.ToLower(u)
	for _, kw := range s.categoryKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Discover fetches and parses the sitemap, filters lot URLs, and computes
// the top-10 auctions by lot count (top_seeds), matching the upstream
// discovery_report.json shape.
func (s *SitemapSource) Discover(ctx context.Context, since time.Time, maxResults int) ([]CandidateNotice, Report, error) {
	report := Report{Timestamp: time.Now(), SourcesUsed: []string{"sitemap.xml"}}

	outcome := s.client.Get(ctx, s.sitemapURL, nil)
	if !outcome.OK {
		report.Errors = append(report.Errors, fmt.Sprintf("fetch sitemap: status %d class %s", outcome.Status, outcome.ErrorClass))
		return nil, report, fmt.Errorf("fetch sitemap %s: status %d", s.sitemapURL, outcome.Status)
	}

	var parsed sitemapURLSet
	if err := xml.Unmarshal(outcome.Body, &parsed); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("parse sitemap: %v", err))
		return nil, report, err
	}
	report.TotalURLsFound = len(parsed.URLs)

	var notices []CandidateNotice
	leilaoCounts := map[string]int{}
	categoryURLs := map[string]struct{}{}

	for _, u := range parsed.URLs {
		if s.isVehicleURL(u.Loc) {
			categoryURLs[u.Loc] = struct{}{}
			continue
		}
		match := s.lotPattern.FindStringSubmatch(u.Loc)
		if match == nil || len(match) < 3 {
			continue
		}
		leilaoID, loteID := match[1], match[2]

		var lastMod *time.Time
		if u.LastMod != "" {
			if t, err := time.Parse(time.RFC3339, u.LastMod); err == nil {
				lastMod = &t
			}
		}
		if lastMod != nil && lastMod.Before(since) {
			continue
		}

		priority, _ := strconv.ParseFloat(u.Priority, 64)
		notices = append(notices, CandidateNotice{
			SourceName:       model.SourceLeiloeiro,
			SourceExternalID: fmt.Sprintf("%s-%s", leilaoID, loteID),
			NoticeURL:        u.Loc,
			LastModified:     lastMod,
			Priority:         priority,
		})
		leilaoCounts[leilaoID]++
	}

	report.LotURLsFound = len(notices)
	report.CategoryURLs = len(categoryURLs)

	sort.Slice(notices, func(i, j int) bool {
		if notices[i].LastModified == nil || notices[j].LastModified == nil {
			return false
		}
		return notices[i].LastModified.After(*notices[j].LastModified)
	})

	if maxResults > 0 && len(notices) > maxResults {
		notices = notices[:maxResults]
	}
	report.FilteredVehicleLots = len(notices)

	type kv struct {
		id    string
		count int
	}
	var sorted []kv
	for id, c := range leilaoCounts {
		sorted = append(sorted, kv{id, c})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].count > sorted[j].count })
	for i, e := range sorted {
		if i >= 10 {
			break
		}
		report.TopSeeds = append(report.TopSeeds, SeedCount{LeilaoID: e.id, LotCount: e.count})
	}

	s.log.Info("sitemap.discover.done", "lots", len(notices), "categories", len(categoryURLs))
	return notices, report, nil
}
