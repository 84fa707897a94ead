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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/achesucatas/pkg/httpclient"
	"github.com/kraklabs/achesucatas/pkg/model"
)

// PNCPSource discovers notices from the Portal Nacional de Contratações
// Públicas search API: a paginated JSON endpoint filtered by keyword and
// date range.
type PNCPSource struct {
	client  *httpclient.Client
	baseURL string
	termo   string
	log     *slog.Logger
	pageSz  int
}

// NewPNCPSource builds a source against the given base URL (typically
// https://pncp.gov.br/api/search) filtering notices by termo ("sucata",
// "leilão de veículos", ...).
func NewPNCPSource(client *httpclient.Client, baseURL, termo string, log *slog.Logger) *PNCPSource {
	return &PNCPSource{client: client, baseURL: baseURL, termo: termo, log: log, pageSz: 50}
}

func (s *PNCPSource) Name() string { return string(model.SourcePNCP) }

type pncpPage struct {
	TotalRegistros int        `json:"totalRegistros"`
	TotalPaginas   int        `json:"totalPaginas"`
	Items          []pncpItem `json:"items"`
}

type pncpItem struct {
	NumeroControlePNCP string `json:"numero_controle_pncp"`
	Titulo             string `json:"titulo"`
	DataAtualizacao    string `json:"data_atualizacao"`
	UF                 string `json:"uf"`
	Orgao              string `json:"orgao_nome"`
	URL                string `json:"item_url"`
}

// Discover walks the pages of the PNCP search API between since and now
// until it reaches totalPaginas, an empty page, a failed or undecodable
// page, or maxResults notices. Items are not filtered by DataAtualizacao.
func (s *PNCPSource) Discover(ctx context.Context, since time.Time, maxResults int) ([]CandidateNotice, Report, error) {
	report := Report{Timestamp: time.Now(), SourcesUsed: []string{"pncp_api"}}
	var notices []CandidateNotice

	dataInicial := since.Format("20060102")
	dataFinal := time.Now().Format("20060102")

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return notices, report, err
		}
		url := fmt.Sprintf("%s?termo=%s&dataInicial=%s&dataFinal=%s&pagina=%d&tam_pagina=%d",
			s.baseURL, s.termo, dataInicial, dataFinal, page, s.pageSz)

		outcome := s.client.Get(ctx, url, nil)
		if !outcome.OK {
			report.Errors = append(report.Errors, fmt.Sprintf("page %d: status %d class %s", page, outcome.Status, outcome.ErrorClass))
			break
		}

		var parsed pncpPage
		if err := json.Unmarshal(outcome.Body, &parsed); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("page %d: decode error %v", page, err))
			break
		}

		report.TotalURLsFound += len(parsed.Items)
		for _, item := range parsed.Items {
			notices = append(notices, CandidateNotice{
				SourceName:       model.SourcePNCP,
				SourceExternalID: item.NumeroControlePNCP,
				NoticeURL:        item.URL,
				FilesURL:         item.URL + "/arquivos",
			})
			if maxResults > 0 && len(notices) >= maxResults {
				report.LotURLsFound = len(notices)
				return notices, report, nil
			}
		}

		if page >= parsed.TotalPaginas || len(parsed.Items) == 0 {
			break
		}
		s.log.Debug("pncp.discover.page", "page", page, "total_paginas", parsed.TotalPaginas)
	}

	report.LotURLsFound = len(notices)
	return notices, report, nil
}
