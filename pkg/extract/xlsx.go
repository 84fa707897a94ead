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

package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// maxDataRows caps how many rows XLSXExtractor reads from the first
// sheet — auction lot manifests are small tables, not bulk exports.
const maxDataRows = 50

// headerAliases maps a lowercased header cell to the canonical field name
// the cascade resolver expects.
var headerAliases = map[string]string{
	"titulo":            "titulo",
	"título":            "titulo",
	"descricao":         "descricao",
	"descrição":         "descricao",
	"municipio":         "municipio",
	"município":         "municipio",
	"uf":                "uf",
	"valor":             "valor_estimado_raw",
	"valor estimado":    "valor_estimado_raw",
	"quantidade":        "quantidade_itens",
	"orgao":             "orgao",
	"órgão":             "orgao",
	"edital":            "n_edital",
	"n edital":          "n_edital",
}

// XLSXExtractor reads the first sheet of a workbook, matching the header
// row against headerAliases and returning the first data row as fields
// (auction manifests in the wild are one-lot-per-file, so we do not fan
// out multiple records per workbook).
type XLSXExtractor struct{}

func NewXLSXExtractor() *XLSXExtractor { return &XLSXExtractor{} }

func (e *XLSXExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindXLSX }

func (e *XLSXExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(att.Body))
	if err != nil {
		return PartialRecord{SourceKind: fetch.KindXLSX, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("open xlsx: %v", err)}}, nil
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return PartialRecord{SourceKind: fetch.KindXLSX, SourceName: att.Name,
			Warnings: []string{"workbook has no sheets"}}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil || len(rows) < 2 {
		return PartialRecord{SourceKind: fetch.KindXLSX, SourceName: att.Name,
			Warnings: []string{"sheet has no data rows"}}, nil
	}

	header := rows[0]
	fields := map[string]any{}
	for rowIdx, row := range rows[1:] {
		if rowIdx >= maxDataRows {
			break
		}
		if rowIdx > 0 {
			break // first data row only; additional rows are ignored for now
		}
		for col, cell := range row {
			if col >= len(header) {
				continue
			}
			key, ok := headerAliases[strings.ToLower(strings.TrimSpace(header[col]))]
			if !ok {
				continue
			}
			fields[key] = strings.TrimSpace(cell)
		}
	}

	return PartialRecord{SourceKind: fetch.KindXLSX, SourceName: att.Name, Fields: fields}, nil
}

// CSVExtractor adapts legacy .xls exports that are really comma- or
// semicolon-delimited text, reusing the same header-alias table as XLSX.
type CSVExtractor struct{}

func NewCSVExtractor() *CSVExtractor { return &CSVExtractor{} }

func (e *CSVExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindXLS }

func (e *CSVExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	reader := csv.NewReader(bytes.NewReader(att.Body))
	reader.Comma = detectDelimiter(att.Body)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil || len(rows) < 2 {
		return PartialRecord{SourceKind: fetch.KindXLS, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("parse csv: %v", err)}}, nil
	}

	header := rows[0]
	fields := map[string]any{}
	for col, cell := range rows[1] {
		if col >= len(header) {
			continue
		}
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(header[col]))]
		if !ok {
			continue
		}
		fields[key] = strings.TrimSpace(cell)
	}

	return PartialRecord{SourceKind: fetch.KindXLS, SourceName: att.Name, Fields: fields}, nil
}

func detectDelimiter(body []byte) rune {
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Count(head, []byte{';'}) > bytes.Count(head, []byte{','}) {
		return ';'
	}
	return ','
}
