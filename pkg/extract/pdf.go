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
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// scannedImageThreshold is the minimum character count a PDF's first page
// must yield before we trust it has a text layer at all; below this the
// document is almost certainly a scanned image and extraction is skipped
// rather than producing noise.
const scannedImageThreshold = 50

var (
	valorPattern = regexp.MustCompile(`(?i)valor\s+(?:estimado|total|avaliado)\s*:?\s*R\$\s*([\d.,]+)`)
	editalPattern = regexp.MustCompile(`(?i)edital\s+n[ºo°.]?\s*:?\s*([\w./-]+)`)
)

// PDFExtractor reads text page-by-page from the attachment bytes, which are
// already held in memory in full, and pulls a handful of fields out with
// regexes, mirroring how the upstream miner's PDF path works: best-effort
// text mining, not structured parsing.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

func (e *PDFExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindPDF }

func (e *PDFExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	reader, err := pdf.NewReader(bytes.NewReader(att.Body), int64(len(att.Body)))
	if err != nil {
		return PartialRecord{SourceKind: fetch.KindPDF, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("open pdf: %v", err)}}, nil
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return PartialRecord{SourceKind: fetch.KindPDF, SourceName: att.Name,
			Warnings: []string{"pdf has no pages"}}, nil
	}

	firstPageText, err := pageText(reader, 1)
	if err != nil || len(strings.TrimSpace(firstPageText)) < scannedImageThreshold {
		return PartialRecord{SourceKind: fetch.KindPDF, SourceName: att.Name,
			Warnings: []string{"pdf appears to be a scanned image, no extractable text layer"}}, nil
	}

	var sb strings.Builder
	sb.WriteString(firstPageText)
	for p := 2; p <= numPages; p++ {
		text, err := pageText(reader, p)
		if err != nil {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(text)
	}
	fullText := sb.String()

	fields := map[string]any{
		"descricao": strings.TrimSpace(truncate(fullText, 4000)),
	}
	if m := valorPattern.FindStringSubmatch(fullText); len(m) == 2 {
		fields["valor_estimado_raw"] = m[1]
	}
	if m := editalPattern.FindStringSubmatch(fullText); len(m) == 2 {
		fields["n_edital"] = strings.TrimSpace(m[1])
	}

	return PartialRecord{SourceKind: fetch.KindPDF, SourceName: att.Name, Fields: fields}, nil
}

// pageText reads a single page's plain text, lazily: the teacher's
// parser streams file content the same way rather than materializing an
// entire document tree up front.
func pageText(r *pdf.Reader, pageNum int) (string, error) {
	page := r.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
