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

// Package cascade resolves a set of per-document PartialRecords into one
// AuctionRecord by walking a fixed priority order per field: the first
// candidate with a non-empty value wins.
package cascade

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/achesucatas/pkg/extract"
	"github.com/kraklabs/achesucatas/pkg/fetch"
	"github.com/kraklabs/achesucatas/pkg/model"
	"github.com/kraklabs/achesucatas/pkg/taxonomy"
)

// Candidate is one document's extracted fields plus its kind, so the
// resolver can apply per-field, per-format priority.
type Candidate struct {
	Kind   fetch.DocKind
	Fields map[string]any
}

// FromPartials adapts extractor output into the resolver's Candidate type.
func FromPartials(partials []extract.PartialRecord) []Candidate {
	out := make([]Candidate, 0, len(partials))
	for _, p := range partials {
		out = append(out, Candidate{Kind: p.SourceKind, Fields: p.Fields})
	}
	return out
}

// Resolver applies the field priority table against a set of candidates.
type Resolver struct {
	taxonomy *taxonomy.Taxonomy
}

func NewResolver(tax *taxonomy.Taxonomy) *Resolver {
	return &Resolver{taxonomy: tax}
}

var (
	monthNames = map[string]string{
		"janeiro": "01", "fevereiro": "02", "março": "03", "marco": "03",
		"abril": "04", "maio": "05", "junho": "06", "julho": "07",
		"agosto": "08", "setembro": "09", "outubro": "10",
		"novembro": "11", "dezembro": "12",
	}

	longFormDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+(\w+)\s+de\s+(\d{4})`)
	contextualDatePattern = regexp.MustCompile(`(?i)(?:data\s+de\s+abertura|sess[ãa]o|realiza[çc][ãa]o)[^\d]{0,40}(\d{2}[/-]\d{2}[/-]\d{4})`)
	anyFutureDatePattern  = regexp.MustCompile(`\d{2}[/-]\d{2}[/-]\d{4}`)
	valorPdfPattern       = regexp.MustCompile(`(?i)valor\s+total\s+estimado[^\d]{0,20}R\$\s*([\d.]+,\d{2})`)
	lotePattern           = regexp.MustCompile(`(?im)^LOTE\s*\d+`)
	itemPattern           = regexp.MustCompile(`(?im)^ITEM\s*\d+`)
	leiloeiroNomePattern  = regexp.MustCompile(`leiloeiro[a]?\s*[:\s]\s*([A-ZÀ-Ú]\w+(\s+[A-ZÀ-Ú]\w+){1,4})`)
	urlPattern            = regexp.MustCompile(`https?://[^\s<>"']+|www\.[^\s<>"']+`)
	emailProviderDomains  = map[string]struct{}{
		"gmail.com": {}, "hotmail.com": {}, "yahoo.com": {}, "outlook.com": {}, "uol.com.br": {}, "bol.com.br": {},
	}
	electronicKeywords = []string{"eletrônico", "eletronico", "online"}
	presencialKeywords = []string{"presencial"}
)

// Resolve combines candidates into a single AuctionRecord following the
// priority order from the field table. sourceName/sourceExternalID come
// from the discoverer, not any document, so they're passed in directly.
func (r *Resolver) Resolve(sourceName model.SourceName, sourceExternalID string, candidates []Candidate) model.AuctionRecord {
	rec := model.AuctionRecord{
		SourceName:       sourceName,
		SourceExternalID: sourceExternalID,
		IDInterno:        stableID(sourceName, sourceExternalID),
		VersaoAuditor:    "1.0",
	}

	jsonFields, pdfText, xlsxFields := splitByKind(candidates)

	rec.Municipio = firstString(jsonFields, "municipio")
	if rec.Municipio == "" {
		rec.Municipio = firstString(xlsxFields, "municipio")
	}
	rec.UF = strings.ToUpper(coalesceString(firstString(jsonFields, "uf"), firstString(xlsxFields, "uf")))

	rec.DataLeilao = resolveDataLeilao(jsonFields, xlsxFields, pdfText)
	rec.DataPublicacao = firstString(jsonFields, "data_publicacao")
	rec.DataAtualizacao = firstString(jsonFields, "data_atualizacao")

	rec.ValorEstimado = resolveValorEstimado(jsonFields, pdfText)
	rec.QuantidadeItens = resolveQuantidadeItens(jsonFields, pdfText)

	rec.Titulo = coalesceString(firstString(jsonFields, "objeto"), firstString(jsonFields, "titulo"), firstSignificantLine(pdfText))
	rec.Descricao = coalesceString(firstString(jsonFields, "descricao"), firstThreeLines(pdfText))
	rec.Orgao = firstString(jsonFields, "orgao")
	rec.ObjetoResumido = coalesceString(firstString(jsonFields, "objeto_resumido"), rec.Titulo)
	if v := firstString(jsonFields, "n_edital"); v != "" {
		rec.NEdital = &v
	} else if v := firstString(xlsxFields, "n_edital"); v != "" {
		rec.NEdital = &v
	}

	rec.TipoLeilao = resolveTipoLeilao(pdfText)

	if v := coalesceString(firstString(jsonFields, "nome_responsavel"), resolveLeiloeiroNome(pdfText)); v != "" {
		rec.NomeLeiloeiro = &v
	}

	rec.LeiloeiroUrl = resolveLeiloeiroURL(pdfText, jsonFields)

	rec.PNCPUrl = firstString(jsonFields, "pncp_url")
	rec.SourceUrl = firstString(jsonFields, "source_url")

	if r.taxonomy != nil {
		tagText := rec.Titulo + " " + rec.Descricao + " " + pdfText
		rec.Tags = r.taxonomy.Classify(tagText)
	}

	return rec
}

func splitByKind(candidates []Candidate) (json, xlsx map[string]any, pdfText string) {
	json = map[string]any{}
	xlsx = map[string]any{}
	var pdfParts []string
	for _, c := range candidates {
		switch c.Kind {
		case fetch.KindJSON:
			for k, v := range c.Fields {
				if _, exists := json[k]; !exists {
					json[k] = v
				}
			}
		case fetch.KindXLSX, fetch.KindXLS:
			for k, v := range c.Fields {
				if _, exists := xlsx[k]; !exists {
					xlsx[k] = v
				}
			}
		case fetch.KindPDF, fetch.KindDOCX:
			if d, ok := c.Fields["descricao"].(string); ok {
				pdfParts = append(pdfParts, d)
			}
		}
	}
	return json, xlsx, strings.Join(pdfParts, "\n")
}

func firstString(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func coalesceString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// stableID derives a 12-hex-char "ID_XXXXXXXXXXXX" identifier from
// (source_name, source_external_id) so reprocessing the same notice
// always yields the same primary key.
func stableID(source model.SourceName, externalID string) string {
	sum := sha256.Sum256([]byte(string(source) + "|" + externalID))
	return "ID_" + strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}

func resolveDataLeilao(jsonFields, xlsxFields map[string]any, pdfText string) *string {
	if raw := firstString(jsonFields, "dataAberturaProposta"); raw != "" {
		if d := parseISODate(raw); d != "" {
			return &d
		}
	}
	for _, key := range []string{"data_abertura", "data_sessao", "data_leilao"} {
		if raw := firstString(xlsxFields, key); raw != "" {
			if d := parseFlexibleDate(raw); d != "" {
				return &d
			}
		}
	}
	if m := contextualDatePattern.FindStringSubmatch(pdfText); len(m) == 2 {
		if d := parseFlexibleDate(m[1]); d != "" {
			return &d
		}
	}
	for _, m := range anyFutureDatePattern.FindAllString(pdfText, -1) {
		if d := parseFlexibleDate(m); d != "" && d[6:] >= strconv.Itoa(time.Now().Year()) {
			return &d
		}
	}
	if m := longFormDatePattern.FindStringSubmatch(pdfText); len(m) == 4 {
		month, ok := monthNames[strings.ToLower(m[2])]
		if ok {
			day := m[1]
			if len(day) == 1 {
				day = "0" + day
			}
			d := fmt.Sprintf("%s-%s-%s", day, month, m[3])
			return &d
		}
	}
	return nil
}

func parseISODate(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", raw)
		if err != nil {
			return ""
		}
	}
	return t.Format("02-01-2006")
}

func parseFlexibleDate(raw string) string {
	raw = strings.ReplaceAll(raw, "/", "-")
	layouts := []string{"02-01-2006", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return ""
}

func resolveValorEstimado(jsonFields map[string]any, pdfText string) *float64 {
	if v, ok := jsonFields["valorTotalEstimado"]; ok {
		if f, ok := toFloat(v); ok {
			return &f
		}
	}
	if m := valorPdfPattern.FindStringSubmatch(pdfText); len(m) == 2 {
		if f, ok := parseBRLNumber(m[1]); ok {
			return &f
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseBRLNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func resolveQuantidadeItens(jsonFields map[string]any, pdfText string) *int {
	if itens, ok := jsonFields["itens"].([]any); ok {
		n := len(itens)
		return &n
	}
	if count := len(lotePattern.FindAllString(pdfText, -1)); count > 0 {
		return &count
	}
	if count := len(itemPattern.FindAllString(pdfText, -1)); count > 0 {
		return &count
	}
	return nil
}

func firstSignificantLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 15 && !strings.HasPrefix(strings.ToUpper(line), "EDITAL") {
			return line
		}
	}
	return ""
}

func firstThreeLines(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	return strings.Join(lines, " ")
}

func resolveTipoLeilao(pdfText string) *model.TipoLeilao {
	lower := strings.ToLower(pdfText)
	hasEletronico := containsAny(lower, electronicKeywords)
	hasPresencial := containsAny(lower, presencialKeywords)

	switch {
	case hasEletronico && hasPresencial:
		t := model.TipoHibrido
		return &t
	case hasEletronico:
		t := model.TipoEletronico
		return &t
	case hasPresencial:
		t := model.TipoPresencial
		return &t
	default:
		return nil
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func resolveLeiloeiroNome(pdfText string) string {
	m := leiloeiroNomePattern.FindStringSubmatch(pdfText)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// resolveLeiloeiroURL takes the first URL-shaped substring of the PDF text
// (no TLD allow-list is applied), falling back to the JSON
// informacoes_complementares field,
// rejecting e-mail providers and lone-uppercase-word false positives
// (spec'd example: "ED.COMEMORA" must not be promoted to a URL). Unlike
// the PDF text, informacoes_complementares is checked as a whole raw
// value when it has no embedded URL-shaped substring, so a field that is
// nothing but a bare acronym is rejected instead of silently dropped.
func resolveLeiloeiroURL(pdfText string, jsonFields map[string]any) *string {
	candidate := urlPattern.FindString(pdfText)
	if candidate == "" {
		raw := firstString(jsonFields, "informacoes_complementares")
		if m := urlPattern.FindString(raw); m != "" {
			candidate = m
		} else {
			candidate = raw
		}
	}
	if candidate == "" {
		return nil
	}

	if isLoneUppercaseWord(candidate) {
		return nil
	}

	normalized, ok := NormalizeURL(candidate)
	if !ok {
		return nil
	}

	host := hostOf(normalized)
	if _, isEmail := emailProviderDomains[host]; isEmail {
		return nil
	}
	return &normalized
}

// isLoneUppercaseWord flags strings like "ED.COMEMORA": all-uppercase,
// no scheme, no slash — never a genuine URL even though it contains a
// dot that could look like a TLD boundary.
func isLoneUppercaseWord(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, "://") {
		return false
	}
	return s == strings.ToUpper(s) && !strings.ContainsAny(s, " \t\n")
}

func hostOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.ToLower(rest)
}

var trailingPunct = regexp.MustCompile(`[.,;:)>"']+$`)

// NormalizeURL applies the §4.5 URL normalization rules: trim whitespace
// and trailing punctuation, prepend a scheme for bare/www hostnames, and
// reject results whose host has no dot. The path is not inspected.
func NormalizeURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = trailingPunct.ReplaceAllString(s, "")
	if s == "" {
		return "", false
	}

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	host := hostOf(s)
	if !strings.Contains(host, ".") {
		return "", false
	}
	return s, true
}
