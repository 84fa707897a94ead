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

// Package validate normalizes a candidate AuctionRecord and decides its
// final Status, per the decision table: no errors (or only normalization
// notices) is VALID, a missing data_leilao alone is NOT_SELLABLE, any
// date/URL error is REJECTED, anything else missing required is DRAFT.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kraklabs/achesucatas/pkg/cascade"
	"github.com/kraklabs/achesucatas/pkg/model"
)

// Result is the outcome of validating one candidate record.
type Result struct {
	Status     model.Status
	Record     model.AuctionRecord
	Errors     []model.ValidationError
}

var dateFormatPattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// Validate normalizes rec and decides its Status. The requiredStrings map
// below, plus tags, valor_estimado and tipo_leilao, lists the fields that
// must be non-empty for anything past DRAFT; data_leilao is handled
// separately since its absence only demotes to NOT_SELLABLE.
func Validate(rec model.AuctionRecord) Result {
	var errs []model.ValidationError
	normalized := rec

	normalized.Tags = normalizeTags(rec.Tags)
	normalized.UF = strings.ToUpper(strings.TrimSpace(rec.UF))
	normalized.Titulo = collapseWhitespace(rec.Titulo)
	normalized.Descricao = capWithEllipsis(collapseWhitespace(rec.Descricao), 500)

	if normalizedURL, changed := normalizeURLField(rec.PNCPUrl); normalizedURL != "" {
		normalized.PNCPUrl = normalizedURL
		if changed {
			errs = append(errs, model.ValidationError{Code: model.ErrURLNormalized, Field: "pncp_url", Message: "URL normalized"})
		}
	}
	if rec.LeiloeiroUrl != nil {
		if normalizedURL, changed := normalizeURLField(*rec.LeiloeiroUrl); normalizedURL != "" {
			normalized.LeiloeiroUrl = &normalizedURL
			if changed {
				errs = append(errs, model.ValidationError{Code: model.ErrURLNormalized, Field: "leiloeiro_url", Message: "URL normalized"})
			}
		} else {
			errs = append(errs, model.ValidationError{Code: model.ErrInvalidURL, Field: "leiloeiro_url", Message: "leiloeiro_url could not be normalized to a valid URL"})
		}
	}

	if before := len(rec.Tags); before != len(normalized.Tags) || tagsContainSentinel(rec.Tags) {
		errs = append(errs, model.ValidationError{Code: model.ErrTagsNormalized, Field: "tags", Message: "tags normalized"})
	}

	requiredStrings := map[string]string{
		"municipio":       normalized.Municipio,
		"uf":              normalized.UF,
		"pncp_url":        normalized.PNCPUrl,
		"data_atualizacao": normalized.DataAtualizacao,
		"titulo":          normalized.Titulo,
		"descricao":       normalized.Descricao,
		"orgao":           normalized.Orgao,
		"objeto_resumido": normalized.ObjetoResumido,
		"data_publicacao": normalized.DataPublicacao,
	}
	for field, v := range requiredStrings {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, model.ValidationError{Code: model.ErrMissingRequiredField, Field: field, Message: fmt.Sprintf("%s is required", field)})
		}
	}
	if len(normalized.Tags) == 0 {
		errs = append(errs, model.ValidationError{Code: model.ErrMissingRequiredField, Field: "tags", Message: "tags is required and must be non-empty"})
	}
	if normalized.ValorEstimado == nil {
		errs = append(errs, model.ValidationError{Code: model.ErrMissingRequiredField, Field: "valor_estimado", Message: "valor_estimado is required"})
	}
	if normalized.TipoLeilao == nil {
		errs = append(errs, model.ValidationError{Code: model.ErrMissingRequiredField, Field: "tipo_leilao", Message: "tipo_leilao is required"})
	}

	if _, ok := model.UFCodes[normalized.UF]; normalized.UF != "" && !ok {
		errs = append(errs, model.ValidationError{Code: model.ErrInvalidURL, Field: "uf", Message: "uf not in the 27-code set"})
	}

	dataLeilaoMissing := normalized.DataLeilao == nil || strings.TrimSpace(*normalized.DataLeilao) == ""
	if dataLeilaoMissing {
		errs = append(errs, model.ValidationError{Code: model.ErrMissingRequiredField, Field: "data_leilao", Message: "data_leilao is required for saleability"})
	} else if !dateFormatPattern.MatchString(*normalized.DataLeilao) {
		errs = append(errs, model.ValidationError{Code: model.ErrInvalidDateFormat, Field: "data_leilao", Message: "data_leilao must match DD-MM-YYYY"})
	}

	return Result{Status: decideStatus(errs), Record: normalized, Errors: errs}
}

func decideStatus(errs []model.ValidationError) model.Status {
	hasHard := false
	var missingFields []string
	for _, e := range errs {
		switch e.Code {
		case model.ErrInvalidDateFormat, model.ErrInvalidURL:
			hasHard = true
		case model.ErrMissingRequiredField:
			missingFields = append(missingFields, e.Field)
		}
	}

	if hasHard {
		return model.StatusRejected
	}
	if len(missingFields) == 0 {
		return model.StatusValid
	}
	if len(missingFields) == 1 && missingFields[0] == "data_leilao" {
		return model.StatusNotSellable
	}
	return model.StatusDraft
}

func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tags {
		up := strings.ToUpper(strings.TrimSpace(t))
		if up == "" || up == model.TagSentinel {
			continue
		}
		if _, dup := seen[up]; dup {
			continue
		}
		seen[up] = struct{}{}
		out = append(out, up)
	}
	return out
}

func tagsContainSentinel(tags []string) bool {
	for _, t := range tags {
		if strings.ToUpper(strings.TrimSpace(t)) == model.TagSentinel {
			return true
		}
	}
	return false
}

func normalizeURLField(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	normalized, ok := cascade.NormalizeURL(raw)
	if !ok {
		return "", false
	}
	return normalized, normalized != raw
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func capWithEllipsis(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
