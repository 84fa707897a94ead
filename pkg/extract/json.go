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
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// JSONExtractor flattens a JSON document's top-level keys into fields,
// repairing the latin1-mislabeled-as-utf8 mojibake (e.g. "LeilÃ£o") that
// the upstream feeds occasionally emit.
type JSONExtractor struct{}

func NewJSONExtractor() *JSONExtractor { return &JSONExtractor{} }

func (e *JSONExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindJSON }

func (e *JSONExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	var raw map[string]any
	if err := json.Unmarshal(att.Body, &raw); err != nil {
		return PartialRecord{SourceKind: fetch.KindJSON, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("invalid json: %v", err)}}, nil
	}

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			fields[k] = repairMojibake(s)
			continue
		}
		fields[k] = v
	}

	return PartialRecord{SourceKind: fetch.KindJSON, SourceName: att.Name, Fields: fields}, nil
}

// repairMojibake fixes text that was UTF-8 encoded, misread as latin-1,
// then re-encoded as UTF-8 — the classic "LeilÃ£o" for "Leilão" pattern.
// It is a best-effort, reversible-looking heuristic: if decoding the
// string's bytes as latin-1-over-utf8 does not yield valid UTF-8, the
// original string is returned unchanged.
func repairMojibake(s string) string {
	if !strings.ContainsAny(s, "ÃÂ") {
		return s
	}
	decoded, ok := latin1ToUTF8(s)
	if !ok {
		return s
	}
	return decoded
}

// latin1ToUTF8 reinterprets each byte of s (assumed already valid UTF-8
// runes in the 0-255 range after the first decode pass) as a latin-1 code
// point and re-encodes as UTF-8.
func latin1ToUTF8(s string) (string, bool) {
	runes := []rune(s)
	bs := make([]byte, 0, len(runes))
	for _, r := range runes {
		if r > 255 {
			return "", false
		}
		bs = append(bs, byte(r))
	}
	if !utf8.Valid(bs) {
		return "", false
	}
	return string(bs), true
}
