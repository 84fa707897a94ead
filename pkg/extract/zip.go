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
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// ZIPExtractor dispatches one level deep: it opens the archive in memory,
// classifies each member by its file-name extension (members without a
// known extension are skipped), and re-extracts the first member it
// recognizes through the shared Registry; later members are not read. It
// never recurses into a nested zip.
type ZIPExtractor struct {
	inner *Registry
}

func NewZIPExtractor(inner *Registry) *ZIPExtractor {
	return &ZIPExtractor{inner: inner}
}

func (e *ZIPExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindZIP }

func (e *ZIPExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(att.Body), int64(len(att.Body)))
	if err != nil {
		return PartialRecord{SourceKind: fetch.KindZIP, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("open zip: %v", err)}}, nil
	}

	// word/document.xml present at the top level means this "zip" is
	// actually a docx misclassified by extension/content-type.
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docx := NewDOCXExtractor()
			return docx.Extract(att)
		}
		if strings.HasPrefix(f.Name, "xl/") {
			xlsx := NewXLSXExtractor()
			return xlsx.Extract(att)
		}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		kind := fetch.Classify(f.Name, "", nil)
		if kind == fetch.KindUnknown || !e.inner.supports(kind) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		nested := fetch.Attachment{Name: f.Name, Kind: fetch.Classify(f.Name, "", body), Body: body, Hash: att.Hash}
		result, err := e.inner.Extract(nested)
		if err != nil {
			continue
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("extracted from nested member %s of %s", f.Name, att.Name))
		return result, nil
	}

	return PartialRecord{SourceKind: fetch.KindZIP, SourceName: att.Name,
		Warnings: []string{"zip contained no recognizable member"}}, nil
}
