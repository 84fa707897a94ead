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
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// DOCXExtractor reads word/document.xml directly out of the OOXML zip
// container. No DOCX library exists anywhere in the dependency set this
// pipeline otherwise draws from, so this one extractor is deliberately
// built on the standard library's archive/zip and encoding/xml — see
// DESIGN.md for the full justification.
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

func (e *DOCXExtractor) Supports(kind fetch.DocKind) bool { return kind == fetch.KindDOCX }

type wordBody struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paragraphs []struct {
			Runs []struct {
				Text []string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func (e *DOCXExtractor) Extract(att fetch.Attachment) (PartialRecord, error) {
	zr, err := zip.NewReader(bytes.NewReader(att.Body), int64(len(att.Body)))
	if err != nil {
		return PartialRecord{SourceKind: fetch.KindDOCX, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("open docx zip: %v", err)}}, nil
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return PartialRecord{SourceKind: fetch.KindDOCX, SourceName: att.Name,
				Warnings: []string{fmt.Sprintf("open word/document.xml: %v", err)}}, nil
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return PartialRecord{SourceKind: fetch.KindDOCX, SourceName: att.Name,
				Warnings: []string{fmt.Sprintf("read word/document.xml: %v", err)}}, nil
		}
		break
	}
	if docXML == nil {
		return PartialRecord{SourceKind: fetch.KindDOCX, SourceName: att.Name,
			Warnings: []string{"docx missing word/document.xml"}}, nil
	}

	var parsed wordBody
	if err := xml.Unmarshal(docXML, &parsed); err != nil {
		return PartialRecord{SourceKind: fetch.KindDOCX, SourceName: att.Name,
			Warnings: []string{fmt.Sprintf("parse document.xml: %v", err)}}, nil
	}

	var sb strings.Builder
	for _, p := range parsed.Body.Paragraphs {
		for _, r := range p.Runs {
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
		sb.WriteString("\n")
	}

	return PartialRecord{
		SourceKind: fetch.KindDOCX,
		SourceName: att.Name,
		Fields:     map[string]any{"descricao": strings.TrimSpace(truncate(sb.String(), 4000))},
	}, nil
}
