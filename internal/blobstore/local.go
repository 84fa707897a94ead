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

// Package blobstore persists downloaded attachments to local disk,
// mirroring the upstream miner's supabase_storage.py layout but writing
// to a filesystem path instead of a Supabase bucket.
package blobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/achesucatas/pkg/fetch"
)

// LocalStore lays files out as {root}/{source_external_id}/{hash8}_{name},
// with a sibling metadados.json per notice directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Save(sourceExternalID string, att fetch.Attachment, metadata map[string]any) (string, error) {
	dir := filepath.Join(s.root, sanitize(sourceExternalID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	fileName := fmt.Sprintf("%s_%s", att.Hash, sanitize(att.Name))
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, att.Body, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	meta := map[string]any{}
	for k, v := range metadata {
		meta[k] = v
	}
	meta["hash"] = att.Hash
	meta["kind"] = att.Kind
	meta["file"] = fileName

	metaPath := filepath.Join(dir, "metadados.json")
	existing := map[string]any{}
	if raw, err := os.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal(raw, &existing)
	}
	existing[fileName] = meta

	encoded, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	return path, nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "..", "_")
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
