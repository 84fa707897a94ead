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

package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTombstoneTTL bounds how long a cross-run tombstone survives. A
// source occasionally republishes a notice under the same external id
// after fixing a broken link, so the entry isn't kept forever.
const DefaultTombstoneTTL = 7 * 24 * time.Hour

// TombstoneCache persists candidates known to 404/410 beyond the lifetime
// of a single run, so the next run's Discoverer output doesn't pay for a
// fetch attempt already known to fail. The in-memory sync.Map on Fetcher
// only dedupes within one run; this is the optional cross-run layer spec.md
// §4.3 implies ("remembered... for the duration of the run" describes the
// floor, not a ceiling on what an implementation may do).
type TombstoneCache interface {
	IsTombstoned(ctx context.Context, sourceExternalID string) (bool, error)
	Tombstone(ctx context.Context, sourceExternalID string, ttl time.Duration) error
}

// RedisTombstoneCache is the production TombstoneCache, backed by
// redis/go-redis/v9 (SPEC_FULL.md §2, "optional cross-run tombstone/dedupe
// cache"). A nil *redis.Client is never passed in practice; the caller
// decides whether to construct one at all based on REDIS_URL.
type RedisTombstoneCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTombstoneCache wraps an existing redis client. The caller owns
// the client's lifecycle (Close).
func NewRedisTombstoneCache(rdb *redis.Client) *RedisTombstoneCache {
	return &RedisTombstoneCache{rdb: rdb, prefix: "achesucatas:tombstone:"}
}

func (c *RedisTombstoneCache) key(sourceExternalID string) string {
	return c.prefix + sourceExternalID
}

// IsTombstoned reports whether sourceExternalID was tombstoned by a prior
// run and hasn't expired.
func (c *RedisTombstoneCache) IsTombstoned(ctx context.Context, sourceExternalID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(sourceExternalID)).Result()
	if err != nil {
		return false, fmt.Errorf("tombstone cache exists %s: %w", sourceExternalID, err)
	}
	return n > 0, nil
}

// Tombstone records sourceExternalID as permanently unreachable (404/410)
// for ttl.
func (c *RedisTombstoneCache) Tombstone(ctx context.Context, sourceExternalID string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key(sourceExternalID), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("tombstone cache set %s: %w", sourceExternalID, err)
	}
	return nil
}
