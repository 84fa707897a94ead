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

package httpclient

import (
	"bytes"
	"errors"

	"github.com/sony/gobreaker"
)

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func gobreakerErrOpen() error {
	return gobreaker.ErrOpenState
}

// asTimeout is a narrow errors.As shim kept local so callers don't need
// to import the net package just to probe for a Timeout() bool method.
func asTimeout(err error, target *interface{ Timeout() bool }) bool {
	return errors.As(err, target)
}
