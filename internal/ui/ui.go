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

// Package ui holds the small set of terminal helpers the CLI commands
// share: colorized status lines and a progress bar for long discovery/
// processing passes.
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

var (
	colorOK   = color.New(color.FgGreen, color.Bold)
	colorWarn = color.New(color.FgYellow, color.Bold)
	colorErr  = color.New(color.FgRed, color.Bold)
)

// InitColors disables color output when noColor is set or stdout is not
// a terminal, matching the CLI's --no-color flag and NO_COLOR convention.
func InitColors(noColor bool) {
	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

func Success(format string, args ...any) {
	colorOK.Fprintf(os.Stderr, format+"\n", args...)
}

func Warn(format string, args ...any) {
	colorWarn.Fprintf(os.Stderr, format+"\n", args...)
}

func Error(format string, args ...any) {
	colorErr.Fprintf(os.Stderr, format+"\n", args...)
}

// NewBar returns a progress bar for total discrete units of work (one
// per candidate notice processed). Quiet runs and JSON output never
// construct one.
func NewBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
