// Arcanum - Tarot Reading Interpretation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/arcanum

package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/tomtom215/arcanum/internal/wire"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func unitColor(t wire.Type) string {
	switch t {
	case wire.TypeStatus:
		return ansiDim
	case wire.TypeCards:
		return ansiBlue
	case wire.TypeIndividual:
		return ansiYellow
	case wire.TypeDone:
		return ansiGreen
	case wire.TypeError:
		return ansiRed
	default:
		return ""
	}
}

func paint(s, color string, colorize bool) string {
	if !colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}
