// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Cyan
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")). // Purple
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Emerald
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Amber

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)
)

func roleStyle(r model.Role) lipgloss.Style {
	switch r {
	case model.RoleSystem:
		return systemStyle
	case model.RoleUser:
		return userStyle
	case model.RoleAssistant:
		return assistantStyle
	default:
		return labelStyle
	}
}

// =============================================================================
// PRINTING
// =============================================================================

// printMessages writes each message as a styled role header followed by its
// content.
func printMessages(w io.Writer, msgs []model.Message) {
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, roleStyle(m.Role).Render("["+m.Role.DisplayName()+"]"))
		fmt.Fprintln(w, m.Content)
	}
}

// printTable writes rows as left-aligned columns sized to their widest cell.
// The last column is truncated to maxLast display columns when maxLast > 0.
func printTable(w io.Writer, header []string, rows [][]string, maxLast int) {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i, cell := range row {
			if i == len(row)-1 && maxLast > 0 {
				cell = util.TruncateWidth(cell, maxLast)
			}
			widths[i] = max(widths[i], util.StringWidth(cell))
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	line := func(row []string) string {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				if maxLast > 0 {
					cell = util.TruncateWidth(cell, maxLast)
				}
				cells[i] = cell
				continue
			}
			cells[i] = util.PadRight(cell, widths[i])
		}
		return strings.TrimRight(strings.Join(cells, "  "), " ")
	}

	fmt.Fprintln(w, labelStyle.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}
