// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the Ollama server",
		Long: `List the local models of the Ollama server at executor.ollama_url. Use a
name from this list as model.model in a prompt file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := a.ollamaClient().ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("No models. Pull one with `ollama pull <name>`."))
				return nil
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m.Name, formatSize(m.Size), m.ModifiedAt.Format(time.DateOnly)})
			}
			printTable(cmd.OutOrStdout(), []string{"NAME", "SIZE", "MODIFIED"}, rows, 0)
			return nil
		},
	}
}

func formatSize(n int64) string {
	const gb = 1 << 30
	const mb = 1 << 20
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.0f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
