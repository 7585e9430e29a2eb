// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/placeholder"
	"github.com/jeranaias/promptlab/internal/session"
	"github.com/jeranaias/promptlab/internal/variables"
)

// =============================================================================
// EXTRACT
// =============================================================================

func (a *app) extractCmd() *cobra.Command {
	var long, all bool
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the placeholder keys of a prompt file",
		Long: `Print the distinct {{key}} placeholders of the system message, in order of
first appearance. With --long, print each key's binding as well. With --all,
scan every template message instead; keys outside the system message have
no binding and render empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.loadSession(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if all {
				for _, key := range templateKeys(s.Template()) {
					fmt.Fprintln(out, key)
				}
				return nil
			}
			if !long {
				for _, v := range s.Variables() {
					fmt.Fprintln(out, v.Key)
				}
				return nil
			}
			printTable(out, []string{"KEY", "KIND", "VALUE"}, variableRows(s), 60)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show kind and value of each variable")
	cmd.Flags().BoolVar(&all, "all", false, "Scan every template message")
	return cmd
}

// templateKeys returns the distinct keys across msgs in order of first
// appearance.
func templateKeys(msgs []model.Message) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range msgs {
		for _, key := range placeholder.Extract(m.Content) {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// variableRows shows static values literally and external bindings by
// source name.
func variableRows(s *session.Session) [][]string {
	names := make(map[string]string)
	for _, src := range s.Sources() {
		names[src.ID] = src.Name
	}
	var rows [][]string
	for _, v := range s.Variables() {
		value := v.StaticValue
		if v.SourceKind == variables.KindExternal {
			switch name, ok := names[v.ExternalSourceID]; {
			case v.ExternalSourceID == "":
				value = "(no source)"
			case ok:
				value = "<" + name + ">"
			default:
				value = "<" + v.ExternalSourceID + ">"
			}
		}
		rows = append(rows, []string{v.Key, string(v.SourceKind), value})
	}
	return rows
}

// =============================================================================
// RENDER
// =============================================================================

func (a *app) renderCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Resolve context sources and print the rendered turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			_, s, err := a.loadSession(args[0])
			if err != nil {
				return err
			}
			msgs, err := s.Preview(ctx)
			if err != nil {
				return err
			}
			return writeMessages(cmd.OutOrStdout(), msgs, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print turns as JSON")
	return cmd
}

// =============================================================================
// RUN
// =============================================================================

func (a *app) runCmd() *cobra.Command {
	var (
		asJSON bool
		item   string
	)
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Perform an initial run and print the conversation",
		Long: `Render the prompt file, send it to the configured executor and print the
resulting conversation. With --item, the session is also saved to that
workspace item.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.checkExecutor(ctx); err != nil {
				return err
			}
			_, s, err := a.loadSession(args[0])
			if err != nil {
				return err
			}
			if _, err := runOnce(ctx, s); err != nil {
				return err
			}
			if item != "" {
				if err := a.saveToItem(ctx, item, s); err != nil {
					return err
				}
			}
			return writeMessages(cmd.OutOrStdout(), s.Conversation(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the conversation as JSON")
	cmd.Flags().StringVar(&item, "item", "", "Save the session to this workspace item")
	return cmd
}

// runOnce starts a run and waits for it to settle.
func runOnce(ctx context.Context, s *session.Session) (model.Message, error) {
	run, err := s.StartRun(ctx)
	if err != nil {
		return model.Message{}, err
	}
	return run.Wait(ctx)
}

func (a *app) saveToItem(ctx context.Context, itemID string, s *session.Session) error {
	ws, store, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return ws.SaveSession(ctx, itemID, s.Snapshot())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeMessages(w io.Writer, msgs []model.Message, asJSON bool) error {
	if !asJSON {
		printMessages(w, msgs)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(model.Turns(msgs))
}

// signalContext is cancelled on SIGINT or SIGTERM. A cancelled wait does not
// stop a run already in flight.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
