// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/promptlab/internal/promptfile"
	"github.com/jeranaias/promptlab/internal/workspace"
)

// =============================================================================
// FOLDERS
// =============================================================================

func (a *app) foldersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "folders",
		Aliases: []string{"folder"},
		Short:   "Manage workspace folders",
		Long: `Folders group saved items. Each folder has a category: prompt, workflow
or datasets. The tree is stored per owner (storage.owner).`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			folders := ws.Folders()
			if len(folders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("No folders."))
				return nil
			}
			rows := make([][]string, 0, len(folders))
			for _, f := range folders {
				rows = append(rows, []string{f.ID, string(f.Category), fmt.Sprint(len(f.Items)), f.Name})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "CATEGORY", "ITEMS", "NAME"}, rows, 50)
			return nil
		},
	}

	var category string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := ws.AddFolder(cmd.Context(), strings.Join(args, " "), workspace.Category(category))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.ID)
			return nil
		},
	}
	add.Flags().StringVar(&category, "category", string(workspace.CategoryPrompt), "Folder category (prompt, workflow, datasets)")

	rm := &cobra.Command{
		Use:     "rm <folder-id>",
		Aliases: []string{"remove"},
		Short:   "Delete a folder, its items and their saved sessions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			return ws.RemoveFolder(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

// =============================================================================
// ITEMS
// =============================================================================

func (a *app) itemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "Manage saved items and their sessions",
	}

	list := &cobra.Command{
		Use:   "list [folder-id]",
		Short: "List items, optionally of one folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			folders := ws.Folders()
			if len(args) == 1 {
				f, ok := ws.Folder(args[0])
				if !ok {
					return fmt.Errorf("no folder %q", args[0])
				}
				folders = []workspace.Folder{f}
			}
			var rows [][]string
			for _, f := range folders {
				for _, it := range f.Items {
					rows = append(rows, []string{it.ID, f.Name, it.Type, it.Name})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("No items."))
				return nil
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "FOLDER", "TYPE", "NAME"}, rows, 50)
			return nil
		},
	}

	var description, itemType string
	add := &cobra.Command{
		Use:   "add <folder-id> <name>",
		Short: "Create an item in a folder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			it, err := ws.AddItem(cmd.Context(), args[0], strings.Join(args[1:], " "), description, itemType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), it.ID)
			return nil
		},
	}
	add.Flags().StringVar(&description, "description", "", "Item description")
	add.Flags().StringVar(&itemType, "type", "prompt", "Item type")

	rm := &cobra.Command{
		Use:     "rm <item-id>",
		Aliases: []string{"remove"},
		Short:   "Delete an item and its saved session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			return ws.RemoveItem(cmd.Context(), args[0])
		},
	}

	save := &cobra.Command{
		Use:   "save <item-id> <file>",
		Short: "Save a prompt file as the item's session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.loadSession(args[1])
			if err != nil {
				return err
			}
			return a.saveToItem(cmd.Context(), args[0], s)
		},
	}

	export := &cobra.Command{
		Use:   "export <item-id> <file>",
		Short: "Write the item's session as a prompt file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			it, ok := ws.Item(args[0])
			if !ok {
				return fmt.Errorf("no item %q", args[0])
			}
			s, err := ws.LoadSession(cmd.Context(), args[0], a.sessionOptions()...)
			if err != nil {
				return err
			}
			name := it.Name
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
			}
			return promptfile.Save(args[1], promptfile.FromSession(s, name))
		},
	}

	show := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Print the item's template and conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, store, err := a.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := ws.LoadSession(cmd.Context(), args[0], a.sessionOptions()...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Template"))
			printMessages(out, s.Template())
			if conv := s.Conversation(); len(conv) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, titleStyle.Render("Conversation"))
				printMessages(out, conv)
			}
			return nil
		},
	}

	cmd.AddCommand(list, add, rm, save, export, show)
	return cmd
}
