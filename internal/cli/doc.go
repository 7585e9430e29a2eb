// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the promptlab command tree.
//
// # Commands
//
//   - extract <file>: print the placeholder keys of a prompt file
//   - render <file>: resolve context sources and print the rendered turns
//   - run <file>: perform an initial run and print the conversation
//   - chat <file>: run, then loop follow-up turns with line history
//   - serve <file>: expose the session over HTTP, reloading the file on change
//   - folders, items: manage the saved workspace tree
//   - config show|path|get|set|keys: inspect and edit configuration
//
// # Usage
//
//	os.Exit(cli.Execute())
package cli
