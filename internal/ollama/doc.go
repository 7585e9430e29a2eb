// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama is a small HTTP client for a local Ollama server.
//
// Only what a run needs is covered: a health check, the model list and
// /api/chat, with streamed replies folded into a single response.
//
// # Usage
//
//	client := ollama.NewClient(&ollama.ClientConfig{BaseURL: "http://127.0.0.1:11434"})
//	resp, err := client.Chat(ctx, ollama.ChatRequest{Model: "llama3", Messages: msgs}, nil)
package ollama
