// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/ollama"
)

// =============================================================================
// OLLAMA EXECUTOR
// =============================================================================

// Ollama runs turns against a local Ollama server.
type Ollama struct {
	client *ollama.Client
	log    *logger.Logger

	// OnFragment, if set, receives streamed content as it arrives.
	OnFragment ollama.StreamCallback
}

// NewOllama creates an executor over client. A nil log discards output.
func NewOllama(client *ollama.Client, log *logger.Logger) *Ollama {
	if log == nil {
		log = logger.Nop()
	}
	return &Ollama{client: client, log: log.With("component", "executor", "backend", "ollama")}
}

// Execute sends one chat request built from req.
func (o *Ollama) Execute(ctx context.Context, req Request) (Response, error) {
	chat := BuildChatRequest(req)
	resp, err := o.client.Chat(ctx, chat, o.OnFragment)
	if err != nil {
		return Response{}, fmt.Errorf("ollama chat: %w", err)
	}
	o.log.Debug("chat completed",
		"model", chat.Model,
		"turns", len(chat.Messages),
		"eval_count", resp.EvalCount,
		"tokens_per_sec", resp.TokensPerSecond(),
	)
	return Response{Role: model.RoleAssistant, Content: resp.Message.Content}, nil
}

// BuildChatRequest maps a run request onto the Ollama chat API.
// Tool choice has no Ollama equivalent and is not sent.
func BuildChatRequest(req Request) ollama.ChatRequest {
	cfg := req.Config
	msgs := make([]ollama.Message, 0, len(req.Turns))
	for _, t := range req.Turns {
		msgs = append(msgs, ollama.Message{Role: string(t.Role), Content: t.Content})
	}

	opts := &ollama.Options{
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
		NumPredict:       cfg.MaxTokens,
		Seed:             cfg.Seed,
	}
	if stop := strings.TrimSpace(cfg.Stop); stop != "" {
		for _, s := range strings.Split(stop, ",") {
			if s = strings.TrimSpace(s); s != "" {
				opts.Stop = append(opts.Stop, s)
			}
		}
	}

	chat := ollama.ChatRequest{
		Model:    cfg.Model,
		Messages: msgs,
		Stream:   cfg.Streaming,
		Options:  opts,
	}
	if cfg.JSONMode {
		chat.Format = "json"
	}
	return chat
}
