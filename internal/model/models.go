// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"

	"github.com/jeranaias/promptlab/internal/errs"
)

// =============================================================================
// MODEL CONFIG TYPE
// =============================================================================

// ModelConfig is the configuration record passed with every run.
type ModelConfig struct {
	Model            string  `json:"model" toml:"model" yaml:"model"`
	Temperature      float64 `json:"temperature" toml:"temperature" yaml:"temperature"`
	MaxTokens        int     `json:"max_tokens" toml:"max_tokens" yaml:"max_tokens"`
	Stop             string  `json:"stop" toml:"stop" yaml:"stop"`
	TopP             float64 `json:"top_p" toml:"top_p" yaml:"top_p"`
	PresencePenalty  float64 `json:"presence_penalty" toml:"presence_penalty" yaml:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty" toml:"frequency_penalty" yaml:"frequency_penalty"`
	Streaming        bool    `json:"streaming" toml:"streaming" yaml:"streaming"`
	JSONMode         bool    `json:"json_mode" toml:"json_mode" yaml:"json_mode"`
	Seed             int     `json:"seed" toml:"seed" yaml:"seed"`
	ToolChoice       string  `json:"tool_choice" toml:"tool_choice" yaml:"tool_choice"`
}

// ToolChoiceAuto lets the model pick tools itself.
const ToolChoiceAuto = "auto"

// DefaultModelConfig returns the configuration used by a fresh session.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:       "gpt-4",
		Temperature: 0.7,
		MaxTokens:   4096,
		TopP:        1.0,
		ToolChoice:  ToolChoiceAuto,
	}
}

// Validate checks value ranges.
func (c ModelConfig) Validate() error {
	const op = "model config"
	switch {
	case c.Model == "":
		return errs.Validation(op, "model", "must not be empty")
	case c.Temperature < 0 || c.Temperature > 2:
		return errs.Validation(op, "temperature", fmt.Sprintf("%.2f out of range 0-2", c.Temperature))
	case c.MaxTokens < 1:
		return errs.Validation(op, "max_tokens", "must be at least 1")
	case c.TopP < 0 || c.TopP > 1:
		return errs.Validation(op, "top_p", fmt.Sprintf("%.2f out of range 0-1", c.TopP))
	case c.PresencePenalty < -2 || c.PresencePenalty > 2:
		return errs.Validation(op, "presence_penalty", "out of range -2..2")
	case c.FrequencyPenalty < -2 || c.FrequencyPenalty > 2:
		return errs.Validation(op, "frequency_penalty", "out of range -2..2")
	}
	return nil
}

// =============================================================================
// MODEL CONFIG PATCH
// =============================================================================

// ModelConfigPatch is a partial update; nil fields are left unchanged.
type ModelConfigPatch struct {
	Model            *string  `json:"model,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             *string  `json:"stop,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	Streaming        *bool    `json:"streaming,omitempty"`
	JSONMode         *bool    `json:"json_mode,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	ToolChoice       *string  `json:"tool_choice,omitempty"`
}

// Apply returns c with the patch merged in.
func (p ModelConfigPatch) Apply(c ModelConfig) ModelConfig {
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
	if p.Stop != nil {
		c.Stop = *p.Stop
	}
	if p.TopP != nil {
		c.TopP = *p.TopP
	}
	if p.PresencePenalty != nil {
		c.PresencePenalty = *p.PresencePenalty
	}
	if p.FrequencyPenalty != nil {
		c.FrequencyPenalty = *p.FrequencyPenalty
	}
	if p.Streaming != nil {
		c.Streaming = *p.Streaming
	}
	if p.JSONMode != nil {
		c.JSONMode = *p.JSONMode
	}
	if p.Seed != nil {
		c.Seed = *p.Seed
	}
	if p.ToolChoice != nil {
		c.ToolChoice = *p.ToolChoice
	}
	return c
}
