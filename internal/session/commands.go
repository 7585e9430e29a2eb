// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

// Command is a state transition request processed by Session.Dispatch.
// The set of commands is closed.
type Command interface {
	commandName() string
}

// Result reports what a command did. Only the fields relevant to the
// command are set.
type Result struct {
	// Changed is false when the command was an accepted no-op.
	Changed bool `json:"changed"`
	// MessageID names the message a command created.
	MessageID string `json:"message_id,omitempty"`
	// SourceID names the source a command created.
	SourceID string `json:"source_id,omitempty"`
	// Key is the variable key after a rename.
	Key string `json:"key,omitempty"`
	// Released lists variables reverted to static by a source delete.
	Released []string `json:"released,omitempty"`
	// Run is the in-flight run started by StartRun.
	Run *Run `json:"-"`
}

// ===== Template =====

// AddTemplateMessage appends a system or user message to the template.
type AddTemplateMessage struct {
	Role    model.Role
	Content string
}

// DeleteTemplateMessage removes a template message. The last one cannot go.
type DeleteTemplateMessage struct {
	ID string
}

// EditMessageContent replaces a template message's content.
type EditMessageContent struct {
	ID      string
	Content string
}

// EditMessageRole switches a template message between system and user.
type EditMessageRole struct {
	ID   string
	Role model.Role
}

// ReplaceTemplate swaps the whole template, keeping bindings of keys that
// survive.
type ReplaceTemplate struct {
	Messages []model.Message
}

// LoadPrompt replaces the template, the bindings of the keys it declares and
// the model settings in one step. Bindings for keys the new template does not
// declare are ignored. An external binding whose source is unknown leaves the
// key external and unbound.
type LoadPrompt struct {
	Messages    []model.Message
	Bindings    []variables.Variable
	ModelConfig model.ModelConfig
}

// ===== Variables =====

// SetVariableValue sets the literal value of a static variable.
type SetVariableValue struct {
	Key   string
	Value string
}

// SetVariableSourceKind switches a variable between static and external.
type SetVariableSourceKind struct {
	Key  string
	Kind variables.SourceKind
}

// BindVariableSource selects the context source of an external variable.
type BindVariableSource struct {
	Key      string
	SourceID string
}

// RenameKey renames a variable and every placeholder for it.
type RenameKey struct {
	OldKey string
	NewKey string
}

// DeleteVariable removes a variable and strips its placeholders.
type DeleteVariable struct {
	Key string
}

// ===== Context sources =====

// CreateSource registers a new context source.
type CreateSource struct {
	Source sources.Source
}

// UpdateSource merges a patch into a context source.
type UpdateSource struct {
	ID    string
	Patch sources.Patch
}

// DeleteSource removes a context source and releases variables bound to it.
type DeleteSource struct {
	ID string
}

// ===== Conversation =====

// AppendFollowUp opens an empty user message at the conversation tail.
type AppendFollowUp struct{}

// EditConversationMessage edits the content of the editing tail.
type EditConversationMessage struct {
	ID      string
	Content string
}

// DeleteConversationMessage removes a conversation message.
type DeleteConversationMessage struct {
	ID string
}

// ClearConversation empties the conversation.
type ClearConversation struct{}

// ===== Configuration and tools =====

// SetModelConfig merges a patch into the model configuration.
type SetModelConfig struct {
	Patch model.ModelConfigPatch
}

// AddTool adds a prompt tool name.
type AddTool struct {
	Name string
}

// DeleteTool removes a prompt tool name.
type DeleteTool struct {
	Name string
}

// ===== Run =====

// StartRun starts an initial or follow-up run.
type StartRun struct{}

func (AddTemplateMessage) commandName() string        { return "add template message" }
func (DeleteTemplateMessage) commandName() string     { return "delete template message" }
func (EditMessageContent) commandName() string        { return "edit message content" }
func (EditMessageRole) commandName() string           { return "edit message role" }
func (ReplaceTemplate) commandName() string           { return "replace template" }
func (LoadPrompt) commandName() string                { return "load prompt" }
func (SetVariableValue) commandName() string          { return "set variable value" }
func (SetVariableSourceKind) commandName() string     { return "set variable source kind" }
func (BindVariableSource) commandName() string        { return "bind variable source" }
func (RenameKey) commandName() string                 { return "rename key" }
func (DeleteVariable) commandName() string            { return "delete variable" }
func (CreateSource) commandName() string              { return "create source" }
func (UpdateSource) commandName() string              { return "update source" }
func (DeleteSource) commandName() string              { return "delete source" }
func (AppendFollowUp) commandName() string            { return "append follow-up" }
func (EditConversationMessage) commandName() string   { return "edit conversation message" }
func (DeleteConversationMessage) commandName() string { return "delete conversation message" }
func (ClearConversation) commandName() string         { return "clear conversation" }
func (SetModelConfig) commandName() string            { return "set model config" }
func (AddTool) commandName() string                   { return "add tool" }
func (DeleteTool) commandName() string                { return "delete tool" }
func (StartRun) commandName() string                  { return "start run" }
