// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/promptlab/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// Selectable reports whether a template message may be switched to r.
// Only system and user turns are authored by hand.
func (r Role) Selectable() bool {
	return r == RoleSystem || r == RoleUser
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single role-tagged turn in a template or conversation.
// Editing marks the message as open for user input; the session keeps at most
// one such message in the conversation.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Editing   bool      `json:"editing,omitempty" yaml:"editing,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a finalized assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewEditingUserMessage creates an empty user message open for input.
func NewEditingUserMessage() Message {
	msg := NewMessage(RoleUser, "")
	msg.Editing = true
	return msg
}

// NewID mints an opaque message identifier.
func NewID() string {
	return "msg_" + uuid.NewString()
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsBlank returns true if the message has no content after trimming.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Preview returns the content truncated to maxWidth display columns on one line.
func (m Message) Preview(maxWidth int) string {
	flat := strings.Join(strings.Fields(m.Content), " ")
	return util.TruncateWidth(flat, maxWidth)
}

// Turn returns the role/content pair sent to the run executor.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is a rendered {role, content} pair handed to the run executor.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
