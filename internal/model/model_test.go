// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"

	"github.com/jeranaias/promptlab/internal/errs"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		if !r.Valid() {
			t.Errorf("%q.Valid() = false, want true", r)
		}
	}
	if Role("narrator").Valid() {
		t.Error("unknown role should not be valid")
	}
}

func TestRole_Selectable(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleSystem, true},
		{RoleUser, true},
		{RoleAssistant, false},
		{RoleTool, false},
	}
	for _, tc := range tests {
		if got := tc.role.Selectable(); got != tc.want {
			t.Errorf("%q.Selectable() = %v, want %v", tc.role, got, tc.want)
		}
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	msg := NewSystemMessage("hello")
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID should start with 'msg_', got %q", msg.ID)
	}
	if msg.Role != RoleSystem || msg.Content != "hello" || msg.Editing {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if NewSystemMessage("x").ID == msg.ID {
		t.Error("IDs should be unique")
	}
}

func TestNewEditingUserMessage(t *testing.T) {
	msg := NewEditingUserMessage()
	if msg.Role != RoleUser || !msg.Editing || msg.Content != "" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestMessage_IsBlank(t *testing.T) {
	if !NewUserMessage("  \n\t").IsBlank() {
		t.Error("whitespace-only message should be blank")
	}
	if NewUserMessage(" x ").IsBlank() {
		t.Error("message with content should not be blank")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("line one\nline two is rather long")
	got := msg.Preview(12)
	if got != "line one ..." {
		t.Errorf("Preview(12) = %q", got)
	}
	if NewUserMessage("short").Preview(12) != "short" {
		t.Error("short content should not be truncated")
	}
}

// =============================================================================
// MESSAGE LIST TESTS
// =============================================================================

func TestMessageList_AppendAndGet(t *testing.T) {
	l := NewMessageList()
	a := NewSystemMessage("a")
	b := NewUserMessage("b")

	if !l.Append(a) || !l.Append(b) {
		t.Fatal("Append should succeed for new IDs")
	}
	if l.Append(a) {
		t.Error("Append should reject duplicate IDs")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}

	got, ok := l.Get(b.ID)
	if !ok || got.Content != "b" {
		t.Errorf("Get(b) = %+v, %v", got, ok)
	}
	if _, ok := l.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}
}

func TestMessageList_AppendMintsID(t *testing.T) {
	var l MessageList
	l.Append(Message{Role: RoleUser, Content: "x"})
	last, ok := l.Last()
	if !ok || last.ID == "" || last.Timestamp.IsZero() {
		t.Errorf("Append should mint ID and timestamp, got %+v", last)
	}
}

func TestMessageList_GetReturnsCopy(t *testing.T) {
	msg := NewUserMessage("original")
	l := NewMessageList(msg)

	got, _ := l.Get(msg.ID)
	got.Content = "mutated"

	again, _ := l.Get(msg.ID)
	if again.Content != "original" {
		t.Error("Get should return a copy")
	}
}

func TestMessageList_Update(t *testing.T) {
	msg := NewUserMessage("x")
	l := NewMessageList(msg)

	ok := l.Update(msg.ID, func(m *Message) {
		m.Content = "y"
		m.ID = "hijack"
	})
	if !ok {
		t.Fatal("Update should find message")
	}
	got, _ := l.Get(msg.ID)
	if got.Content != "y" || got.ID != msg.ID {
		t.Errorf("Update result = %+v", got)
	}
	if l.Update("missing", func(*Message) {}) {
		t.Error("Update(missing) should fail")
	}
}

func TestMessageList_RemoveKeepsOrder(t *testing.T) {
	a, b, c := NewUserMessage("a"), NewUserMessage("b"), NewUserMessage("c")
	l := NewMessageList(a, b, c)

	if !l.Remove(b.ID) {
		t.Fatal("Remove should succeed")
	}
	if l.Remove(b.ID) {
		t.Error("second Remove should fail")
	}
	all := l.All()
	if len(all) != 2 || all[0].ID != a.ID || all[1].ID != c.ID {
		t.Errorf("order after remove = %v", all)
	}
}

func TestMessageList_Queries(t *testing.T) {
	sys := NewSystemMessage("s")
	user := NewEditingUserMessage()
	l := NewMessageList(NewUserMessage("u"), sys, user)

	first, ok := l.FirstWithRole(RoleSystem)
	if !ok || first.ID != sys.ID {
		t.Errorf("FirstWithRole(system) = %+v", first)
	}
	if _, ok := l.FirstWithRole(RoleTool); ok {
		t.Error("FirstWithRole(tool) should fail")
	}
	last, _ := l.Last()
	if last.ID != user.ID {
		t.Errorf("Last() = %+v", last)
	}
	if l.CountEditing() != 1 {
		t.Errorf("CountEditing() = %d, want 1", l.CountEditing())
	}
}

func TestMessageList_CloneIsIndependent(t *testing.T) {
	msg := NewUserMessage("x")
	l := NewMessageList(msg)
	c := l.Clone()
	c.Update(msg.ID, func(m *Message) { m.Content = "changed" })

	got, _ := l.Get(msg.ID)
	if got.Content != "x" {
		t.Error("Clone should not share storage")
	}
}

func TestMessageList_Clear(t *testing.T) {
	l := NewMessageList(NewUserMessage("x"))
	l.Clear()
	if !l.IsEmpty() {
		t.Error("Clear should empty the list")
	}
	if _, ok := l.Last(); ok {
		t.Error("Last on empty list should fail")
	}
	l.Append(NewUserMessage("y"))
	if l.Len() != 1 {
		t.Error("list should be usable after Clear")
	}
}

func TestTurns(t *testing.T) {
	turns := Turns([]Message{NewSystemMessage("s"), NewUserMessage("u")})
	if len(turns) != 2 || turns[0] != (Turn{Role: RoleSystem, Content: "s"}) {
		t.Errorf("Turns = %+v", turns)
	}
}

// =============================================================================
// MODEL CONFIG TESTS
// =============================================================================

func TestDefaultModelConfig_Valid(t *testing.T) {
	cfg := DefaultModelConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Model != "gpt-4" || cfg.MaxTokens != 4096 || cfg.ToolChoice != ToolChoiceAuto {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestModelConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
		field  string
	}{
		{"empty model", func(c *ModelConfig) { c.Model = "" }, "model"},
		{"temperature high", func(c *ModelConfig) { c.Temperature = 2.5 }, "temperature"},
		{"max tokens zero", func(c *ModelConfig) { c.MaxTokens = 0 }, "max_tokens"},
		{"top p", func(c *ModelConfig) { c.TopP = 1.5 }, "top_p"},
		{"presence", func(c *ModelConfig) { c.PresencePenalty = -3 }, "presence_penalty"},
		{"frequency", func(c *ModelConfig) { c.FrequencyPenalty = 3 }, "frequency_penalty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultModelConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if !errs.IsValidation(err) {
				t.Fatalf("Validate() = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q should name field %q", err, tc.field)
			}
		})
	}
}

func TestModelConfigPatch_Apply(t *testing.T) {
	temp := 1.2
	model := "llama3"
	got := ModelConfigPatch{Temperature: &temp, Model: &model}.Apply(DefaultModelConfig())

	if got.Temperature != 1.2 || got.Model != "llama3" {
		t.Errorf("patched fields not applied: %+v", got)
	}
	if got.MaxTokens != 4096 {
		t.Error("unpatched fields should be preserved")
	}
}
