// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is the serializable state of a session. Run state is not part of
// it; a snapshot always restores to Idle.
type Snapshot struct {
	Version      int                  `json:"version"`
	ID           string               `json:"id"`
	Template     []model.Message      `json:"template"`
	Conversation []model.Message      `json:"conversation"`
	Variables    []variables.Variable `json:"variables"`
	Sources      []sources.Source     `json:"sources"`
	ModelConfig  model.ModelConfig    `json:"model_config"`
	Tools        []string             `json:"tools"`
	SavedAt      time.Time            `json:"saved_at"`
}

// Snapshot captures the current state. Taken during a run it reflects the
// state before the run settles.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Version:      SnapshotVersion,
		ID:           s.id,
		Template:     s.template.All(),
		Conversation: s.conversation.All(),
		Variables:    s.vars.List(),
		Sources:      s.sources.List(),
		ModelConfig:  s.config,
		Tools:        slices.Clone(s.tools),
		SavedAt:      time.Now(),
	}
}

// Marshal encodes the snapshot as JSON.
func (snap Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(snap)
}

// UnmarshalSnapshot decodes a JSON snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return Snapshot{}, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, SnapshotVersion)
	}
	return snap, nil
}

// Restore rebuilds a session from a snapshot. The registry is reconciled
// against the restored system message, bindings to unknown sources are
// released, and the conversation must satisfy the editable-tail invariant.
func Restore(snap Snapshot, opts ...Option) (*Session, error) {
	const op = "restore session"
	if len(snap.Template) == 0 {
		return nil, errs.Validation(op, "template", "template must have at least one message")
	}
	tmpl := model.NewMessageList()
	for _, msg := range snap.Template {
		if !msg.Role.Selectable() {
			return nil, errs.Validation(op, "template", fmt.Sprintf("role %q is not selectable", msg.Role))
		}
		if !tmpl.Append(msg) {
			return nil, errs.Validation(op, "template", fmt.Sprintf("duplicate message id %q", msg.ID))
		}
	}

	conv := model.NewMessageList()
	for i, msg := range snap.Conversation {
		if !msg.Role.Valid() {
			return nil, errs.Validation(op, "conversation", fmt.Sprintf("unknown role %q", msg.Role))
		}
		if msg.Editing && (i != len(snap.Conversation)-1 || msg.Role != model.RoleUser) {
			return nil, errs.Validation(op, "conversation", "only the user tail may be editing")
		}
		if !conv.Append(msg) {
			return nil, errs.Validation(op, "conversation", fmt.Sprintf("duplicate message id %q", msg.ID))
		}
	}

	vars, err := variables.FromList(snap.Variables)
	if err != nil {
		return nil, err
	}
	srcs, err := sources.FromList(snap.Sources)
	if err != nil {
		return nil, err
	}
	// Bindings to missing sources revert to empty static values, as a
	// source delete does.
	for _, v := range vars.List() {
		if v.Bound() && !srcs.Has(v.ExternalSourceID) {
			vars.ReleaseSource(v.ExternalSourceID)
		}
	}

	cfg := snap.ModelConfig
	if cfg == (model.ModelConfig{}) {
		cfg = model.DefaultModelConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if snap.ID != "" {
		opts = append([]Option{WithID(snap.ID)}, opts...)
	}
	opts = append([]Option{WithModelConfig(cfg)}, opts...)
	s := newSession(tmpl, vars, srcs, opts)
	s.conversation = conv
	s.tools = slices.Clone(snap.Tools)
	return s, nil
}
