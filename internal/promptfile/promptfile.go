// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package promptfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/session"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/util"
	"github.com/jeranaias/promptlab/internal/variables"
)

// =============================================================================
// FILE TYPES
// =============================================================================

// File is a prompt definition as written on disk.
type File struct {
	Name      string            `yaml:"name,omitempty"`
	Model     model.ModelConfig `yaml:"model"`
	Template  []Message         `yaml:"template"`
	Variables []Variable        `yaml:"variables,omitempty"`
	Sources   []sources.Source  `yaml:"sources,omitempty"`
	Tools     []string          `yaml:"tools,omitempty"`
}

// Message is one template turn.
type Message struct {
	Role    model.Role `yaml:"role"`
	Content string     `yaml:"content"`
}

// Variable sets a static value, or binds the key to a source by id or name.
type Variable struct {
	Key    string `yaml:"key"`
	Value  string `yaml:"value,omitempty"`
	Source string `yaml:"source,omitempty"`
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a YAML prompt definition.
func Parse(data []byte) (*File, error) {
	f := &File{Model: model.DefaultModelConfig()}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errs.Validation("parse prompt file", "yaml", err.Error())
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks roles, variable references and the model settings.
func (f *File) Validate() error {
	const op = "validate prompt file"
	if len(f.Template) == 0 {
		return errs.Validation(op, "template", "at least one message is required")
	}
	for i, msg := range f.Template {
		if !msg.Role.Selectable() {
			return errs.Validation(op, "template", fmt.Sprintf("message %d: role %q must be system or user", i, msg.Role))
		}
	}
	for i, src := range f.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}
	for _, v := range f.Variables {
		if strings.TrimSpace(v.Key) == "" {
			return errs.Validation(op, "variables", "key must not be empty")
		}
		if v.Source != "" && f.source(v.Source) < 0 {
			return errs.Validation(op, "variables", fmt.Sprintf("variable %q: unknown source %q", v.Key, v.Source))
		}
	}
	return f.Model.Validate()
}

// Save writes f to path atomically.
func Save(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0644)
}

// source returns the index of the source with id or name ref.
func (f *File) source(ref string) int {
	for i, src := range f.Sources {
		if src.ID == ref {
			return i
		}
	}
	for i, src := range f.Sources {
		if src.Name == ref {
			return i
		}
	}
	return -1
}

// =============================================================================
// CONVERSION
// =============================================================================

// Snapshot converts f into a session snapshot with fresh message ids.
// Sources without an id get one minted.
func (f *File) Snapshot() session.Snapshot {
	srcs := make([]sources.Source, len(f.Sources))
	for i, src := range f.Sources {
		src = src.Clone()
		if src.ID == "" {
			src.ID = sources.NewID()
		}
		srcs[i] = src
	}

	vars := make([]variables.Variable, 0, len(f.Variables))
	for _, v := range f.Variables {
		key := strings.TrimSpace(v.Key)
		if v.Source != "" {
			id := ""
			if i := f.source(v.Source); i >= 0 {
				id = srcs[i].ID
			}
			vars = append(vars, variables.Variable{Key: key, SourceKind: variables.KindExternal, ExternalSourceID: id})
			continue
		}
		vars = append(vars, variables.Variable{Key: key, SourceKind: variables.KindStatic, StaticValue: v.Value})
	}

	return session.Snapshot{
		Version:     session.SnapshotVersion,
		Template:    f.messages(),
		Variables:   vars,
		Sources:     srcs,
		ModelConfig: f.Model,
		Tools:       f.Tools,
	}
}

// NewSession builds a session from f.
func (f *File) NewSession(opts ...session.Option) (*session.Session, error) {
	return session.Restore(f.Snapshot(), opts...)
}

func (f *File) messages() []model.Message {
	msgs := make([]model.Message, len(f.Template))
	for i, m := range f.Template {
		msgs[i] = model.NewMessage(m.Role, m.Content)
	}
	return msgs
}

// FromSession captures the template, bindings, sources, model settings and
// tools of s. The conversation is not part of a prompt file.
func FromSession(s *session.Session, name string) *File {
	snap := s.Snapshot()
	f := &File{
		Name:    name,
		Model:   snap.ModelConfig,
		Sources: snap.Sources,
		Tools:   snap.Tools,
	}
	for _, msg := range snap.Template {
		f.Template = append(f.Template, Message{Role: msg.Role, Content: msg.Content})
	}
	for _, v := range snap.Variables {
		switch {
		case v.IsExternal():
			f.Variables = append(f.Variables, Variable{Key: v.Key, Source: v.ExternalSourceID})
		case v.StaticValue != "":
			f.Variables = append(f.Variables, Variable{Key: v.Key, Value: v.StaticValue})
		}
	}
	return f
}

// =============================================================================
// APPLY
// =============================================================================

// Apply updates a live session from f in one command: the template is
// replaced, static values are set, source references are matched against the
// session's own sources by id and then by name, and the model settings are
// replaced. Sources themselves are left alone. Apply fails with
// session.ErrRunInProgress while a run is in flight and then changes nothing.
func Apply(ctx context.Context, s *session.Session, f *File) error {
	live := s.Sources()
	bindings := make([]variables.Variable, 0, len(f.Variables))
	for _, v := range f.Variables {
		key := strings.TrimSpace(v.Key)
		if v.Source == "" {
			bindings = append(bindings, variables.Variable{Key: key, SourceKind: variables.KindStatic, StaticValue: v.Value})
			continue
		}
		bindings = append(bindings, variables.Variable{
			Key:              key,
			SourceKind:       variables.KindExternal,
			ExternalSourceID: f.liveSourceID(v.Source, live),
		})
	}

	_, err := s.Dispatch(ctx, session.LoadPrompt{
		Messages:    f.messages(),
		Bindings:    bindings,
		ModelConfig: f.Model,
	})
	return err
}

// liveSourceID finds the session source that ref names. ref may be a live id
// or name, or point at a file source whose id or name matches a live one.
func (f *File) liveSourceID(ref string, live []sources.Source) string {
	refs := []string{ref}
	if i := f.source(ref); i >= 0 {
		refs = append(refs, f.Sources[i].ID, f.Sources[i].Name)
	}
	for _, r := range refs {
		for _, src := range live {
			if r != "" && src.ID == r {
				return src.ID
			}
		}
	}
	for _, r := range refs {
		for _, src := range live {
			if r != "" && src.Name == r {
				return src.ID
			}
		}
	}
	return ""
}
