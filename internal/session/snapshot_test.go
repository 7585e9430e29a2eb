// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/executor"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	s := newTestSession(t, "Hi {{who}} about {{ctx}}")
	mustDispatch(t, s, SetVariableValue{Key: "who", Value: "Ada"})
	src := mustDispatch(t, s, CreateSource{Source: sources.Source{
		Name:     "Docs",
		Endpoint: "https://docs.example.com",
		Headers:  map[string]string{"Authorization": "Bearer x"},
	}})
	mustDispatch(t, s, SetVariableSourceKind{Key: "ctx", Kind: variables.KindExternal})
	mustDispatch(t, s, BindVariableSource{Key: "ctx", SourceID: src.SourceID})
	mustDispatch(t, s, AddTool{Name: "search"})
	run, err := s.StartRun(ctx)
	require.NoError(t, err)
	_, _ = waitRun(t, run)

	data, err := s.Snapshot().Marshal()
	require.NoError(t, err)
	snap, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	restored, err := Restore(snap, WithExecutor(executor.NewEcho(0)))
	require.NoError(t, err)

	assert.Equal(t, s.ID(), restored.ID())
	assert.Equal(t, StateIdle, restored.State())
	ignoreTime := cmpopts.IgnoreFields(model.Message{}, "Timestamp")
	if diff := cmp.Diff(s.Template(), restored.Template(), ignoreTime); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Conversation(), restored.Conversation(), ignoreTime); diff != "" {
		t.Errorf("conversation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, s.Variables(), restored.Variables())
	assert.Equal(t, s.Sources(), restored.Sources())
	assert.Equal(t, []string{"search"}, restored.Tools())
	require.NoError(t, restored.CheckInvariants())
}

func TestUnmarshalSnapshot_RejectsNewerVersion(t *testing.T) {
	_, err := UnmarshalSnapshot([]byte(`{"version": 99}`))
	assert.ErrorContains(t, err, "newer")

	_, err = UnmarshalSnapshot([]byte(`{not json`))
	assert.Error(t, err)
}

func TestRestore_Normalizes(t *testing.T) {
	sys := model.NewSystemMessage("{{kept}} {{fresh}}")
	snap := Snapshot{
		Version:  SnapshotVersion,
		Template: []model.Message{sys},
		Variables: []variables.Variable{
			{Key: "kept", SourceKind: variables.KindExternal, ExternalSourceID: "src_gone"},
			{Key: "stale", StaticValue: "x"},
		},
	}

	s, err := Restore(snap)
	require.NoError(t, err)

	v, ok := lookup(s, "kept")
	require.True(t, ok)
	assert.Equal(t, variables.Variable{Key: "kept", SourceKind: variables.KindStatic}, v,
		"binding to unknown source reverts to an empty static value")
	_, ok = lookup(s, "fresh")
	assert.True(t, ok, "missing placeholder registered")
	_, ok = lookup(s, "stale")
	assert.False(t, ok, "orphaned key dropped")
	assert.Equal(t, model.DefaultModelConfig(), s.ModelConfig())
	assert.NotEmpty(t, s.ID())
	require.NoError(t, s.CheckInvariants())
}

func TestRestore_Rejects(t *testing.T) {
	sys := model.NewSystemMessage("s")
	tail := model.NewEditingUserMessage()
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"empty template", Snapshot{}},
		{"assistant in template", Snapshot{Template: []model.Message{model.NewAssistantMessage("a")}}},
		{"duplicate ids", Snapshot{Template: []model.Message{sys, sys}}},
		{"editing not at tail", Snapshot{
			Template:     []model.Message{sys},
			Conversation: []model.Message{tail, model.NewAssistantMessage("a")},
		}},
		{"unknown role", Snapshot{
			Template:     []model.Message{sys},
			Conversation: []model.Message{{ID: "m1", Role: "narrator"}},
		}},
		{"bad source", Snapshot{
			Template: []model.Message{sys},
			Sources:  []sources.Source{{ID: "src_1", Name: "x", Endpoint: "ftp://x"}},
		}},
		{"bad config", Snapshot{
			Template:    []model.Message{sys},
			ModelConfig: model.ModelConfig{Model: "m", MaxTokens: 0},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Restore(tc.snap)
			assert.True(t, errs.IsValidation(err), "err = %v", err)
		})
	}
}

func lookup(s *Session, key string) (variables.Variable, bool) {
	for _, v := range s.Variables() {
		if v.Key == key {
			return v, true
		}
	}
	return variables.Variable{}, false
}
