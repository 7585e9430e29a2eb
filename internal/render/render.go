// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render substitutes variable values into template messages.
//
// Rendering never performs I/O: values of external variables are looked up
// in a map from source id to text that the caller resolved beforehand.
// Substitution is a single pass, so a value that itself contains "{{...}}"
// is inserted verbatim.
package render

import (
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/placeholder"
	"github.com/jeranaias/promptlab/internal/variables"
)

// ContextValues maps an external source id to its fetched text.
type ContextValues map[string]string

// Render returns copies of msgs with every placeholder replaced. Static
// variables give their value, external variables the value for their source
// (empty when unresolved) and unknown keys the empty string. Messages that
// end up blank are kept.
func Render(msgs []model.Message, vars []variables.Variable, values ContextValues) []model.Message {
	byKey := index(vars)
	out := make([]model.Message, len(msgs))
	for i, msg := range msgs {
		msg.Content = Text(msg.Content, byKey, values)
		out[i] = msg
	}
	return out
}

// Text renders a single string against a key-indexed variable set.
func Text(text string, byKey map[string]variables.Variable, values ContextValues) string {
	return placeholder.Substitute(text, func(key string) string {
		v, ok := byKey[key]
		if !ok {
			return ""
		}
		return Value(v, values)
	})
}

// Value returns the text a variable renders to.
func Value(v variables.Variable, values ContextValues) string {
	if v.IsExternal() {
		return values[v.ExternalSourceID]
	}
	return v.StaticValue
}

// ReferencedSources returns the distinct source ids that msgs need resolved,
// in order of first reference. Only bound external variables whose key
// appears in some message count.
func ReferencedSources(msgs []model.Message, vars []variables.Variable) []string {
	byKey := index(vars)
	seen := make(map[string]bool)
	var ids []string
	for _, msg := range msgs {
		for _, key := range placeholder.Extract(msg.Content) {
			v, ok := byKey[key]
			if !ok || !v.Bound() || seen[v.ExternalSourceID] {
				continue
			}
			seen[v.ExternalSourceID] = true
			ids = append(ids, v.ExternalSourceID)
		}
	}
	return ids
}

func index(vars []variables.Variable) map[string]variables.Variable {
	byKey := make(map[string]variables.Variable, len(vars))
	for _, v := range vars {
		byKey[v.Key] = v
	}
	return byKey
}
