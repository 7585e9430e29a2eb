// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package variables

// SourceKind says where a variable's value comes from at render time.
type SourceKind string

const (
	// KindStatic variables render their StaticValue.
	KindStatic SourceKind = "static"
	// KindExternal variables render the value fetched for ExternalSourceID.
	KindExternal SourceKind = "external"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	return k == KindStatic || k == KindExternal
}

// Variable binds a placeholder key to a value.
// A static variable never carries a source id; an external variable's
// StaticValue is ignored when rendering.
type Variable struct {
	Key              string     `json:"key" yaml:"key"`
	SourceKind       SourceKind `json:"source_kind" yaml:"source_kind"`
	StaticValue      string     `json:"static_value,omitempty" yaml:"static_value,omitempty"`
	ExternalSourceID string     `json:"external_source_id,omitempty" yaml:"external_source_id,omitempty"`
}

// NewStatic returns an unbound static variable for key.
func NewStatic(key string) Variable {
	return Variable{Key: key, SourceKind: KindStatic}
}

// IsExternal reports whether v reads from a context source.
func (v Variable) IsExternal() bool {
	return v.SourceKind == KindExternal
}

// Bound reports whether an external variable has a source selected.
func (v Variable) Bound() bool {
	return v.IsExternal() && v.ExternalSourceID != ""
}
