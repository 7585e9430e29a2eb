// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package variables

import (
	"fmt"
	"strings"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/placeholder"
)

// =============================================================================
// REGISTRY TYPE
// =============================================================================

// Registry is an ordered, key-indexed set of variables.
// Not safe for concurrent use; the owning session serializes access.
type Registry struct {
	order []string
	byKey map[string]*Variable
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byKey: make(map[string]*Variable)}
}

// FromList builds a registry from a stored list. Keys must be unique,
// non-empty and free of delimiters, and bindings must be consistent.
func FromList(vars []Variable) (*Registry, error) {
	const op = "load variables"
	r := New()
	for _, v := range vars {
		if err := validateKey(op, v.Key); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[v.Key]; dup {
			return nil, errs.Validation(op, "key", fmt.Sprintf("duplicate key %q", v.Key))
		}
		switch v.SourceKind {
		case KindStatic:
			v.ExternalSourceID = ""
		case KindExternal:
			v.StaticValue = ""
		case "":
			v.SourceKind = KindStatic
			v.ExternalSourceID = ""
		default:
			return nil, errs.Validation(op, "source_kind", fmt.Sprintf("unknown kind %q", v.SourceKind))
		}
		r.put(v)
	}
	return r, nil
}

func (r *Registry) put(v Variable) {
	stored := v
	r.byKey[v.Key] = &stored
	r.order = append(r.order, v.Key)
}

// =============================================================================
// QUERIES
// =============================================================================

// Len returns the number of variables.
func (r *Registry) Len() int {
	return len(r.order)
}

// Keys returns the variable keys in order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.order...)
}

// Get returns a copy of the variable for key.
func (r *Registry) Get(key string) (Variable, bool) {
	v, ok := r.byKey[key]
	if !ok {
		return Variable{}, false
	}
	return *v, true
}

// List returns copies of all variables in order.
func (r *Registry) List() []Variable {
	out := make([]Variable, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.byKey[key])
	}
	return out
}

// Lookup returns a key-indexed copy of the registry.
func (r *Registry) Lookup() map[string]Variable {
	out := make(map[string]Variable, len(r.order))
	for _, key := range r.order {
		out[key] = *r.byKey[key]
	}
	return out
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	c := New()
	for _, v := range r.List() {
		c.put(v)
	}
	return c
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile makes the registry exactly the placeholder set of systemText, in
// order of first occurrence. Surviving keys keep their binding regardless of
// position; new keys start as empty static values.
func (r *Registry) Reconcile(systemText string) {
	keys := placeholder.Extract(systemText)
	next := make(map[string]*Variable, len(keys))
	for _, key := range keys {
		if v, ok := r.byKey[key]; ok {
			next[key] = v
			continue
		}
		v := NewStatic(key)
		next[key] = &v
	}
	r.order = keys
	r.byKey = next
}

// =============================================================================
// DELETE / RENAME
// =============================================================================

// Delete removes the variable for key and strips its placeholders from
// systemText, returning the rewritten text. If the key is not registered or
// has no placeholder in systemText nothing changes and a NotFound error is
// returned.
func (r *Registry) Delete(key, systemText string) (string, error) {
	const op = "delete variable"
	if _, ok := r.byKey[key]; !ok {
		return systemText, errs.NotFound(op, "key", fmt.Sprintf("no variable %q", key))
	}
	text, n := placeholder.StripKey(systemText, key)
	if n == 0 {
		return systemText, errs.NotFound(op, "key", fmt.Sprintf("no placeholder for %q in system message", key))
	}
	r.remove(key)
	return text, nil
}

func (r *Registry) remove(key string) {
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// ValidateRename checks a rename without applying it and returns the trimmed
// new key.
func (r *Registry) ValidateRename(oldKey, newKey, systemText string) (string, error) {
	const op = "rename variable"
	newKey = strings.TrimSpace(newKey)
	if _, ok := r.byKey[oldKey]; !ok {
		return "", errs.NotFound(op, "key", fmt.Sprintf("no variable %q", oldKey))
	}
	if err := validateKey(op, newKey); err != nil {
		return "", err
	}
	if newKey == oldKey {
		return "", errs.Validation(op, "key", "new key is unchanged")
	}
	if _, taken := r.byKey[newKey]; taken {
		return "", errs.Validation(op, "key", fmt.Sprintf("key %q already in use", newKey))
	}
	if !placeholder.Contains(systemText, oldKey) {
		return "", errs.NotFound(op, "key", fmt.Sprintf("no placeholder for %q in system message", oldKey))
	}
	return newKey, nil
}

// Rename changes oldKey to newKey, keeping the binding and position, and
// returns systemText with every placeholder for oldKey rewritten. On error
// neither the registry nor the text changes.
func (r *Registry) Rename(oldKey, newKey, systemText string) (string, error) {
	newKey, err := r.ValidateRename(oldKey, newKey, systemText)
	if err != nil {
		return systemText, err
	}
	text, _ := placeholder.ReplaceKey(systemText, oldKey, newKey)

	v := r.byKey[oldKey]
	delete(r.byKey, oldKey)
	v.Key = newKey
	r.byKey[newKey] = v
	for i, k := range r.order {
		if k == oldKey {
			r.order[i] = newKey
			break
		}
	}
	return text, nil
}

func validateKey(op, key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return errs.Validation(op, "key", "must not be empty")
	case key != strings.TrimSpace(key):
		return errs.Validation(op, "key", "must not have surrounding whitespace")
	case placeholder.HasDelimiter(key):
		return errs.Validation(op, "key", "must not contain '{' or '}'")
	}
	return nil
}

// =============================================================================
// BINDINGS
// =============================================================================

// SetStaticValue sets the literal value of a static variable.
func (r *Registry) SetStaticValue(key, value string) error {
	const op = "set variable value"
	v, ok := r.byKey[key]
	if !ok {
		return errs.NotFound(op, "key", fmt.Sprintf("no variable %q", key))
	}
	if v.IsExternal() {
		return errs.Validation(op, "key", fmt.Sprintf("variable %q reads from a context source", key))
	}
	v.StaticValue = value
	return nil
}

// SetSourceKind switches where a variable's value comes from. Switching to
// external clears the static value; switching to static clears the source
// and keeps the value. Either switch leaves no source selected.
func (r *Registry) SetSourceKind(key string, kind SourceKind) error {
	const op = "set variable source kind"
	v, ok := r.byKey[key]
	if !ok {
		return errs.NotFound(op, "key", fmt.Sprintf("no variable %q", key))
	}
	if !kind.Valid() {
		return errs.Validation(op, "source_kind", fmt.Sprintf("unknown kind %q", kind))
	}
	if v.SourceKind == kind {
		return nil
	}
	v.SourceKind = kind
	v.ExternalSourceID = ""
	if kind == KindExternal {
		v.StaticValue = ""
	}
	return nil
}

// BindSource selects the context source of an external variable. An empty
// sourceID unbinds it. The caller checks that the source exists.
func (r *Registry) BindSource(key, sourceID string) error {
	const op = "bind variable source"
	v, ok := r.byKey[key]
	if !ok {
		return errs.NotFound(op, "key", fmt.Sprintf("no variable %q", key))
	}
	if !v.IsExternal() {
		return errs.Validation(op, "key", fmt.Sprintf("variable %q is static", key))
	}
	v.ExternalSourceID = sourceID
	return nil
}

// ReleaseSource reverts every variable bound to sourceID to an empty static
// value and returns the affected keys in order.
func (r *Registry) ReleaseSource(sourceID string) []string {
	var affected []string
	for _, key := range r.order {
		v := r.byKey[key]
		if v.IsExternal() && v.ExternalSourceID == sourceID {
			*v = NewStatic(key)
			affected = append(affected, key)
		}
	}
	return affected
}
