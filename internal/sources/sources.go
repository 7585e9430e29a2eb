// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sources holds the named external value sources that variables may
// read from. Sources are referenced by id only; names are display labels and
// need not be unique.
package sources

import (
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/promptlab/internal/errs"
)

// =============================================================================
// SOURCE TYPE
// =============================================================================

// Source describes an HTTP endpoint whose response body is a variable value.
type Source struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty" yaml:"query_params,omitempty"`
}

// Clone returns a copy that shares no maps with s.
func (s Source) Clone() Source {
	s.Headers = maps.Clone(s.Headers)
	s.QueryParams = maps.Clone(s.QueryParams)
	return s
}

// Validate checks the fields a source needs to be fetched.
func (s Source) Validate() error {
	const op = "validate source"
	if strings.TrimSpace(s.Name) == "" {
		return errs.Validation(op, "name", "must not be empty")
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return errs.Validation(op, "endpoint", "must not be empty")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Validation(op, "endpoint", fmt.Sprintf("%q is not an http(s) URL", s.Endpoint))
	}
	return nil
}

// Patch is a partial update. Nil fields are left unchanged; a non-nil map
// replaces the stored one.
type Patch struct {
	Name        *string           `json:"name,omitempty"`
	Endpoint    *string           `json:"endpoint,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
}

// Apply returns s with p merged in. The id never changes.
func (p Patch) Apply(s Source) Source {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Endpoint != nil {
		s.Endpoint = *p.Endpoint
	}
	if p.Headers != nil {
		s.Headers = maps.Clone(p.Headers)
	}
	if p.QueryParams != nil {
		s.QueryParams = maps.Clone(p.QueryParams)
	}
	return s
}

// NewID mints a source identifier.
func NewID() string {
	return "src_" + uuid.NewString()
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an ordered, id-indexed set of sources.
// Not safe for concurrent use; the owning session serializes access.
type Registry struct {
	order []string
	byID  map[string]*Source
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Source)}
}

// FromList builds a registry from stored sources, keeping their ids.
func FromList(list []Source) (*Registry, error) {
	r := New()
	for _, s := range list {
		if s.ID == "" {
			return nil, errs.Validation("load sources", "id", "must not be empty")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, errs.Validation("load sources", "id", fmt.Sprintf("duplicate id %q", s.ID))
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		r.put(s)
	}
	return r, nil
}

func (r *Registry) put(s Source) {
	stored := s.Clone()
	r.byID[s.ID] = &stored
	r.order = append(r.order, s.ID)
}

// Create validates s, assigns it a fresh id and stores it. Any id on s is
// ignored.
func (r *Registry) Create(s Source) (Source, error) {
	if err := s.Validate(); err != nil {
		return Source{}, err
	}
	s.ID = NewID()
	r.put(s)
	return s.Clone(), nil
}

// Update merges p into the source with id.
func (r *Registry) Update(id string, p Patch) (Source, error) {
	cur, ok := r.byID[id]
	if !ok {
		return Source{}, errs.NotFound("update source", "id", fmt.Sprintf("no source %q", id))
	}
	next := p.Apply(cur.Clone())
	if err := next.Validate(); err != nil {
		return Source{}, err
	}
	*cur = next
	return next.Clone(), nil
}

// Delete removes the source with id. Variables referencing it are released
// by the caller.
func (r *Registry) Delete(id string) error {
	if _, ok := r.byID[id]; !ok {
		return errs.NotFound("delete source", "id", fmt.Sprintf("no source %q", id))
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the source with id.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	if !ok {
		return Source{}, false
	}
	return s.Clone(), true
}

// Has reports whether id names a stored source.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns copies of all sources in creation order.
func (r *Registry) List() []Source {
	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.order)
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	c := New()
	for _, s := range r.List() {
		c.put(s)
	}
	return c
}
