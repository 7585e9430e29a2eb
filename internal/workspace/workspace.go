// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace manages the folders and items a user organizes prompts
// in, and the saved session behind each item.
//
// The whole folder tree is one snapshot stored under "user-files-<owner>".
// Every mutation saves the tree; if the save fails the mutation is rolled
// back. Session snapshots live under "session-<item id>".
package workspace

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/session"
	"github.com/jeranaias/promptlab/internal/storage"
)

// DefaultOwner is used when no user identifier is configured.
const DefaultOwner = "user_123"

// =============================================================================
// TYPES
// =============================================================================

// Category groups folders by what they hold.
type Category string

const (
	CategoryPrompt   Category = "prompt"
	CategoryWorkflow Category = "workflow"
	CategoryDatasets Category = "datasets"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrompt, CategoryWorkflow, CategoryDatasets:
		return true
	}
	return false
}

// Folder is a named, categorized list of items.
type Folder struct {
	ID        string    `json:"folderid"`
	Name      string    `json:"name"`
	Category  Category  `json:"category,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"items"`
}

// Item is one saved prompt, workflow or dataset.
type Item struct {
	ID          string    `json:"itemid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	FolderID    string    `json:"folderid"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

func (f Folder) clone() Folder {
	f.Items = slices.Clone(f.Items)
	return f
}

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace is the folder tree of one owner. It is safe for concurrent use.
type Workspace struct {
	mu      sync.Mutex
	store   storage.Store
	owner   string
	folders []Folder
	log     *logger.Logger
	now     func() time.Time
}

// FoldersKey returns the storage key of owner's folder tree.
func FoldersKey(owner string) string {
	return "user-files-" + owner
}

// SessionKey returns the storage key of an item's session snapshot.
func SessionKey(itemID string) string {
	return "session-" + itemID
}

// Open loads owner's folder tree. A missing tree starts empty; an
// unreadable one is logged and also starts empty.
func Open(ctx context.Context, store storage.Store, owner string, log *logger.Logger) (*Workspace, error) {
	if owner == "" {
		owner = DefaultOwner
	}
	if err := storage.ValidateKey(FoldersKey(owner)); err != nil {
		return nil, errs.Validation("open workspace", "owner", fmt.Sprintf("invalid owner %q", owner))
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &Workspace{store: store, owner: owner, log: log.With("owner", owner), now: time.Now}

	var folders []Folder
	err := storage.GetJSON(ctx, store, FoldersKey(owner), &folders)
	switch {
	case err == nil:
		w.folders = folders
	case errors.Is(err, storage.ErrNotFound):
	default:
		w.log.Warn("failed to load folders, starting empty", "error", err)
	}
	return w, nil
}

// Owner returns the owner identifier.
func (w *Workspace) Owner() string {
	return w.owner
}

// Folders returns a copy of the folder tree.
func (w *Workspace) Folders() []Folder {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Folder, len(w.folders))
	for i, f := range w.folders {
		out[i] = f.clone()
	}
	return out
}

// Folder returns a copy of the folder with id.
func (w *Workspace) Folder(id string) (Folder, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.folderIndex(id); i >= 0 {
		return w.folders[i].clone(), true
	}
	return Folder{}, false
}

// Item returns a copy of the item with id.
func (w *Workspace) Item(id string) (Item, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fi, ii := w.itemIndex(id); fi >= 0 {
		return w.folders[fi].Items[ii], true
	}
	return Item{}, false
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AddFolder appends a new empty folder.
func (w *Workspace) AddFolder(ctx context.Context, name string, category Category) (Folder, error) {
	const op = "add folder"
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, errs.Validation(op, "name", "must not be empty")
	}
	if !category.Valid() {
		return Folder{}, errs.Validation(op, "category", fmt.Sprintf("unknown category %q", category))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	folder := Folder{ID: uuid.NewString(), Name: name, Category: category, CreatedAt: w.now(), Items: []Item{}}
	next := append(slices.Clone(w.folders), folder)
	if err := w.commit(ctx, next); err != nil {
		return Folder{}, err
	}
	w.log.Info("folder added", "folder", folder.ID, "category", category)
	return folder.clone(), nil
}

// RemoveFolder deletes a folder with its items and their sessions.
func (w *Workspace) RemoveFolder(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.folderIndex(id)
	if i < 0 {
		return errs.NotFound("remove folder", "id", fmt.Sprintf("no folder %q", id))
	}
	removed := w.folders[i]
	next := slices.Delete(slices.Clone(w.folders), i, i+1)
	if err := w.commit(ctx, next); err != nil {
		return err
	}
	for _, item := range removed.Items {
		w.dropSession(ctx, item.ID)
	}
	w.log.Info("folder removed", "folder", id, "items", len(removed.Items))
	return nil
}

// AddItem appends a new item to a folder.
func (w *Workspace) AddItem(ctx context.Context, folderID, name, description, itemType string) (Item, error) {
	const op = "add item"
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, errs.Validation(op, "name", "must not be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	fi := w.folderIndex(folderID)
	if fi < 0 {
		return Item{}, errs.NotFound(op, "folder_id", fmt.Sprintf("no folder %q", folderID))
	}
	now := w.now()
	item := Item{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Type:        itemType,
		FolderID:    folderID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	next := w.cloneFolders()
	next[fi].Items = append(next[fi].Items, item)
	if err := w.commit(ctx, next); err != nil {
		return Item{}, err
	}
	w.log.Info("item added", "folder", folderID, "item", item.ID)
	return item, nil
}

// RemoveItem deletes an item and its session.
func (w *Workspace) RemoveItem(ctx context.Context, itemID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fi, ii := w.itemIndex(itemID)
	if fi < 0 {
		return errs.NotFound("remove item", "id", fmt.Sprintf("no item %q", itemID))
	}
	next := w.cloneFolders()
	next[fi].Items = slices.Delete(next[fi].Items, ii, ii+1)
	if err := w.commit(ctx, next); err != nil {
		return err
	}
	w.dropSession(ctx, itemID)
	w.log.Info("item removed", "item", itemID)
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// SaveSession stores the session snapshot of an item and bumps its
// updatedAt.
func (w *Workspace) SaveSession(ctx context.Context, itemID string, snap session.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fi, ii := w.itemIndex(itemID)
	if fi < 0 {
		return errs.NotFound("save session", "item_id", fmt.Sprintf("no item %q", itemID))
	}
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := w.store.Set(ctx, SessionKey(itemID), data); err != nil {
		return fmt.Errorf("save session %s: %w", itemID, err)
	}
	next := w.cloneFolders()
	next[fi].Items[ii].UpdatedAt = w.now()
	return w.commit(ctx, next)
}

// LoadSession restores the session saved for an item. An item without a
// saved session gets a fresh one.
func (w *Workspace) LoadSession(ctx context.Context, itemID string, opts ...session.Option) (*session.Session, error) {
	if _, ok := w.Item(itemID); !ok {
		return nil, errs.NotFound("load session", "item_id", fmt.Sprintf("no item %q", itemID))
	}
	data, err := w.store.Get(ctx, SessionKey(itemID))
	if errors.Is(err, storage.ErrNotFound) {
		return session.New(opts...), nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := session.UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	return session.Restore(snap, opts...)
}

// AutosaveHook returns a settle hook that saves s under itemID after every
// run. Failures are logged.
func (w *Workspace) AutosaveHook(ctx context.Context, itemID string, s func() *session.Session) func(*session.Run) {
	return func(run *session.Run) {
		sess := s()
		if sess == nil {
			return
		}
		if err := w.SaveSession(ctx, itemID, sess.Snapshot()); err != nil {
			w.log.Warn("autosave failed", "item", itemID, "run", run.ID, "error", err)
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// commit saves next and adopts it only if the save succeeded.
func (w *Workspace) commit(ctx context.Context, next []Folder) error {
	if err := storage.SetJSON(ctx, w.store, FoldersKey(w.owner), next); err != nil {
		return fmt.Errorf("save folders: %w", err)
	}
	w.folders = next
	return nil
}

func (w *Workspace) dropSession(ctx context.Context, itemID string) {
	if err := w.store.Delete(ctx, SessionKey(itemID)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.log.Warn("failed to delete session", "item", itemID, "error", err)
	}
}

func (w *Workspace) cloneFolders() []Folder {
	out := make([]Folder, len(w.folders))
	for i, f := range w.folders {
		out[i] = f.clone()
	}
	return out
}

func (w *Workspace) folderIndex(id string) int {
	return slices.IndexFunc(w.folders, func(f Folder) bool { return f.ID == id })
}

func (w *Workspace) itemIndex(id string) (int, int) {
	for fi, f := range w.folders {
		for ii, item := range f.Items {
			if item.ID == id {
				return fi, ii
			}
		}
	}
	return -1, -1
}
