// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	rootPath          = "/default-domain"
	workspaceRootPath = "/default-domain/workspaces"
)

var (
	ErrNotFolderish   = errors.New("parent is not folderish")
	ErrTypeNotAllowed = errors.New("document type not allowed here")
	ErrProtected      = errors.New("document cannot be deleted")
)

// Registry keeps the in-memory tree index over the DocumentStore.
// All mutations of the document tree go through it.
type Registry struct {
	store *DocumentStore

	mu       sync.RWMutex
	docs     map[string]*Document
	children map[string][]string
	byPath   map[string]string
	reserved map[string]bool // paths picked by creates still being saved

	rootID          string
	workspaceRootID string
}

// NewRegistry creates a registry and rebuilds its indices from the store.
// The Domain and Workspaces roots are created if missing.
func NewRegistry(ds *DocumentStore) (*Registry, error) {
	r := &Registry{store: ds}
	if err := r.Rebuild(); err != nil {
		return nil, err
	}
	if err := r.ensureRoots(); err != nil {
		return nil, err
	}
	return r, nil
}

// Rebuild reloads every document from the store.
func (r *Registry) Rebuild() error {
	start := time.Now()
	docs := make(map[string]*Document)
	for d, err := range r.store.ListAllDocuments() {
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		docs[d.ID] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = docs
	r.children = make(map[string][]string)
	r.byPath = make(map[string]string)
	for id, d := range docs {
		r.indexLocked(id, d)
	}
	log.Printf("Registry rebuilt: %d documents in %v", len(docs), time.Since(start))
	return nil
}

func (r *Registry) indexLocked(id string, d *Document) {
	r.byPath[d.Path] = id
	if d.ParentID != "" {
		r.children[d.ParentID] = append(r.children[d.ParentID], id)
	}
	switch d.Type {
	case TypeRoot:
		r.rootID = id
	case TypeWorkspaceRoot:
		r.workspaceRootID = id
	}
}

func (r *Registry) ensureRoots() error {
	if r.RootID() == "" {
		if _, err := r.insert(&Document{
			ID:    uuid.NewString(),
			Type:  TypeRoot,
			Name:  path.Base(rootPath),
			Path:  rootPath,
			Title: "Domain",
		}, "system"); err != nil {
			return err
		}
	}
	if r.WorkspaceRootID() == "" {
		if _, err := r.insert(&Document{
			ID:       uuid.NewString(),
			ParentID: r.RootID(),
			Type:     TypeWorkspaceRoot,
			Name:     path.Base(workspaceRootPath),
			Path:     workspaceRootPath,
			Title:    "Workspaces",
		}, "system"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) insert(d *Document, userId string) (*Document, error) {
	now := time.Now().UTC()
	d.Created = now
	d.Modified = now
	d.Creator = userId
	d.LastContributor = userId
	if err := r.store.SaveDocument(d); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.docs[d.ID] = d
	r.indexLocked(d.ID, d)
	r.mu.Unlock()
	return d, nil
}

// RootID returns the ID of the Domain document.
func (r *Registry) RootID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rootID
}

// WorkspaceRootID returns the ID of the Workspaces document.
func (r *Registry) WorkspaceRootID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workspaceRootID
}

// Get returns a copy of the document with the given ID.
func (r *Registry) Get(id string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return Document{}, false
	}
	return *d, true
}

// GetByPath returns a copy of the document at the given path.
func (r *Registry) GetByPath(p string) (Document, bool) {
	r.mu.RLock()
	id, ok := r.byPath[p]
	r.mu.RUnlock()
	if !ok {
		return Document{}, false
	}
	return r.Get(id)
}

// Children returns copies of the direct children of a document, sorted by title.
func (r *Registry) Children(parentId string) []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.children[parentId]
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.docs[id]; ok {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Ancestors returns the chain of documents from the Domain down to (but excluding) id.
func (r *Registry) Ancestors(id string) []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chain []Document
	d, ok := r.docs[id]
	for ok && d.ParentID != "" {
		d, ok = r.docs[d.ParentID]
		if ok {
			chain = append([]Document{*d}, chain...)
		}
	}
	return chain
}

// All returns copies of every document.
func (r *Registry) All() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, *d)
	}
	return out
}

// Count returns the number of indexed documents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// CreateChild creates a new document under parentId.
func (r *Registry) CreateChild(parentId, docType, title, description, userId string) (*Document, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	parent, ok := r.Get(parentId)
	if !ok {
		return nil, os.ErrNotExist
	}
	if !parent.Folderish() {
		return nil, ErrNotFolderish
	}
	if !isAllowedChild(parent.Type, docType) {
		return nil, fmt.Errorf("%w: %s in %s", ErrTypeNotAllowed, docType, parent.Type)
	}

	name := r.reserveName(parent.Path, nameFromTitle(title))
	path := parent.Path + "/" + name
	defer r.release(path)
	return r.insert(&Document{
		ID:          uuid.NewString(),
		ParentID:    parentId,
		Type:        docType,
		Name:        name,
		Path:        path,
		Title:       title,
		Description: description,
		State:       StateProject,
	}, userId)
}

// reserveName picks a child name that is neither indexed nor reserved by
// another create, and reserves its path until release.
func (r *Registry) reserveName(parentPath, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved == nil {
		r.reserved = make(map[string]bool)
	}
	candidate := name
	for i := 1; ; i++ {
		p := parentPath + "/" + candidate
		if _, taken := r.byPath[p]; !taken && !r.reserved[p] {
			r.reserved[p] = true
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", name, i)
	}
}

func (r *Registry) release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, path)
}

// UpdateProperties applies property changes to a document and records the contributor.
func (r *Registry) UpdateProperties(id string, props map[string]any, userId string) (*Document, error) {
	if _, ok := r.Get(id); !ok {
		return nil, os.ErrNotExist
	}
	d, err := r.store.UpdateDocument(id, func(d *Document) error {
		for k, v := range props {
			if err := d.SetProperty(k, v); err != nil {
				return err
			}
		}
		d.Modified = time.Now().UTC()
		d.LastContributor = userId
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.docs[id] = d
	r.mu.Unlock()
	return d, nil
}

// Delete removes a document and its whole subtree.
func (r *Registry) Delete(id string) error {
	d, ok := r.Get(id)
	if !ok {
		return os.ErrNotExist
	}
	if d.Type == TypeRoot || d.Type == TypeWorkspaceRoot {
		return ErrProtected
	}

	for _, c := range r.Children(id) {
		if err := r.Delete(c.ID); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := r.store.DeleteDocument(id); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	if r.byPath[d.Path] == id {
		delete(r.byPath, d.Path)
	}
	delete(r.children, id)
	siblings := r.children[d.ParentID]
	for i, s := range siblings {
		if s == id {
			r.children[d.ParentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	return nil
}
