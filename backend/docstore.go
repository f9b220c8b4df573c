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
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
)

// Property names understood by queries, listings and the spreadsheet.
const (
	PropUUID            = "ecm:uuid"
	PropParentID        = "ecm:parentId"
	PropPrimaryType     = "ecm:primaryType"
	PropPath            = "ecm:path"
	PropName            = "ecm:name"
	PropState           = "ecm:currentLifeCycleState"
	PropMixinType       = "ecm:mixinType"
	PropIsTrashed       = "ecm:isTrashed"
	PropIsVersion       = "ecm:isVersion"
	PropFulltext        = "ecm:fulltext"
	PropTitle           = "dc:title"
	PropDescription     = "dc:description"
	PropCreator         = "dc:creator"
	PropLastContributor = "dc:lastContributor"
	PropCreated         = "dc:created"
	PropModified        = "dc:modified"
)

// Document is a node of the repository tree.
type Document struct {
	ID              string    `json:"id"`
	SchemaVersion   int       `json:"schemaVersion"`
	ParentID        string    `json:"parentId,omitempty"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Path            string    `json:"path"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Creator         string    `json:"creator,omitempty"`
	LastContributor string    `json:"lastContributor,omitempty"`
	Created         time.Time `json:"created"`
	Modified        time.Time `json:"modified"`
	State           string    `json:"state"`
}

func (d *Document) normalize() {
	if d.SchemaVersion == 0 {
		d.SchemaVersion = CurrentSchemaVersion
	}
	if d.State == "" {
		d.State = StateProject
	}
}

// Folderish reports whether the document can have children.
func (d *Document) Folderish() bool {
	return isFolderish(d.Type)
}

// Mixins returns the facets of the document.
func (d *Document) Mixins() []string {
	var m []string
	if d.Folderish() {
		m = append(m, MixinFolderish)
	}
	if d.Type == TypeRoot || d.Type == TypeWorkspaceRoot {
		m = append(m, MixinHiddenInNavigation)
	}
	return m
}

// Property returns the value of a property by its query name.
// Strings are returned as string, timestamps as time.Time, flags as int (0/1)
// and multi-valued properties as []string.
func (d *Document) Property(key string) (any, bool) {
	switch key {
	case PropUUID:
		return d.ID, true
	case PropParentID:
		return d.ParentID, true
	case PropPrimaryType:
		return d.Type, true
	case PropPath:
		return d.Path, true
	case PropName:
		return d.Name, true
	case PropState:
		return d.State, true
	case PropMixinType:
		return d.Mixins(), true
	case PropIsTrashed:
		if d.State == StateDeleted {
			return 1, true
		}
		return 0, true
	case PropIsVersion:
		return 0, true
	case PropTitle:
		return d.Title, true
	case PropDescription:
		return d.Description, true
	case PropCreator:
		return d.Creator, true
	case PropLastContributor:
		return d.LastContributor, true
	case PropCreated:
		return d.Created, true
	case PropModified:
		return d.Modified, true
	case PropFulltext:
		return d.Title + " " + d.Description, true
	}
	return nil, false
}

// SetProperty updates an editable property.
func (d *Document) SetProperty(key string, value any) error {
	s, ok := value.(string)
	if !ok {
		if value == nil {
			s = ""
		} else {
			s = fmt.Sprint(value)
		}
	}
	switch key {
	case PropTitle:
		if err := validateTitle(s); err != nil {
			return err
		}
		d.Title = s
	case PropDescription:
		d.Description = s
	case PropState:
		if err := validateState(s); err != nil {
			return err
		}
		d.State = s
	default:
		return fmt.Errorf("%w: %q is not editable", ErrInvalidProperty, key)
	}
	return nil
}

// DocumentStore manages document persistence to disk.
type DocumentStore struct {
	DataDir string
	storage *storage.Storage
	mu      sync.Map // Stores *sync.Mutex for each document ID to protect writes
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(dataDir string, s *storage.Storage) *DocumentStore {
	return &DocumentStore{
		DataDir: dataDir,
		storage: s,
	}
}

func (ds *DocumentStore) lock(id string) func() {
	m, _ := ds.mu.LoadOrStore(id, &sync.Mutex{})
	mutex := m.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

func documentFilename(id string) string {
	return filepath.Join("documents", fmt.Sprintf("%s.json", url.PathEscape(id)))
}

// SaveDocument saves the document atomically.
func (ds *DocumentStore) SaveDocument(doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no id")
	}
	doc.normalize()
	defer ds.lock(doc.ID)()

	if err := ds.storage.SaveDataFile(documentFilename(doc.ID), doc); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// UpdateDocument loads, modifies and saves a document while holding its lock.
func (ds *DocumentStore) UpdateDocument(id string, fn func(*Document) error) (*Document, error) {
	unlock := ds.lock(id)
	defer unlock()

	doc, err := ds.loadDocument(id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := ds.storage.SaveDataFile(documentFilename(id), doc); err != nil {
		return nil, fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return doc, nil
}

// LoadDocument loads the document by ID.
func (ds *DocumentStore) LoadDocument(id string) (*Document, error) {
	return ds.loadDocument(id)
}

func (ds *DocumentStore) loadDocument(id string) (*Document, error) {
	var d Document
	if err := ds.storage.ReadDataFile(documentFilename(id), &d); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	if d.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", d.SchemaVersion)
	}
	d.normalize()
	return &d, nil
}

// DeleteDocument permanently removes the document file.
func (ds *DocumentStore) DeleteDocument(id string) error {
	defer ds.lock(id)()

	fullPath := filepath.Join(ds.DataDir, documentFilename(id))
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return fmt.Errorf("could not delete document file: %w", err)
	}
	ds.mu.Delete(id)
	return nil
}

// ListAllDocuments returns an iterator over all stored documents.
func (ds *DocumentStore) ListAllDocuments() iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		dir := filepath.Join(ds.DataDir, "documents")
		files, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, fmt.Errorf("could not read documents directory: %w", err))
			}
			return
		}

		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			id, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
			if err != nil {
				continue
			}
			d, err := ds.loadDocument(id)
			if err != nil {
				log.Printf("Skipping unreadable document %s: %v", id, err)
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}
