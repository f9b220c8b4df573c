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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2FmZQ/storage"
)

func TestDocumentStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "docstore_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	s := storage.New(tempDir, nil)
	store := NewDocumentStore(tempDir, s)
	docId := "11111111-1111-4111-8111-111111111111"
	doc := Document{ID: docId, Type: TypeFile, Name: "a", Path: "/a", Title: "A"}

	t.Run("SaveDocument", func(t *testing.T) {
		if err := store.SaveDocument(&doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}
		expectedPath := filepath.Join(tempDir, "documents", docId+".json")
		if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
			t.Errorf("Document file not created at %s", expectedPath)
		}
		if doc.SchemaVersion != CurrentSchemaVersion || doc.State != StateProject {
			t.Errorf("Document not normalized: %+v", doc)
		}
	})

	t.Run("SaveDocumentWithoutID", func(t *testing.T) {
		if err := store.SaveDocument(&Document{Title: "x"}); err == nil {
			t.Error("Expected error for document without id")
		}
	})

	t.Run("LoadDocument", func(t *testing.T) {
		loaded, err := store.LoadDocument(docId)
		if err != nil {
			t.Fatalf("LoadDocument failed: %v", err)
		}
		if loaded.Title != "A" || loaded.Path != "/a" {
			t.Errorf("Loaded data mismatch. Got %+v", loaded)
		}
	})

	t.Run("UpdateDocument", func(t *testing.T) {
		updated, err := store.UpdateDocument(docId, func(d *Document) error {
			d.Title = "B"
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateDocument failed: %v", err)
		}
		if updated.Title != "B" {
			t.Errorf("Expected title B, got %q", updated.Title)
		}
		loaded, _ := store.LoadDocument(docId)
		if loaded.Title != "B" {
			t.Errorf("Update not persisted, got %q", loaded.Title)
		}
	})

	t.Run("UpdateDocumentAborted", func(t *testing.T) {
		wantErr := errors.New("nope")
		if _, err := store.UpdateDocument(docId, func(d *Document) error {
			d.Title = "C"
			return wantErr
		}); !errors.Is(err, wantErr) {
			t.Fatalf("Expected %v, got %v", wantErr, err)
		}
		loaded, _ := store.LoadDocument(docId)
		if loaded.Title != "B" {
			t.Errorf("Aborted update was persisted, got %q", loaded.Title)
		}
	})

	t.Run("ListAllDocuments", func(t *testing.T) {
		other := Document{ID: "22222222-2222-4222-8222-222222222222", Type: TypeFolder, Path: "/b", Title: "Other"}
		if err := store.SaveDocument(&other); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}
		seen := map[string]bool{}
		for d, err := range store.ListAllDocuments() {
			if err != nil {
				t.Fatalf("ListAllDocuments: %v", err)
			}
			seen[d.ID] = true
		}
		if len(seen) != 2 || !seen[docId] || !seen[other.ID] {
			t.Errorf("Unexpected documents: %v", seen)
		}
	})

	t.Run("DeleteDocument", func(t *testing.T) {
		if err := store.DeleteDocument(docId); err != nil {
			t.Fatalf("DeleteDocument failed: %v", err)
		}
		if _, err := store.LoadDocument(docId); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected ErrNotExist after delete, got %v", err)
		}
		if err := store.DeleteDocument(docId); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected ErrNotExist on second delete, got %v", err)
		}
	})
}

func TestDocumentStoreEmpty(t *testing.T) {
	tempDir := t.TempDir()
	store := NewDocumentStore(tempDir, storage.New(tempDir, nil))
	n := 0
	for _, err := range store.ListAllDocuments() {
		if err != nil {
			t.Fatalf("ListAllDocuments: %v", err)
		}
		n++
	}
	if n != 0 {
		t.Errorf("Expected no documents, got %d", n)
	}
}

func TestDocumentProperties(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	d := &Document{
		ID:              "33333333-3333-4333-8333-333333333333",
		Type:            TypeWorkspace,
		Path:            "/default-domain/workspaces/ws",
		Title:           "WS",
		Description:     "desc",
		LastContributor: "bob",
		Modified:        now,
		State:           StateProject,
	}

	tests := []struct {
		key    string
		want   any
		wantOk bool
	}{
		{PropTitle, "WS", true},
		{PropDescription, "desc", true},
		{PropPrimaryType, TypeWorkspace, true},
		{PropLastContributor, "bob", true},
		{PropModified, now, true},
		{PropIsTrashed, 0, true},
		{PropFulltext, "WS desc", true},
		{"dc:unknown", nil, false},
	}
	for _, tc := range tests {
		got, ok := d.Property(tc.key)
		if ok != tc.wantOk || got != tc.want {
			t.Errorf("Property(%q) = %v, %v; want %v, %v", tc.key, got, ok, tc.want, tc.wantOk)
		}
	}

	mixins, _ := d.Property(PropMixinType)
	if m := mixins.([]string); len(m) != 1 || m[0] != MixinFolderish {
		t.Errorf("Unexpected mixins %v", m)
	}

	d.State = StateDeleted
	if v, _ := d.Property(PropIsTrashed); v != 1 {
		t.Errorf("Expected deleted document to be trashed, got %v", v)
	}
}

func TestDocumentSetProperty(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr bool
	}{
		{"Title", PropTitle, "New title", false},
		{"Empty title", PropTitle, "  ", true},
		{"Description", PropDescription, "", false},
		{"Nil description", PropDescription, nil, false},
		{"State", PropState, StateApproved, false},
		{"Unknown state", PropState, "frozen", true},
		{"Read-only", PropModified, "2026-01-01", true},
		{"Unknown", "dc:nope", "x", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &Document{Title: "Old"}
			err := d.SetProperty(tc.key, tc.value)
			if (err != nil) != tc.wantErr {
				t.Fatalf("SetProperty() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidProperty) {
				t.Errorf("Expected ErrInvalidProperty, got %v", err)
			}
		})
	}
}
