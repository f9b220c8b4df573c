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
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

const (
	CurrentSchemaVersion = 1
	CurrentAppVersion    = "0.1.0"
)

// Document types
const (
	TypeRoot          = "Root"
	TypeWorkspaceRoot = "WorkspaceRoot"
	TypeWorkspace     = "Workspace"
	TypeFolder        = "Folder"
	TypeFile          = "File"
)

// Lifecycle states
const (
	StateProject  = "project"
	StateApproved = "approved"
	StateObsolete = "obsolete"
	StateDeleted  = "deleted"
)

const (
	MixinHiddenInNavigation = "HiddenInNavigation"
	MixinFolderish          = "Folderish"
)

const maxTitleLength = 255

// ErrInvalidProperty is wrapped by every property validation failure.
var ErrInvalidProperty = errors.New("invalid property")

// isFolderish reports whether documents of type t can have children.
func isFolderish(t string) bool {
	switch t {
	case TypeRoot, TypeWorkspaceRoot, TypeWorkspace, TypeFolder:
		return true
	}
	return false
}

// allowedChildTypes returns the types that can be created under a parent of type t.
func allowedChildTypes(t string) []string {
	switch t {
	case TypeWorkspaceRoot:
		return []string{TypeWorkspace}
	case TypeWorkspace, TypeFolder:
		return []string{TypeFolder, TypeFile}
	}
	return nil
}

func isAllowedChild(parentType, childType string) bool {
	for _, c := range allowedChildTypes(parentType) {
		if c == childType {
			return true
		}
	}
	return false
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidProperty)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidProperty, maxTitleLength)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: title contains control characters", ErrInvalidProperty)
		}
	}
	return nil
}

func validateState(state string) error {
	switch state {
	case StateProject, StateApproved, StateObsolete, StateDeleted:
		return nil
	}
	return fmt.Errorf("%w: lifecycle state %q", ErrInvalidProperty, state)
}

// nameFromTitle derives a path segment from a document title.
// e.g. "Test file" -> "test-file"
func nameFromTitle(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimRight(b.String(), "-")
	if len(name) > 64 {
		name = strings.TrimRight(name[:64], "-")
	}
	if name == "" {
		name = "doc"
	}
	return name
}
