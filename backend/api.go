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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/ttbt-io/docsheet/backend/nxql"
)

const (
	maxRequestBody = 1 << 20
	maxBatchSize   = 1000
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *app) handleColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, columnCatalogue)
}

type queryRequest struct {
	Query   string   `json:"query"`
	Columns []string `json:"columns"`
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	docs, q, err := a.registry.Query(req.Query)
	if err != nil {
		var se *nxql.SyntaxError
		if errors.As(err, &se) {
			writeJSONError(w, http.StatusBadRequest, se.Error())
			return
		}
		log.Printf("Query: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "query failed")
		return
	}

	keys := req.Columns
	if len(keys) == 0 {
		keys = q.Select
	}
	if len(keys) == 0 {
		keys = spreadsheetColumns
	}
	cols, err := resolveColumns(keys)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.debugf("Query %q matched %d documents", req.Query, len(docs))
	writeJSON(w, http.StatusOK, buildResult(req.Query, docs, cols))
}

// DocumentUpdate changes properties of one document.
type DocumentUpdate struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}

type saveRequest struct {
	Updates []DocumentUpdate `json:"updates"`
}

type saveResponse struct {
	Saved int `json:"saved"`
}

// validateUpdate checks an update against a copy of the document so a batch
// is rejected before anything is written.
func (a *app) validateUpdate(u DocumentUpdate) (Document, error) {
	if !isValidUUID(u.ID) {
		return Document{}, fmt.Errorf("invalid document id %q", u.ID)
	}
	d, ok := a.registry.Get(u.ID)
	if !ok {
		return Document{}, fmt.Errorf("document %s not found", u.ID)
	}
	for k, v := range u.Properties {
		c, ok := lookupColumn(k)
		if !ok || !c.Editable {
			return Document{}, fmt.Errorf("%w: %q is not editable", ErrInvalidProperty, k)
		}
		if err := d.SetProperty(k, v); err != nil {
			return Document{}, err
		}
	}
	return d, nil
}

func (a *app) handleSaveDocuments(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	if len(req.Updates) > maxBatchSize {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("too many updates (max %d)", maxBatchSize))
		return
	}

	var parents []string
	for _, u := range req.Updates {
		d, err := a.validateUpdate(u)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		parents = append(parents, d.ParentID)
	}

	userId := getUserID(r)
	var ids []string
	for _, u := range req.Updates {
		if len(u.Properties) == 0 {
			continue
		}
		if _, err := a.registry.UpdateProperties(u.ID, u.Properties, userId); err != nil {
			log.Printf("UpdateProperties %s: %v", u.ID, err)
			writeJSONError(w, http.StatusInternalServerError, "save failed")
			return
		}
		ids = append(ids, u.ID)
	}
	if len(ids) > 0 {
		a.hub.Publish(userId, ids, parents)
	}
	log.Printf("Saved %d documents for %s", len(ids), maskUser(userId))
	writeJSON(w, http.StatusOK, saveResponse{Saved: len(ids)})
}

func (a *app) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s := a.metrics.Snapshot()
	s.ActiveWS = a.hub.ActiveClients()
	s.Documents = a.registry.Count()
	writeJSON(w, http.StatusOK, s)
}
