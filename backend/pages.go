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
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
)

//go:embed web
var webFS embed.FS

// webRoot holds templates/ and static/.
var webRoot = func() fs.FS {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		log.Fatal(err)
	}
	return sub
}()

var pageNames = []string{"login.html", "document.html", "search.html", "spreadsheet.html"}

const (
	layoutListing   = "listing"
	layoutThumbnail = "thumbnail"
	layoutCookie    = "docsheet_layout"
)

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).ParseFS(webRoot, "templates/partials.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type pageData struct {
	User  string
	Title string
	Page  any
}

type loginPage struct {
	Next     string
	Username string
	Error    string
}

type documentPage struct {
	Doc         Document
	Ancestors   []Document
	Navigation  []Document
	ChildTypes  []string
	Properties  []propertyRow
	ContentView *contentView
}

type propertyRow struct {
	Label string
	Value string
}

type searchPage struct {
	Query       string
	ContentView *contentView
}

type spreadsheetPage struct {
	Popup      bool
	Query      string
	Columns    []Column
	ColumnKeys string
}

// contentView is a listing panel with its result layout and action bar.
type contentView struct {
	PanelID      string
	DocID        string
	Query        string
	ColumnKeys   string
	Layout       string
	ListingURL   string
	ThumbnailURL string
	RefreshURL   string
	DeleteURL    string
	Columns      []Column
	Rows         []listingRow
	Actions      []contentAction
}

type listingRow struct {
	ID    string
	Title string
	Cells []listingCell
}

type listingCell struct {
	Text    string
	IsTitle bool
}

type contentAction struct {
	ID    string
	Title string
}

func (a *app) render(w http.ResponseWriter, r *http.Request, status int, name, title string, page any) {
	t, ok := a.pages[name]
	if !ok {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "page", pageData{User: getUserID(r), Title: title, Page: page}); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// renderContentView writes only the listing panel, for in-place refreshes.
func (a *app) renderContentView(w http.ResponseWriter, name string, cv *contentView) {
	var buf bytes.Buffer
	if err := a.pages[name].ExecuteTemplate(&buf, "contentview", cv); err != nil {
		log.Printf("render contentview: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// resultLayout picks the layout from the query, then the cookie, remembering explicit choices.
func resultLayout(w http.ResponseWriter, r *http.Request) string {
	valid := func(l string) bool { return l == layoutListing || l == layoutThumbnail }
	if l := r.URL.Query().Get("layout"); valid(l) {
		http.SetCookie(w, &http.Cookie{Name: layoutCookie, Value: l, Path: "/", SameSite: http.SameSiteLaxMode})
		return l
	}
	if c, err := r.Cookie(layoutCookie); err == nil && valid(c.Value) {
		return c.Value
	}
	return layoutListing
}

// buildContentView runs stmt and fills the panel rows and actions.
func (a *app) buildContentView(w http.ResponseWriter, r *http.Request, cv *contentView, stmt string, keys []string) error {
	cols, err := resolveColumns(keys)
	if err != nil {
		return err
	}
	docs, _, err := a.registry.Query(stmt)
	if err != nil {
		return err
	}

	cv.Query = stmt
	cv.Columns = cols
	cv.ColumnKeys = joinKeys(cols)
	cv.Layout = resultLayout(w, r)

	res := buildResult(stmt, docs, cols)
	for i, row := range res.Rows {
		lr := listingRow{ID: row.ID, Title: docs[i].Title}
		for j, c := range cols {
			lr.Cells = append(lr.Cells, listingCell{Text: row.Cells[j], IsTitle: c.Key == PropTitle})
		}
		cv.Rows = append(cv.Rows, lr)
	}

	if cv.Layout == layoutListing {
		cv.Actions = append(cv.Actions, contentAction{ID: "spreadsheet", Title: "Spreadsheet"})
	}
	if cv.DeleteURL != "" {
		cv.Actions = append(cv.Actions, contentAction{ID: "delete", Title: "Delete"})
	}
	return nil
}

func joinKeys(cols []Column) string {
	var buf bytes.Buffer
	for i, c := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(c.Key)
	}
	return buf.String()
}

// withParams returns path with the given query parameters.
func withParams(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func (a *app) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/doc/"+a.registry.RootID(), http.StatusFound)
}

// handlePath resolves a repository path, e.g. /nxpath/default-domain/workspaces.
func (a *app) handlePath(w http.ResponseWriter, r *http.Request) {
	d, ok := a.registry.GetByPath("/" + r.PathValue("path"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/doc/"+d.ID, http.StatusFound)
}

func (a *app) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidUUID(id) {
		http.NotFound(w, r)
		return
	}
	doc, ok := a.registry.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	page := documentPage{
		Doc:        doc,
		Ancestors:  a.registry.Ancestors(id),
		ChildTypes: allowedChildTypes(doc.Type),
	}
	for _, c := range a.registry.Children(id) {
		if c.Folderish() {
			page.Navigation = append(page.Navigation, c)
		}
	}

	if doc.Folderish() {
		base := "/doc/" + id
		cv := &contentView{
			PanelID:      "cv_document_content_0_panel",
			DocID:        id,
			ListingURL:   withParams(base, url.Values{"layout": {layoutListing}}),
			ThumbnailURL: withParams(base, url.Values{"layout": {layoutThumbnail}}),
			RefreshURL:   withParams(base, url.Values{"fragment": {"1"}}),
		}
		if doc.Type != TypeRoot {
			cv.DeleteURL = base + "/delete"
		}
		if err := a.buildContentView(w, r, cv, childrenQuery(id), listingColumns); err != nil {
			log.Printf("listing %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("fragment") != "" {
			a.renderContentView(w, "document.html", cv)
			return
		}
		page.ContentView = cv
	} else {
		for _, c := range columnCatalogue {
			v, _ := doc.Property(c.Key)
			page.Properties = append(page.Properties, propertyRow{Label: c.Label, Value: formatValue(v)})
		}
	}

	a.render(w, r, http.StatusOK, "document.html", doc.Title, page)
}

func (a *app) handleCreate(w http.ResponseWriter, r *http.Request) {
	parentId := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	userId := getUserID(r)
	d, err := a.registry.CreateChild(parentId, r.PostForm.Get("type"), r.PostForm.Get("title"), r.PostForm.Get("description"), userId)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		if errors.Is(err, ErrNotFolderish) || errors.Is(err, ErrTypeNotAllowed) || errors.Is(err, ErrInvalidProperty) {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("CreateChild: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.debugf("Created %s %s (%q) under %s", d.Type, d.ID, d.Title, parentId)
	a.hub.Publish(userId, []string{d.ID}, []string{parentId})

	target := "/doc/" + parentId
	if d.Folderish() {
		target = "/doc/" + d.ID
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (a *app) handleDelete(w http.ResponseWriter, r *http.Request) {
	parentId := r.PathValue("id")
	if _, ok := a.registry.Get(parentId); !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	ids := r.PostForm["ids"]
	for _, id := range ids {
		d, ok := a.registry.Get(id)
		if !ok || d.ParentID != parentId {
			http.Error(w, "Bad Request: not a child of this document", http.StatusBadRequest)
			return
		}
	}
	for _, id := range ids {
		if err := a.registry.Delete(id); err != nil {
			if errors.Is(err, ErrProtected) {
				http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
				return
			}
			log.Printf("Delete %s: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
	if len(ids) > 0 {
		a.hub.Publish(getUserID(r), ids, []string{parentId})
	}
	http.Redirect(w, r, "/doc/"+parentId, http.StatusSeeOther)
}

func (a *app) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	params := func(extra ...string) url.Values {
		v := url.Values{}
		if q != "" {
			v.Set("q", q)
		}
		for i := 0; i+1 < len(extra); i += 2 {
			v.Set(extra[i], extra[i+1])
		}
		return v
	}
	cv := &contentView{
		PanelID:      "nxw_searchContentView",
		ListingURL:   withParams("/search", params("layout", layoutListing)),
		ThumbnailURL: withParams("/search", params("layout", layoutThumbnail)),
		RefreshURL:   withParams("/search", params("fragment", "1")),
	}
	if err := a.buildContentView(w, r, cv, searchQuery(q), searchColumns); err != nil {
		log.Printf("search: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("fragment") != "" {
		a.renderContentView(w, "search.html", cv)
		return
	}
	a.render(w, r, http.StatusOK, "search.html", "Search", searchPage{Query: q, ContentView: cv})
}

// handleSpreadsheet serves the grid page. A query or column list selects
// popup mode (embedded in a listing); otherwise the page is standalone.
func (a *app) handleSpreadsheet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	keys := parseColumnList(r.URL.Query().Get("columns"))
	popup := query != "" || len(keys) > 0
	if len(keys) == 0 {
		keys = spreadsheetColumns
	}
	cols, err := resolveColumns(keys)
	if err != nil {
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}
	a.render(w, r, http.StatusOK, "spreadsheet.html", "Spreadsheet", spreadsheetPage{
		Popup:      popup,
		Query:      query,
		Columns:    cols,
		ColumnKeys: joinKeys(cols),
	})
}
