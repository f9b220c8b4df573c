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
	"sort"
	"strings"
	"time"

	"github.com/ttbt-io/docsheet/backend/nxql"
	"github.com/ttbt-io/docsheet/backend/search"
)

// Column describes a property that listings and the spreadsheet can show.
type Column struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Editable bool   `json:"editable"`
}

var columnCatalogue = []Column{
	{Key: PropTitle, Label: "Title", Editable: true},
	{Key: PropDescription, Label: "Description", Editable: true},
	{Key: PropModified, Label: "Modified"},
	{Key: PropLastContributor, Label: "Last Contributor"},
	{Key: PropState, Label: "State", Editable: true},
	{Key: PropCreated, Label: "Created"},
	{Key: PropCreator, Label: "Author"},
	{Key: PropPath, Label: "Path"},
	{Key: PropPrimaryType, Label: "Type"},
}

// Default column sets.
var (
	spreadsheetColumns = []string{PropTitle, PropModified, PropLastContributor, PropState}
	listingColumns     = []string{PropTitle, PropModified, PropLastContributor, PropState}
	searchColumns      = []string{PropTitle, PropPath, PropModified, PropLastContributor}
)

const displayTimeLayout = "2006-01-02 15:04"

func lookupColumn(key string) (Column, bool) {
	for _, c := range columnCatalogue {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// resolveColumns maps property keys to catalogue entries.
func resolveColumns(keys []string) ([]Column, error) {
	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		c, ok := lookupColumn(k)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", k)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// parseColumnList splits a comma-separated column parameter.
func parseColumnList(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// QueryResult is the response of /api/query.
type QueryResult struct {
	Query   string      `json:"query"`
	Columns []Column    `json:"columns"`
	Rows    []ResultRow `json:"rows"`
}

// ResultRow holds the display values of one document, aligned with QueryResult.Columns.
type ResultRow struct {
	ID    string   `json:"id"`
	Cells []string `json:"cells"`
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.UTC().Format(displayTimeLayout)
	case []string:
		return strings.Join(v, ", ")
	}
	return fmt.Sprint(v)
}

// Query runs an NXQL statement over all documents.
// Documents are visited in path order so equal sort keys keep a stable order.
func (r *Registry) Query(stmt string) ([]*Document, *nxql.Query, error) {
	q, err := nxql.Parse(stmt)
	if err != nil {
		return nil, nil, err
	}
	all := r.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Path < all[j].Path })
	docs := make([]*Document, len(all))
	for i := range all {
		docs[i] = &all[i]
	}
	return nxql.Filter(q, docs), q, nil
}

// buildResult renders documents as display rows for the given columns.
func buildResult(stmt string, docs []*Document, cols []Column) QueryResult {
	res := QueryResult{Query: stmt, Columns: cols, Rows: make([]ResultRow, 0, len(docs))}
	for _, d := range docs {
		row := ResultRow{ID: d.ID, Cells: make([]string, len(cols))}
		for i, c := range cols {
			v, _ := d.Property(c.Key)
			row.Cells[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// childrenQuery selects the listable children of a folderish document.
func childrenQuery(parentId string) string {
	return "SELECT * FROM Document WHERE ecm:parentId = " + nxql.Quote(parentId) +
		" AND ecm:mixinType != 'HiddenInNavigation' AND ecm:isTrashed = 0 AND ecm:isVersion = 0" +
		" ORDER BY dc:title"
}

// searchFields maps search box keys to document properties.
var searchFields = map[string]string{
	"title":       PropTitle,
	"description": PropDescription,
	"type":        PropPrimaryType,
	"state":       PropState,
	"author":      PropCreator,
	"contributor": PropLastContributor,
	"created":     PropCreated,
	"modified":    PropModified,
	"path":        PropPath,
}

// searchQuery selects every listable document matching the search box input.
// Filters on known keys become conditions; free words and unknown or
// malformed filters are matched against the full text.
func searchQuery(text string) string {
	q := "SELECT * FROM Document WHERE ecm:mixinType != 'HiddenInNavigation' AND ecm:isTrashed = 0 AND ecm:isVersion = 0"
	parsed := search.Parse(text)
	words := parsed.FreeText
	for _, f := range parsed.Filters {
		cond, ok := searchCondition(f)
		if !ok {
			words = append(words, f.Value, f.MaxValue)
			continue
		}
		q += " AND " + cond
	}
	if text := strings.TrimSpace(strings.Join(words, " ")); text != "" {
		q += " AND ecm:fulltext = " + nxql.Quote(text)
	}
	return q + " ORDER BY dc:title"
}

func searchCondition(f search.Filter) (string, bool) {
	field, ok := searchFields[f.Key]
	if !ok {
		return "", false
	}
	isDate := field == PropCreated || field == PropModified
	if isDate && (!nxql.ValidTime(f.Value) || (f.Operator == search.OpRange && !nxql.ValidTime(f.MaxValue))) {
		return "", false
	}

	v := nxql.Quote(f.Value)
	var cond string
	switch {
	case f.Operator == search.OpRange:
		cond = fmt.Sprintf("(%s >= %s AND %s <= %s)", field, v, field, nxql.Quote(f.MaxValue))
	case f.Operator != search.OpEqual:
		cond = fmt.Sprintf("%s %s %s", field, f.Operator, v)
	case isDate:
		// A bare day matches the whole day.
		if day, err := time.Parse(time.DateOnly, f.Value); err == nil {
			next := nxql.Quote(day.AddDate(0, 0, 1).Format(time.DateOnly))
			cond = fmt.Sprintf("(%s >= %s AND %s < %s)", field, v, field, next)
		} else {
			cond = field + " = " + v
		}
	case field == PropTitle || field == PropDescription:
		cond = field + " ILIKE " + nxql.Quote("%"+nxql.EscapeLike(f.Value)+"%")
	case field == PropPath:
		cond = fmt.Sprintf("(%s = %s OR %s STARTSWITH %s)", field, v, field, v)
	default:
		cond = field + " ILIKE " + v
	}
	if f.Negate {
		cond = "NOT (" + cond + ")"
	}
	return cond, true
}
