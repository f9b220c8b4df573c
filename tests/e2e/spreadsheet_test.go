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

package e2e

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ttbt-io/docsheet/tools/e2ehelpers"
)

const (
	fileTitle       = "Test file"
	fileDescription = "Test File description"
	spreadsheet     = "Spreadsheet"
)

// gridHeaders returns the grid's column headers without the row index column.
func gridHeaders(t *testing.T, ctx context.Context, page *e2ehelpers.SpreadsheetPage) []string {
	t.Helper()
	headers, err := page.Headers(ctx)
	if err != nil {
		t.Fatalf("Headers: %v", err)
	}
	if len(headers) == 0 {
		t.Fatal("Grid has no header row")
	}
	return headers[1:]
}

// openListing opens the document page of id in the listing layout.
func openListing(t *testing.T, ctx context.Context, baseURL, id string) *e2ehelpers.ContentView {
	t.Helper()
	cv := e2ehelpers.DocumentContentView()
	runStep(t, ctx, "Open workspace listing", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := GoToDocument(ctx, baseURL, id); err != nil {
			return err
		}
		return cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutListing)
	}))
	return cv
}

// closeGrid closes the popup grid and waits for the listing to refresh.
func closeGrid(t *testing.T, ctx context.Context, page *e2ehelpers.SpreadsheetPage) {
	t.Helper()
	runStep(t, ctx, "Close spreadsheet", chromedp.ActionFunc(func(ctx context.Context) error {
		if err := page.Close(ctx); err != nil {
			return err
		}
		return WaitForRequests(ctx, e2ehelpers.TopFrame.Runner())
	}))
}

func TestSpreadsheet(t *testing.T) {
	if *withChromeDP == "" {
		t.Skip("--with-chromedp not set")
	}

	baseURL := startTestServer(t)
	b := newBrowser(t)

	workspaceTitle := fmt.Sprintf("WorkspaceSpreadsheet_%d", time.Now().UnixMilli())
	var workspaceID, fileID string

	t.Cleanup(func() {
		if workspaceID == "" {
			return
		}
		ctx, cancel := context.WithTimeout(b.ctx, scenarioTimeout)
		defer cancel()
		if err := Login(ctx, baseURL, *testUser, *testPassword); err != nil {
			t.Errorf("Teardown login: %v", err)
			return
		}
		if err := DeleteWorkspace(ctx, baseURL, workspaceID); err != nil {
			t.Errorf("Teardown: %v", err)
		}
		if err := Logout(ctx); err != nil {
			t.Errorf("Teardown logout: %v", err)
		}
	})

	setupCtx, cancel := context.WithTimeout(b.ctx, scenarioTimeout)
	defer cancel()
	runStep(t, setupCtx, "Create fixture workspace",
		chromedp.ActionFunc(func(ctx context.Context) error {
			return Login(ctx, baseURL, *testUser, *testPassword)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := CreateWorkspace(ctx, baseURL, workspaceTitle, "")
			workspaceID = id
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			id, err := CreateFile(ctx, baseURL, workspaceID, fileTitle, fileDescription)
			fileID = id
			return err
		}),
		chromedp.ActionFunc(Logout),
	)

	runScenario(t, b, baseURL, "AvailableInWorkspace", func(t *testing.T, ctx context.Context) {
		cv := openListing(t, ctx, baseURL, workspaceID)
		ok, err := cv.HasAction(ctx, spreadsheet)
		if err != nil {
			t.Fatalf("HasAction: %v", err)
		}
		if !ok {
			t.Errorf("Expected %s action in the workspace listing", spreadsheet)
		}
	})

	runScenario(t, b, baseURL, "AvailableInSearch", func(t *testing.T, ctx context.Context) {
		cv := e2ehelpers.SearchContentView()
		runStep(t, ctx, "Open search", chromedp.ActionFunc(func(ctx context.Context) error {
			if err := GoToSearchPage(ctx, baseURL, ""); err != nil {
				return err
			}
			return cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutListing)
		}))
		ok, err := cv.HasAction(ctx, spreadsheet)
		if err != nil {
			t.Fatalf("HasAction: %v", err)
		}
		if !ok {
			t.Errorf("Expected %s action in the search listing", spreadsheet)
		}
	})

	runScenario(t, b, baseURL, "AvailableStandalone", func(t *testing.T, ctx context.Context) {
		var page *e2ehelpers.SpreadsheetPage
		runStep(t, ctx, "Open standalone spreadsheet", chromedp.ActionFunc(func(ctx context.Context) error {
			if err := NavToURL(ctx, baseURL+"/spreadsheet"); err != nil {
				return err
			}
			p, err := e2ehelpers.NewSpreadsheetPage(ctx, e2ehelpers.TopFrame)
			if err != nil {
				return err
			}
			page = p
			return page.WaitReady(ctx)
		}))
		runStep(t, ctx, "Execute query", chromedp.ActionFunc(func(ctx context.Context) error {
			return page.ExecuteQuery(ctx, "SELECT * FROM Document")
		}))

		want := []string{"Title", "Modified", "Last Contributor", "State"}
		if got := gridHeaders(t, ctx, page); !reflect.DeepEqual(got, want) {
			t.Errorf("Header mismatch:\n%s", diffLines(want, got))
		}
		rows, err := page.Rows(ctx)
		if err != nil {
			t.Fatalf("Rows: %v", err)
		}
		if len(rows) < 1 {
			t.Errorf("Expected at least 1 row, got %d", len(rows))
		}
	})

	runScenario(t, b, baseURL, "DisplaysSameData", func(t *testing.T, ctx context.Context) {
		cv := openListing(t, ctx, baseURL, workspaceID)
		columns, err := cv.Columns(ctx)
		if err != nil {
			t.Fatalf("Columns: %v", err)
		}
		listingRows, err := cv.Rows(ctx)
		if err != nil {
			t.Fatalf("Rows: %v", err)
		}

		var page *e2ehelpers.SpreadsheetPage
		runStep(t, ctx, "Open spreadsheet", chromedp.ActionFunc(func(ctx context.Context) error {
			p, err := e2ehelpers.OpenSpreadsheet(ctx, cv)
			page = p
			return err
		}))

		query, err := page.QueryValue(ctx)
		if err != nil {
			t.Fatalf("QueryValue: %v", err)
		}
		if query == "" {
			t.Error("Expected the listing query in the query input")
		}
		if got := gridHeaders(t, ctx, page); !reflect.DeepEqual(got, columns) {
			t.Errorf("Header mismatch:\n%s", diffLines(columns, got))
		}
		gridRows, err := page.Rows(ctx)
		if err != nil {
			t.Fatalf("Rows: %v", err)
		}
		if len(listingRows) != 1 {
			t.Errorf("Expected 1 listing row, got %d", len(listingRows))
		}
		if len(gridRows) != len(listingRows) {
			t.Errorf("Expected %d grid rows, got %d", len(listingRows), len(gridRows))
		}

		closeGrid(t, ctx, page)
	})

	runScenario(t, b, baseURL, "UpdatesData", func(t *testing.T, ctx context.Context) {
		cv := openListing(t, ctx, baseURL, workspaceID)

		var page *e2ehelpers.SpreadsheetPage
		runStep(t, ctx, "Open spreadsheet", chromedp.ActionFunc(func(ctx context.Context) error {
			p, err := e2ehelpers.OpenSpreadsheet(ctx, cv)
			page = p
			return err
		}))

		headers, err := page.Headers(ctx)
		if err != nil {
			t.Fatalf("Headers: %v", err)
		}
		if len(headers) < 2 || headers[1] != "Title" {
			t.Fatalf("Expected Title in the first data column, got %q", headers)
		}

		runStep(t, ctx, "Disable autosave", chromedp.ActionFunc(func(ctx context.Context) error {
			return page.SetAutosave(ctx, false)
		}))
		runStep(t, ctx, "Edit title", chromedp.ActionFunc(func(ctx context.Context) error {
			return page.SetData(ctx, 0, 0, "New Title")
		}))
		value, err := page.GetData(ctx, 0, 0)
		if err != nil {
			t.Fatalf("GetData: %v", err)
		}
		if value != "New Title" {
			t.Errorf("Expected cell value %q, got %v", "New Title", value)
		}

		runStep(t, ctx, "Save", chromedp.ActionFunc(page.Save))
		msg, err := page.Messages(ctx)
		if err != nil {
			t.Fatalf("Messages: %v", err)
		}
		if msg != "1 rows saved" {
			t.Errorf("Expected %q, got %q", "1 rows saved", msg)
		}

		closeGrid(t, ctx, page)

		titles, err := cv.RowTitles(ctx)
		if err != nil {
			t.Fatalf("RowTitles: %v", err)
		}
		if len(titles) == 0 || titles[0] != "New Title" {
			t.Errorf("Expected first listing row to be %q, got %q", "New Title", titles)
		}
	})

	runScenario(t, b, baseURL, "NotAvailableOutsideListings", func(t *testing.T, ctx context.Context) {
		cv := openListing(t, ctx, baseURL, workspaceID)
		runStep(t, ctx, "Switch to thumbnails", chromedp.ActionFunc(func(ctx context.Context) error {
			return cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutThumbnail)
		}))
		ok, err := cv.HasAction(ctx, spreadsheet)
		if err != nil {
			t.Fatalf("HasAction: %v", err)
		}
		if ok {
			t.Errorf("Expected no %s action in the thumbnail layout", spreadsheet)
		}
		// The layout is remembered, so put it back for the scenarios that follow.
		runStep(t, ctx, "Switch back to listing", chromedp.ActionFunc(func(ctx context.Context) error {
			return cv.SwitchToResultLayout(ctx, e2ehelpers.ResultLayoutListing)
		}))

		runStep(t, ctx, "Open file", chromedp.ActionFunc(func(ctx context.Context) error {
			return GoToDocument(ctx, baseURL, fileID)
		}))
		if ok, err := cv.HasAction(ctx, spreadsheet); err != nil {
			t.Fatalf("HasAction: %v", err)
		} else if ok {
			t.Errorf("Expected no %s action on a file page", spreadsheet)
		}
	})

	runScenario(t, b, baseURL, "OpenCloseIsIdempotent", func(t *testing.T, ctx context.Context) {
		cv := openListing(t, ctx, baseURL, workspaceID)
		before, err := cv.RowTexts(ctx)
		if err != nil {
			t.Fatalf("RowTexts: %v", err)
		}

		var page *e2ehelpers.SpreadsheetPage
		runStep(t, ctx, "Open spreadsheet", chromedp.ActionFunc(func(ctx context.Context) error {
			p, err := e2ehelpers.OpenSpreadsheet(ctx, cv)
			page = p
			return err
		}))
		closeGrid(t, ctx, page)

		after, err := cv.RowTexts(ctx)
		if err != nil {
			t.Fatalf("RowTexts: %v", err)
		}
		if !reflect.DeepEqual(before, after) {
			t.Errorf("Listing changed after open and close:\n%s", diffRows(before, after))
		}
	})
}
