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

package e2ehelpers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// SpreadsheetFrameSelector matches the iframe the listing opens the grid in.
const SpreadsheetFrameSelector = `#spreadsheet-overlay iframe[src^="/spreadsheet"]`

const (
	spreadsheetGrid     = `table.htCore`
	spreadsheetQuery    = `#query`
	spreadsheetConsole  = `#console`
	spreadsheetExecute  = `#execute`
	spreadsheetSave     = `#save`
	spreadsheetClose    = `#close`
	spreadsheetAutosave = `input[name=autosave]`
	spreadsheetHeaders  = `table.htCore thead tr th div span`
	spreadsheetRows     = `table.htCore tbody tr > :first-child`
)

// SpreadsheetPage drives the spreadsheet grid widget, either standalone in
// the top-level document or inside the listing's popup iframe.
type SpreadsheetPage struct {
	frame  Frame
	runner ScriptRunner
}

// NewSpreadsheetPage checks that the grid, the query input and the console
// exist in scope.
func NewSpreadsheetPage(ctx context.Context, scope Frame) (*SpreadsheetPage, error) {
	return newSpreadsheetPage(ctx, scope, scope.Runner())
}

func newSpreadsheetPage(ctx context.Context, scope Frame, runner ScriptRunner) (*SpreadsheetPage, error) {
	for _, sel := range []string{spreadsheetGrid, spreadsheetQuery, spreadsheetConsole} {
		if err := requireElement(ctx, runner, sel); err != nil {
			return nil, fmt.Errorf("spreadsheet page: %w", err)
		}
	}
	return &SpreadsheetPage{frame: scope, runner: runner}, nil
}

// OpenSpreadsheet clicks the content view's Spreadsheet action and returns
// the grid opened in the popup iframe, ready for use.
func OpenSpreadsheet(ctx context.Context, cv *ContentView) (*SpreadsheetPage, error) {
	action, err := cv.ActionByTitle(ctx, "Spreadsheet")
	if err != nil {
		return nil, err
	}
	if err := chromedp.Run(ctx, chromedp.MouseClickNode(action)); err != nil {
		return nil, fmt.Errorf("click Spreadsheet: %w", err)
	}
	frame, err := EnterFrame(ctx, SpreadsheetFrameSelector)
	if err != nil {
		return nil, err
	}
	page, err := NewSpreadsheetPage(ctx, frame)
	if err != nil {
		return nil, err
	}
	if err := page.WaitReady(ctx); err != nil {
		return nil, err
	}
	return page, nil
}

// Frame returns the browsing context the page lives in.
func (p *SpreadsheetPage) Frame() Frame {
	return p.frame
}

// Headers returns the header labels in document order. The first entry is the
// row index column.
func (p *SpreadsheetPage) Headers(ctx context.Context) ([]string, error) {
	return textsOf(ctx, p.runner, spreadsheetHeaders)
}

// Rows returns one handle per data row.
func (p *SpreadsheetPage) Rows(ctx context.Context) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(spreadsheetRows, &nodes, p.frame.QueryOptions(chromedp.AtLeast(0))...)); err != nil {
		return nil, fmt.Errorf("spreadsheet rows: %w", err)
	}
	return nodes, nil
}

// RowCount returns the number of rows the grid widget holds.
func (p *SpreadsheetPage) RowCount(ctx context.Context) (int, error) {
	var n int
	if err := p.call(ctx, GridCall{Method: "countRows"}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// ExecuteQuery runs query and waits for the grid to reload.
func (p *SpreadsheetPage) ExecuteQuery(ctx context.Context, query string) error {
	if err := p.require(ctx, spreadsheetExecute); err != nil {
		return err
	}
	if err := chromedp.Run(ctx,
		chromedp.SetValue(spreadsheetQuery, query, p.frame.QueryOptions()...),
		chromedp.Click(spreadsheetExecute, p.frame.QueryOptions()...),
	); err != nil {
		return fmt.Errorf("execute query: %w", err)
	}
	return WaitForRequests(ctx, p.runner)
}

// QueryValue returns the current content of the query input.
func (p *SpreadsheetPage) QueryValue(ctx context.Context) (string, error) {
	var v string
	if err := p.read(ctx, spreadsheetQuery, "el.value", &v); err != nil {
		return "", fmt.Errorf("query value: %w", err)
	}
	return v, nil
}

// SetData sets the cell at zero-based (row, col).
func (p *SpreadsheetPage) SetData(ctx context.Context, row, col int, value any) error {
	return p.call(ctx, GridCall{Method: "setDataAtCell", Args: []any{row, col, value}}, nil)
}

// GetData returns the cell at zero-based (row, col).
func (p *SpreadsheetPage) GetData(ctx context.Context, row, col int) (any, error) {
	var v any
	if err := p.call(ctx, GridCall{Method: "getDataAtCell", Args: []any{row, col}}, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *SpreadsheetPage) call(ctx context.Context, c GridCall, res any) error {
	code, err := c.Script()
	if err != nil {
		return err
	}
	if err := p.runner.RunScript(ctx, code, res); err != nil {
		return fmt.Errorf("grid %s: %w", c.Method, err)
	}
	return nil
}

// Save saves pending edits and waits for the request to complete.
func (p *SpreadsheetPage) Save(ctx context.Context) error {
	if err := p.require(ctx, spreadsheetSave); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Click(spreadsheetSave, p.frame.QueryOptions()...)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return WaitForRequests(ctx, p.runner)
}

// Close clicks the close button. The page is unusable afterwards; callers
// continue in TopFrame.
func (p *SpreadsheetPage) Close(ctx context.Context) error {
	if err := p.require(ctx, spreadsheetClose); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Click(spreadsheetClose, p.frame.QueryOptions()...)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// WaitReady waits for the grid widget to finish initializing.
func (p *SpreadsheetPage) WaitReady(ctx context.Context) error {
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var ready bool
		err := p.runner.RunScript(ctx, `window.docsheetReady === true`, &ready)
		return ready, err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return fmt.Errorf("spreadsheet not ready: %w", err)
	}
	return nil
}

// Messages returns the text of the console area.
func (p *SpreadsheetPage) Messages(ctx context.Context) (string, error) {
	var msg string
	if err := p.read(ctx, spreadsheetConsole, "el.textContent.trim()", &msg); err != nil {
		return "", fmt.Errorf("messages: %w", err)
	}
	return msg, nil
}

// SetAutosave turns autosave on or off.
func (p *SpreadsheetPage) SetAutosave(ctx context.Context, on bool) error {
	var checked bool
	if err := p.read(ctx, spreadsheetAutosave, "el.checked", &checked); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	if checked == on {
		return nil
	}
	if err := chromedp.Run(ctx, chromedp.Click(spreadsheetAutosave, p.frame.QueryOptions()...)); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

// require looks up an optional element on use.
func (p *SpreadsheetPage) require(ctx context.Context, selector string) error {
	return requireElement(ctx, p.runner, selector)
}

// read evaluates expr with el bound to the element matching selector. An
// element that disappears between the lookup and the read is reported as
// ErrElementNotFound.
func (p *SpreadsheetPage) read(ctx context.Context, selector, expr string, res any) error {
	if err := p.require(ctx, selector); err != nil {
		return err
	}
	sel, _ := json.Marshal(selector)
	script := fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el ? {found: true, value: %s} : {found: false};
})()`, sel, expr)
	var out struct {
		Found bool            `json:"found"`
		Value json.RawMessage `json:"value"`
	}
	if err := p.runner.RunScript(ctx, script, &out); err != nil {
		return err
	}
	if !out.Found {
		return fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return json.Unmarshal(out.Value, res)
}
