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
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// ResultLayout is the label of a result layout link.
type ResultLayout string

const (
	ResultLayoutListing   ResultLayout = "Listing"
	ResultLayoutThumbnail ResultLayout = "Thumbnail"
)

// Content view panel IDs.
const (
	DocumentContentViewID = "cv_document_content_0_panel"
	SearchContentViewID   = "nxw_searchContentView"
)

// ContentView is a listing panel of the top-level document.
type ContentView struct {
	id     string
	runner ScriptRunner
}

// NewContentView returns the content view with the given panel id.
func NewContentView(id string) *ContentView {
	return &ContentView{id: id, runner: TopFrame.Runner()}
}

// DocumentContentView is the children listing of a folderish document page.
func DocumentContentView() *ContentView {
	return NewContentView(DocumentContentViewID)
}

// SearchContentView is the result listing of the search page.
func SearchContentView() *ContentView {
	return NewContentView(SearchContentViewID)
}

func (cv *ContentView) sel(s string) string {
	if s == "" {
		return "#" + cv.id
	}
	return "#" + cv.id + " " + s
}

// Layout returns the current result layout.
func (cv *ContentView) Layout(ctx context.Context) (ResultLayout, error) {
	if err := requireElement(ctx, cv.runner, cv.sel("")); err != nil {
		return "", err
	}
	sel, _ := json.Marshal(cv.sel(""))
	var l string
	if err := cv.runner.RunScript(ctx, fmt.Sprintf(`document.querySelector(%s).dataset.layout`, sel), &l); err != nil {
		return "", fmt.Errorf("layout: %w", err)
	}
	switch l {
	case "thumbnail":
		return ResultLayoutThumbnail, nil
	}
	return ResultLayoutListing, nil
}

// SwitchToResultLayout clicks the layout link and waits for the page to
// render the new layout. It is a no-op when the layout is already selected.
func (cv *ContentView) SwitchToResultLayout(ctx context.Context, layout ResultLayout) error {
	current, err := cv.Layout(ctx)
	if err != nil {
		return err
	}
	if current == layout {
		return nil
	}
	link := cv.sel(fmt.Sprintf(`.resultLayoutSelection a.resultLayout[title=%q]`, string(layout)))
	if err := requireElement(ctx, cv.runner, link); err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Click(link, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("switch to %s: %w", layout, err)
	}
	want := fmt.Sprintf(`#%s[data-layout=%q]`, cv.id, strings.ToLower(string(layout)))
	err = WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		return elementExists(ctx, cv.runner, want)
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return fmt.Errorf("switch to %s: %w", layout, err)
	}
	return nil
}

// ActionByTitle returns the action bar button with the given title.
func (cv *ContentView) ActionByTitle(ctx context.Context, title string) (*cdp.Node, error) {
	if err := requireElement(ctx, cv.runner, cv.sel("")); err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(cv.sel(".contentViewActions .contentViewAction"), &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	for _, n := range nodes {
		if t, ok := n.Attribute("title"); ok && t == title {
			return n, nil
		}
	}
	return nil, fmt.Errorf("action %q: %w", title, ErrElementNotFound)
}

// HasAction reports whether the action bar offers title.
func (cv *ContentView) HasAction(ctx context.Context, title string) (bool, error) {
	_, err := cv.ActionByTitle(ctx, title)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrElementNotFound) {
		return false, nil
	}
	return false, err
}

// Columns returns the listing header labels.
func (cv *ContentView) Columns(ctx context.Context) ([]string, error) {
	return textsOf(ctx, cv.runner, cv.sel(".dataOutput .colHeader"))
}

// Rows returns one node per listing row.
func (cv *ContentView) Rows(ctx context.Context) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(cv.sel(".dataOutput > tbody > tr"), &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return nodes, nil
}

// RowTitles returns the document titles shown, in either layout.
func (cv *ContentView) RowTitles(ctx context.Context) ([]string, error) {
	return textsOf(ctx, cv.runner, cv.sel(".documentTitle"))
}

// RowTexts returns the cell texts of every listing row, without the
// selection column.
func (cv *ContentView) RowTexts(ctx context.Context) ([][]string, error) {
	sel, _ := json.Marshal(cv.sel(".dataOutput > tbody > tr"))
	var out [][]string
	err := cv.runner.RunScript(ctx, fmt.Sprintf(`Array.from(document.querySelectorAll(%s), tr =>
	Array.from(tr.querySelectorAll('td:not(.selectColumn)'), td => td.textContent.trim()))`, sel), &out)
	if err != nil {
		return nil, fmt.Errorf("row texts: %w", err)
	}
	return out, nil
}
