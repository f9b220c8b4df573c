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
	"log"
	"net/url"
	"os"
	"path/filepath"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// WorkspacesPath is the path of the workspace root document.
const WorkspacesPath = "/default-domain/workspaces"

// CaptureScreenshot captures a screenshot and saves it to the specified filename.
func CaptureScreenshot(ctx context.Context, filename string) error {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory for screenshot: %w", err)
	}

	if err := os.WriteFile(filename, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot to file: %w", err)
	}
	log.Printf("Saved screenshot to %s", filename)
	return nil
}

// --- Navigation & Auth ---

// NavToURL opens u and waits for the body to be ready.
func NavToURL(ctx context.Context, u string) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(u),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", u, err)
	}
	return nil
}

// Login signs in through the login form. The session cookies are cleared
// first, so it works whether or not a user is logged in.
func Login(ctx context.Context, baseURL, user, password string) error {
	log.Print("Login: clearing cookies")
	if err := chromedp.Run(ctx, network.ClearBrowserCookies()); err != nil {
		return err
	}
	if err := NavToURL(ctx, baseURL+"/login"); err != nil {
		return err
	}
	log.Printf("Login: signing in as %s", user)
	if err := chromedp.Run(ctx,
		chromedp.WaitVisible(`#login-form`, chromedp.ByQuery),
		chromedp.SetValue(`#username`, user, chromedp.ByQuery),
		chromedp.SetValue(`#password`, password, chromedp.ByQuery),
		chromedp.Click(`#login-submit`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var state string
		err := chromedp.Run(ctx, chromedp.Evaluate(`document.querySelector('#user-menu') ? 'in' : (document.querySelector('#login-error') ? 'failed' : '')`, &state))
		if state == "failed" {
			return false, fmt.Errorf("login rejected for %s", user)
		}
		return state == "in", err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Logout signs out through the user menu.
func Logout(ctx context.Context) error {
	if err := chromedp.Run(ctx,
		chromedp.Click(`#user-menu #logout`, chromedp.ByQuery),
		chromedp.WaitVisible(`#login-form`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// GoToPath opens the document at path, e.g. WorkspacesPath.
func GoToPath(ctx context.Context, baseURL, path string) error {
	if err := NavToURL(ctx, baseURL+"/nxpath"+path); err != nil {
		return err
	}
	return waitDocumentPage(ctx)
}

// GoToDocument opens the document page of id.
func GoToDocument(ctx context.Context, baseURL, id string) error {
	if err := NavToURL(ctx, baseURL+"/doc/"+url.PathEscape(id)); err != nil {
		return err
	}
	return waitDocumentPage(ctx)
}

func waitDocumentPage(ctx context.Context) error {
	if err := requireElement(ctx, TopFrame.Runner(), `#document-title`); err != nil {
		return fmt.Errorf("document page: %w", err)
	}
	return nil
}

// GoToSearchPage opens the search page with an optional full-text query.
func GoToSearchPage(ctx context.Context, baseURL, text string) error {
	u := baseURL + "/search"
	if text != "" {
		u += "?" + url.Values{"q": {text}}.Encode()
	}
	if err := NavToURL(ctx, u); err != nil {
		return err
	}
	return requireElement(ctx, TopFrame.Runner(), "#"+SearchContentViewID)
}

// WaitForRequests waits until the page behind runner has no background
// request in flight.
func WaitForRequests(ctx context.Context, runner ScriptRunner) error {
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var n int
		err := runner.RunScript(ctx, `window.docsheetPending || 0`, &n)
		return n == 0, err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return fmt.Errorf("pending requests: %w", err)
	}
	return nil
}

// --- Fixtures ---

// CreateWorkspace creates a workspace under WorkspacesPath and returns its id.
func CreateWorkspace(ctx context.Context, baseURL, title, description string) (string, error) {
	if err := GoToPath(ctx, baseURL, WorkspacesPath); err != nil {
		return "", err
	}
	if err := submitCreateForm(ctx, "Workspace", title, description); err != nil {
		return "", err
	}

	t, _ := json.Marshal(title)
	var id string
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
	const h = document.querySelector('#document-title');
	return h && h.dataset.type === 'Workspace' && h.textContent.trim() === %s ? h.dataset.id : '';
})()`, t), &id))
		return id != "", err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return "", fmt.Errorf("create workspace %q: %w", title, err)
	}
	log.Printf("Created workspace %q (%s)", title, id)
	return id, nil
}

// CreateFile creates a file in the folderish document parentID and returns
// its id.
func CreateFile(ctx context.Context, baseURL, parentID, title, description string) (string, error) {
	if err := GoToDocument(ctx, baseURL, parentID); err != nil {
		return "", err
	}
	rowIDs := fmt.Sprintf(`Array.from(document.querySelectorAll('#%s [data-id]'), el => el.dataset.id)`, DocumentContentViewID)
	var before []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(rowIDs, &before)); err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if err := submitCreateForm(ctx, "File", title, description); err != nil {
		return "", err
	}

	known, _ := json.Marshal(before)
	t, _ := json.Marshal(title)
	var id string
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`(() => {
	const known = new Set(%s);
	for (const el of document.querySelectorAll('#%s [data-id]')) {
		const a = el.querySelector('.documentTitle');
		if (!known.has(el.dataset.id) && a && a.textContent.trim() === %s) return el.dataset.id;
	}
	return '';
})()`, known, DocumentContentViewID, t), &id))
		return id != "", err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return "", fmt.Errorf("create file %q: %w", title, err)
	}
	log.Printf("Created file %q (%s)", title, id)
	return id, nil
}

func submitCreateForm(ctx context.Context, docType, title, description string) error {
	if err := requireElement(ctx, TopFrame.Runner(), `#create-form`); err != nil {
		return err
	}
	if err := chromedp.Run(ctx,
		chromedp.SetValue(`#create-type`, docType, chromedp.ByQuery),
		chromedp.SetValue(`#create-title`, title, chromedp.ByQuery),
		chromedp.SetValue(`#create-description`, description, chromedp.ByQuery),
		chromedp.Click(`#create-submit`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("create %s: %w", docType, err)
	}
	return nil
}

// DeleteWorkspace deletes the workspace id through the workspace root listing.
func DeleteWorkspace(ctx context.Context, baseURL, id string) error {
	if err := GoToPath(ctx, baseURL, WorkspacesPath); err != nil {
		return err
	}
	checkbox := fmt.Sprintf(`#%s input[name=ids][value=%q]`, DocumentContentViewID, id)
	if err := requireElement(ctx, TopFrame.Runner(), checkbox); err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	action, err := DocumentContentView().ActionByTitle(ctx, "Delete")
	if err != nil {
		return err
	}
	if err := chromedp.Run(ctx,
		chromedp.Click(checkbox, chromedp.ByQuery),
		chromedp.MouseClickNode(action),
	); err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}

	row := fmt.Sprintf(`#%s [data-id=%q]`, DocumentContentViewID, id)
	err = WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var gone bool
		err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.readyState === 'complete' && document.querySelector('#document-title') !== null && document.querySelector(%q) === null`, row), &gone))
		return gone, err
	}, PollingInterval, LoadTimeout)
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	log.Printf("Deleted workspace %s", id)
	return nil
}
