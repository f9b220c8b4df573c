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

// Frame is the browsing context that queries and scripts run in. The zero
// value is the top-level document.
type Frame struct {
	selector string
	node     *cdp.Node
}

// TopFrame is the top-level document.
var TopFrame = Frame{}

// IsTop reports whether f is the top-level document.
func (f Frame) IsTop() bool {
	return f.node == nil
}

// Selector returns the iframe selector, or "" for the top-level document.
func (f Frame) Selector() string {
	return f.selector
}

// QueryOptions roots CSS queries at the frame's document.
func (f Frame) QueryOptions(extra ...chromedp.QueryOption) []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if f.node != nil {
		opts = append(opts, chromedp.FromNode(f.node))
	}
	return append(opts, extra...)
}

// wrap makes code evaluate against the frame's window.
func (f Frame) wrap(code string) string {
	if f.IsTop() {
		return code
	}
	sel, _ := json.Marshal(f.selector)
	src, _ := json.Marshal(code)
	return fmt.Sprintf(`(() => {
	const frame = document.querySelector(%s);
	if (!frame || !frame.contentWindow) throw new Error('frame is gone');
	return frame.contentWindow.eval(%s);
})()`, sel, src)
}

// Runner returns a ScriptRunner bound to the frame.
func (f Frame) Runner() ScriptRunner {
	return ChromeRunner{Frame: f}
}

// EnterFrame waits for the iframe matching selector to finish loading and
// returns a Frame rooted at its content document. Leaving the frame is simply
// going back to TopFrame.
func EnterFrame(ctx context.Context, selector string) (Frame, error) {
	sel, _ := json.Marshal(selector)
	loaded := fmt.Sprintf(`(() => {
	const frame = document.querySelector(%s);
	if (!frame || !frame.contentDocument) return false;
	return frame.contentDocument.readyState === 'complete' && frame.contentWindow.location.href !== 'about:blank';
})()`, sel)
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		var ok bool
		err := chromedp.Run(ctx, chromedp.Evaluate(loaded, &ok))
		return ok, err
	}, PollingInterval, LookupTimeout)
	if err != nil {
		return Frame{}, fmt.Errorf("frame %s: %w: %w", selector, ErrElementNotFound, err)
	}

	var nodes []*cdp.Node
	lctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()
	if err := chromedp.Run(lctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery)); err != nil || len(nodes) == 0 {
		return Frame{}, fmt.Errorf("frame %s: %w", selector, ErrElementNotFound)
	}
	return Frame{selector: selector, node: nodes[0]}, nil
}

// elementExists reports whether selector matches in the frame.
func elementExists(ctx context.Context, runner ScriptRunner, selector string) (bool, error) {
	sel, _ := json.Marshal(selector)
	var ok bool
	err := runner.RunScript(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, sel), &ok)
	return ok, err
}

// requireElement waits up to LookupTimeout for selector to appear.
func requireElement(ctx context.Context, runner ScriptRunner, selector string) error {
	err := WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		return elementExists(ctx, runner, selector)
	}, PollingInterval, LookupTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return nil
}

// textsOf returns the trimmed text content of every element matching selector.
func textsOf(ctx context.Context, runner ScriptRunner, selector string) ([]string, error) {
	sel, _ := json.Marshal(selector)
	var out []string
	err := runner.RunScript(ctx, fmt.Sprintf(`Array.from(document.querySelectorAll(%s), el => el.textContent.trim())`, sel), &out)
	if err != nil {
		return nil, fmt.Errorf("texts of %s: %w", selector, err)
	}
	return out, nil
}
