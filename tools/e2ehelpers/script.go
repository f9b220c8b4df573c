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
	"regexp"
	"strings"

	"github.com/chromedp/chromedp"
)

// ScriptRunner evaluates JavaScript in a browsing context and decodes the
// result into res, which may be nil.
type ScriptRunner interface {
	RunScript(ctx context.Context, code string, res any) error
}

// ChromeRunner runs scripts with chromedp in the given frame.
type ChromeRunner struct {
	Frame Frame
}

func (r ChromeRunner) RunScript(ctx context.Context, code string, res any) error {
	return chromedp.Run(ctx, chromedp.Evaluate(r.Frame.wrap(code), res))
}

var methodName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// GridGlobal is the window property holding the grid widget's runtime API.
const GridGlobal = "docsheetGrid"

// GridCall is a method call on the grid widget.
type GridCall struct {
	Method string
	Args   []any
}

// Script returns the JavaScript expression performing the call. Arguments
// are passed as a JSON array through Function.prototype.apply.
func (c GridCall) Script() (string, error) {
	if !methodName.MatchString(c.Method) {
		return "", fmt.Errorf("invalid grid method name %q", c.Method)
	}
	args := c.Args
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("grid call %s: %w", c.Method, err)
	}
	var sb strings.Builder
	sb.WriteString("(() => {\n")
	sb.WriteString("\tconst grid = window." + GridGlobal + ";\n")
	sb.WriteString("\tif (!grid) throw new Error('grid widget is not loaded');\n")
	sb.WriteString("\treturn grid." + c.Method + ".apply(grid, " + string(b) + ");\n")
	sb.WriteString("})()")
	return sb.String(), nil
}
