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
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/ttbt-io/docsheet/tools/e2ehelpers"
)

var Login = e2ehelpers.Login
var Logout = e2ehelpers.Logout
var NavToURL = e2ehelpers.NavToURL
var GoToDocument = e2ehelpers.GoToDocument
var GoToSearchPage = e2ehelpers.GoToSearchPage
var CreateWorkspace = e2ehelpers.CreateWorkspace
var CreateFile = e2ehelpers.CreateFile
var DeleteWorkspace = e2ehelpers.DeleteWorkspace
var WaitForRequests = e2ehelpers.WaitForRequests
var CaptureScreenshot = e2ehelpers.CaptureScreenshot

// diffLines returns a unified diff of two string lists, one item per line.
func diffLines(want, got []string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(want, "\n") + "\n"),
		B:        difflib.SplitLines(strings.Join(got, "\n") + "\n"),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  3,
	})
	return diff
}

// diffRows is diffLines for table rows, with cells separated by " | ".
func diffRows(want, got [][]string) string {
	join := func(rows [][]string) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = strings.Join(r, " | ")
		}
		return out
	}
	return diffLines(join(want), join(got))
}
