package nxql

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

type record map[string]any

func (r record) Property(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func TestMatch(t *testing.T) {
	doc := record{
		"ecm:primaryType": "File",
		"ecm:path":        "/default-domain/workspaces/ws/test-file",
		"ecm:mixinType":   []string{"Versionable"},
		"ecm:isTrashed":   0,
		"ecm:fulltext":    "Test File quarterly report",
		"dc:title":        "Test File",
		"dc:description":  "",
		"dc:modified":     time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM Document", true},
		{"SELECT * FROM File", true},
		{"SELECT * FROM Folder, Workspace", false},
		{"SELECT * FROM Document WHERE dc:title = 'Test File'", true},
		{"SELECT * FROM Document WHERE dc:title = 'test file'", false},
		{"SELECT * FROM Document WHERE dc:title ILIKE 'test%'", true},
		{"SELECT * FROM Document WHERE dc:title LIKE 'test%'", false},
		{"SELECT * FROM Document WHERE dc:title LIKE 'T_st %'", true},
		{"SELECT * FROM Document WHERE dc:title NOT LIKE '%File'", false},
		{"SELECT * FROM Document WHERE ecm:isTrashed = 0", true},
		{"SELECT * FROM Document WHERE ecm:isTrashed = '0'", false},
		{"SELECT * FROM Document WHERE ecm:mixinType != 'HiddenInNavigation'", true},
		{"SELECT * FROM Document WHERE ecm:mixinType = 'Versionable'", true},
		{"SELECT * FROM Document WHERE ecm:mixinType IN ('Folderish', 'Versionable')", true},
		{"SELECT * FROM Document WHERE ecm:path STARTSWITH '/default-domain/workspaces'", true},
		{"SELECT * FROM Document WHERE ecm:path STARTSWITH '/default-domain/workspaces/'", true},
		{"SELECT * FROM Document WHERE ecm:path STARTSWITH '/default-domain/workspaces/ws/test-file'", false},
		{"SELECT * FROM Document WHERE ecm:path STARTSWITH '/default-domain/work'", false},
		{"SELECT * FROM Document WHERE ecm:fulltext = 'QUARTERLY test'", true},
		{"SELECT * FROM Document WHERE ecm:fulltext = 'annual'", false},
		{"SELECT * FROM Document WHERE dc:description IS NULL", true},
		{"SELECT * FROM Document WHERE dc:creator IS NULL", true},
		{"SELECT * FROM Document WHERE dc:title IS NOT NULL", true},
		{"SELECT * FROM Document WHERE dc:modified > DATE '2026-03-01'", true},
		{"SELECT * FROM Document WHERE dc:modified < '2026-03-01'", false},
		{"SELECT * FROM Document WHERE dc:modified < 5", false},
		{"SELECT * FROM Document WHERE dc:creator = 'bob'", false},
		{"SELECT * FROM Document WHERE dc:creator != 'bob'", false},
		{"SELECT * FROM Document WHERE dc:title IN ('a', 'Test File')", true},
		{"SELECT * FROM Document WHERE dc:title NOT IN ('a', 'Test File')", false},
		{"SELECT * FROM Document WHERE NOT (dc:title = 'x' OR ecm:isTrashed = 1) AND ecm:primaryType = 'File'", true},
	}
	for _, tt := range tests {
		q, err := Parse(tt.query)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.query, err)
		}
		if got := q.Match(doc); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestFilter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC) }
	docs := []record{
		{"ecm:primaryType": "File", "dc:title": "beta", "dc:modified": day(2)},
		{"ecm:primaryType": "Folder", "dc:title": "Alpha", "dc:modified": day(3)},
		{"ecm:primaryType": "File", "dc:title": "alpha", "dc:modified": day(1)},
		{"ecm:primaryType": "File", "dc:title": "gamma", "dc:modified": day(2)},
	}

	titles := func(rs []record) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r["dc:title"].(string))
		}
		return out
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"SELECT * FROM Document", []string{"beta", "Alpha", "alpha", "gamma"}},
		{"SELECT * FROM Document ORDER BY dc:title", []string{"Alpha", "alpha", "beta", "gamma"}},
		{"SELECT * FROM File ORDER BY dc:title DESC", []string{"gamma", "beta", "alpha"}},
		{"SELECT * FROM Document ORDER BY dc:modified DESC, dc:title", []string{"Alpha", "beta", "gamma", "alpha"}},
		{"SELECT * FROM Document WHERE dc:title = 'nothing'", nil},
	}
	for _, tt := range tests {
		q, err := Parse(tt.query)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.query, err)
		}
		if got := titles(Filter(q, docs)); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Filter(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestLikeMatch(t *testing.T) {
	tests := []struct {
		s, p string
		want bool
	}{
		{"abc", "abc", true},
		{"abc", "a%", true},
		{"abc", "%c", true},
		{"abc", "%b%", true},
		{"abc", "a_c", true},
		{"abc", "a_", false},
		{"", "%", true},
		{"", "_", false},
		{"abc", "%%%", true},
		{"abcbc", "%bc", true},
		{"über", "_ber", true},
		{"abcbc", "%b_", true},
		{"abcbd", "%bc", false},
		{"aXbXc", "a%b%c", true},
		{"ab", "a%b%c", false},
		{"abc", "abc%", true},
		{"abc", "ab", false},
		{"50% done", `50\%%`, true},
		{"500 items", `50\%%`, false},
		{"axb", `a\_b`, false},
		{"a_b", `a\_b`, true},
	}
	for _, tt := range tests {
		if got := likeMatch([]rune(tt.s), []rune(tt.p)); got != tt.want {
			t.Errorf("likeMatch(%q, %q) = %v, want %v", tt.s, tt.p, got, tt.want)
		}
	}
}

func TestLikeMatchManyWildcards(t *testing.T) {
	title := strings.Repeat("a", 40)
	q, err := Parse("SELECT * FROM Document WHERE dc:title LIKE '%a%a%a%a%a%a%a%a%b'")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	done := make(chan bool, 1)
	go func() {
		done <- q.Match(record{"ecm:primaryType": "File", "dc:title": title})
	}()
	select {
	case got := <-done:
		if got {
			t.Errorf("Expected no match")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("LIKE match did not finish in 5s")
	}
}
