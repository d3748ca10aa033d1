package sources

import "testing"

func TestArticleID(t *testing.T) {
	a := ArticleID("https://example.com/a")
	if len(a) != 16 {
		t.Fatalf("len(ArticleID) = %d, want 16", len(a))
	}
	if a != ArticleID("  https://example.com/a ") {
		t.Error("ArticleID should ignore surrounding whitespace")
	}
	if a == ArticleID("https://example.com/b") {
		t.Error("different urls produced the same id")
	}
}

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Hello   world ", "Hello world"},
		{"markup", "<p>Hello <b>world</b></p>\n<p>again</p>", "Hello world again"},
		{"empty", "", ""},
		{"drops scripts", "<p>News</p><script>var x = 1;</script>", "News"},
		{"decomposed unicode", "Cafe\u0301", "Caf\u00e9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanHTML(tt.in); got != tt.want {
				t.Errorf("CleanHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("Стартап", 4); got != "Стар" {
		t.Errorf("truncateRunes = %q, want %q", got, "Стар")
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes = %q, want unchanged", got)
	}
}

func TestJoinContent(t *testing.T) {
	tests := []struct {
		title, body, want string
	}{
		{"Title", "Body", "Title. Body"},
		{"Title", "", "Title"},
		{"", "Body", "Body"},
	}
	for _, tt := range tests {
		if got := joinContent(tt.title, tt.body); got != tt.want {
			t.Errorf("joinContent(%q, %q) = %q, want %q", tt.title, tt.body, got, tt.want)
		}
	}
}
