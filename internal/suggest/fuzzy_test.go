package suggest

import "testing"

func TestScoreIdentical(t *testing.T) {
	if got := Score("git status", "git status"); got != 100 {
		t.Fatalf("Score = %d, want 100", got)
	}
}

func TestScoreEmpty(t *testing.T) {
	if got := Score("", "git status"); got != 0 {
		t.Fatalf("Score = %d, want 0", got)
	}
	if got := Score("git status", ""); got != 0 {
		t.Fatalf("Score = %d, want 0", got)
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	if got := Score("GIT STATUS", "git status"); got != 100 {
		t.Fatalf("Score = %d, want 100", got)
	}
}

func TestScoreTokenOrderInsensitive(t *testing.T) {
	if got := Score("status git", "git status"); got != 100 {
		t.Fatalf("token-set ratio should ignore order, got %d", got)
	}
}

func TestScorePrefixHigh(t *testing.T) {
	got := Score("git st", "git status")
	if got < 60 {
		t.Fatalf("Score(%q, %q) = %d, want >= 60", "git st", "git status", got)
	}
}

func TestScoreUnrelatedLow(t *testing.T) {
	got := Score("docker compose up", "vim ~/.bashrc")
	if got > 40 {
		t.Fatalf("Score = %d for unrelated commands, want <= 40", got)
	}
}

func TestScoreOrdering(t *testing.T) {
	near := Score("git st", "git stash")
	far := Score("git st", "ls -la")
	if near <= far {
		t.Fatalf("near=%d should beat far=%d", near, far)
	}
}

func TestRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 100},
		{"abc", "abd", 66},
		{"", "", 100},
		{"a", "b", 0},
	}
	for _, tc := range cases {
		if got := ratio(tc.a, tc.b); got != tc.want {
			t.Errorf("ratio(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"café", "cafe", 1},
	}
	for _, tc := range cases {
		if got := levenshtein(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTokenizeQuoted(t *testing.T) {
	tokens := tokenize(`git commit -m "fix the thing"`)
	if len(tokens) != 4 {
		t.Fatalf("tokens = %v, want 4 entries", tokens)
	}
	if tokens[3] != "fix the thing" {
		t.Fatalf("quoted token = %q", tokens[3])
	}
}

func TestTokenizeUnbalancedQuotesFallsBack(t *testing.T) {
	tokens := tokenize(`echo "unterminated`)
	if len(tokens) == 0 {
		t.Fatal("fallback tokenization returned nothing")
	}
}
