package textsim

import (
	"math"
	"testing"
)

func TestCompany(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "strips legal suffix", input: "Acme, Inc.", expect: "acme"},
		{name: "strips several suffixes", input: "Globex Corporation LLC", expect: "globex"},
		{name: "drops leading the", input: "The Boring Company", expect: "boring"},
		{name: "collapses whitespace", input: "  Initech   ", expect: "initech"},
		{name: "folds accents", input: "Société Générale SA", expect: "societe generale"},
		{name: "keeps single word suffix-like name", input: "Co", expect: "co"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Company(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestTitleExpandsAbbreviations(t *testing.T) {
	if got := Title("SWE II"); got != "software engineer ii" {
		t.Fatalf("unexpected title: %q", got)
	}
	if got := Title("Sr. Backend Dev"); got != "senior backend developer" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestTitleSimilarity(t *testing.T) {
	if got := TitleSimilarity("SWE II", "Software Engineer II"); got != 1 {
		t.Fatalf("expected abbreviation to match exactly, got %v", got)
	}

	if got := TitleSimilarity("Backend Engineer", "Frontend Engineer"); got >= 0.85 {
		t.Fatalf("expected backend and frontend to stay apart, got %v", got)
	}

	if got := TitleSimilarity("Senior Backend Engineer", "Backend Engineer"); got <= 0.5 || got >= 1 {
		t.Fatalf("expected partial similarity, got %v", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("", ""); got != 1 {
		t.Fatalf("expected empty strings to be equal, got %v", got)
	}
	if got := Ratio("abcd", ""); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Ratio("kitten", "sitting"); math.Abs(got-(1-3.0/7.0)) > 1e-9 {
		t.Fatalf("unexpected ratio %v", got)
	}
}

func TestLocationSimilarity(t *testing.T) {
	if got := LocationSimilarity("Seattle", "Seattle, WA"); got != 1 {
		t.Fatalf("expected containment to count as a full match, got %v", got)
	}
	if got := LocationSimilarity("", "Berlin"); got != 0 {
		t.Fatalf("expected 0 for empty location, got %v", got)
	}
	if got := LocationSimilarity("Berlin", "Lisbon"); got >= 0.5 {
		t.Fatalf("expected low similarity, got %v", got)
	}
}

func TestIsRemote(t *testing.T) {
	for _, loc := range []string{"Remote", "Remote - US", "Anywhere", "Virtual"} {
		if !IsRemote(loc) {
			t.Fatalf("expected %q to be remote", loc)
		}
	}
	for _, loc := range []string{"", "Seattle, WA", "Redmond"} {
		if IsRemote(loc) {
			t.Fatalf("expected %q not to be remote", loc)
		}
	}
}

func TestFoldKeepsLanguageSuffixes(t *testing.T) {
	if got := Fold("C++ / C#, Node.js"); got != "c++ c# node js" {
		t.Fatalf("unexpected fold: %q", got)
	}
}
