package resolve_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/acto-dev/ajax/internal/resolve"
)

func TestClosest_ExactHit(t *testing.T) {
	got, err := resolve.Closest("Staging", []string{"staging", "production"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "staging" {
		t.Fatalf("expected staging, got %q", got)
	}
}

func TestClosest_PartialHit(t *testing.T) {
	got, err := resolve.Closest("prod", []string{"staging", "production"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "production" {
		t.Fatalf("expected production, got %q", got)
	}
}

func TestClosest_NoMatch(t *testing.T) {
	if _, err := resolve.Closest("billing", []string{"staging"}); err == nil {
		t.Fatal("expected error for no match")
	}
}

func TestClosest_Ambiguous(t *testing.T) {
	_, err := resolve.Closest("work", []string{"work-us", "work-eu"})
	var ae *resolve.AmbiguousError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AmbiguousError, got %T: %v", err, err)
	}
	if len(ae.Matches) != 2 {
		t.Fatalf("expected two candidates: %+v", ae)
	}
}

func TestClosest_PrefersExactOverFuzzy(t *testing.T) {
	got, err := resolve.Closest("dev", []string{"devbox", "dev"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "dev" {
		t.Fatalf("expected exact match dev, got %q", got)
	}
}

func TestClosest_EmptyInputs(t *testing.T) {
	if _, err := resolve.Closest(" ", []string{"a"}); !errors.Is(err, resolve.ErrEmptyQuery) {
		t.Errorf("empty query: %v", err)
	}
	if _, err := resolve.Closest("a", nil); !errors.Is(err, resolve.ErrEmptyItems) {
		t.Errorf("empty names: %v", err)
	}
}

func TestSuggest_ReturnsRanked(t *testing.T) {
	matches := resolve.Suggest("dl", []string{"delete", "get", "download"}, 10)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not ranked: %+v", matches)
		}
	}
	if got := resolve.Suggest("dl", []string{"delete", "download"}, 1); len(got) != 1 {
		t.Fatalf("limit not applied: %+v", got)
	}
	if resolve.Suggest("x", []string{"a"}, 0) != nil {
		t.Fatal("zero limit should return nil")
	}
}

func TestAmbiguousErrorString(t *testing.T) {
	err := &resolve.AmbiguousError{
		Query:   "work",
		Matches: []resolve.Match{{Name: "work-us"}, {Name: "work-eu"}},
	}

	msg := err.Error()
	if !strings.Contains(msg, `ambiguous match for "work"`) {
		t.Fatalf("missing query in error message: %q", msg)
	}
	if !strings.Contains(msg, "work-us") || !strings.Contains(msg, "work-eu") {
		t.Fatalf("missing candidates in error message: %q", msg)
	}
}
