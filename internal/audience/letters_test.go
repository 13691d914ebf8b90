package audience

import (
	"reflect"
	"testing"
)

func TestCollisionsReportsTakenCombination(t *testing.T) {
	others := []Department{
		{ID: "dep-a", Letter: "G", ClassLetters: []string{"A", "B"}},
		{ID: "dep-b", Letter: "G", ClassLetters: []string{"C", "D"}},
	}

	got := Collisions("dep-b", "G", []string{"C", "D", "B"}, others)
	if want := []string{"GB"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("collisions = %v, want %v", got, want)
	}
}

func TestCollisionsIgnoresOwnRow(t *testing.T) {
	others := []Department{
		{ID: "dep-a", Letter: "G", ClassLetters: []string{"A", "B"}},
	}

	if got := Collisions("dep-a", "G", []string{"A", "B"}, others); len(got) != 0 {
		t.Fatalf("collisions against own row = %v, want none", got)
	}
}

func TestCollisionsScopedToDisplayLetter(t *testing.T) {
	others := []Department{
		{ID: "dep-a", Letter: "G", ClassLetters: []string{"A"}},
	}

	// The same class letter under a different display letter is fine.
	if got := Collisions("dep-b", "H", []string{"A"}, others); len(got) != 0 {
		t.Fatalf("collisions = %v, want none", got)
	}
}

func TestCollisionsSortedAndDeduplicated(t *testing.T) {
	others := []Department{
		{ID: "dep-a", Letter: "G", ClassLetters: []string{"B", "A"}},
	}

	got := Collisions("dep-b", "G", []string{"B", "A", "B"}, others)
	if want := []string{"GA", "GB"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("collisions = %v, want %v", got, want)
	}
}
