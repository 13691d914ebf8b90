package audience

import (
	"reflect"
	"testing"
	"time"
)

func date(year int) time.Time {
	return time.Date(year, time.May, 10, 9, 0, 0, 0, time.UTC)
}

func TestNormalizeDropsGraduatedAndUnadmittedCohorts(t *testing.T) {
	out := Normalize(Input{
		Classes: []string{"22Ga", "23Ga", "24Ga", "25Ga"},
		Start:   date(2024),
	})

	want := []string{"24Ga", "25Ga"}
	if !reflect.DeepEqual(out.Classes, want) {
		t.Fatalf("classes = %v, want %v", out.Classes, want)
	}

	out = Normalize(Input{
		Classes: []string{"29Ga", "28Ga"},
		Start:   date(2024),
	})
	if want := []string{"28Ga"}; !reflect.DeepEqual(out.Classes, want) {
		t.Fatalf("classes = %v, want %v", out.Classes, want)
	}
}

func TestNormalizeGroupSubsumesClasses(t *testing.T) {
	out := Normalize(Input{
		Classes:     []string{"25Ga", "25Gb", "25Ha"},
		ClassGroups: []string{"25G"},
		Start:       date(2024),
	})

	if want := []string{"25Ha"}; !reflect.DeepEqual(out.Classes, want) {
		t.Errorf("classes = %v, want %v", out.Classes, want)
	}
	if want := []string{"25G"}; !reflect.DeepEqual(out.ClassGroups, want) {
		t.Errorf("class groups = %v, want %v", out.ClassGroups, want)
	}
}

func TestNormalizeBareCohortGroupSubsumesEverything(t *testing.T) {
	out := Normalize(Input{
		Classes:     []string{"25Ga", "25Ha"},
		ClassGroups: []string{"25"},
		Start:       date(2024),
	})

	if len(out.Classes) != 0 {
		t.Errorf("classes = %v, want none", out.Classes)
	}
	if want := []string{"25"}; !reflect.DeepEqual(out.ClassGroups, want) {
		t.Errorf("class groups = %v, want %v", out.ClassGroups, want)
	}
}

func TestNormalizeFullLetterCoverage(t *testing.T) {
	departments := []Department{
		{ID: "dep-1", Letter: "G", ClassLetters: []string{"a", "b"}},
		{ID: "dep-2", Letter: "G", ClassLetters: []string{"c"}},
		{ID: "dep-3", Letter: "H", ClassLetters: []string{"a"}},
	}

	// Both units behind "G" selected: the letter is covered, so the group
	// and every class whose class letter one of the units owns collapse
	// into the department selection.
	out := Normalize(Input{
		Classes:       []string{"25Ga", "25Gc", "25Ha"},
		ClassGroups:   []string{"25G"},
		DepartmentIDs: []string{"dep-1", "dep-2"},
		Start:         date(2024),
		Departments:   departments,
	})

	if want := []string{"25Ha"}; !reflect.DeepEqual(out.Classes, want) {
		t.Errorf("classes = %v, want %v", out.Classes, want)
	}
	if len(out.ClassGroups) != 0 {
		t.Errorf("class groups = %v, want none", out.ClassGroups)
	}
	if want := []string{"dep-1", "dep-2"}; !reflect.DeepEqual(out.DepartmentIDs, want) {
		t.Errorf("department ids = %v, want %v", out.DepartmentIDs, want)
	}
}

func TestNormalizePartialLetterCoverageKeepsGroup(t *testing.T) {
	departments := []Department{
		{ID: "dep-1", Letter: "G", ClassLetters: []string{"a", "b"}},
		{ID: "dep-2", Letter: "G", ClassLetters: []string{"c"}},
	}

	// Only one of the two units behind "G" is selected, so the group still
	// addresses the remainder and must survive.
	out := Normalize(Input{
		ClassGroups:   []string{"25G"},
		DepartmentIDs: []string{"dep-1"},
		Start:         date(2024),
		Departments:   departments,
	})

	if want := []string{"25G"}; !reflect.DeepEqual(out.ClassGroups, want) {
		t.Errorf("class groups = %v, want %v", out.ClassGroups, want)
	}
}

func TestNormalizeDropsMalformedAndUnknown(t *testing.T) {
	out := Normalize(Input{
		Classes:       []string{"", "G25a", "25", "2xGa", "25Ga", "25Ga"},
		ClassGroups:   []string{"25Gb", "bogus", "25G", "25G"},
		DepartmentIDs: []string{"nope", "dep-1", "dep-1"},
		Start:         date(2024),
		Departments:   []Department{{ID: "dep-1", Letter: "H", ClassLetters: []string{"a"}}},
	})

	if len(out.Classes) != 0 {
		t.Errorf("classes = %v, want none (25Ga subsumed by 25G)", out.Classes)
	}
	if want := []string{"25G"}; !reflect.DeepEqual(out.ClassGroups, want) {
		t.Errorf("class groups = %v, want %v", out.ClassGroups, want)
	}
	if want := []string{"dep-1"}; !reflect.DeepEqual(out.DepartmentIDs, want) {
		t.Errorf("department ids = %v, want %v", out.DepartmentIDs, want)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	in := Input{
		Classes:       []string{"25Gb", "24Ha", "25Ga", "23Ga"},
		ClassGroups:   []string{"25G", "24"},
		DepartmentIDs: []string{"dep-1"},
		Start:         date(2024),
		Departments: []Department{
			{ID: "dep-1", Letter: "G", ClassLetters: []string{"a", "b"}},
			{ID: "dep-2", Letter: "H", ClassLetters: []string{"a"}},
		},
	}

	first := Normalize(in)
	second := Normalize(Input{
		Classes:       first.Classes,
		ClassGroups:   first.ClassGroups,
		DepartmentIDs: first.DepartmentIDs,
		Start:         in.Start,
		Departments:   in.Departments,
	})

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("not idempotent: first %+v, second %+v", first, second)
	}
}

func TestParseClass(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
		want Class
	}{
		{"25Ga", true, Class{Year: 2025, DepartmentLetter: "G", ClassLetter: "a"}},
		{"25Gab", true, Class{Year: 2025, DepartmentLetter: "G", ClassLetter: "ab"}},
		{"25G", false, Class{}},
		{"25", false, Class{}},
		{"xxGa", false, Class{}},
		{"25G1", false, Class{}},
		{"", false, Class{}},
	}
	for _, tc := range cases {
		got, ok := ParseClass(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseClass(%q) = %+v, %v; want %+v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseGroup(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
		want Group
	}{
		{"25G", true, Group{Year: 2025, DepartmentLetter: "G"}},
		{"25", true, Group{Year: 2025}},
		{"25Ga", false, Group{}},
		{"2G", false, Group{}},
	}
	for _, tc := range cases {
		got, ok := ParseGroup(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseGroup(%q) = %+v, %v; want %+v, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
