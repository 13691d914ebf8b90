package audience

import (
	"strings"
	"time"
)

// Class names encode the cohort's graduation year in two digits, followed by
// the department letter and the class letter, e.g. "25Ga". A class group is
// the shorter prefix form without the class letter, e.g. "25G", or just the
// cohort digits "25".
type Class struct {
	Year             int
	DepartmentLetter string
	ClassLetter      string
}

type Group struct {
	Year             int
	DepartmentLetter string
}

const (
	// A cohort stays addressable for one school year past graduation.
	GraduationGraceYears = 1
	// Cohorts further out than a full program length have not been admitted.
	ProgramDurationYears = 4
)

func ParseClass(name string) (Class, bool) {
	year, rest, ok := splitCohort(name)
	if !ok || len(rest) < 2 {
		return Class{}, false
	}
	return Class{
		Year:             year,
		DepartmentLetter: rest[:1],
		ClassLetter:      rest[1:],
	}, true
}

func ParseGroup(name string) (Group, bool) {
	year, rest, ok := splitCohort(name)
	if !ok || len(rest) > 1 {
		return Group{}, false
	}
	return Group{Year: year, DepartmentLetter: rest}, true
}

func splitCohort(name string) (int, string, bool) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return 0, "", false
	}
	d1, d2 := name[0], name[1]
	if d1 < '0' || d1 > '9' || d2 < '0' || d2 > '9' {
		return 0, "", false
	}
	rest := name[2:]
	for _, r := range rest {
		if !isLetter(r) {
			return 0, "", false
		}
	}
	return 2000 + int(d1-'0')*10 + int(d2-'0'), rest, true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Active reports whether a cohort year is addressable at the given instant:
// not graduated longer than the grace period ago and already admitted.
func Active(cohortYear int, at time.Time) bool {
	evalYear := at.Year()
	if cohortYear+GraduationGraceYears <= evalYear {
		return false
	}
	if cohortYear-ProgramDurationYears > evalYear {
		return false
	}
	return true
}
