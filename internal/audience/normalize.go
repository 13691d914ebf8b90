package audience

import (
	"sort"
	"strings"
	"time"
)

// Department is the read-only directory view the normalizer needs: the
// effective display letter and the class letters the unit owns.
type Department struct {
	ID           string
	Letter       string
	ClassLetters []string
}

type Input struct {
	Classes       []string
	ClassGroups   []string
	DepartmentIDs []string
	Start         time.Time
	Departments   []Department
}

type Result struct {
	Classes       []string
	ClassGroups   []string
	DepartmentIDs []string
}

// Normalize minimizes an audience selection. Malformed entries are filterable
// noise, not errors. The result is sorted, so repeated application is a
// fixpoint.
func Normalize(in Input) Result {
	byID := make(map[string]Department, len(in.Departments))
	byLetter := make(map[string][]Department)
	for _, department := range in.Departments {
		byID[department.ID] = department
		byLetter[department.Letter] = append(byLetter[department.Letter], department)
	}

	departmentIDs := make([]string, 0, len(in.DepartmentIDs))
	selected := make(map[string]struct{}, len(in.DepartmentIDs))
	for _, id := range in.DepartmentIDs {
		if _, known := byID[id]; !known {
			continue
		}
		if _, dup := selected[id]; dup {
			continue
		}
		selected[id] = struct{}{}
		departmentIDs = append(departmentIDs, id)
	}

	// A display letter is covered only when every department sharing it is
	// selected. Partial coverage must not hide a class group, since the
	// remainder of the letter is not addressed by the selection.
	coveredLetters := make(map[string]struct{})
	coveredClassLetters := make(map[string]map[string]struct{})
	for letter, departments := range byLetter {
		all := len(departments) > 0
		for _, department := range departments {
			if _, ok := selected[department.ID]; !ok {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		coveredLetters[letter] = struct{}{}
		letters := make(map[string]struct{})
		for _, department := range departments {
			for _, classLetter := range department.ClassLetters {
				letters[classLetter] = struct{}{}
			}
		}
		coveredClassLetters[letter] = letters
	}

	groups := make([]string, 0, len(in.ClassGroups))
	groupSeen := make(map[string]struct{})
	for _, name := range in.ClassGroups {
		name = strings.TrimSpace(name)
		group, ok := ParseGroup(name)
		if !ok {
			continue
		}
		if !Active(group.Year, in.Start) {
			continue
		}
		if group.DepartmentLetter != "" {
			if _, covered := coveredLetters[group.DepartmentLetter]; covered {
				continue
			}
		}
		if _, dup := groupSeen[name]; dup {
			continue
		}
		groupSeen[name] = struct{}{}
		groups = append(groups, name)
	}

	classes := make([]string, 0, len(in.Classes))
	classSeen := make(map[string]struct{})
	for _, name := range in.Classes {
		name = strings.TrimSpace(name)
		class, ok := ParseClass(name)
		if !ok {
			continue
		}
		if !Active(class.Year, in.Start) {
			continue
		}
		if subsumedByGroup(name, groups) {
			continue
		}
		if letters, covered := coveredClassLetters[class.DepartmentLetter]; covered {
			if _, owned := letters[class.ClassLetter]; owned {
				continue
			}
		}
		if _, dup := classSeen[name]; dup {
			continue
		}
		classSeen[name] = struct{}{}
		classes = append(classes, name)
	}

	sort.Strings(classes)
	sort.Strings(groups)
	sort.Strings(departmentIDs)
	return Result{
		Classes:       classes,
		ClassGroups:   groups,
		DepartmentIDs: departmentIDs,
	}
}

func subsumedByGroup(class string, groups []string) bool {
	for _, group := range groups {
		if group != "" && strings.HasPrefix(class, group) {
			return true
		}
	}
	return false
}
