package audience

import "sort"

// Collisions returns every display-letter/class-letter combination the
// candidate would claim that another department already owns. Combinations
// are reported sorted, e.g. ["GB"].
func Collisions(candidateID, candidateLetter string, classLetters []string, others []Department) []string {
	taken := make(map[string]struct{})
	for _, other := range others {
		if other.ID == candidateID {
			continue
		}
		for _, classLetter := range other.ClassLetters {
			taken[other.Letter+classLetter] = struct{}{}
		}
	}

	var collisions []string
	seen := make(map[string]struct{})
	for _, classLetter := range classLetters {
		combination := candidateLetter + classLetter
		if _, exists := taken[combination]; !exists {
			continue
		}
		if _, dup := seen[combination]; dup {
			continue
		}
		seen[combination] = struct{}{}
		collisions = append(collisions, combination)
	}
	sort.Strings(collisions)
	return collisions
}
