package knowledge

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// MinCandidateScore is the lowest similarity a candidate may have.
const MinCandidateScore = 0.3

// Candidate is a knowledge base name scored against a missing identifier.
type Candidate struct {
	Name  string
	Score float64
}

// RankFields scores every whitelisted field against missing, which may be a
// bare column ("nam") or a qualified field ("students.nam"). The best of the
// field, column and alias similarities is used; a table part that names the
// field's table (singular or plural) adds a small bonus. Results are sorted
// by score descending then name ascending, filtered to MinCandidateScore and
// capped at limit.
func (b *Base) RankFields(missing string, limit int) []Candidate {
	missing = strings.ToLower(strings.TrimSpace(missing))
	if missing == "" {
		return nil
	}
	missingTable, missingColumn, qualified := strings.Cut(missing, ".")
	if !qualified {
		missingColumn = missing
	}

	candidates := make([]Candidate, 0, len(b.fields))
	for _, f := range b.fields {
		score := similarity(missing, strings.ToLower(f.field))
		score = max(score, similarity(missingColumn, strings.ToLower(f.column.Name)))
		for _, alias := range f.alias {
			score = max(score, similarity(missingColumn, strings.ToLower(alias)))
		}
		if qualified && sameTable(missingTable, f.table) {
			score = min(1, score+0.1)
		}
		candidates = append(candidates, Candidate{Name: f.field, Score: score})
	}
	return topCandidates(candidates, limit)
}

// RankTables scores every table name against missing, comparing singular forms.
func (b *Base) RankTables(missing string, limit int) []Candidate {
	missing = singular(missing)
	if missing == "" {
		return nil
	}
	candidates := make([]Candidate, 0, len(b.tables))
	for _, t := range b.tables {
		name := strings.TrimSpace(t.Name)
		candidates = append(candidates, Candidate{Name: name, Score: similarity(missing, singular(name))})
	}
	return topCandidates(candidates, limit)
}

// ResolveTable maps a table name in any case or number to its canonical
// spelling ("Students" -> "student").
func (b *Base) ResolveTable(name string) (string, bool) {
	if canonical, ok := b.byTable[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical, true
	}
	target := singular(name)
	for _, t := range b.tables {
		if singular(t.Name) == target {
			return strings.TrimSpace(t.Name), true
		}
	}
	return "", false
}

// CandidateNames returns just the names, in rank order.
func CandidateNames(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

func topCandidates(candidates []Candidate, limit int) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Name < candidates[j].Name
	})

	out := make([]Candidate, 0, limit)
	for _, c := range candidates {
		if c.Score < MinCandidateScore || (limit > 0 && len(out) >= limit) {
			break
		}
		out = append(out, c)
	}
	return out
}

func sameTable(a, b string) bool {
	return singular(a) == singular(b)
}

func singular(name string) string {
	return inflection.Singular(strings.ToLower(strings.TrimSpace(name)))
}

// similarity is 1 - levenshtein/maxLen over runes, in [0,1].
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(ra, rb))/float64(longest)
}

// levenshteinDistance calculates the edit distance between two rune slices.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Use a single row of the DP table for space efficiency
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
