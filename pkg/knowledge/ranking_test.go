package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankFields_ClosestFirst(t *testing.T) {
	b := mustParse(t, testKB)

	ranked := b.RankFields("student.real_nam", 5)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "student.real_name", ranked[0].Name)
	for _, c := range ranked {
		assert.GreaterOrEqual(t, c.Score, MinCandidateScore)
	}
}

func TestRankFields_BareColumn(t *testing.T) {
	b := mustParse(t, testKB)

	ranked := b.RankFields("stuent_no", 5)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "student.student_no", ranked[0].Name)
}

func TestRankFields_MatchesAliases(t *testing.T) {
	b := mustParse(t, testKB)

	ranked := b.RankFields("成绩", 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, "score.score_value", ranked[0].Name)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
}

func TestRankFields_DeterministicTieBreak(t *testing.T) {
	b := mustParse(t, `
tables:
  - name: b_table
    description: b
    columns:
      - {name: code, description: c}
  - name: a_table
    description: a
    columns:
      - {name: code, description: c}
`)

	first := CandidateNames(b.RankFields("code", 5))
	assert.Equal(t, []string{"a_table.code", "b_table.code"}, first)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CandidateNames(b.RankFields("code", 5)))
	}
}

func TestRankFields_LimitAndThreshold(t *testing.T) {
	b := mustParse(t, testKB)

	assert.Len(t, b.RankFields("student.real_nam", 2), 2)
	assert.Empty(t, b.RankFields("zzzzzzzzzzzzzzzzzzzzzzzzzzzz", 5))
	assert.Nil(t, b.RankFields("  ", 5))
}

func TestRankTables_PluralInsensitive(t *testing.T) {
	b := mustParse(t, testKB)

	ranked := b.RankTables("Students", 5)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "student", ranked[0].Name)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)

	ranked = b.RankTables("scores", 5)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "score", ranked[0].Name)
}

func TestResolveTable(t *testing.T) {
	b, err := Parse([]byte(`
tables:
  - name: class
    description: classes
    columns: []
  - name: student
    description: students
    columns: []
`))
	require.NoError(t, err)

	tests := map[string]string{
		"class":    "class",
		"CLASS":    "class",
		"classes":  "class",
		"Students": "student",
	}
	for input, want := range tests {
		got, ok := b.ResolveTable(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := b.ResolveTable("teacher")
	assert.False(t, ok)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 0.0, similarity("abc", "xyz"), 1e-9)
	assert.InDelta(t, 1.0, similarity("", ""), 1e-9)
	assert.InDelta(t, 0.5, similarity("学生", "学号"), 1e-9)
	assert.Equal(t, 3, levenshteinDistance([]rune("kitten"), []rune("sitting")))
}
