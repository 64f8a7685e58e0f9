package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFieldRefs(t *testing.T) {
	query := `WITH top AS (
  SELECT student.id, student.name, AVG(score.score) AS avg_score
  FROM student JOIN score ON score.student_id = student.id
  WHERE student.name <> 'a.b' -- ignored.comment
  GROUP BY student.id, student.name
)
SELECT top.name, top.avg_score FROM top ORDER BY top.avg_score DESC`

	refs := ExtractFieldRefs(query)
	assert.Equal(t, []string{
		"student.id", "student.name", "score.score", "score.student_id",
		"top.name", "top.avg_score",
	}, refs)
}

func TestExtractFieldRefs_CaseInsensitiveDedup(t *testing.T) {
	refs := ExtractFieldRefs("SELECT Student.Name, student.name FROM student")
	assert.Equal(t, []string{"Student.Name"}, refs)
}

func TestExtractFieldRefs_IgnoresNumbers(t *testing.T) {
	assert.Empty(t, ExtractFieldRefs("SELECT 3.5 * 2"))
}

func TestExtractCTENames(t *testing.T) {
	query := "WITH base AS (SELECT 1), Ranked as(SELECT 2) SELECT * FROM base, ranked"
	names := ExtractCTENames(query)
	assert.Len(t, names, 2)
	assert.Contains(t, names, "base")
	assert.Contains(t, names, "ranked")
}

func TestFindUnknownFields(t *testing.T) {
	whitelist := map[string]bool{"student.name": true, "student.id": true}
	known := func(field string) bool { return whitelist[strings.ToLower(field)] }

	refs := []string{"student.name", "Student.ID", "student.nickname", "top.avg_score", "teacher.title"}
	ctes := map[string]struct{}{"top": {}}

	assert.Equal(t, []string{"student.nickname", "teacher.title"}, FindUnknownFields(refs, ctes, known))
}

func TestContainsField(t *testing.T) {
	refs := []string{"student.name", "class.name"}
	assert.True(t, ContainsField(refs, "Class.Name"))
	assert.False(t, ContainsField(refs, "course.name"))
}
