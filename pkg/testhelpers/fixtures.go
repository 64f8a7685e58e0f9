package testhelpers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// eduFixtureSQL creates a small slice of the edu schema with known values.
// Columns and table names match knowledge/schema_kb_core.json.
var eduFixtureSQL = []string{
	`CREATE TABLE IF NOT EXISTS college (
		id INTEGER PRIMARY KEY,
		college_name VARCHAR(100) NOT NULL,
		college_code VARCHAR(20) NOT NULL,
		description VARCHAR(255),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS student (
		id INTEGER PRIMARY KEY,
		student_no VARCHAR(20) NOT NULL,
		real_name VARCHAR(50) NOT NULL,
		gender VARCHAR(10),
		college_id INTEGER REFERENCES college(id),
		enroll_year INTEGER,
		status VARCHAR(20),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS course (
		id INTEGER PRIMARY KEY,
		course_name VARCHAR(100) NOT NULL,
		course_code VARCHAR(20) NOT NULL,
		credit NUMERIC(4,1),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS score (
		id INTEGER PRIMARY KEY,
		student_id INTEGER REFERENCES student(id),
		course_id INTEGER REFERENCES course(id),
		term VARCHAR(20),
		score_value NUMERIC(5,2),
		score_level VARCHAR(10),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`INSERT INTO college (id, college_name, college_code) VALUES
		(1, '计算机学院', 'CS'),
		(2, '数学学院', 'MATH')
	ON CONFLICT DO NOTHING`,
	`INSERT INTO student (id, student_no, real_name, gender, college_id, enroll_year, status) VALUES
		(1, 'S2023001', '张三', '男', 1, 2023, '在读'),
		(2, 'S2023002', '李四', '女', 1, 2023, '在读'),
		(3, 'S2022001', '王五', '男', 2, 2022, '休学')
	ON CONFLICT DO NOTHING`,
	`INSERT INTO course (id, course_name, course_code, credit) VALUES
		(1, '数据结构', 'CS201', 4.0),
		(2, '高等数学', 'MA101', 5.0)
	ON CONFLICT DO NOTHING`,
	`INSERT INTO score (id, student_id, course_id, term, score_value, score_level) VALUES
		(1, 1, 1, '2024-1', 91.50, 'A'),
		(2, 2, 1, '2024-1', 78.00, 'C'),
		(3, 3, 2, '2024-1', 0.00, 'F')
	ON CONFLICT DO NOTHING`,
}

func seedEduFixture(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range eduFixtureSQL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("fixture statement %d: %w", i, err)
		}
	}
	return nil
}
