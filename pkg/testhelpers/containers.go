// Package testhelpers provides shared PostgreSQL containers for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/database"
)

// PostgresImage is the image used for every integration test container.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "ekaya"
	testPassword = "test_password"
	testDatabase = "test_data"
	engineDBName = "ekaya_chat_test"
)

// TestDB holds a shared test database container and connection pool.
// The test_data database carries the edu fixture schema (see fixtures.go).
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testUser, testPassword, host, port.Port(), testDatabase)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := seedEduFixture(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed fixture schema: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
		User:      testUser,
		Password:  testPassword,
		Database:  testDatabase,
	}, nil
}

// DatasourceConfig returns executor settings pointing at the fixture database.
func (db *TestDB) DatasourceConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     db.User,
		"password": db.Password,
		"database": db.Database,
		"ssl_mode": "disable",
	}
}

// EngineDB holds the engine database connection with migrations applied.
// Use this for testing repositories and services against a real database.
type EngineDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	// Ensure test container is running first
	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE "+engineDBName); err != nil {
		return nil, fmt.Errorf("failed to create engine database: %w", err)
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		testUser, testPassword, testDB.Host, testDB.Port, engineDBName)

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	if err := db.Migrate(zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}
