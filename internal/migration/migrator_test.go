package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/BaSui01/nexus/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestDatabaseURLFromConfig(t *testing.T) {
	pg := appconfig.DatabaseConfig{Host: "db", Port: 5432, User: "nexus", Password: "secret", Name: "nexus", SSLMode: "disable"}
	assert.Equal(t, "postgres://nexus:secret@db:5432/nexus?sslmode=disable", DatabaseURLFromConfig(DatabaseTypePostgres, pg))

	pg.SSLMode = ""
	assert.Equal(t, "postgres://nexus:secret@db:5432/nexus?sslmode=require", DatabaseURLFromConfig(DatabaseTypePostgres, pg))

	my := appconfig.DatabaseConfig{Host: "localhost", Port: 3306, User: "user", Password: "pass", Name: "testdb"}
	assert.Equal(t, "user:pass@tcp(localhost:3306)/testdb?parseTime=true&multiStatements=true", DatabaseURLFromConfig(DatabaseTypeMySQL, my))

	assert.Equal(t, "file:data/cache.db", DatabaseURLFromConfig(DatabaseTypeSQLite, appconfig.DatabaseConfig{Name: "data/cache.db"}))
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dbType), func(t *testing.T) {
			migrations, err := availableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, migrations)
			assert.Equal(t, uint(1), migrations[0].version)
			assert.Equal(t, "create_search_cache", migrations[0].name)

			for i := 1; i < len(migrations); i++ {
				assert.Greater(t, migrations[i].version, migrations[i-1].version)
			}
		})
	}
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = NewMigratorWithDB(nil, DatabaseTypeSQLite)
	assert.Error(t, err)
}

func TestMigrator_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	migrator, err := NewMigratorFromDatabaseConfig(appconfig.DatabaseConfig{Driver: "sqlite", Name: dbPath})
	require.NoError(t, err)
	defer migrator.Close()

	ctx := context.Background()

	version, dirty, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up(ctx))
	require.NoError(t, migrator.Up(ctx), "up is idempotent")

	info, err := migrator.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), info.CurrentVersion)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)

	require.NoError(t, migrator.Down(ctx))
	version, _, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_WithDBCreatesSearchCache(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer db.Close()

	migrator, err := NewMigratorWithDB(db, DatabaseTypeSQLite)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))
	require.NoError(t, migrator.Close())

	// Close 之后连接仍可用
	_, err = db.Exec(`INSERT INTO search_cache (query_hash, query_text, results, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		"5d41402abc4b2a76b9719d911017c592", "hello", `[{"title":"t"}]`,
		"2024-05-01T09:00:00.000000000Z", "2024-05-02T09:00:00.000000000Z")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM search_cache WHERE expires_at > ?`, "2024-05-01T12:00:00.000000000Z").Scan(&count))
	assert.Equal(t, 1, count)

	_, err = db.Exec(`INSERT INTO search_cache (query_hash, query_text, results, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		"5d41402abc4b2a76b9719d911017c592", "hello", `[]`, "x", "y")
	assert.Error(t, err, "query_hash is the primary key")
}

func TestCLI_Output(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	migrator, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, dbPath, "", "", ""),
	})
	require.NoError(t, err)
	defer migrator.Close()

	var out bytes.Buffer
	cli := NewCLI(migrator)
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, out.String(), "000001")
	assert.Contains(t, out.String(), "create_search_cache")
	assert.Contains(t, out.String(), "Pending")

	out.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Migrations complete. Current version: 1")

	out.Reset()
	require.NoError(t, cli.RunReset(ctx))
	assert.Contains(t, out.String(), "All migrations rolled back.")
}
