package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: 每个连接一个独立库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// 表结构由 golang-migrate 管理，这里只为内存库建表
	require.NoError(t, db.AutoMigrate(&searchCacheRow{}))
	return NewSQLStore(db, zaptest.NewLogger(t))
}

func countRows(t *testing.T, store *SQLStore) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.db.Model(&searchCacheRow{}).Count(&n).Error)
	return n
}

func TestSQLStore_PutGet(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Put(ctx, testEntry("h1", now)))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.QueryHash)
	assert.Equal(t, "what is rag", got.QueryText)
	assert.JSONEq(t, `[{"title":"RAG","url":"https://example.com","content":"retrieval"}]`, string(got.Results))
	assert.True(t, now.Equal(got.CreatedAt))
	assert.True(t, now.Add(24*time.Hour).Equal(got.ExpiresAt))
	assert.Equal(t, "database", store.Name())
}

func TestSQLStore_UpsertReplaces(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, testEntry("h1", now)))

	later := now.Add(time.Hour)
	second := testEntry("h1", later)
	second.QueryText = "What is RAG?"
	second.Results = []byte(`[{"title":"new"}]`)
	require.NoError(t, store.Put(ctx, second))

	assert.Equal(t, int64(1), countRows(t, store))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "What is RAG?", got.QueryText)
	assert.JSONEq(t, `[{"title":"new"}]`, string(got.Results))
	assert.True(t, later.Add(24*time.Hour).Equal(got.ExpiresAt))
}

func TestSQLStore_CorruptedRow(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.db.Create(&searchCacheRow{
		QueryHash: "bad",
		QueryText: "q",
		Results:   "{not json",
		Created:   formatTime(time.Now()),
		Expires:   formatTime(time.Now().Add(time.Hour)),
	}).Error)
	_, err := store.Get(ctx, "bad")
	assert.True(t, IsCorrupted(err))

	require.NoError(t, store.db.Create(&searchCacheRow{
		QueryHash: "badtime",
		QueryText: "q",
		Results:   "[]",
		Created:   "garbage",
		Expires:   formatTime(time.Now()),
	}).Error)
	_, err = store.Get(ctx, "badtime")
	assert.True(t, IsCorrupted(err))
}

func TestSQLStore_PutRejectsInvalidEntry(t *testing.T) {
	store := setupSQLStore(t)
	e := testEntry("h", time.Now())
	e.Results = []byte("nope")
	assert.Error(t, store.Put(context.Background(), e))
}

func TestSQLStore_ExpiredRowsAreKept(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, testEntry("old", now.Add(-48*time.Hour))))

	got, err := store.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, got.Live(now))
	assert.Equal(t, int64(1), countRows(t, store))
}

func TestSQLStore_ConcurrentPuts(t *testing.T) {
	store := setupSQLStore(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := testEntry(fmt.Sprintf("h%d", i%5), now)
			assert.NoError(t, store.Put(ctx, e))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(5), countRows(t, store))
}

func TestSQLStore_Ping(t *testing.T) {
	store := setupSQLStore(t)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Close())
}

// =============================================================================
// sqlmock（postgres 方言）
// =============================================================================

func setupMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewSQLStore(db, zaptest.NewLogger(t)), mock
}

func TestSQLStore_Postgres_PutUsesOnConflict(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "search_cache" .* ON CONFLICT \("query_hash"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Put(context.Background(), testEntry("h1", time.Now())))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_PutError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "search_cache"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Put(context.Background(), testEntry("h1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_Get(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"query_hash", "query_text", "results", "created_at", "expires_at"}).
		AddRow("h1", "q", `[]`, formatTime(now), formatTime(now.Add(time.Hour)))
	mock.ExpectQuery(`SELECT \* FROM "search_cache" WHERE query_hash = \$1`).WillReturnRows(rows)

	got, err := store.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "q", got.QueryText)
	assert.True(t, now.Add(time.Hour).Equal(got.ExpiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_GetMissAndError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "search_cache"`).
		WillReturnRows(sqlmock.NewRows([]string{"query_hash"}))
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)

	mock.ExpectQuery(`SELECT \* FROM "search_cache"`).WillReturnError(errors.New("conn reset"))
	_, err = store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
