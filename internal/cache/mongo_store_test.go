package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/drivertest"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/xoptions"
	"go.uber.org/zap/zaptest"
)

// setupMongoStore 使用驱动自带的 mock deployment，按顺序回放服务端响应
func setupMongoStore(t *testing.T) (*MongoStore, *drivertest.MockDeployment) {
	t.Helper()
	md := drivertest.NewMockDeployment()

	opts := options.Client()
	require.NoError(t, xoptions.SetInternalClientOptions(opts, "deployment", md))
	client, err := mongo.Connect(opts)
	require.NoError(t, err)

	store := newMongoStore(client, "nexus", "search_cache", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = store.Close() })
	return store, md
}

func findReply(docs ...bson.D) bson.D {
	batch := bson.A{}
	for _, d := range docs {
		batch = append(batch, d)
	}
	return bson.D{
		{Key: "ok", Value: 1},
		{Key: "cursor", Value: bson.D{
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "nexus.search_cache"},
			{Key: "firstBatch", Value: batch},
		}},
	}
}

func storedDoc(hash, queryText, results, created, expires string) bson.D {
	return bson.D{
		{Key: "_id", Value: hash},
		{Key: "query_text", Value: queryText},
		{Key: "results", Value: results},
		{Key: "created_at", Value: created},
		{Key: "expires_at", Value: expires},
	}
}

func TestMongoStore_GetMiss(t *testing.T) {
	store, md := setupMongoStore(t)
	md.AddResponses(findReply())

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, "mongo", store.Name())
}

func TestMongoStore_GetHit(t *testing.T) {
	store, md := setupMongoStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	md.AddResponses(findReply(storedDoc("h1", "What is RAG?", `[{"title":"RAG"}]`,
		formatTime(now), formatTime(now.Add(24*time.Hour)))))

	got, err := store.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "h1", got.QueryHash)
	assert.Equal(t, "What is RAG?", got.QueryText)
	assert.JSONEq(t, `[{"title":"RAG"}]`, string(got.Results))
	assert.True(t, now.Equal(got.CreatedAt))
	assert.True(t, got.Live(now))
}

func TestMongoStore_GetCorrupted(t *testing.T) {
	tests := []struct {
		name string
		doc  bson.D
	}{
		{"bad results", storedDoc("h1", "q", "{", formatTime(time.Now()), formatTime(time.Now()))},
		{"bad timestamp", storedDoc("h1", "q", "[]", "yesterday", formatTime(time.Now()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, md := setupMongoStore(t)
			md.AddResponses(findReply(tt.doc))

			_, err := store.Get(context.Background(), "h1")
			assert.True(t, IsCorrupted(err))
		})
	}
}

func TestMongoStore_GetServerError(t *testing.T) {
	store, md := setupMongoStore(t)
	md.AddResponses(bson.D{{Key: "ok", Value: 0}, {Key: "code", Value: 2}, {Key: "errmsg", Value: "bad query"}})

	_, err := store.Get(context.Background(), "h1")
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestMongoStore_PutUpsertThenReplace(t *testing.T) {
	store, md := setupMongoStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// 首次写入：upsert 插入
	md.AddResponses(bson.D{
		{Key: "ok", Value: 1},
		{Key: "n", Value: 1},
		{Key: "nModified", Value: 0},
		{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "h1"}}}},
	})
	require.NoError(t, store.Put(ctx, testEntry("h1", now)))

	// 同键再次写入：整文档替换
	later := now.Add(time.Hour)
	second := testEntry("h1", later)
	second.QueryText = "What is RAG?"
	second.Results = []byte(`[{"title":"new"}]`)
	md.AddResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
	require.NoError(t, store.Put(ctx, second))

	stored := toMongoDoc(second)
	md.AddResponses(findReply(storedDoc(stored.QueryHash, stored.QueryText, stored.Results, stored.CreatedAt, stored.ExpiresAt)))
	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "What is RAG?", got.QueryText)
	assert.JSONEq(t, `[{"title":"new"}]`, string(got.Results))
	assert.True(t, later.Add(24*time.Hour).Equal(got.ExpiresAt))
}

func TestMongoStore_PutErrors(t *testing.T) {
	store, md := setupMongoStore(t)
	ctx := context.Background()

	// 非法条目不会发往服务端
	assert.Error(t, store.Put(ctx, &Entry{QueryHash: "x"}))

	md.AddResponses(bson.D{{Key: "ok", Value: 0}, {Key: "code", Value: 2}, {Key: "errmsg", Value: "write rejected"}})
	err := store.Put(ctx, testEntry("h1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache put failed")
}

func TestMongoDocConversion(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := testEntry("h1", now)

	doc := toMongoDoc(e)
	assert.Equal(t, "h1", doc.QueryHash)
	assert.Equal(t, "2024-05-01T12:00:00.000000000Z", doc.CreatedAt)

	back, err := doc.entry()
	require.NoError(t, err)
	assert.Equal(t, e.QueryText, back.QueryText)
	assert.JSONEq(t, string(e.Results), string(back.Results))
	assert.True(t, e.ExpiresAt.Equal(back.ExpiresAt))

	doc.Results = "{"
	_, err = doc.entry()
	assert.True(t, IsCorrupted(err))
}
