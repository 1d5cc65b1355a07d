package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nexus/rag"
)

func dialStream(t *testing.T, runner QueryRunner) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(NewQueryStreamHandler(runner, nil, zap.NewNop()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func TestQueryStreamHandler_AnswersEachMessage(t *testing.T) {
	runner := &stubRunner{}
	conn, ctx := dialStream(t, runner)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"id": "1", "query": "first", "preference": "web_only"}))
	var frame StreamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "result", frame.Type)
	assert.Equal(t, "1", frame.ID)
	require.NotNil(t, frame.Result)
	assert.Equal(t, "answer to first", frame.Result.Answer)
	assert.Equal(t, rag.StrategyWebOnly, frame.Result.SearchStrategyUsed)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"id": "2", "query": "second"}))
	frame = StreamFrame{}
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "2", frame.ID)
	assert.Equal(t, "answer to second", frame.Result.Answer)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].preference.IsAuto())
}

func TestQueryStreamHandler_PassesQueryVerbatim(t *testing.T) {
	runner := &stubRunner{}
	conn, ctx := dialStream(t, runner)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"id": "1", "query": "\tWhat is RAG? "}))
	var frame StreamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, "result", frame.Type)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "\tWhat is RAG? ", calls[0].query)
}

func TestQueryStreamHandler_InvalidMessagesKeepConnection(t *testing.T) {
	runner := &stubRunner{}
	conn, ctx := dialStream(t, runner)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{not json`)))
	var frame StreamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "error", frame.Type)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "INVALID_REQUEST", frame.Error.Code)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"id": "e", "query": " "}))
	frame = StreamFrame{}
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "e", frame.ID)
	assert.Equal(t, "query is required", frame.Error.Message)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"query": "still alive"}))
	frame = StreamFrame{}
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, "result", frame.Type)

	assert.Len(t, runner.Calls(), 1)
}
