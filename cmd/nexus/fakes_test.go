package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nexus/config"
)

// fakeUpstream 在同一个 httptest.Server 上模拟 OpenAI、Qdrant 与 Tavily
type fakeUpstream struct {
	*httptest.Server

	strategy string

	classifyCalls   atomic.Int32
	synthesizeCalls atomic.Int32
	embedCalls      atomic.Int32
	qdrantCalls     atomic.Int32
	searchCalls     atomic.Int32

	// 最近一次 Tavily 请求体中的 query
	lastSearchQuery atomic.Value
}

func (f *fakeUpstream) LastSearchQuery() string {
	q, _ := f.lastSearchQuery.Load().(string)
	return q
}

func newFakeUpstream(t *testing.T, strategy string) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{strategy: strategy}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content := "Retrieval augmented generation grounds answers in retrieved context [1][2]."
		if _, ok := body["response_format"]; ok {
			f.classifyCalls.Add(1)
			content = `{"type":"factual","has_temporal":false,"search_strategy":"` + f.strategy + `"}`
		} else {
			f.synthesizeCalls.Add(1)
		}
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-1",
			"model":   "gpt-4o-mini",
			"created": 1700000000,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		writeJSON(w, map[string]any{
			"data":  []map[string]any{{"index": 0, "embedding": []float64{0.1, 0.2, 0.3}}},
			"model": "text-embedding-3-small",
		})
	})
	mux.HandleFunc("/collections/nexus_knowledge_base/points/search", func(w http.ResponseWriter, r *http.Request) {
		f.qdrantCalls.Add(1)
		writeJSON(w, map[string]any{
			"status": "ok",
			"result": []map[string]any{{
				"id":    "p1",
				"score": 0.91,
				"payload": map[string]any{
					"content":  "RAG pairs a retriever with a generator.",
					"metadata": map[string]any{"source": "rag-survey.pdf", "chunk_index": 3},
				},
			}},
		})
	})
	mux.HandleFunc("/collections/nexus_knowledge_base", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ok", "result": map[string]any{"status": "green"}})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastSearchQuery.Store(body.Query)
		writeJSON(w, map[string]any{
			"query": "q",
			"results": []map[string]any{{
				"title":   "What is RAG",
				"url":     "https://example.com/rag",
				"content": "Retrieval augmented generation explained.",
				"score":   0.88,
			}},
		})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// testConfig 指向 fake 上游、使用内存缓存的配置
func testConfig(t *testing.T, upstream *fakeUpstream) *config.Config {
	t.Helper()
	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = upstream.URL
	cfg.Embedding.APIKey = "sk-test"
	cfg.Embedding.BaseURL = upstream.URL
	cfg.Search.APIKey = "tvly-test"
	cfg.Search.BaseURL = upstream.URL
	cfg.Qdrant.Host = host
	cfg.Qdrant.Port = port
	cfg.Cache.Backend = "memory"
	cfg.Server.RateLimitRPS = 0
	return cfg
}
