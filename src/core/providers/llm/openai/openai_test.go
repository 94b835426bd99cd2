package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"qa-compass-server/src/core/providers/llm"
	_ "qa-compass-server/src/core/providers/llm/openai"
	"qa-compass-server/src/core/utils"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4.1-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var _ = Describe("OpenAI provider", func() {
	var (
		srv      *httptest.Server
		calls    atomic.Int32
		handler  http.HandlerFunc
		provider llm.Provider
		lastBody map[string]any
		lastPath string
		lastAuth string
	)

	BeforeEach(func() {
		calls.Store(0)
		lastBody = nil
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			lastPath = r.URL.Path
			lastAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			handler(w, r)
		}))

		var err error
		provider, err = llm.Create("openai", &llm.Config{
			Name:         "test",
			Type:         "openai",
			ModelName:    "gpt-4.1-mini",
			BaseURL:      srv.URL + "/v1",
			APIKey:       "sk-test",
			MaxAttempts:  3,
			RetryMinWait: time.Millisecond,
			RetryMaxWait: 5 * time.Millisecond,
		}, utils.NopLogger())
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(provider.Cleanup()).To(Succeed())
		srv.Close()
	})

	request := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "system"},
			{Role: llm.RoleUser, Content: "{}"},
		},
		Temperature: 0.4,
		JSONObject:  true,
	}

	It("sends model, temperature and json response format", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, completion(`{"evaluations":{}}`))
		}

		out, err := provider.Chat(context.Background(), request)
		Expect(err).To(BeNil())
		Expect(out).To(Equal(`{"evaluations":{}}`))
		Expect(lastPath).To(Equal("/v1/chat/completions"))
		Expect(lastAuth).To(Equal("Bearer sk-test"))
		Expect(lastBody["model"]).To(Equal("gpt-4.1-mini"))
		Expect(lastBody["temperature"]).To(BeNumerically("~", 0.4, 1e-6))
		Expect(lastBody["response_format"]).To(HaveKeyWithValue("type", "json_object"))
		Expect(lastBody["messages"]).To(HaveLen(2))
	})

	It("uses the per-request model when given", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, completion("ok"))
		}
		req := request
		req.Model = "gpt-4o"
		_, err := provider.Chat(context.Background(), req)
		Expect(err).To(BeNil())
		Expect(lastBody["model"]).To(Equal("gpt-4o"))
	})

	It("retries server errors and then succeeds", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Load() < 3 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"message": "busy", "type": "server_error"}})
				return
			}
			writeJSON(w, http.StatusOK, completion("done"))
		}

		out, err := provider.Chat(context.Background(), request)
		Expect(err).To(BeNil())
		Expect(out).To(Equal("done"))
		Expect(calls.Load()).To(BeEquivalentTo(3))
	})

	It("retries rate limits until attempts are exhausted", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit"}})
		}

		_, err := provider.Chat(context.Background(), request)
		Expect(err).NotTo(BeNil())
		Expect(calls.Load()).To(BeEquivalentTo(3))
	})

	It("does not retry client errors", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "bad", "type": "invalid_request_error"}})
		}

		_, err := provider.Chat(context.Background(), request)
		Expect(err).NotTo(BeNil())
		Expect(calls.Load()).To(BeEquivalentTo(1))
	})

	It("stops when the context deadline passes", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			writeJSON(w, http.StatusOK, completion("late"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := provider.Chat(ctx, request)
		Expect(err).NotTo(BeNil())
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("rejects unknown provider types", func() {
		_, err := llm.Create("nope", &llm.Config{}, utils.NopLogger())
		Expect(err).To(MatchError(ContainSubstring("未知的LLM提供者")))
	})
})
