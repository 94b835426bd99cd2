package evaluation_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"qa-compass-server/src/core/evaluation"
	"qa-compass-server/src/core/providers/llm"
	"qa-compass-server/src/core/scoring"
)

func str(s string) *string { return &s }

func i64(v int64) *int64 { return &v }

// scorePayload 所有维度同分的模型输出
func scorePayload(score float64, overall ...string) string {
	evals := map[string]any{}
	for _, key := range scoring.DefaultRubric().Keys() {
		evals[key] = map[string]any{"score": score, "issues": []string{"None"}, "reasoning": "ok"}
	}
	if overall == nil {
		overall = []string{}
	}
	raw, _ := json.Marshal(map[string]any{
		"evaluations":     evals,
		"overall_issues":  overall,
		"recommendations": []string{},
	})
	return string(raw)
}

// fakeProvider 记录并发度与请求内容
type fakeProvider struct {
	respond func(ctx context.Context, req llm.ChatRequest) (string, error)

	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (f *fakeProvider) Initialize() error { return nil }
func (f *fakeProvider) Cleanup() error    { return nil }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.calls.Add(1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(ctx, req)
}

func (f *fakeProvider) requestFor(marker string) (llm.ChatRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if strings.Contains(r.Messages[1].Content, marker) {
			return r, true
		}
	}
	return llm.ChatRequest{}, false
}

type fakeNotifier struct {
	mu        sync.Mutex
	summaries []evaluation.Summary
}

func (n *fakeNotifier) RunCompleted(_ context.Context, s evaluation.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}
