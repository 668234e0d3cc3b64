package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artificial-games/artificial/internal/generation"
)

// fakeOpenAI answers every chat completion with content and records the
// credentials it was called with.
type fakeOpenAI struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeOpenAI) client(t *testing.T, key, content string) *generation.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.keys = append(f.keys, r.Header.Get("Authorization"))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return generation.New(generation.Config{APIKey: key, BaseURL: srv.URL + "/v1", Retries: 0}, slog.Default())
}

func (f *fakeOpenAI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestGenerateDisabled(t *testing.T) {
	env := newTestEnv(t, withGeneration(generation.New(generation.Config{}, slog.Default())))
	host := env.create("memeMachine", "Ada")

	var e ErrorResponse
	env.expect(env.call(http.MethodPost, "/api/generate/complete", host.Token, CompleteRequest{Prompt: "hi"}),
		http.StatusServiceUnavailable, &e)
	assert.Equal(t, "generation disabled", e.Error)

	env.expect(env.call(http.MethodPost, "/api/generate/meme/captions", host.Token, CaptionsRequest{Issue: "adoption"}),
		http.StatusServiceUnavailable, nil)
	env.expect(env.call(http.MethodPost, "/api/generate/complete", host.Token, CompleteRequest{}),
		http.StatusBadRequest, nil)
	env.expect(env.call(http.MethodPost, "/api/generate/complete", "", CompleteRequest{Prompt: "hi"}),
		http.StatusUnauthorized, nil)
}

func TestGenerateWithCallerKey(t *testing.T) {
	var fake fakeOpenAI
	env := newTestEnv(t, withGeneration(fake.client(t, "", "hello there")))
	host := env.create("memeMachine", "Ada")

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/generate/complete",
		jsonBody(t, CompleteRequest{Prompt: "say hi"}))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+host.Token)
	req.Header.Set(generationKeyHeader, "sk-caller")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out CompleteResponse
	env.expect(resp, http.StatusOK, &out)
	assert.Equal(t, "hello there", out.Text)
	assert.Equal(t, []string{"Bearer sk-caller"}, fake.seen())
}

func TestGenerateGameHelpers(t *testing.T) {
	var fake fakeOpenAI
	env := newTestEnv(t, withGeneration(fake.client(t, "sk-server",
		`[{"style":"witty","caption":"adopt, don't shop","hashtags":["#adopt"]}]`)))
	host := env.create("memeMachine", "Ada")

	var caps []generation.CaptionOption
	env.expect(env.call(http.MethodPost, "/api/generate/meme/captions", host.Token, CaptionsRequest{Issue: "adoption"}),
		http.StatusOK, &caps)
	require.Len(t, caps, 1)
	assert.Equal(t, "adopt, don't shop", caps[0].Caption)

	// Game helpers belong to their own game.
	env.expect(env.call(http.MethodPost, "/api/generate/app/analyze", host.Token, AnalyzeRequest{Code: "x"}),
		http.StatusConflict, nil)
}

func TestGenerateRateLimited(t *testing.T) {
	env := newTestEnv(t,
		withGeneration(generation.New(generation.Config{}, slog.Default())),
		withGenerationRate(0.001, 1))
	host := env.create("memeMachine", "Ada")
	sam := env.join(host.Code, "Sam")

	env.expect(env.call(http.MethodPost, "/api/generate/complete", host.Token, CompleteRequest{Prompt: "hi"}),
		http.StatusServiceUnavailable, nil)

	resp := env.call(http.MethodPost, "/api/generate/complete", host.Token, CompleteRequest{Prompt: "hi"})
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	env.expect(resp, http.StatusTooManyRequests, nil)

	// Budgets are per session.
	env.expect(env.call(http.MethodPost, "/api/generate/complete", sam.Token, CompleteRequest{Prompt: "hi"}),
		http.StatusServiceUnavailable, nil)
}
