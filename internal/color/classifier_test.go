package color

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAnswer(t *testing.T) {
	assert.Equal(t, "藏蓝色", ExtractAnswer("The closest is **藏蓝色**."))
	assert.Equal(t, "藏蓝色", ExtractAnswer("** 藏蓝色 **"))
	assert.Equal(t, "蓝色", ExtractAnswer("  蓝色\n"))
}

func TestLLMClassifier_Classify(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"**宝蓝色**"}}]}`))
	}))
	defer server.Close()

	c := NewLLMClassifier(LLMConfig{URL: server.URL, APIKey: "key", Model: "deepseek-reasoner", Temperature: 0.3, Timeout: 5 * time.Second}, nil)
	defer c.Close()

	answer, err := c.Classify(context.Background(), "Cobalt", CanonicalNames())
	require.NoError(t, err)
	assert.Equal(t, "宝蓝色", answer)

	assert.Equal(t, "deepseek-reasoner", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "Cobalt")
	assert.Contains(t, got.Messages[1].Content, "宝蓝色")
}

func TestLLMClassifier_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"choices":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	for _, path := range []string{"/empty", "/denied"} {
		c := NewLLMClassifier(LLMConfig{URL: server.URL + path, Timeout: time.Second}, nil)
		_, err := c.Classify(context.Background(), "Cobalt", CanonicalNames())
		assert.Error(t, err, path)
		c.Close()
	}
}
