package captcha

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

func TestDecodeDataURL(t *testing.T) {
	payload, err := DecodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))

	_, err = DecodeDataURL("https://example.com/a.png")
	assert.Error(t, err)

	_, err = DecodeDataURL("data:image/png,raw")
	assert.Error(t, err)

	_, err = DecodeDataURL("data:image/png;base64,@@@")
	assert.Error(t, err)
}

func TestOCRClient_Solve(t *testing.T) {
	var got ocrRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ocrResponse{Text: " a b 1 2\n"})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, "secret", 5*time.Second, nil)
	defer client.Close()

	text, err := client.Solve(context.Background(), "data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "ab12", text)
	assert.Equal(t, "aGVsbG8=", got.Image)
	assert.Empty(t, got.URL)

	_, err = client.Solve(context.Background(), "not-an-image")
	assert.Error(t, err)
}

func TestOCRClient_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ocrResponse{Error: "unreadable"})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, "", 5*time.Second, nil)
	defer client.Close()

	_, err := client.Solve(context.Background(), "https://example.com/captcha.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
}
