package shipping

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

func TestClient_Quote(t *testing.T) {
	var (
		body   []map[string]any
		header http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		w.Write([]byte(`{"code":200,"data":[
			{"logisticName":"CJPacket","price":"5.20","aging":"7-12"},
			{"logisticName":"USPS","price":4.75,"aging":"3-5"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		URL:               server.URL,
		Platform:          "shopify",
		StartCountry:      "CN",
		ShipTo:            "US",
		RequestsPerSecond: 100,
		Timeout:           5 * time.Second,
	}, nil)
	defer client.Close()

	options, err := client.Quote(context.Background(), "session-token", QuoteRequest{
		SKU:    "CJ123-RED",
		PID:    "p-1",
		Weight: 120,
		Length: 10, Width: 5, Height: 2,
	})
	require.NoError(t, err)

	require.Len(t, options, 2)
	assert.Equal(t, "4.75", options[1].Price, "numeric price kept as text")
	assert.Equal(t, "USPS", Choose(options).Method)

	assert.Equal(t, "session-token", header.Get("token"))
	require.Len(t, body, 1)
	assert.Equal(t, "CN", body[0]["startcountrycode"])
	assert.Equal(t, "US", body[0]["countrycode"])
	assert.Equal(t, "shopify", body[0]["platform"])
	assert.Equal(t, float64(1), body[0]["quantity"])
	assert.Equal(t, []any{"CJ123-RED"}, body[0]["skus"])
}

func TestClient_QuoteFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
		},
		{
			name: "html login page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte("<html>login</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(ClientConfig{URL: server.URL, ShipTo: "US", RequestsPerSecond: 100, Timeout: time.Second}, nil)
			defer client.Close()

			options, err := client.Quote(context.Background(), "", QuoteRequest{SKU: "x"})
			assert.Error(t, err)
			assert.Empty(t, options)
		})
	}
}

func TestClient_QuoteDestination(t *testing.T) {
	var countries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		countries = append(countries, body[0]["countrycode"].(string))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":[]}`))
	}))
	defer server.Close()

	t.Run("missing destination is an error", func(t *testing.T) {
		client := NewClient(ClientConfig{URL: server.URL, StartCountry: "CN", RequestsPerSecond: 100, Timeout: time.Second}, nil)
		defer client.Close()

		options, err := client.Quote(context.Background(), "tok", QuoteRequest{SKU: "x"})
		require.ErrorIs(t, err, ErrNoDestination)
		assert.Empty(t, options)
		assert.Empty(t, countries, "no request is sent")
	})

	t.Run("request country wins over the default", func(t *testing.T) {
		countries = nil
		client := NewClient(ClientConfig{URL: server.URL, StartCountry: "CN", ShipTo: "US", RequestsPerSecond: 100, Timeout: time.Second}, nil)
		defer client.Close()

		_, err := client.Quote(context.Background(), "tok", QuoteRequest{SKU: "x", CountryCode: "DE"})
		require.NoError(t, err)
		_, err = client.Quote(context.Background(), "tok", QuoteRequest{SKU: "y"})
		require.NoError(t, err)

		assert.Equal(t, []string{"DE", "US"}, countries)
	})
}
