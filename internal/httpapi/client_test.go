package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4566", "http://localhost:4566"},
		{"http://localhost:4566/", "http://localhost:4566"},
		{"https://api.localstack.cloud/v1", "https://api.localstack.cloud/v1"},
		{" 127.0.0.1:4566 ", "http://127.0.0.1:4566"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeEndpoint(tt.in))
		})
	}
}

func TestClientDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compute/instances", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("ls-api-key"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dev", body["instance_name"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"starting"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	resp, err := c.Do(context.Background(), http.MethodPost, "/compute/instances",
		map[string]string{"ls-api-key": "secret"}, map[string]any{"instance_name": "dev"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.NotEmpty(t, resp.RequestID)

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "starting", out.Status)
}

func TestClientDoNonSuccessIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := New(server.URL).Do(context.Background(), http.MethodGet, "/missing", nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "nope", resp.Text())
}

func TestClientDoTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url).Do(context.Background(), http.MethodGet, "/_localstack/info", nil, nil)
	assert.Error(t, err)
}
