package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"rules":[]}`}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 30, "candidatesTokenCount": 4},
		})
	}))
	defer ts.Close()

	client, err := NewClient(context.Background(), "test-key", ts.URL)
	require.NoError(t, err)

	resp, err := client.Generate(context.Background(), GenerateRequest{
		Model:     "gemini-2.5-flash",
		System:    "You are a legal analyst.",
		User:      "Find rules",
		MaxTokens: 512,
		JSON:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"rules":[]}`, resp.Text)
	assert.Equal(t, int32(30), resp.InputTokens)
	assert.Equal(t, int32(4), resp.OutputTokens)

	assert.Contains(t, got, "systemInstruction")
	genCfg := got["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genCfg["responseMimeType"])
}

func TestGenerate_ErrorExposesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"error": map[string]any{"code": 503, "message": "overloaded", "status": "UNAVAILABLE"},
		})
	}))
	defer ts.Close()

	client, err := NewClient(context.Background(), "test-key", ts.URL)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), GenerateRequest{Model: "gemini-2.5-flash", User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestStatusCode_Plain(t *testing.T) {
	assert.Equal(t, 0, StatusCode(context.DeadlineExceeded))
}
