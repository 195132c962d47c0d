package aggregatorclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/g2scv/llm-cost/internal/obslog"
)

func TestListModels_HappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prompt := "0.000003"
		completion := "0.000015"
		json.NewEncoder(w).Encode(struct {
			Data []RawModel `json:"data"`
		}{
			Data: []RawModel{{
				Slug:    "x/y",
				Name:    "X Y",
				Pricing: RawPricing{Prompt: &prompt, Completion: &completion},
			}},
		})
	}))
	defer server.Close()

	c := New(server.URL, "test-key", "/models", "/providers", "/byok", 5*time.Second, obslog.New("info", "text"))
	models, err := c.ListModels(t.Context(), ListFilters{})
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "x/y", models[0].Slug)
}

func TestListModels_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Data []RawModel `json:"data"`
		}{Data: []RawModel{{Slug: "a/b"}}})
	}))
	defer server.Close()

	c := New(server.URL, "test-key", "/models", "/providers", "/byok", 5*time.Second, obslog.New("info", "text"))
	models, err := c.ListModels(t.Context(), ListFilters{})
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.GreaterOrEqual(t, attempts, 2)
}

func Test4xxIsNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, "test-key", "/models", "/providers", "/byok", 5*time.Second, obslog.New("info", "text"))
	_, err := c.ListModels(t.Context(), ListFilters{})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
