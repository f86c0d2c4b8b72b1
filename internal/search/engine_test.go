package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSelector() *EngineSelector {
	return NewEngineSelector("test-api-key", "Auckland, New Zealand")
}

func TestSelectEngineCategories(t *testing.T) {
	s := newTestSelector()

	cases := []struct {
		name   string
		query  string
		engine string
	}{
		{"hotels", "find me a hotel in Auckland", "google_hotels"},
		{"accommodation", "cheap accommodation downtown", "google_hotels"},
		{"food", "Italian restaurants in CBD", "google_food"},
		{"dining", "fine dining options", "google_food"},
		{"images", "show me pictures of Rangitoto", "google_images"},
		{"maps", "directions to the ferry terminal", "google_maps"},
		{"local", "coffee shops nearby", "google_local"},
		{"events", "concerts this weekend", "google_events"},
		{"web", "tell me about the America's Cup", "google"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel, err := s.Select(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.engine, sel.Engine)
			assert.Equal(t, tc.query, sel.Query)
		})
	}
}

func TestSelectEngineHotelScenario(t *testing.T) {
	s := newTestSelector()

	sel, err := s.Select("find me a hotel in Auckland")
	require.NoError(t, err)

	assert.Equal(t, "google_hotels", sel.Engine)
	assert.Equal(t, "Auckland, New Zealand", sel.Params["location"])
	assert.Equal(t, "test-api-key", sel.Params["api_key"])
	assert.Equal(t, "NZD", sel.Params["currency"])
}

func TestSelectEngineParamMerge(t *testing.T) {
	s := newTestSelector()

	sel, err := s.Select("coffee shops nearby")
	require.NoError(t, err)
	require.Equal(t, "google_local", sel.Engine)

	// Base params
	assert.Equal(t, "test-api-key", sel.Params["api_key"])
	assert.Equal(t, "Auckland, New Zealand", sel.Params["location"])
	// Common params
	assert.Equal(t, "true", sel.Params["no_cache"])
	assert.Equal(t, "desktop", sel.Params["device"])
	// Category template
	assert.Equal(t, "google.co.nz", sel.Params["google_domain"])
	assert.Equal(t, "nz", sel.Params["gl"])
	assert.Equal(t, "en", sel.Params["hl"])
	assert.Equal(t, "10", sel.Params["num"])
}

func TestSelectEngineDefaultFallback(t *testing.T) {
	s := newTestSelector()

	sel, err := s.Select("how to make pasta")
	require.NoError(t, err)

	assert.Equal(t, "google", sel.Engine)
	// Only base params, no common or category defaults
	assert.Equal(t, map[string]string{
		"api_key":  "test-api-key",
		"location": "Auckland, New Zealand",
	}, sel.Params)
}

func TestSelectEngineFirstMatchWins(t *testing.T) {
	s := newTestSelector()

	// "find" matches the generic web rule, "hotel" the hotels rule.
	// Specific categories are declared first, so hotels must win.
	sel, err := s.Select("find a hotel")
	require.NoError(t, err)
	assert.Equal(t, "google_hotels", sel.Engine)

	// "show me" matches images, "festival" matches events. Images is
	// declared first.
	sel, err = s.Select("show me this weekend's festival")
	require.NoError(t, err)
	assert.Equal(t, "google_images", sel.Engine)
}

func TestSelectEngineIdempotent(t *testing.T) {
	s := newTestSelector()

	first, err := s.Select("wine bars near the Viaduct")
	require.NoError(t, err)
	second, err := s.Select("wine bars near the Viaduct")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSelectEngineEmptyQuery(t *testing.T) {
	s := newTestSelector()

	_, err := s.Select("   ")
	assert.Error(t, err)
}

func TestSelectionForExplicitEngine(t *testing.T) {
	s := newTestSelector()

	sel := s.SelectionFor("google_events", "what's happening")
	assert.Equal(t, "google_events", sel.Engine)
	assert.Equal(t, "test-api-key", sel.Params["api_key"])
	assert.Equal(t, "true", sel.Params["no_cache"])
	assert.Equal(t, "google.co.nz", sel.Params["google_domain"])
}
