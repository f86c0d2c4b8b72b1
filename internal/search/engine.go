package search

import (
	"fmt"
	"regexp"
	"strings"
)

// Selection is the outcome of engine selection: a SerpAPI engine name
// plus the request parameters to send with it.
type Selection struct {
	Engine string
	Query  string
	Params map[string]string
}

// rule maps a category phrase pattern to an engine parameter template.
// Rules are ordered and deliberately overlapping: the first match wins,
// so the declared order is a load-bearing contract. Specific categories
// come before the generic web rule ("find me a hotel" must resolve to
// hotels, not web).
type rule struct {
	category string
	pattern  *regexp.Regexp
	engine   string
	params   map[string]string
}

const defaultEngine = "google"

var rules = []rule{
	{
		category: "hotels",
		pattern:  regexp.MustCompile(`hotel|accommodation|motel|stay|resort`),
		engine:   "google_hotels",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"currency":      "NZD",
			"num":           "10",
		},
	},
	{
		category: "food",
		pattern:  regexp.MustCompile(`restaurant|food|eat|dining|cuisine|menu`),
		engine:   "google_food",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"num":           "10",
		},
	},
	{
		category: "images",
		pattern:  regexp.MustCompile(`image|picture|photo|pic|show me`),
		engine:   "google_images",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"num":           "10",
			"safe":          "active",
			"tbs":           "itp:photos",
		},
	},
	{
		category: "maps",
		pattern:  regexp.MustCompile(`location|address|where|directions|map`),
		engine:   "google_maps",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"type":          "search",
			"num":           "10",
			// Auckland coordinates
			"ll": "@-36.8484597,174.7633315,14z",
		},
	},
	{
		category: "local",
		pattern:  regexp.MustCompile(`near|nearby|around|local|close to`),
		engine:   "google_local",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"num":           "10",
		},
	},
	{
		category: "events",
		pattern:  regexp.MustCompile(`event|concert|performance|what's on|festival`),
		engine:   "google_events",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"num":           "10",
		},
	},
	{
		category: "web",
		pattern:  regexp.MustCompile(`search|find|look up|tell me about`),
		engine:   "google",
		params: map[string]string{
			"google_domain": "google.co.nz",
			"gl":            "nz",
			"hl":            "en",
			"num":           "10",
			"safe":          "active",
		},
	},
}

// commonParams are merged into every category-matched selection.
var commonParams = map[string]string{
	"no_cache": "true",
	"device":   "desktop",
}

// EngineSelector derives a Selection from free query text. Selection is
// pure: the same query always yields the same result.
type EngineSelector struct {
	apiKey   string
	location string
}

// NewEngineSelector creates a selector. The API key must already have
// been validated at startup; it is not checked per call.
func NewEngineSelector(apiKey, location string) *EngineSelector {
	return &EngineSelector{apiKey: apiKey, location: location}
}

// baseParams every engine needs.
func (s *EngineSelector) baseParams() map[string]string {
	return map[string]string{
		"api_key":  s.apiKey,
		"location": s.location,
	}
}

// Select evaluates the ordered rule table against the lowercased query.
// A matched category yields base + common + category params, category
// keys winning on conflict. No match falls back to the default web
// engine with base params only.
func (s *EngineSelector) Select(query string) (Selection, error) {
	if strings.TrimSpace(query) == "" {
		return Selection{}, fmt.Errorf("query must not be empty")
	}

	lower := strings.ToLower(query)

	for _, r := range rules {
		if !r.pattern.MatchString(lower) {
			continue
		}
		params := s.baseParams()
		for k, v := range commonParams {
			params[k] = v
		}
		for k, v := range r.params {
			params[k] = v
		}
		return Selection{Engine: r.engine, Query: query, Params: params}, nil
	}

	return Selection{Engine: defaultEngine, Query: query, Params: s.baseParams()}, nil
}

// SelectionFor builds a Selection for an explicitly named engine,
// bypassing pattern matching. Used when the caller already knows which
// engine it wants.
func (s *EngineSelector) SelectionFor(engine, query string) Selection {
	params := s.baseParams()
	for k, v := range commonParams {
		params[k] = v
	}
	for _, r := range rules {
		if r.engine == engine {
			for k, v := range r.params {
				params[k] = v
			}
			break
		}
	}
	return Selection{Engine: engine, Query: query, Params: params}
}
