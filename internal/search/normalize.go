package search

import (
	"encoding/json"
	"strings"

	"github.com/lifeyhq/lifey-core/internal/models"
)

// Normalize reshapes an engine-specific provider payload into the
// uniform item list. It never fails: unknown engines, malformed
// payloads and missing collections all degrade to an empty item list,
// and absent fields stay absent in the output.
func Normalize(engine string, raw json.RawMessage) *models.SearchResponse {
	resp := &models.SearchResponse{
		Items: []models.SearchItem{},
		Meta:  map[string]interface{}{},
	}

	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return resp
	}

	var items []rawItem
	switch engine {
	case "google_local", "google_maps":
		items = payload.Local.Places
	case "google_hotels":
		items = payload.Hotels
	case "google_images":
		items = payload.Images
	case "google_events":
		items = payload.Events
	case "google_food":
		items = payload.Restaurants
	default:
		items = payload.Organic
	}

	for _, it := range items {
		resp.Items = append(resp.Items, models.SearchItem{
			Title:       it.Title,
			Link:        it.Link,
			Snippet:     it.Snippet,
			Address:     string(it.Address),
			Rating:      it.Rating,
			Reviews:     it.Reviews,
			Price:       string(it.Price),
			Date:        string(it.Date),
			Thumbnail:   it.Thumbnail,
			Description: it.Description,
		})
	}

	if payload.SearchInformation != nil {
		resp.Meta = payload.SearchInformation
	}

	return resp
}

// rawPayload covers every collection the supported engines return.
type rawPayload struct {
	Organic           []rawItem              `json:"organic_results"`
	Local             localResults           `json:"local_results"`
	Hotels            []rawItem              `json:"hotels_results"`
	Images            []rawItem              `json:"images_results"`
	Events            []rawItem              `json:"events_results"`
	Restaurants       []rawItem              `json:"restaurants_results"`
	SearchInformation map[string]interface{} `json:"search_information"`
}

// localResults is either {"places": [...]} or a bare array depending on
// the engine; both forms are accepted.
type localResults struct {
	Places []rawItem `json:"places"`
}

func (l *localResults) UnmarshalJSON(data []byte) error {
	type wrapped localResults
	var w wrapped
	if err := json.Unmarshal(data, &w); err == nil {
		*l = localResults(w)
		return nil
	}
	var arr []rawItem
	if err := json.Unmarshal(data, &arr); err == nil {
		l.Places = arr
		return nil
	}
	// Unknown shape degrades to empty
	return nil
}

// rawItem is the union of the fields projected per engine.
type rawItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Snippet     string     `json:"snippet"`
	Address     flexString `json:"address"`
	Rating      float64    `json:"rating"`
	Reviews     int        `json:"reviews"`
	Price       flexString `json:"price"`
	Date        flexDate   `json:"date"`
	Thumbnail   string     `json:"thumbnail"`
	Description string     `json:"description"`
}

// flexString accepts a string, a string array (joined) or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = flexString(strings.Join(arr, ", "))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return nil
}

// flexDate accepts a string or an event date object ({"when": ...}).
type flexDate string

func (f *flexDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexDate(s)
		return nil
	}
	var obj struct {
		When      string `json:"when"`
		StartDate string `json:"start_date"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.When != "" {
			*f = flexDate(obj.When)
		} else {
			*f = flexDate(obj.StartDate)
		}
		return nil
	}
	return nil
}
