package models

// SearchItem is one normalized search result. Title and Link are common
// to every engine; the remaining fields are engine-specific and omitted
// when absent.
type SearchItem struct {
	Title       string  `json:"title"`
	Link        string  `json:"link,omitempty"`
	Snippet     string  `json:"snippet,omitempty"`
	Address     string  `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	Reviews     int     `json:"reviews,omitempty"`
	Price       string  `json:"price,omitempty"`
	Date        string  `json:"date,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Description string  `json:"description,omitempty"`
}

// SearchResponse is the uniform shape handed back to tool-output
// consumers and the /search endpoint: a flat item list plus a metadata
// passthrough from the raw provider response.
type SearchResponse struct {
	Items []SearchItem           `json:"items"`
	Meta  map[string]interface{} `json:"meta"`
}
