package model

import (
	"encoding/json"
)

// Item describes a single search result.
type Item struct {
	// ID uniquely identifies the item at the search endpoint.
	ID string `json:",omitempty"`
	// Title is the display title of the item.
	Title string
	// Year is the release year, if the endpoint supplies one.
	Year string `json:",omitempty"`
	// Poster is a URL of an image for the item.
	Poster string `json:",omitempty"`
}

// SearchResponse is the result of a search query.
type SearchResponse struct {
	// Results are the items matching the query, in endpoint order.
	Results []Item `json:",omitempty"`
	// Total is the total number of matches known to the endpoint, which may
	// be larger than len(Results) when the endpoint paginates.
	Total int `json:",omitempty"`
}

// MarshalSearchResponse serializes a SearchResponse.
func MarshalSearchResponse(r *SearchResponse) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalSearchResponse de-serializes a SearchResponse.
func UnmarshalSearchResponse(b []byte) (*SearchResponse, error) {
	var r SearchResponse
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
