// Response types for the HTTP API.

package dto

// Character is one record, column name to text value.
type Character map[string]string

// HomeResponse is the response of the root endpoint.
type HomeResponse struct {
	Home string `json:"home"`
}

// HealthResponse is the response to a health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Meta describes a listing window.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ListCharactersResponse is a page of characters.
type ListCharactersResponse struct {
	Data []Character `json:"data"`
	Meta Meta        `json:"meta"`
}

// SearchCharactersResponse holds every matching character.
type SearchCharactersResponse struct {
	Data  []Character `json:"data"`
	Count int         `json:"count"`
}

// CharacterResponse holds a single character.
type CharacterResponse struct {
	Data Character `json:"data"`
}

// NoContentResponse is answered with 204 and an empty body.
type NoContentResponse struct{}
