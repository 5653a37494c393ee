// Request types for the HTTP API.

package dto

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Validatable is implemented by request types that can validate their fields.
// server.Wrap uses this interface as a type constraint to ensure all request
// types provide validation.
type Validatable interface {
	Validate() error
}

// HomeRequest is the request for the root endpoint.
type HomeRequest struct{}

// Validate implements Validatable.
func (r *HomeRequest) Validate() error {
	return nil
}

// HealthRequest is the request for the health check.
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error {
	return nil
}

// ListCharactersRequest is the request for a paginated listing. The values
// are kept raw so that non-numeric input can be reported.
type ListCharactersRequest struct {
	Page    string `query:"page"`
	PerPage string `query:"per_page"`
}

// Validate implements Validatable. Numeric parsing happens in the handler.
func (r *ListCharactersRequest) Validate() error {
	return nil
}

// SearchCharactersRequest is the request for a search.
type SearchCharactersRequest struct {
	FirstName string `query:"first_name"`
	LastName  string `query:"last_name"`
}

// Validate implements Validatable.
func (r *SearchCharactersRequest) Validate() error {
	if r.FirstName == "" && r.LastName == "" {
		return BadRequest("Provide at least one of first_name or last_name")
	}
	return nil
}

// UpdateCharacterRequest is the request for a partial update. The whole JSON
// body is the patch.
type UpdateCharacterRequest struct {
	ID    string `path:"id"`
	Patch map[string]any
}

// UnmarshalJSON captures the body object as the patch. Numbers are kept as
// json.Number so they round-trip to their original text.
func (r *UpdateCharacterRequest) UnmarshalJSON(b []byte) error {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var patch map[string]any
	if err := d.Decode(&patch); err != nil {
		return errors.New("body must be a JSON object")
	}
	r.Patch = patch
	return nil
}

// Validate implements Validatable.
func (r *UpdateCharacterRequest) Validate() error {
	if r.ID == "" {
		return BadRequest("Missing character id")
	}
	if r.Patch == nil {
		return BadRequest("Request body must be a JSON object")
	}
	return nil
}

// DeleteCharacterRequest is the request for a delete.
type DeleteCharacterRequest struct {
	ID string `path:"id"`
}

// Validate implements Validatable.
func (r *DeleteCharacterRequest) Validate() error {
	if r.ID == "" {
		return BadRequest("Missing character id")
	}
	return nil
}
