// Package handlers implements the HTTP API handlers. Each handler has the
// signature server.Wrap expects: func(context.Context, *Request) (*Response, error).
package handlers

import (
	"context"

	"github.com/maruel/chardb/internal/dataset"
	"github.com/maruel/chardb/internal/records"
	"github.com/maruel/chardb/internal/server/dto"
)

// CharacterHandler handles the /characters endpoints.
type CharacterHandler struct {
	svc *records.Service
}

// NewCharacterHandler creates a new character handler.
func NewCharacterHandler(svc *records.Service) *CharacterHandler {
	return &CharacterHandler{svc: svc}
}

// List returns a page of characters.
func (h *CharacterHandler) List(ctx context.Context, req *dto.ListCharactersRequest) (*dto.ListCharactersResponse, error) {
	p, err := records.ParsePage(req.Page, req.PerPage)
	if err != nil {
		return nil, apiError(err)
	}
	list, meta, err := h.svc.List(ctx, p)
	if err != nil {
		return nil, apiError(err)
	}
	return &dto.ListCharactersResponse{
		Data: characters(list),
		Meta: dto.Meta{
			Page:       meta.Page,
			PerPage:    meta.PerPage,
			Total:      meta.Total,
			TotalPages: meta.TotalPages,
		},
	}, nil
}

// Search returns every character matching the query.
func (h *CharacterHandler) Search(ctx context.Context, req *dto.SearchCharactersRequest) (*dto.SearchCharactersResponse, error) {
	list, err := h.svc.Search(ctx, records.Query{FirstName: req.FirstName, LastName: req.LastName})
	if err != nil {
		return nil, apiError(err)
	}
	return &dto.SearchCharactersResponse{Data: characters(list), Count: len(list)}, nil
}

// Update applies a partial update to one character.
func (h *CharacterHandler) Update(ctx context.Context, req *dto.UpdateCharacterRequest) (*dto.CharacterResponse, error) {
	r, err := h.svc.Update(ctx, req.ID, req.Patch)
	if err != nil {
		return nil, apiError(err)
	}
	return &dto.CharacterResponse{Data: dto.Character(r)}, nil
}

// Delete removes one character.
func (h *CharacterHandler) Delete(ctx context.Context, req *dto.DeleteCharacterRequest) (*dto.NoContentResponse, error) {
	if err := h.svc.Delete(ctx, req.ID); err != nil {
		return nil, apiError(err)
	}
	return &dto.NoContentResponse{}, nil
}

func characters(list []dataset.Record) []dto.Character {
	out := make([]dto.Character, len(list))
	for i, r := range list {
		out[i] = dto.Character(r)
	}
	return out
}
