// Maps domain errors to API errors.

package handlers

import (
	"errors"
	"net/http"

	"github.com/maruel/chardb/internal/dataset"
	"github.com/maruel/chardb/internal/records"
	"github.com/maruel/chardb/internal/server/dto"
)

// apiError translates an error returned by the record service. Errors that
// already carry a status pass through.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	switch {
	case errors.Is(err, records.ErrValidation):
		return dto.BadRequest(err.Error()).Wrap(err)
	case errors.Is(err, records.ErrRecordNotFound):
		return dto.NotFound("Character").Wrap(err)
	case errors.Is(err, dataset.ErrFileNotFound):
		return dto.NewAPIError(http.StatusNotFound, dto.ErrorCodeFileNotFound, "Data file not found").Wrap(err)
	case errors.Is(err, dataset.ErrSchema):
		return dto.InternalWithError(dto.ErrorCodeSchema, err)
	case errors.Is(err, dataset.ErrLockTimeout):
		return dto.InternalWithError(dto.ErrorCodeLockTimeout, err)
	case errors.Is(err, dataset.ErrIO):
		return dto.InternalWithError(dto.ErrorCodeStorageError, err)
	default:
		return dto.InternalWithError(dto.ErrorCodeInternal, err)
	}
}
