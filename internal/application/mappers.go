package application

import (
	stderrors "errors"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/errors"
)

// toAppError maps domain and dependency failures onto the API taxonomy.
// component names the dependency in SERVICE_UNAVAILABLE messages.
func toAppError(err error, component string) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var validation *domain.ValidationError
	switch {
	case stderrors.As(err, &validation):
		return errors.ErrValidationWithFields(validation.Error(), map[string]string{validation.Field: validation.Message}).Wrap(err)
	case stderrors.Is(err, domain.ErrOrderNotFound):
		return errors.ErrNotFound("replenishment order").Wrap(err)
	case stderrors.Is(err, domain.ErrStockNotFound):
		return errors.ErrNotFound("stock").Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentModification):
		return errors.ErrConflict(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrUnavailable):
		return errors.ErrServiceUnavailable(component).Wrap(err)
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}

// IsDependencyFailure reports whether err should cause an inbound message
// to be redelivered rather than acked.
func IsDependencyFailure(err error) bool {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return err != nil
	}
	switch appErr.Code {
	case errors.CodeServiceUnavailable, errors.CodeInternalError, errors.CodeTimeout, errors.CodeConflict:
		return true
	default:
		return false
	}
}
