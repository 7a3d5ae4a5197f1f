package mongodb

import (
	"fmt"

	"github.com/wms-platform/replenishment-service/internal/domain"
	"github.com/wms-platform/replenishment-service/pkg/mongodb"
)

// wrapErr tags connectivity failures with domain.ErrUnavailable so the
// application layer can answer 503 instead of 500.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongodb.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
