package middleware

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/wms-platform/replenishment-service/pkg/errors"
)

var validateOnce sync.Once

var (
	entityIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
	orderIDRegex  = regexp.MustCompile(`^REP-[0-9a-fA-F-]{8,}$`)
)

// InitValidator registers the custom tags on gin's validator engine and
// makes errors report JSON field names.
func InitValidator() {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		_ = v.RegisterValidation("entity_id", validateEntityID)
		_ = v.RegisterValidation("order_id", validateOrderID)

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
}

func validateEntityID(fl validator.FieldLevel) bool {
	return entityIDRegex.MatchString(fl.Field().String())
}

func validateOrderID(fl validator.FieldLevel) bool {
	return orderIDRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter flattens validator errors into field -> message.
func ValidationErrorFormatter(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[e.Field()] = formatValidationError(e)
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "entity_id":
		return "must be 1-128 characters of letters, digits, '_', '.', ':' or '-'"
	case "order_id":
		return "must be a replenishment order id (REP-<uuid>)"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// ContentType rejects non-JSON bodies on mutating requests.
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
			contentType := c.GetHeader("Content-Type")
			if c.Request.ContentLength > 0 && !strings.HasPrefix(contentType, "application/json") {
				AbortWithAppError(c, apperrors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", 415))
				return
			}
		}
		c.Next()
	}
}
