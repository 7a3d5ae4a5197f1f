package openapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// Validator validates HTTP requests and responses against an OpenAPI specification.
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewValidator loads and validates the document at specPath.
func NewValidator(specPath string) (*Validator, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec from %s: %w", specPath, err)
	}
	return newValidator(doc)
}

// NewValidatorFromBytes creates a new OpenAPI validator from specification bytes.
func NewValidatorFromBytes(specBytes []byte) (*Validator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(specBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	return newValidator(doc)
}

func newValidator(doc *openapi3.T) (*Validator, error) {
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	// Servers are dropped so requests recorded against any host are routed.
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &Validator{doc: doc, router: router}, nil
}

func (v *Validator) findRoute(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return nil, fmt.Errorf("failed to find route for %s %s: %w", req.Method, req.URL.Path, err)
	}
	return &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options:    &openapi3filter.Options{MultiError: true},
	}, nil
}

// ValidateRequest validates an HTTP request against the OpenAPI specification.
// The request body is restored after reading.
func (v *Validator) ValidateRequest(req *http.Request) error {
	input, err := v.findRoute(req)
	if err != nil {
		return err
	}

	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// ValidateResponse validates a recorded response for req.
func (v *Validator) ValidateResponse(req *http.Request, status int, header http.Header, body []byte) error {
	input, err := v.findRoute(req)
	if err != nil {
		return err
	}

	responseInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 status,
		Header:                 header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}

	if err := openapi3filter.ValidateResponse(req.Context(), responseInput); err != nil {
		return fmt.Errorf("response validation failed: %w", err)
	}
	return nil
}

// GetOperationID returns the operation ID for a given request.
func (v *Validator) GetOperationID(req *http.Request) (string, error) {
	route, _, err := v.router.FindRoute(req)
	if err != nil {
		return "", fmt.Errorf("failed to find route: %w", err)
	}
	return route.Operation.OperationID, nil
}

// GetDocument returns the parsed OpenAPI document.
func (v *Validator) GetDocument() *openapi3.T {
	return v.doc
}
