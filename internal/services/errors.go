package services

import (
	"errors"
	"net/http"
)

// ErrorInfo describes one class of failure surfaced to API callers.
type ErrorInfo struct {
	Name    string
	Status  int
	Message string
}

var (
	ErrorValidation = ErrorInfo{
		Name:    "VALIDATION_ERROR",
		Status:  http.StatusBadRequest,
		Message: "Invalid request",
	}
	ErrorNotFound = ErrorInfo{
		Name:    "NOT_FOUND",
		Status:  http.StatusNotFound,
		Message: "Resource not found",
	}
	ErrorUnauthorized = ErrorInfo{
		Name:    "UNAUTHORIZED",
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
	}
	ErrorConfiguration = ErrorInfo{
		Name:    "CONFIGURATION_ERROR",
		Status:  http.StatusInternalServerError,
		Message: "Server configuration error",
	}
	ErrorGateway = ErrorInfo{
		Name:    "GATEWAY_ERROR",
		Status:  http.StatusBadGateway,
		Message: "Payment or delivery gateway error",
	}
	ErrorMapping = ErrorInfo{
		Name:    "MAPPING_ERROR",
		Status:  http.StatusUnprocessableEntity,
		Message: "Unsupported network",
	}
	ErrorInvalidTransition = ErrorInfo{
		Name:    "INVALID_TRANSITION",
		Status:  http.StatusConflict,
		Message: "Transaction cannot move to the requested state",
	}
)

// ServiceError is a classified error returned by the services package.
type ServiceError struct {
	Info    ErrorInfo
	Err     error
	Details any
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Info.Name + ": " + e.Err.Error()
	}
	return e.Info.Name
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(info ErrorInfo, err error) *ServiceError {
	return &ServiceError{Info: info, Err: err}
}

// HasKind reports whether err is a ServiceError of the given class.
func HasKind(err error, info ErrorInfo) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Info.Name == info.Name
	}
	return false
}

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrUnmappedNetwork      = errors.New("network has no delivery gateway code")
	ErrGatewayNotConfigured = errors.New("gateway credentials are not configured")
	ErrMessageNotFound      = errors.New("system message not found")

	// ErrLockLost means the delivery lock was no longer held when the outcome
	// was recorded, usually after an admin override.
	ErrLockLost = errors.New("delivery lock no longer held")

	// ErrDeliveryOutcomeUnknown means the request may have reached the delivery
	// gateway but no response was received.
	ErrDeliveryOutcomeUnknown = errors.New("delivery outcome unknown")
)
