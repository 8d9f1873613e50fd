package internal

import "net/http"

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindTransient  ErrorKind = "transient"
	KindPartial    ErrorKind = "partial"
	KindInternal   ErrorKind = "internal"
)

// AppError is the only error shape allowed to cross the API boundary. Every
// failure inside the core is classified into one of the kinds above before it
// reaches a handler.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Fields  []string  `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg string) *AppError {
	return &AppError{Kind: KindInternal, Code: code, Message: msg}
}

func ValidationError(msg string, fields ...string) *AppError {
	return &AppError{Kind: KindValidation, Code: http.StatusBadRequest, Message: msg, Fields: fields}
}

func NotFoundError(msg string) *AppError {
	return &AppError{Kind: KindNotFound, Code: http.StatusNotFound, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Kind: KindForbidden, Code: http.StatusForbidden, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Kind: KindConflict, Code: http.StatusConflict, Message: msg}
}

func TransientError(msg string) *AppError {
	return &AppError{Kind: KindTransient, Code: http.StatusServiceUnavailable, Message: msg}
}

func PartialError(msg string) *AppError {
	return &AppError{Kind: KindPartial, Code: http.StatusMultiStatus, Message: msg}
}

// AsAppError classifies an arbitrary error for the boundary. Unclassified
// errors become 500s rather than leaking through unstructured.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return &AppError{Kind: KindInternal, Code: http.StatusInternalServerError, Message: err.Error()}
}
