package response

import "github.com/sis061/pilltime-sub000/internal"

type APIResponse struct {
	Data  interface{}        `json:"data,omitempty"`
	Meta  map[string]any     `json:"meta,omitempty"`
	Error *internal.AppError `json:"error,omitempty"`
}

func Success(data interface{}, meta map[string]any) APIResponse {
	return APIResponse{Data: data, Meta: meta, Error: nil}
}

func FromError(err error) APIResponse {
	return APIResponse{Error: internal.AsAppError(err)}
}

func BadRequest(msg string) APIResponse {
	return APIResponse{Error: internal.ValidationError(msg)}
}

func NotFound(msg string) APIResponse {
	return APIResponse{Error: internal.NotFoundError(msg)}
}

func Forbidden(msg string) APIResponse {
	return APIResponse{Error: internal.ForbiddenError(msg)}
}

func InternalError(msg string) APIResponse {
	return APIResponse{Error: internal.NewAppError(500, msg)}
}

func NewAppError(status int, msg string) APIResponse {
	return APIResponse{Error: internal.NewAppError(status, msg)}
}
