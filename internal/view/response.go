package view

import (
	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type Response[T any] struct {
	Data    T           `json:"data"`
	Error   *ErrorBody  `json:"error"`
	Request interface{} `json:"request,omitempty"`
	Message string      `json:"message"`
}

// ErrorBody carries the machine-readable reason next to the message, so
// clients can branch without parsing text.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   ErrorBody `json:"error"`
	Message string    `json:"message"`
}

type PaginatedResponse[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

func CreateResponse[T any](data T, err error, req interface{}, message string) Response[T] {
	resp := Response[T]{
		Data:    data,
		Request: req,
		Message: message,
	}
	if err != nil {
		resp.Error = &ErrorBody{
			Kind:    string(model.KindOf(err)),
			Reason:  model.ReasonOf(err),
			Message: err.Error(),
		}
	}
	return resp
}
