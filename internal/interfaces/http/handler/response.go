package handler

import "github.com/gamehub/backend/internal/interfaces/http/dto"

// Documentation-only envelopes. Handlers write dto.Response; these give
// swag a typed data field to render.

// APIResponse is the success envelope with a typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success" example:"true"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse is the failure envelope. For transfers error.transfer_state
// tells whether the request was rejected locally or failed at the aggregator.
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// SuccessResponse carries no data
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// CountData wraps a bare count, e.g. pending reconciliations
type CountData struct {
	Count int64 `json:"count" example:"0"`
}
