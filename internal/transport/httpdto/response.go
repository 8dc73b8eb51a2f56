package httpdto

// Response is the envelope every relay HTTP endpoint answers with.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

// NewFailureResponse reports a failure that still carries a body, such as a
// health report with a failing dependency.
func NewFailureResponse[T any](data T, code string) Response[T] {
	return Response[T]{
		Success: false,
		Data:    data,
		Code:    code,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}
