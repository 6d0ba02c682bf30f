package models

// BaseResponse wraps a successful API payload.
type BaseResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse wraps an API failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
}

// MetaResponse carries pagination metadata.
type MetaResponse struct {
	CurrentPage int64 `json:"current_page"`
	LastPage    int64 `json:"last_page"`
	PerPage     int64 `json:"per_page"`
	Total       int64 `json:"total"`
}

// BasePaginationResponse wraps a paginated API payload.
type BasePaginationResponse struct {
	Data interface{}  `json:"data"`
	Meta MetaResponse `json:"meta"`
}
