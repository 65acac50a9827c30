package api

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
