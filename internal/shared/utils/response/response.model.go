package response

type StandardApiResponse struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"` // Validation or error details
}

// ErrorDetail carries a machine readable error code next to the message
type ErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}
