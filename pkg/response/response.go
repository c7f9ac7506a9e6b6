package response

// Response represents a standard API response format
type Response struct {
	Status     string                 `json:"status"`      // "success" or "error"
	StatusCode int                    `json:"status_code"` // HTTP status code
	Data       interface{}            `json:"data,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Code       string                 `json:"code,omitempty"` // machine-readable error kind
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Page wraps one page of a listing.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessWithWarnings is Success for operations that completed but want to flag
// something to the caller.
func SuccessWithWarnings(statusCode int, data interface{}, warnings []string) Response {
	r := Success(statusCode, data)
	r.Warnings = warnings
	return r
}

// Paginated returns a success response carrying one page of items.
func Paginated(statusCode int, items interface{}, total int64, page, limit int) Response {
	return Success(statusCode, Page{Items: items, Total: total, Page: page, Limit: limit})
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// ErrorWithCode is Error tagged with a machine-readable code and optional parameters.
func ErrorWithCode(statusCode int, code, err string, params map[string]interface{}) Response {
	r := Error(statusCode, err)
	r.Code = code
	r.Params = params
	return r
}
