package model

// AppError is the error payload returned by the HTTP API. Every typed error in
// this module carries one so the HTTP layer can map it without guessing.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage"`

	Snippet string `json:"snippet,omitempty"` // at most 200 bytes
	Hint    string `json:"hint,omitempty"`
}

type ErrorResponse struct {
	Error AppError `json:"error"`
}
