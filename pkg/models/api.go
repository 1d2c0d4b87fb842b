package models

// ErrorType categorizes API errors for clients.
type ErrorType string

const (
	GeneralErrorType    ErrorType = "general"
	ValidationErrorType ErrorType = "validation"
	NotFoundErrorType   ErrorType = "not_found"
	AuthErrorType       ErrorType = "auth"
)

// APIResponse is the uniform envelope returned by every HTTP endpoint.
type APIResponse struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}

// CancelResponse reports the outcome of a cancel request. A false Cancelled
// means the alert had already progressed past its window; that is a normal
// negative result, not an error.
type CancelResponse struct {
	AlertID   AlertID `json:"alert_id"`
	Cancelled bool    `json:"cancelled"`
}

// SubscribeRequest registers a browser push subscription for a user.
type SubscribeRequest struct {
	UserID   UserID `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}
