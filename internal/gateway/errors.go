package gateway

import "github.com/promptarchitect/server/internal/entitlement"

// Code classifies a failed generation.
type Code string

const (
	CodeUnauthorized                 Code = "Unauthorized"
	CodeInvalidInput                 Code = "InvalidInput"
	CodeContentBlocked               Code = "ContentBlocked"
	CodeInvalidModel                 Code = "InvalidModel"
	CodeSubscriptionNotFound         Code = "SubscriptionNotFound"
	CodeQuotaExceededNoKey           Code = Code(entitlement.CodeQuotaExceededNoKey)
	CodeQuotaExceededUpgradeRequired Code = Code(entitlement.CodeQuotaExceededUpgradeRequired)
	CodeMissingCredential            Code = Code(entitlement.CodeMissingCredential)
	CodeUnsupportedProvider          Code = "UnsupportedProvider"
	CodeUpstreamProviderError        Code = "UpstreamProviderError"
	CodeRateLimited                  Code = "RateLimited"
	CodeInternal                     Code = "InternalError"
)

const (
	msgContentBlocked = "Your prompt contains content that violates our usage policy. Please revise and try again."
	msgOutputFlagged  = "Generated content was flagged. Please try a different topic."
)

// Error is a generation failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Result is the outcome of a generation. Content is empty whenever Error is set.
type Result struct {
	Content     string `json:"content"`
	Error       string `json:"error,omitempty"`
	Code        Code   `json:"code,omitempty"`
	PlatformKey bool   `json:"platform_key"`
}

// Failed reports whether the generation failed.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Err returns the failure as *Error, or nil.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Error}
}

func fail(code Code, message string) Result {
	return Result{Code: code, Error: message}
}
