package entitlement

import "fmt"

// Code identifies why a resolution was refused.
type Code string

const (
	CodeQuotaExceededNoKey           Code = "QuotaExceededNoKey"
	CodeQuotaExceededUpgradeRequired Code = "QuotaExceededUpgradeRequired"
	CodeMissingCredential            Code = "MissingCredential"
)

// Error is a refusal with a user-facing message.
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

func quotaExceededNoKey(quota int) *Error {
	return &Error{
		Code:    CodeQuotaExceededNoKey,
		Message: fmt.Sprintf("Monthly limit of %d prompts reached. Add a personal API key in Settings to continue.", quota),
	}
}

func quotaExceededUpgradeRequired(quota int) *Error {
	return &Error{
		Code:    CodeQuotaExceededUpgradeRequired,
		Message: fmt.Sprintf("Monthly limit of %d prompts reached. Upgrade your plan to continue.", quota),
	}
}

func missingPlatformCredential(provider string) *Error {
	return &Error{
		Code:    CodeMissingCredential,
		Message: fmt.Sprintf("Configuration Error: No API key found for %s.", provider),
	}
}

func missingPersonalCredential(provider string) *Error {
	return &Error{
		Code:    CodeMissingCredential,
		Message: fmt.Sprintf("No personal API key saved for %s.", provider),
	}
}
