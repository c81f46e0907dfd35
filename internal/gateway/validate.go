package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxTopicLength is the longest accepted topic, in characters.
const MaxTopicLength = 2000

type generationInput struct {
	Topic      string `validate:"required,max=2000"`
	ModelID    string `validate:"required,max=128"`
	TemplateID string `validate:"omitempty,max=64"`
	Style      string `validate:"omitempty,max=500"`
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return "Invalid request"
	}
	fe := validationErrors[0]
	field := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Field() == "Topic" {
			return fmt.Sprintf("Topic exceeds maximum length of %d characters", MaxTopicLength)
		}
		return fmt.Sprintf("%s exceeds maximum length of %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func fieldLabel(name string) string {
	switch name {
	case "ModelID":
		return "Model"
	case "TemplateID":
		return "Template"
	default:
		return strings.TrimSpace(name)
	}
}
