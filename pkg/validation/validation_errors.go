package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldLabels maps struct field names to labels shown in error messages.
var FieldLabels = map[string]string{
	"Email":           "Email",
	"Password":        "Password",
	"PasswordConfirm": "Password confirmation",
	"FullName":        "Full name",
	"Role":            "Role",
	"AvatarURL":       "Avatar URL",
	"Headline":        "Headline",
	"Skills":          "Skills",
	"ResumeURL":       "Resume URL",
	"CompanyName":     "Company name",
	"CompanySize":     "Company size",
	"Industry":        "Industry",
	"Website":         "Website",
	"InstitutionName": "Institution name",
	"FocusAreas":      "Focus areas",
	"ContactPhone":    "Contact phone",
	"RedirectTo":      "Redirect URL",
}

// FormatValidationErrors converts validator.ValidationErrors into messages
// fit for an API response.
func FormatValidationErrors(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleError(e))
	}
	return messages
}

func formatSingleError(e validator.FieldError) string {
	label := getFieldLabel(e.Field())
	param := e.Param()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "min":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at least %s", label, param)
	case "max":
		if e.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", label, param)
		}
		return fmt.Sprintf("%s must be at most %s", label, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", label, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.Join(strings.Split(param, " "), ", "))
	case "email":
		return fmt.Sprintf("%s is not a valid email address", label)
	case "url":
		return fmt.Sprintf("%s is not a valid URL", label)
	case "valid_name":
		return fmt.Sprintf("%s may only contain letters, spaces, and common punctuation", label)
	case "valid_phone":
		return fmt.Sprintf("%s is not a valid phone number (7-15 digits, optional +)", label)
	case "no_emoji":
		return fmt.Sprintf("%s must not contain emoji or special symbols", label)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", label, getFieldLabel(param))
	default:
		return fmt.Sprintf("%s failed validation (%s)", label, e.Tag())
	}
}

func getFieldLabel(fieldName string) string {
	if label, ok := FieldLabels[fieldName]; ok {
		return label
	}
	return formatCamelCase(fieldName)
}

func formatCamelCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune(' ')
		}
		result.WriteRune(r)
	}
	return result.String()
}
