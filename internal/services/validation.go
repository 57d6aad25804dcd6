package services

import (
	"fmt"
	"reflect"
	"strings"

	"mediashelf/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("media_type", func(fl validator.FieldLevel) bool {
		return models.MediaType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return models.Status(fl.Field().String()).Valid()
	})
	v.RegisterStructValidation(statusForType, itemDraft{})
	return v
}

// statusForType rejects a status that exists but does not belong to the
// item's media type. Unknown values are already reported by the field tags.
func statusForType(sl validator.StructLevel) {
	d := sl.Current().Interface().(itemDraft)
	if !d.MediaType.Valid() || d.Status == "" {
		return
	}
	if !d.MediaType.AllowsStatus(d.Status) {
		sl.ReportError(d.Status, "status", "Status", "status_for_type", string(d.MediaType))
	}
}

// validateDraft returns a *ValidationError describing every rejected field,
// or nil.
func validateDraft(d itemDraft) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string]string{"_error": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = messageFor(fe)
	}
	return &ValidationError{Fields: fields}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "media_type":
		return "must be one of " + joinValues(models.MediaTypes)
	case "status":
		return "must be one of " + joinValues(models.Statuses)
	case "status_for_type":
		return fmt.Sprintf("is not valid for %s; use one of %s",
			fe.Param(), joinValues(models.MediaType(fe.Param()).Statuses()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be an absolute URL"
	default:
		return fe.Error()
	}
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
