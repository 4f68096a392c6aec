package application

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// newValidator returns a validator that reports fields by their YAML keys
// and knows the config-specific tags.
func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(yamlFieldName)

	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return v, nil
}

// RegisterConfigValidators adds the modelformat and variantpattern tags to v.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	if err := v.RegisterValidation("variantpattern", validateVariantPattern); err != nil {
		return fmt.Errorf("failed to register variantpattern validator: %w", err)
	}
	return nil
}

func yamlFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// validateModelFormat accepts "provider" or "provider/model", where the
// provider is lowercase alphanumeric and the model is non-empty when the
// slash is present.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}

	provider, name, hasSlash := strings.Cut(model, "/")
	if provider == "" {
		return false
	}
	for _, ch := range provider {
		if !(ch >= 'a' && ch <= 'z') && !(ch >= '0' && ch <= '9') {
			return false
		}
	}
	if !hasSlash {
		return true
	}
	if name == "" {
		return false
	}
	for _, ch := range name {
		if ch == ' ' || ch == '\t' || ch == '\n' {
			return false
		}
	}
	return true
}

// validateVariantPattern requires exactly one %d verb, no other verbs, and
// no path separators.
func validateVariantPattern(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if strings.ContainsAny(p, `/\`) {
		return false
	}
	if strings.Count(p, "%d") != 1 {
		return false
	}
	return strings.Count(p, "%") == 1
}
