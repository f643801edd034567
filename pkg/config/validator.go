package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	moduleNamePattern     = regexp.MustCompile(`^[a-zA-Z_\x{7f}-\x{ff}][a-zA-Z0-9_\x{7f}-\x{ff}]*$`)
	controllerNamePattern = regexp.MustCompile(`^[a-zA-Z_\x{7f}-\x{ff}][a-zA-Z0-9_\x{7f}-\x{ff}/.]*$`)
)

// RegisterCustomValidators registers the name validators used by Config tags.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("module_name", validateModuleName); err != nil {
		return err
	}
	return v.RegisterValidation("controller_name", validateControllerName)
}

func validateModuleName(fl validator.FieldLevel) bool {
	return moduleNamePattern.MatchString(fl.Field().String())
}

func validateControllerName(fl validator.FieldLevel) bool {
	return controllerNamePattern.MatchString(fl.Field().String())
}
