package validation

import "errors"

var (
	ErrUnknownValidator = errors.New("unknown validator")
	ErrDuplicateName    = errors.New("validator name already registered")
	ErrInvalidParameter = errors.New("invalid validator parameter")
	ErrInvalidTree      = errors.New("invalid validator tree")
)
